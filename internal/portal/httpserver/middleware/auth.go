package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"finitefield.org/hanko-portal/internal/portal/authclient"
	"finitefield.org/hanko-portal/internal/portal/observability"
	appsession "finitefield.org/hanko-portal/internal/portal/session"
)

// TokenCookieName is the cookie holding "Bearer <ID token>" after sign in.
const TokenCookieName = "Authorization"

// Reasons reported by AuthError.
const (
	ReasonMissingToken = "missing_token"
	ReasonTokenInvalid = "token_invalid"
	ReasonTokenExpired = "token_expired"
)

// ErrUnauthorized is the fallback cause of a rejected token.
var ErrUnauthorized = errors.New("unauthorized")

// User is the account behind a verified ID token.
type User struct {
	UID           string
	Email         string
	EmailVerified bool
	Token         string
}

// Authenticator verifies an ID token.
type Authenticator interface {
	Authenticate(r *http.Request, token string) (*User, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request, token string) (*User, error)

func (f AuthenticatorFunc) Authenticate(r *http.Request, token string) (*User, error) {
	return f(r, token)
}

// Revoker invalidates a user's provider refresh tokens on sign-out.
type Revoker interface {
	Revoke(ctx context.Context, uid string) error
}

// AuthError tags an authentication failure with one of the Reason values.
type AuthError struct {
	Reason string
	Err    error
}

func NewAuthError(reason string, err error) error {
	return &AuthError{Reason: reason, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return e.Reason + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// RejectAll is the authenticator used when none is configured.
func RejectAll() Authenticator {
	return AuthenticatorFunc(func(*http.Request, string) (*User, error) {
		return nil, NewAuthError(ReasonTokenInvalid, ErrUnauthorized)
	})
}

type userContextKey struct{}

// AuthOption customises Auth.
type AuthOption func(*authOptions)

type authOptions struct {
	refresher  authclient.Refresher
	cookiePath string
}

// WithTokenRefresh renews a missing or expired ID token from the session's
// refresh token and reissues the auth cookie under cookiePath.
func WithTokenRefresh(refresher authclient.Refresher, cookiePath string) AuthOption {
	return func(o *authOptions) {
		o.refresher = refresher
		o.cookiePath = cookiePath
	}
}

// Auth lets requests with a valid ID token through and sends everyone else to
// loginPath. Rejected requests also sign the session out.
func Auth(authenticator Authenticator, loginPath string, opts ...AuthOption) func(http.Handler) http.Handler {
	if authenticator == nil {
		authenticator = RejectAll()
	}
	if loginPath == "" {
		loginPath = "/signin"
	}
	var o authOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, reason, err := authenticate(r, authenticator)
			if reason == ReasonMissingToken || reason == ReasonTokenExpired {
				if renewed, ok := refreshUser(w, r, authenticator, o); ok {
					user, reason, err = renewed, "", nil
				}
			}
			if reason != "" {
				logger := observability.FromContext(r.Context())
				if reason == ReasonMissingToken {
					logger.Debug("auth failure", zap.String("reason", reason))
				} else {
					logger.Info("auth failure", zap.String("reason", reason), zap.Error(err))
				}
				if sess, ok := SessionFromContext(r.Context()); ok {
					sess.SetUser(nil)
					sess.SetRefreshToken("")
				}
				deny(w, r, loginPath, reason)
				return
			}

			if sess, ok := SessionFromContext(r.Context()); ok {
				if prev := sess.User(); user.Email == "" && prev != nil && prev.UID == user.UID {
					user.Email = prev.Email
				}
				sess.SetUser(&appsession.User{UID: user.UID, Email: user.Email})
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userContextKey{}, user)))
		})
	}
}

// refreshUser trades the session's refresh token for a new ID token that
// must verify as the same account.
func refreshUser(w http.ResponseWriter, r *http.Request, authenticator Authenticator, o authOptions) (*User, bool) {
	if o.refresher == nil {
		return nil, false
	}
	sess, ok := SessionFromContext(r.Context())
	if !ok || sess.RefreshToken() == "" {
		return nil, false
	}
	prev := sess.User()
	if prev == nil {
		return nil, false
	}

	logger := observability.FromContext(r.Context())
	renewed, err := o.refresher.Refresh(r.Context(), sess.RefreshToken())
	if err != nil || renewed == nil || renewed.IDToken == "" {
		logger.Info("token refresh failed", zap.String("uid", prev.UID), zap.Error(err))
		return nil, false
	}
	user, err := authenticator.Authenticate(r, renewed.IDToken)
	if err != nil || user == nil || user.UID != prev.UID {
		logger.Warn("refreshed token rejected", zap.String("uid", prev.UID), zap.Error(err))
		return nil, false
	}

	if renewed.RefreshToken != "" {
		sess.SetRefreshToken(renewed.RefreshToken)
	}
	SetTokenCookie(w, r, o.cookiePath, renewed.IDToken, renewed.ExpiresIn)
	logger.Debug("id token refreshed", zap.String("uid", user.UID))
	return user, true
}

// authenticate returns the user, or a non-empty reason and its cause.
func authenticate(r *http.Request, authenticator Authenticator) (*User, string, error) {
	token := requestToken(r)
	if token == "" {
		return nil, ReasonMissingToken, ErrUnauthorized
	}
	user, err := authenticator.Authenticate(r, token)
	if err == nil && user != nil {
		return user, "", nil
	}
	reason := ReasonTokenInvalid
	var authErr *AuthError
	if errors.As(err, &authErr) {
		if authErr.Reason != "" {
			reason = authErr.Reason
		}
		err = authErr.Err
	}
	if err == nil {
		err = ErrUnauthorized
	}
	return nil, reason, err
}

// requestToken reads the bearer token from the Authorization header, then
// from the auth cookie.
func requestToken(r *http.Request) string {
	if token := stripBearer(r.Header.Get("Authorization")); token != "" {
		return token
	}
	for _, name := range []string{TokenCookieName, "__session"} {
		if c, err := r.Cookie(name); err == nil {
			value := strings.TrimSpace(c.Value)
			if token := stripBearer(value); token != "" {
				return token
			}
			if value != "" && !strings.Contains(value, " ") {
				return value
			}
		}
	}
	return ""
}

func stripBearer(value string) string {
	const prefix = "bearer "
	if len(value) <= len(prefix) || !strings.EqualFold(value[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(value[len(prefix):])
}

// deny redirects to sign in. htmx requests get a 401 with HX-Redirect, or
// HX-Refresh for an expired token.
func deny(w http.ResponseWriter, r *http.Request, loginPath, reason string) {
	if IsHTMXRequest(r.Context()) {
		if reason == ReasonTokenExpired {
			HXRefresh(w)
		} else {
			HXRedirect(w, loginPath)
		}
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	target := loginPath
	if reason == ReasonTokenExpired {
		if u, err := url.Parse(loginPath); err == nil {
			q := u.Query()
			q.Set("reason", "expired")
			u.RawQuery = q.Encode()
			target = u.String()
		}
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// UserFromContext returns the user verified by Auth.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}
