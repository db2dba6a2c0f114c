package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

// CSRFFormField is the hidden input carrying the token on plain form posts.
const CSRFFormField = "_csrf"

const defaultCSRFHeader = "X-CSRF-Token"

// CSRFConfig controls the double-submit cookie. Zero values fall back to
// portal_csrf, "/", X-CSRF-Token and 24h.
type CSRFConfig struct {
	CookieName string
	CookiePath string
	HeaderName string
	MaxAge     time.Duration
	Secure     bool
}

type csrfContext struct {
	token  string
	header string
}

type csrfContextKey struct{}

// CSRF issues a token cookie on every request and requires unsafe methods to
// echo it in the header or the _csrf form field.
func CSRF(cfg CSRFConfig) func(http.Handler) http.Handler {
	g := csrfGuard{
		cookie: firstNonEmptyString(cfg.CookieName, "portal_csrf"),
		path:   firstNonEmptyString(cfg.CookiePath, "/"),
		header: firstNonEmptyString(cfg.HeaderName, defaultCSRFHeader),
		maxAge: cfg.MaxAge,
		secure: cfg.Secure,
	}
	if g.maxAge <= 0 {
		g.maxAge = 24 * time.Hour
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := g.token(w, r)
			if !ok {
				http.Error(w, "csrf token error", http.StatusInternalServerError)
				return
			}
			if unsafeMethod(r.Method) && !g.verify(r, token) {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), csrfContextKey{}, csrfContext{token: token, header: g.header})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type csrfGuard struct {
	cookie string
	path   string
	header string
	maxAge time.Duration
	secure bool
}

// token returns the cookie's token, minting and setting a new one if absent.
func (g csrfGuard) token(w http.ResponseWriter, r *http.Request) (string, bool) {
	if c, err := r.Cookie(g.cookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	key := securecookie.GenerateRandomKey(32)
	if key == nil {
		return "", false
	}
	token := base64.RawURLEncoding.EncodeToString(key)
	http.SetCookie(w, &http.Cookie{
		Name:     g.cookie,
		Value:    token,
		Path:     g.path,
		MaxAge:   int(g.maxAge / time.Second),
		HttpOnly: true,
		Secure:   g.secure || r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})
	return token, true
}

func (g csrfGuard) verify(r *http.Request, token string) bool {
	submitted := r.Header.Get(g.header)
	if submitted == "" {
		submitted = r.PostFormValue(CSRFFormField)
	}
	return submitted != "" && subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) == 1
}

// CSRFTokenFromContext returns the token to embed in forms and meta tags.
func CSRFTokenFromContext(ctx context.Context) string {
	c, _ := ctx.Value(csrfContextKey{}).(csrfContext)
	return c.token
}

// CSRFHeaderFromContext returns the header htmx should echo the token in.
func CSRFHeaderFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(csrfContextKey{}).(csrfContext); ok && c.header != "" {
		return c.header
	}
	return defaultCSRFHeader
}

func unsafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	return true
}

func firstNonEmptyString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
