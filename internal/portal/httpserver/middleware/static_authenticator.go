package middleware

import (
	"net/http"
	"strings"

	"finitefield.org/hanko-portal/internal/portal/authclient"
)

// TokenVerifier resolves ID tokens minted by an in-process provider.
type TokenVerifier interface {
	Verify(idToken string) (*authclient.Session, error)
}

// NewStaticAuthenticator authenticates tokens issued by the in-memory provider
// used for local development.
func NewStaticAuthenticator(verifier TokenVerifier) Authenticator {
	if verifier == nil {
		panic("token verifier is required")
	}
	return AuthenticatorFunc(func(_ *http.Request, token string) (*User, error) {
		if strings.TrimSpace(token) == "" {
			return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
		}
		sess, err := verifier.Verify(token)
		if err != nil {
			return nil, NewAuthError(ReasonTokenInvalid, err)
		}
		return &User{UID: sess.UserID, Email: sess.Email, Token: token}, nil
	})
}
