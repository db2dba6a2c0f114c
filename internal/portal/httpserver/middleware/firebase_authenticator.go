package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// ErrTokenExpired lets verifiers other than the Admin SDK report expiry.
var ErrTokenExpired = errors.New("firebase token expired")

// FirebaseAuthClient is the part of *firebaseauth.Client the portal uses.
type FirebaseAuthClient interface {
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*firebaseauth.Token, error)
	RevokeRefreshTokens(ctx context.Context, uid string) error
}

// FirebaseAuthenticator verifies Firebase ID tokens, rejecting revoked ones,
// and revokes refresh tokens on sign-out.
type FirebaseAuthenticator struct {
	client FirebaseAuthClient
}

func NewFirebaseAuthenticator(client FirebaseAuthClient) *FirebaseAuthenticator {
	if client == nil {
		panic("firebase auth client is required")
	}
	return &FirebaseAuthenticator{client: client}
}

func (f *FirebaseAuthenticator) Authenticate(r *http.Request, token string) (*User, error) {
	if strings.TrimSpace(token) == "" {
		return nil, NewAuthError(ReasonMissingToken, ErrUnauthorized)
	}

	verified, err := f.client.VerifyIDTokenAndCheckRevoked(r.Context(), token)
	switch {
	case err == nil:
	case firebaseauth.IsIDTokenExpired(err), errors.Is(err, ErrTokenExpired):
		return nil, NewAuthError(ReasonTokenExpired, err)
	default:
		return nil, NewAuthError(ReasonTokenInvalid, err)
	}

	email, _ := verified.Claims["email"].(string)
	verifiedEmail, _ := verified.Claims["email_verified"].(bool)
	return &User{
		UID:           verified.UID,
		Email:         strings.TrimSpace(email),
		EmailVerified: verifiedEmail,
		Token:         token,
	}, nil
}

// Revoke invalidates every refresh token issued to uid.
func (f *FirebaseAuthenticator) Revoke(ctx context.Context, uid string) error {
	if strings.TrimSpace(uid) == "" {
		return nil
	}
	if err := f.client.RevokeRefreshTokens(ctx, uid); err != nil {
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}
