// Package authclient talks to the external authentication provider that owns
// accounts, passwords and tokens. The portal only ever sees the operations below.
package authclient

import (
	"context"
	"time"
)

// Operation names a provider call.
type Operation string

const (
	// OperationLogin signs an existing account in with email and password.
	OperationLogin Operation = "login"
	// OperationRegister creates an account and signs it in.
	OperationRegister Operation = "register"
	// OperationRefresh trades a refresh token for a new ID token.
	OperationRefresh Operation = "refresh"
)

// Credentials is the email/password pair forwarded to the provider unchanged.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is what the provider hands back for a signed-in account.
type Session struct {
	UserID       string
	Email        string
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Client is the capability the sign-in form depends on.
type Client interface {
	Login(ctx context.Context, creds Credentials) (*Session, error)
	Register(ctx context.Context, creds Credentials) (*Session, error)
}

// Refresher renews an expired ID token from the refresh token issued at sign in.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}
