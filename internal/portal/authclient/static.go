package authclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	minStaticPasswordLength = 6
	staticTokenPrefix       = "static-"
)

// StaticClient is an in-memory provider for local development when no Firebase
// project is configured.
type StaticClient struct {
	// Delay simulates provider latency.
	Delay time.Duration

	mu       sync.Mutex
	accounts map[string]staticAccount
}

type staticAccount struct {
	uid      string
	password string
}

// NewStaticClient seeds the client with email → password pairs.
func NewStaticClient(accounts map[string]string) *StaticClient {
	c := &StaticClient{accounts: make(map[string]staticAccount, len(accounts))}
	for email, password := range accounts {
		c.accounts[normalizeEmail(email)] = staticAccount{uid: ulid.Make().String(), password: password}
	}
	return c
}

// Login checks the password against the seeded accounts.
func (c *StaticClient) Login(ctx context.Context, creds Credentials) (*Session, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	email := normalizeEmail(creds.Email)

	c.mu.Lock()
	account, ok := c.accounts[email]
	c.mu.Unlock()

	if !ok || account.password != creds.Password {
		return nil, &Error{Kind: KindInvalidCredentials, Code: "INVALID_LOGIN_CREDENTIALS", Message: "invalid login credentials", Status: 400}
	}
	return staticSession(account.uid, email), nil
}

// Register adds an account unless the email is taken.
func (c *StaticClient) Register(ctx context.Context, creds Credentials) (*Session, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	email := normalizeEmail(creds.Email)
	if len([]rune(creds.Password)) < minStaticPasswordLength {
		return nil, &Error{Kind: KindWeakPassword, Code: "WEAK_PASSWORD", Message: "password should be at least 6 characters", Status: 400}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.accounts[email]; exists {
		return nil, &Error{Kind: KindEmailExists, Code: "EMAIL_EXISTS", Message: "the email address is already in use", Status: 400}
	}
	account := staticAccount{uid: ulid.Make().String(), password: creds.Password}
	c.accounts[email] = account
	return staticSession(account.uid, email), nil
}

// Verify resolves an ID token issued by Login or Register.
func (c *StaticClient) Verify(idToken string) (*Session, error) {
	uid, ok := strings.CutPrefix(strings.TrimSpace(idToken), staticTokenPrefix)
	if ok && uid != "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		for email, account := range c.accounts {
			if account.uid == uid {
				return staticSession(account.uid, email), nil
			}
		}
	}
	return nil, &Error{Kind: KindInvalidCredentials, Code: "INVALID_ID_TOKEN", Message: "invalid id token", Status: 400}
}

// Refresh issues a new ID token for a refresh token handed out by this client.
func (c *StaticClient) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	uid, ok := strings.CutPrefix(strings.TrimSpace(refreshToken), staticTokenPrefix+"refresh-")
	if ok && uid != "" {
		c.mu.Lock()
		defer c.mu.Unlock()
		for email, account := range c.accounts {
			if account.uid == uid {
				return staticSession(account.uid, email), nil
			}
		}
	}
	return nil, &Error{Kind: KindTokenExpired, Code: "INVALID_REFRESH_TOKEN", Message: "invalid refresh token", Status: 400}
}

func (c *StaticClient) wait(ctx context.Context) error {
	if c.Delay <= 0 {
		return nil
	}
	timer := time.NewTimer(c.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &Error{Kind: KindUnavailable, Message: "request cancelled", Err: ctx.Err()}
	case <-timer.C:
		return nil
	}
}

func staticSession(uid, email string) *Session {
	return &Session{
		UserID:       uid,
		Email:        email,
		IDToken:      staticTokenPrefix + uid,
		RefreshToken: staticTokenPrefix + "refresh-" + uid,
		ExpiresIn:    time.Hour,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
