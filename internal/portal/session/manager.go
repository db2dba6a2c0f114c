// Package session keeps the portal's browser session in a signed cookie.
package session

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
)

var (
	// ErrExpired is returned by Load when the cookie decoded but the session
	// is past its absolute or idle limit.
	ErrExpired = errors.New("session expired")
	// ErrInvalidConfig is returned by NewManager.
	ErrInvalidConfig = errors.New("session: invalid config")
)

// Config controls the cookie and the session limits. Zero values fall back
// to portal_session, "/", 12h lifetime, 30d remembered lifetime and 30m idle.
type Config struct {
	CookieName   string
	CookiePath   string
	CookieDomain string
	CookieSecure bool
	SameSite     http.SameSite

	// HashKey signs the cookie. BlockKey, when set, also encrypts it.
	// Refresh tokens are only written to encrypted cookies.
	HashKey  []byte
	BlockKey []byte

	Lifetime         time.Duration
	RememberLifetime time.Duration
	IdleTimeout      time.Duration

	Now func() time.Time
}

// Manager loads and saves sessions.
type Manager struct {
	name     string
	path     string
	domain   string
	secure   bool
	sameSite http.SameSite
	encrypt  bool
	codec    *securecookie.SecureCookie
	policy   lifetimePolicy
	now      func() time.Time
}

func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.HashKey) == 0 {
		return nil, fmt.Errorf("%w: hash key is required", ErrInvalidConfig)
	}
	if n := len(cfg.BlockKey); n != 0 && n != 16 && n != 24 && n != 32 {
		return nil, fmt.Errorf("%w: block key must be 16, 24 or 32 bytes", ErrInvalidConfig)
	}

	m := &Manager{
		name:     firstNonEmpty(cfg.CookieName, "portal_session"),
		path:     firstNonEmpty(cfg.CookiePath, "/"),
		domain:   cfg.CookieDomain,
		secure:   cfg.CookieSecure,
		sameSite: cfg.SameSite,
		encrypt:  len(cfg.BlockKey) > 0,
		now:      cfg.Now,
		policy: lifetimePolicy{
			lifetime: positiveOr(cfg.Lifetime, 12*time.Hour),
			remember: positiveOr(cfg.RememberLifetime, 30*24*time.Hour),
			idle:     positiveOr(cfg.IdleTimeout, 30*time.Minute),
		},
	}
	if m.sameSite == 0 || m.sameSite == http.SameSiteDefaultMode {
		m.sameSite = http.SameSiteLaxMode
	}
	if m.now == nil {
		m.now = time.Now
	}

	m.codec = securecookie.New(cfg.HashKey, cfg.BlockKey)
	m.codec.SetSerializer(securecookie.JSONEncoder{})
	m.codec.MaxAge(int(m.policy.remember / time.Second))
	return m, nil
}

// Load decodes the request's session. A missing or undecodable cookie yields
// a fresh session; a decoded but expired one yields ErrExpired.
func (m *Manager) Load(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.name)
	if err != nil {
		return m.New(), nil
	}
	var p payload
	if err := m.codec.Decode(m.name, c.Value, &p); err != nil || p.ID == "" {
		return m.New(), nil
	}
	if m.policy.expired(p, m.now().UTC()) {
		return nil, ErrExpired
	}
	return &Session{p: p, policy: m.policy}, nil
}

// New starts an empty session.
func (m *Manager) New() *Session {
	now := m.now().UTC()
	return &Session{
		p: payload{
			ID:      newSessionID(),
			Created: now,
			Seen:    now,
			Expires: m.policy.expiry(now, false),
		},
		policy: m.policy,
		dirty:  true,
	}
}

// Save writes the session cookie, or clears it when the session was destroyed.
func (m *Manager) Save(w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return errors.New("session: nil session")
	}
	if sess.destroyed {
		m.Destroy(w)
		return nil
	}

	now := m.now().UTC()
	sess.touch(now)
	p := sess.p
	if !m.encrypt {
		p.Refresh = ""
	}
	value, err := m.codec.Encode(m.name, p)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}

	c := m.cookie(value)
	if exp := sess.p.Expires; !exp.IsZero() {
		c.Expires = exp
		if left := exp.Sub(now); left > 0 {
			c.MaxAge = int(left.Round(time.Second) / time.Second)
		} else {
			c.MaxAge = -1
		}
	}
	http.SetCookie(w, c)
	sess.dirty = false
	return nil
}

// Encrypts reports whether cookies are encrypted as well as signed.
func (m *Manager) Encrypts() bool { return m.encrypt }

// Destroy clears the session cookie.
func (m *Manager) Destroy(w http.ResponseWriter) {
	c := m.cookie("")
	c.MaxAge = -1
	c.Expires = time.Unix(0, 0)
	http.SetCookie(w, c)
}

func (m *Manager) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     m.path,
		Domain:   m.domain,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: m.sameSite,
	}
}

func newSessionID() string {
	return base64.RawURLEncoding.EncodeToString(securecookie.GenerateRandomKey(32))
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func positiveOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
