package session

import "time"

// User is the signed-in account held by the session.
type User struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// payload is what travels inside the cookie.
type payload struct {
	ID       string    `json:"sid"`
	Created  time.Time `json:"iat"`
	Seen     time.Time `json:"seen"`
	Expires  time.Time `json:"exp,omitempty"`
	Remember bool      `json:"rem,omitempty"`
	User     *User     `json:"usr,omitempty"`
	Refresh  string    `json:"rt,omitempty"`
}

// Session is the per-request view of the cookie payload.
type Session struct {
	p         payload
	policy    lifetimePolicy
	dirty     bool
	destroyed bool
}

func (s *Session) ID() string           { return s.p.ID }
func (s *Session) CreatedAt() time.Time { return s.p.Created }
func (s *Session) LastActive() time.Time { return s.p.Seen }
func (s *Session) ExpiresAt() time.Time { return s.p.Expires }
func (s *Session) RememberMe() bool     { return s.p.Remember }
func (s *Session) RefreshToken() string { return s.p.Refresh }

// Dirty reports unsaved changes.
func (s *Session) Dirty() bool { return s.dirty }

// Destroyed reports whether the cookie is cleared on save.
func (s *Session) Destroyed() bool { return s.destroyed }

// User returns a copy of the signed-in account, or nil.
func (s *Session) User() *User {
	if s.p.User == nil {
		return nil
	}
	u := *s.p.User
	return &u
}

// SetUser replaces the signed-in account. Nil signs the session out.
func (s *Session) SetUser(user *User) {
	switch {
	case user == nil && s.p.User == nil:
		return
	case user != nil && s.p.User != nil && *user == *s.p.User:
		return
	case user == nil:
		s.p.User = nil
	default:
		u := *user
		s.p.User = &u
	}
	s.dirty = true
}

// SetRememberMe switches between the normal and the remembered lifetime.
// The expiry is recomputed from the creation time.
func (s *Session) SetRememberMe(remember bool) {
	if s.p.Remember == remember {
		return
	}
	s.p.Remember = remember
	s.p.Expires = s.policy.expiry(s.p.Created, remember)
	s.dirty = true
}

func (s *Session) SetRefreshToken(token string) {
	if s.p.Refresh == token {
		return
	}
	s.p.Refresh = token
	s.dirty = true
}

// Destroy clears the cookie when the session is next saved.
func (s *Session) Destroy() {
	s.destroyed = true
	s.dirty = true
}

func (s *Session) touch(now time.Time) {
	if now.After(s.p.Seen) {
		s.p.Seen = now
		s.dirty = true
	}
}

// lifetimePolicy holds the absolute and idle limits.
type lifetimePolicy struct {
	lifetime time.Duration
	remember time.Duration
	idle     time.Duration
}

func (lp lifetimePolicy) expiry(from time.Time, remember bool) time.Time {
	d := lp.lifetime
	if remember && lp.remember > 0 {
		d = lp.remember
	}
	if d <= 0 {
		return time.Time{}
	}
	return from.UTC().Add(d)
}

// expired applies the absolute expiry, then the idle limit. Remembered
// sessions have no idle limit.
func (lp lifetimePolicy) expired(p payload, now time.Time) bool {
	if !p.Expires.IsZero() && now.After(p.Expires) {
		return true
	}
	if lp.idle <= 0 || p.Remember {
		return false
	}
	seen := p.Seen
	if seen.IsZero() {
		seen = p.Created
	}
	return !seen.IsZero() && now.Sub(seen) > lp.idle
}
