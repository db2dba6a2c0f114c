package authform

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"finitefield.org/hanko-portal/internal/portal/authclient"
)

const defaultIdleTTL = 30 * time.Minute

type storeKey struct {
	session string
	mode    Mode
}

// Store keeps one form per browser session and mode so that a submission started
// by one request can be observed by the polling requests that follow it.
type Store struct {
	client authclient.Client
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu    sync.Mutex
	forms map[storeKey]*Form
	// forgotten holds dropped forms whose provider call is still running.
	forgotten []*Form
}

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithIdleTTL sets how long an untouched form is kept.
func WithIdleTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithStoreClock overrides the clock used for eviction.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStoreLogger sets the logger handed to new forms.
func WithStoreLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore constructs a store whose forms submit through client.
func NewStore(client authclient.Client, opts ...StoreOption) *Store {
	if client == nil {
		panic("authform: auth client is required")
	}
	s := &Store{
		client: client,
		ttl:    defaultIdleTTL,
		now:    time.Now,
		logger: zap.NewNop(),
		forms:  make(map[storeKey]*Form),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Get returns the form for the session and mode, creating it on first use.
func (s *Store) Get(sessionID string, mode Mode) *Form {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{session: sessionID, mode: mode}
	if form, ok := s.forms[key]; ok {
		return form
	}
	form := NewForm(mode, s.client, WithLogger(s.logger), WithClock(s.now))
	s.forms[key] = form
	return form
}

// Lookup returns an existing form without creating one.
func (s *Store) Lookup(sessionID string, mode Mode) (*Form, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	form, ok := s.forms[storeKey{session: sessionID, mode: mode}]
	return form, ok
}

// Forget drops every form owned by the session. Drain still waits for any
// submission those forms had in flight.
func (s *Store) Forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mode := range []Mode{SignIn, SignUp} {
		key := storeKey{session: sessionID, mode: mode}
		if form, ok := s.forms[key]; ok && form.Submitting() {
			s.forgotten = append(s.forgotten, form)
		}
		delete(s.forms, key)
	}
}

// Len returns the number of live forms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.forms)
}

// Sweep evicts forms idle for longer than the TTL. Forms with a submission in
// flight are kept. It returns the number of evicted forms.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for key, form := range s.forms {
		if form.Submitting() || form.LastUsed().After(cutoff) {
			continue
		}
		delete(s.forms, key)
		evicted++
	}
	pending := s.forgotten[:0]
	for _, form := range s.forgotten {
		if form.Submitting() {
			pending = append(pending, form)
		}
	}
	clear(s.forgotten[len(pending):])
	s.forgotten = pending
	return evicted
}

// Run sweeps on every interval tick until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("evicted idle auth forms", zap.Int("count", n))
			}
		}
	}
}

// Drain waits for every in-flight provider call to return, including those
// of forgotten forms.
func (s *Store) Drain() {
	s.mu.Lock()
	forms := make([]*Form, 0, len(s.forms)+len(s.forgotten))
	for _, form := range s.forms {
		forms = append(forms, form)
	}
	forms = append(forms, s.forgotten...)
	s.forgotten = nil
	s.mu.Unlock()
	for _, form := range forms {
		form.drain()
	}
}
