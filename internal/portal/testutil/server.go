package testutil

import (
	"net/http/httptest"
	"testing"

	"finitefield.org/hanko-portal/internal/portal/authclient"
	"finitefield.org/hanko-portal/internal/portal/authform"
	"finitefield.org/hanko-portal/internal/portal/httpserver"
	"finitefield.org/hanko-portal/internal/portal/httpserver/middleware"
	"finitefield.org/hanko-portal/internal/portal/metrics"
)

// Seeded account available on servers built without WithAuthClient.
const (
	SeedEmail    = "user@example.com"
	SeedPassword = "secret1"
)

// ServerOption customises the HTTP server configuration for tests.
type ServerOption func(*httpserver.Config)

// WithAuthenticator overrides the authenticator guarding the landing page.
func WithAuthenticator(auth middleware.Authenticator) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Authenticator = auth
	}
}

// WithBasePath sets a custom base path for the portal routes.
func WithBasePath(path string) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.BasePath = path
	}
}

// WithAuthClient submits forms through client instead of the seeded static provider.
func WithAuthClient(client authclient.Client) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Forms = authform.NewStore(client)
	}
}

// WithRevoker wires the refresh token revoker used on sign-out.
func WithRevoker(revoker middleware.Revoker) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Revoker = revoker
	}
}

// WithRateLimiter limits POSTs to the auth endpoints.
func WithRateLimiter(limiter *middleware.RateLimiter) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.RateLimiter = limiter
	}
}

// WithRefresher renews ID tokens on the landing page; nil disables refresh.
func WithRefresher(refresher authclient.Refresher) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Refresher = refresher
	}
}

// WithTrustProxy takes client IPs from forwarding headers.
func WithTrustProxy() ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.TrustProxy = true
	}
}

// WithMetrics exposes the registry so tests can read collectors.
func WithMetrics(reg *metrics.Registry) ServerOption {
	return func(cfg *httpserver.Config) {
		cfg.Metrics = reg
	}
}

// NewServer constructs an httptest server running the portal HTTP stack with
// sensible defaults: a static provider seeded with SeedEmail, an
// authenticator that accepts its tokens and the same provider as refresher.
func NewServer(t testing.TB, opts ...ServerOption) *httptest.Server {
	t.Helper()

	static := authclient.NewStaticClient(map[string]string{SeedEmail: SeedPassword})
	cfg := httpserver.Config{
		Address:        ":0",
		BasePath:       "/",
		Environment:    "test",
		CSRFCookieName: "portal_csrf",
		CSRFHeaderName: "X-CSRF-Token",
		Forms:          authform.NewStore(static),
		Authenticator:  middleware.NewStaticAuthenticator(static),
		Refresher:      static,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	srv := httpserver.New(cfg)
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		cfg.Forms.Drain()
	})
	return ts
}
