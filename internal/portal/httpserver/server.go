package httpserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"finitefield.org/hanko-portal/internal/portal/authclient"
	"finitefield.org/hanko-portal/internal/portal/authform"
	portalbanner "finitefield.org/hanko-portal/internal/portal/banner"
	custommw "finitefield.org/hanko-portal/internal/portal/httpserver/middleware"
	"finitefield.org/hanko-portal/internal/portal/metrics"
	"finitefield.org/hanko-portal/internal/portal/session"
	"finitefield.org/hanko-portal/public"
)

// Config holds runtime options for the portal HTTP server.
type Config struct {
	Address     string
	BasePath    string
	Environment string

	Logger  *zap.Logger
	Metrics *metrics.Registry

	Forms         *authform.Store
	Authenticator custommw.Authenticator
	Revoker       custommw.Revoker
	Refresher     authclient.Refresher
	Sessions      custommw.SessionStore
	RateLimiter   *custommw.RateLimiter
	Banner        *portalbanner.Sequence

	// TrustProxy takes the client IP from X-Forwarded-For and X-Real-IP.
	// Leave it off unless a proxy in front overwrites those headers.
	TrustProxy bool

	CSRFCookieName   string
	CSRFCookiePath   string
	CSRFCookieSecure bool
	CSRFHeaderName   string

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// New constructs the HTTP server with middleware stack and embedded assets.
func New(cfg Config) *http.Server {
	if cfg.Forms == nil {
		panic("httpserver: form store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := cfg.Metrics
	if registry == nil {
		registry = metrics.New()
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	if cfg.TrustProxy {
		router.Use(chimw.RealIP)
	}
	router.Use(custommw.Logger(logger))
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(durationOr(cfg.RequestTimeout, 60*time.Second)))
	router.Use(custommw.Metrics(registry.HTTP))

	staticContent, err := public.StaticFS()
	if err != nil {
		logger.Fatal("embed static", zap.Error(err))
	}
	router.Handle("/public/static/*", http.StripPrefix("/public/static/", http.FileServer(http.FS(staticContent))))
	router.Get("/healthz", healthz)
	router.Handle("/metrics", registry.Handler())

	basePath := custommw.NormalizeBasePath(cfg.BasePath)

	authenticator := cfg.Authenticator
	if authenticator == nil {
		authenticator = custommw.RejectAll()
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = ephemeralSessions(logger)
	}
	seq := portalbanner.Default()
	if cfg.Banner != nil {
		seq = *cfg.Banner
	}

	csrfCfg := custommw.CSRFConfig{
		CookieName: cfg.CSRFCookieName,
		CookiePath: firstNonEmpty(cfg.CSRFCookiePath, basePath),
		HeaderName: cfg.CSRFHeaderName,
		Secure:     cfg.CSRFCookieSecure,
	}

	mountPortalRoutes(router, basePath, routeOptions{
		Environment:   cfg.Environment,
		Authenticator: authenticator,
		Refresher:     cfg.Refresher,
		Sessions:      sessions,
		CSRF:          csrfCfg,
		Limiter:       cfg.RateLimiter,
		Handlers:      newAuthHandlers(cfg.Forms, cfg.Revoker, seq, basePath),
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  durationOr(cfg.ReadTimeout, 10*time.Second),
		WriteTimeout: durationOr(cfg.WriteTimeout, 30*time.Second),
		IdleTimeout:  durationOr(cfg.IdleTimeout, 60*time.Second),
	}
}

type routeOptions struct {
	Environment   string
	Authenticator custommw.Authenticator
	Refresher     authclient.Refresher
	Sessions      custommw.SessionStore
	CSRF          custommw.CSRFConfig
	Limiter       *custommw.RateLimiter
	Handlers      *authHandlers
}

func mountPortalRoutes(router chi.Router, base string, opts routeOptions) {
	h := opts.Handlers
	stack := []func(http.Handler) http.Handler{
		custommw.HTMX(),
		custommw.NoStore(),
		custommw.RequestInfoMiddleware(base, opts.Environment),
		custommw.Session(opts.Sessions),
		custommw.CSRF(opts.CSRF),
	}

	router.Route(base, func(r chi.Router) {
		r.Use(stack...)

		r.With(custommw.Auth(opts.Authenticator, h.loginPath,
			custommw.WithTokenRefresh(opts.Refresher, base),
		)).Get("/", h.Home)
		r.Post("/logout", h.Logout)

		for _, mode := range []authform.Mode{authform.SignIn, authform.SignUp} {
			slug := "/" + mode.Slug()
			r.Get(slug, h.Page(mode))
			r.With(opts.Limiter.Middleware).Post(slug, h.Submit(mode))
			RegisterFragment(r, slug+"/status", h.Status(mode))
			r.Post(slug+"/password-visibility", h.TogglePassword(mode))
		}
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte("ok"))
}

// ephemeralSessions signs and encrypts cookies with per-process keys; sessions
// do not survive a restart.
func ephemeralSessions(logger *zap.Logger) custommw.SessionStore {
	manager, err := session.NewManager(session.Config{
		HashKey:  securecookie.GenerateRandomKey(32),
		BlockKey: securecookie.GenerateRandomKey(32),
	})
	if err != nil {
		logger.Fatal("session manager", zap.Error(err))
	}
	logger.Warn("session keys not configured; using an ephemeral key")
	return manager
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// RegisterFragment registers a GET handler intended for htmx fragment rendering.
func RegisterFragment(r chi.Router, pattern string, handler http.HandlerFunc) {
	r.With(custommw.RequireHTMX()).Get(pattern, handler)
}
