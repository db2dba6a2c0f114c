package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"finitefield.org/hanko-portal/internal/portal/authclient"
	"finitefield.org/hanko-portal/internal/portal/authform"
	"finitefield.org/hanko-portal/internal/portal/config"
	"finitefield.org/hanko-portal/internal/portal/httpserver"
	"finitefield.org/hanko-portal/internal/portal/httpserver/middleware"
	"finitefield.org/hanko-portal/internal/portal/metrics"
	"finitefield.org/hanko-portal/internal/portal/observability"
	"finitefield.org/hanko-portal/internal/portal/session"
)

// emulatorAPIKey is accepted by the Auth emulator in place of a real Web API key.
const emulatorAPIKey = "fake-api-key"

func main() {
	cfg, err := config.Load()
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", verr.Fields())
		} else {
			fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		}
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("portal").With(zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = observability.WithLogger(ctx, logger)

	registry := metrics.New()

	provider, err := buildProvider(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise auth provider", zap.Error(err))
	}

	forms := authform.NewStore(
		authclient.Instrument(provider.client, registry.Auth),
		authform.WithIdleTTL(cfg.Forms.IdleTTL),
		authform.WithStoreLogger(logger.Named("authform")),
	)

	sessions, err := buildSessions(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)

	srv := httpserver.New(httpserver.Config{
		Address:          cfg.Server.Address,
		BasePath:         cfg.Server.BasePath,
		Environment:      cfg.Environment,
		Logger:           logger.Named("http"),
		Metrics:          registry,
		Forms:            forms,
		Authenticator:    provider.authenticator,
		Revoker:          provider.revoker,
		Refresher:        authclient.InstrumentRefresher(provider.refresher, registry.Auth),
		Sessions:         sessions,
		TrustProxy:       cfg.Server.TrustProxyHeaders,
		RateLimiter:      limiter,
		CSRFCookieName:   cfg.CSRF.CookieName,
		CSRFCookieSecure: cfg.CSRF.CookieSecure,
		CSRFHeaderName:   cfg.CSRF.HeaderName,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		RequestTimeout:   cfg.Server.RequestTimeout,
	})

	go forms.Run(ctx, cfg.Forms.SweepInterval)
	go limiter.Run(ctx, cfg.Forms.SweepInterval)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	logger.Info("portal server listening",
		zap.String("addr", cfg.Server.Address),
		zap.String("base_path", cfg.Server.BasePath),
		zap.String("provider", cfg.Auth.Provider),
	)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
	forms.Drain()
	logger.Info("portal server stopped")
}

type authProvider struct {
	client        authclient.Client
	refresher     authclient.Refresher
	authenticator middleware.Authenticator
	revoker       middleware.Revoker
}

// buildProvider wires the credential provider behind the forms together with
// the authenticator that verifies the tokens it issues.
func buildProvider(ctx context.Context, cfg config.Config, logger *zap.Logger) (authProvider, error) {
	if cfg.Auth.Provider == config.ProviderStatic {
		static := authclient.NewStaticClient(cfg.Auth.StaticAccounts)
		static.Delay = cfg.Auth.StaticDelay
		logger.Warn("static auth provider enabled", zap.Int("accounts", len(cfg.Auth.StaticAccounts)))
		return authProvider{
			client:        static,
			refresher:     static,
			authenticator: middleware.NewStaticAuthenticator(static),
		}, nil
	}

	if host := cfg.Firebase.AuthEmulatorHost; host != "" {
		// The Admin SDK reads the emulator host from the environment only.
		if err := os.Setenv("FIREBASE_AUTH_EMULATOR_HOST", host); err != nil {
			return authProvider{}, fmt.Errorf("set emulator host: %w", err)
		}
	}

	var clientOpts []option.ClientOption
	if cfg.Firebase.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Firebase.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.Firebase.ProjectID}, clientOpts...)
	if err != nil {
		return authProvider{}, fmt.Errorf("initialise firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return authProvider{}, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	authenticator := middleware.NewFirebaseAuthenticator(authClient)

	apiKey := cfg.Firebase.WebAPIKey
	toolkitOpts := []authclient.Option{
		authclient.WithHTTPClient(&http.Client{Timeout: cfg.Auth.ProviderTimeout}),
	}
	if host := cfg.Firebase.AuthEmulatorHost; host != "" {
		toolkitOpts = append(toolkitOpts, authclient.WithEmulatorHost(host))
		if apiKey == "" {
			apiKey = emulatorAPIKey
		}
	}
	toolkit, err := authclient.NewIdentityToolkitClient(ctx, apiKey, toolkitOpts...)
	if err != nil {
		return authProvider{}, err
	}

	logger.Info("firebase auth provider enabled",
		zap.String("project", cfg.Firebase.ProjectID),
		zap.Bool("emulator", cfg.Firebase.AuthEmulatorHost != ""),
	)
	return authProvider{
		client:        toolkit,
		refresher:     toolkit,
		authenticator: authenticator,
		revoker:       authenticator,
	}, nil
}

func buildSessions(cfg config.Config, logger *zap.Logger) (*session.Manager, error) {
	hashKey := []byte(cfg.Session.HashKey)
	if len(hashKey) == 0 {
		logger.Warn("PORTAL_SESSION_HASH_KEY not set; using an ephemeral key")
		hashKey = securecookie.GenerateRandomKey(32)
	}
	blockKey := []byte(cfg.Session.BlockKey)
	if len(blockKey) == 0 {
		logger.Warn("PORTAL_SESSION_BLOCK_KEY not set; using an ephemeral key")
		blockKey = securecookie.GenerateRandomKey(32)
	}
	return session.NewManager(session.Config{
		CookieName:       cfg.Session.CookieName,
		HashKey:          hashKey,
		BlockKey:         blockKey,
		CookiePath:       middleware.NormalizeBasePath(cfg.Server.BasePath),
		CookieSecure:     cfg.Session.CookieSecure,
		IdleTimeout:      cfg.Session.IdleTimeout,
		Lifetime:         cfg.Session.Lifetime,
		RememberLifetime: cfg.Session.RememberLifetime,
	})
}
