// Package config loads portal runtime settings from defaults, a .env file,
// the process environment and explicit overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile          = ".env"
	defaultEnvironment      = "local"
	defaultAddress          = ":8080"
	defaultBasePath         = "/"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultRequestTimeout   = 30 * time.Second
	defaultShutdownTimeout  = 10 * time.Second
	defaultLogLevel         = "info"
	defaultAuthProvider     = ProviderFirebase
	defaultSessionCookie    = "portal_session"
	defaultSessionIdle      = 30 * time.Minute
	defaultSessionLifetime  = 12 * time.Hour
	defaultSessionRemember  = 30 * 24 * time.Hour
	defaultCSRFCookie       = "portal_csrf"
	defaultCSRFHeader       = "X-CSRF-Token"
	defaultRatePerMinute    = 30
	defaultRateBurst        = 10
	defaultFormIdleTTL      = 30 * time.Minute
	defaultFormSweep        = time.Minute
	defaultProviderTimeout  = 10 * time.Second
	minSessionHashKeyLength = 32
)

// Authentication providers understood by the portal.
const (
	ProviderFirebase = "firebase"
	ProviderStatic   = "static"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Log         LogConfig
	Firebase    FirebaseConfig
	Auth        AuthConfig
	Session     SessionConfig
	CSRF        CSRFConfig
	RateLimit   RateLimitConfig
	Forms       FormConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Address         string
	BasePath        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	// TrustProxyHeaders takes the client IP from X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string
	Development bool
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID        string
	CredentialsFile  string
	WebAPIKey        string
	AuthEmulatorHost string
}

// AuthConfig selects the credential provider behind the sign-in and sign-up forms.
type AuthConfig struct {
	Provider        string
	ProviderTimeout time.Duration
	StaticAccounts  map[string]string
	StaticDelay     time.Duration
}

// SessionConfig controls the signed session cookie.
type SessionConfig struct {
	CookieName       string
	HashKey          string
	BlockKey         string
	CookieSecure     bool
	IdleTimeout      time.Duration
	Lifetime         time.Duration
	RememberLifetime time.Duration
}

// CSRFConfig controls the double-submit cookie.
type CSRFConfig struct {
	CookieName   string
	HeaderName   string
	CookieSecure bool
}

// RateLimitConfig throttles credential submissions per client IP.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// FormConfig controls how long idle auth forms are kept server-side.
type FormConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// IsLocal reports whether the portal runs in a developer environment.
func (c Config) IsLocal() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides. An empty
// path disables the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the configuration. Precedence is explicit map, then process
// environment, then the .env file, then defaults.
func Load(opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Environment: stringWithDefault(lookup, "PORTAL_ENV", defaultEnvironment),
		Server: ServerConfig{
			Address:           stringWithDefault(lookup, "PORTAL_HTTP_ADDR", defaultAddress),
			BasePath:          stringWithDefault(lookup, "PORTAL_BASE_PATH", defaultBasePath),
			ReadTimeout:       durationWithDefault(lookup, "PORTAL_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:      durationWithDefault(lookup, "PORTAL_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:       durationWithDefault(lookup, "PORTAL_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:    durationWithDefault(lookup, "PORTAL_REQUEST_TIMEOUT", defaultRequestTimeout),
			ShutdownTimeout:   durationWithDefault(lookup, "PORTAL_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			TrustProxyHeaders: boolWithDefault(lookup, "PORTAL_TRUST_PROXY_HEADERS", false),
		},
		Log: LogConfig{
			Level:       strings.ToLower(stringWithDefault(lookup, "PORTAL_LOG_LEVEL", defaultLogLevel)),
			Development: boolWithDefault(lookup, "PORTAL_LOG_DEVELOPMENT", false),
		},
		Firebase: FirebaseConfig{
			ProjectID:        firstValue(lookup, "PORTAL_FIREBASE_PROJECT_ID", "FIREBASE_PROJECT_ID"),
			CredentialsFile:  firstValue(lookup, "PORTAL_FIREBASE_CREDENTIALS_FILE", "GOOGLE_APPLICATION_CREDENTIALS"),
			WebAPIKey:        firstValue(lookup, "PORTAL_FIREBASE_WEB_API_KEY", "FIREBASE_API_KEY"),
			AuthEmulatorHost: firstValue(lookup, "PORTAL_FIREBASE_AUTH_EMULATOR_HOST", "FIREBASE_AUTH_EMULATOR_HOST"),
		},
		Auth: AuthConfig{
			Provider:        strings.ToLower(stringWithDefault(lookup, "PORTAL_AUTH_PROVIDER", defaultAuthProvider)),
			ProviderTimeout: durationWithDefault(lookup, "PORTAL_AUTH_PROVIDER_TIMEOUT", defaultProviderTimeout),
			StaticAccounts:  mapWithDefault(lookup, "PORTAL_AUTH_STATIC_ACCOUNTS"),
			StaticDelay:     durationWithDefault(lookup, "PORTAL_AUTH_STATIC_DELAY", 0),
		},
		Session: SessionConfig{
			CookieName:       stringWithDefault(lookup, "PORTAL_SESSION_COOKIE_NAME", defaultSessionCookie),
			HashKey:          stringWithDefault(lookup, "PORTAL_SESSION_HASH_KEY", ""),
			BlockKey:         stringWithDefault(lookup, "PORTAL_SESSION_BLOCK_KEY", ""),
			CookieSecure:     boolWithDefault(lookup, "PORTAL_SESSION_COOKIE_SECURE", false),
			IdleTimeout:      durationWithDefault(lookup, "PORTAL_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
			Lifetime:         durationWithDefault(lookup, "PORTAL_SESSION_LIFETIME", defaultSessionLifetime),
			RememberLifetime: durationWithDefault(lookup, "PORTAL_SESSION_REMEMBER_LIFETIME", defaultSessionRemember),
		},
		CSRF: CSRFConfig{
			CookieName:   stringWithDefault(lookup, "PORTAL_CSRF_COOKIE_NAME", defaultCSRFCookie),
			HeaderName:   stringWithDefault(lookup, "PORTAL_CSRF_HEADER", defaultCSRFHeader),
			CookieSecure: boolWithDefault(lookup, "PORTAL_CSRF_COOKIE_SECURE", false),
		},
		RateLimit: RateLimitConfig{
			PerMinute: intWithDefault(lookup, "PORTAL_RATE_LIMIT_PER_MINUTE", defaultRatePerMinute),
			Burst:     intWithDefault(lookup, "PORTAL_RATE_LIMIT_BURST", defaultRateBurst),
		},
		Forms: FormConfig{
			IdleTTL:       durationWithDefault(lookup, "PORTAL_FORM_IDLE_TTL", defaultFormIdleTTL),
			SweepInterval: durationWithDefault(lookup, "PORTAL_FORM_SWEEP_INTERVAL", defaultFormSweep),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if strings.TrimSpace(cfg.Server.Address) == "" {
		missing = append(missing, "Server.Address")
	}
	if cfg.Server.RequestTimeout <= 0 {
		missing = append(missing, "Server.RequestTimeout")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		missing = append(missing, "Log.Level")
	}

	switch cfg.Auth.Provider {
	case ProviderFirebase:
		if cfg.Firebase.WebAPIKey == "" && cfg.Firebase.AuthEmulatorHost == "" {
			missing = append(missing, "Firebase.WebAPIKey")
		}
	case ProviderStatic:
		if !cfg.IsLocal() {
			missing = append(missing, "Auth.Provider")
		}
	default:
		missing = append(missing, "Auth.Provider")
	}

	if cfg.Session.HashKey == "" {
		if !cfg.IsLocal() {
			missing = append(missing, "Session.HashKey")
		}
	} else if len(cfg.Session.HashKey) < minSessionHashKeyLength {
		missing = append(missing, "Session.HashKey")
	}
	switch len(cfg.Session.BlockKey) {
	case 0:
		if !cfg.IsLocal() {
			missing = append(missing, "Session.BlockKey")
		}
	case 16, 24, 32:
	default:
		missing = append(missing, "Session.BlockKey")
	}

	if cfg.RateLimit.PerMinute < 0 {
		missing = append(missing, "RateLimit.PerMinute")
	}
	if cfg.RateLimit.PerMinute > 0 && cfg.RateLimit.Burst <= 0 {
		missing = append(missing, "RateLimit.Burst")
	}
	if cfg.Forms.IdleTTL <= 0 {
		missing = append(missing, "Forms.IdleTTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	values, err := godotenv.Read(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func firstValue(lookup func(string) (string, bool), keys ...string) string {
	for _, key := range keys {
		if value := stringWithDefault(lookup, key, ""); value != "" {
			return value
		}
	}
	return ""
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

// mapWithDefault parses "key=value,key=value". Keys are lower-cased.
func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	values := make(map[string]string)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(parts[0]))
		if name == "" {
			continue
		}
		values[name] = strings.TrimSpace(parts[1])
	}
	return values
}
