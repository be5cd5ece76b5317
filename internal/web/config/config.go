package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile          = ".env"
	defaultAddress          = ":8080"
	defaultBasePath         = "/"
	defaultRecoveryPath     = "/password/edit"
	defaultEnvironment      = "local"
	defaultReadTimeout      = 10 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 60 * time.Second
	defaultProviderTimeout  = 10 * time.Second
	defaultSessionIdle      = 30 * time.Minute
	defaultSessionLifetime  = 30 * 24 * time.Hour
	defaultCacheBackend     = CacheBackendMemory
	defaultRedisKeyPrefix   = "myidoru:cache"
	minSessionHashKeyLength = 32
)

// Cache backends understood by the identity cache wiring.
const (
	CacheBackendSession = "session"
	CacheBackendRedis   = "redis"
	CacheBackendMemory  = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Paths       PathConfig
	Firebase    FirebaseConfig
	Session     SessionConfig
	Cache       CacheConfig
	Secrets     SecretsConfig
	Environment string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Address      string
	PublicURL    string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// PathConfig lists the routes the pages link and redirect to.
type PathConfig struct {
	Base       string
	Login      string
	SignUp     string
	Recovery   string
	AfterLogin string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	APIKey          string
	CredentialsFile string
	Timeout         time.Duration
}

// SessionConfig controls the cookie session.
type SessionConfig struct {
	HashKey      string
	BlockKey     string
	CookieName   string
	CookieSecure bool
	IdleTimeout  time.Duration
	Lifetime     time.Duration
}

// CacheConfig selects where signed-in identities are cached.
type CacheConfig struct {
	Backend       string
	TTL           time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// SecretsConfig points the Secret Manager resolver at a project.
type SecretsConfig struct {
	ProjectID string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
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

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
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

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		if resolver != nil {
			o.secret = resolver
		}
	}
}

func defaultOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
}

// Lookup returns a single raw value using the same precedence as Load. It lets callers read
// bootstrap settings (such as the secrets project) before the secret resolver exists.
func Lookup(key string, opts ...Option) (string, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := newLookup(options)
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return value, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	lookup, err := newLookup(options)
	if err != nil {
		return Config{}, err
	}

	base := normalizePath(stringWithDefault(lookup, "WEB_BASE_PATH", defaultBasePath))
	login := stringWithDefault(lookup, "WEB_LOGIN_PATH", joinPath(base, "login"))

	cfg := Config{
		Server: ServerConfig{
			Address:      stringWithDefault(lookup, "WEB_HTTP_ADDR", defaultAddress),
			PublicURL:    strings.TrimRight(stringWithDefault(lookup, "WEB_PUBLIC_URL", ""), "/"),
			ReadTimeout:  durationWithDefault(lookup, "WEB_HTTP_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "WEB_HTTP_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "WEB_HTTP_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Paths: PathConfig{
			Base:       base,
			Login:      login,
			SignUp:     stringWithDefault(lookup, "WEB_SIGNUP_PATH", joinPath(base, "signup")),
			Recovery:   stringWithDefault(lookup, "WEB_RECOVERY_PATH", defaultRecoveryPath),
			AfterLogin: stringWithDefault(lookup, "WEB_AFTER_LOGIN_PATH", login),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "WEB_FIREBASE_PROJECT_ID", ""),
			APIKey:          stringWithDefault(lookup, "WEB_FIREBASE_API_KEY", ""),
			CredentialsFile: stringWithDefault(lookup, "WEB_FIREBASE_CREDENTIALS_FILE", ""),
			Timeout:         durationWithDefault(lookup, "WEB_PROVIDER_TIMEOUT", defaultProviderTimeout),
		},
		Session: SessionConfig{
			HashKey:      stringWithDefault(lookup, "WEB_SESSION_HASH_KEY", ""),
			BlockKey:     stringWithDefault(lookup, "WEB_SESSION_BLOCK_KEY", ""),
			CookieName:   stringWithDefault(lookup, "WEB_SESSION_COOKIE_NAME", ""),
			CookieSecure: boolWithDefault(lookup, "WEB_SESSION_COOKIE_SECURE", false),
			IdleTimeout:  durationWithDefault(lookup, "WEB_SESSION_IDLE_TIMEOUT", defaultSessionIdle),
			Lifetime:     durationWithDefault(lookup, "WEB_SESSION_LIFETIME", defaultSessionLifetime),
		},
		Cache: CacheConfig{
			Backend:       strings.ToLower(stringWithDefault(lookup, "WEB_CACHE_BACKEND", defaultCacheBackend)),
			TTL:           durationWithDefault(lookup, "WEB_CACHE_TTL", 0),
			RedisAddr:     stringWithDefault(lookup, "WEB_REDIS_ADDR", ""),
			RedisPassword: stringWithDefault(lookup, "WEB_REDIS_PASSWORD", ""),
			RedisDB:       intWithDefault(lookup, "WEB_REDIS_DB", 0),
			RedisPrefix:   stringWithDefault(lookup, "WEB_REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
		},
		Secrets: SecretsConfig{
			ProjectID: stringWithDefault(lookup, "WEB_SECRETS_PROJECT_ID", ""),
		},
		Environment: strings.ToLower(stringWithDefault(lookup, "WEB_ENVIRONMENT", defaultEnvironment)),
	}

	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firebase.ProjectID
	}

	secretFields := []struct {
		name  string
		field *string
	}{
		{"Firebase.APIKey", &cfg.Firebase.APIKey},
		{"Session.HashKey", &cfg.Session.HashKey},
		{"Session.BlockKey", &cfg.Session.BlockKey},
		{"Cache.RedisPassword", &cfg.Cache.RedisPassword},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newLookup(options loaderOptions) (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	return func(key string) (string, bool) {
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
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if strings.TrimSpace(cfg.Server.Address) == "" {
		missing = append(missing, "Server.Address")
	}
	for name, value := range map[string]string{
		"Paths.Login":      cfg.Paths.Login,
		"Paths.SignUp":     cfg.Paths.SignUp,
		"Paths.AfterLogin": cfg.Paths.AfterLogin,
	} {
		if !strings.HasPrefix(value, "/") {
			missing = append(missing, name)
		}
	}
	if cfg.Firebase.Timeout <= 0 {
		missing = append(missing, "Firebase.Timeout")
	}
	if cfg.Session.HashKey != "" && len(cfg.Session.HashKey) < minSessionHashKeyLength {
		missing = append(missing, "Session.HashKey")
	}
	if cfg.Session.BlockKey != "" {
		switch len(cfg.Session.BlockKey) {
		case 16, 24, 32:
		default:
			missing = append(missing, "Session.BlockKey")
		}
	}
	if cfg.Environment == "prod" {
		if cfg.Firebase.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
		if cfg.Firebase.APIKey == "" {
			missing = append(missing, "Firebase.APIKey")
		}
		if cfg.Session.HashKey == "" {
			missing = append(missing, "Session.HashKey")
		}
	}
	switch cfg.Cache.Backend {
	case CacheBackendSession, CacheBackendMemory:
	case CacheBackendRedis:
		if strings.TrimSpace(cfg.Cache.RedisAddr) == "" {
			missing = append(missing, "Cache.RedisAddr")
		}
	default:
		missing = append(missing, "Cache.Backend")
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	values, err := godotenv.Read(absPath)
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	return values, nil
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	if p == "" {
		return "/"
	}
	return p
}

func joinPath(base, leaf string) string {
	if base == "/" {
		return "/" + leaf
	}
	return base + "/" + leaf
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
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
