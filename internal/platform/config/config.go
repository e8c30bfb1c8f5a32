package config

import (
	"context"
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
	defaultEnvFile           = ".env"
	defaultPort              = "4000"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultCORSOrigin        = "*"
	defaultOrderEventsTopic  = "order-events"
	defaultCacheTTL          = 5 * time.Minute
	defaultIdempotencyHeader = "Idempotency-Key"
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultStatsMaxLimit     = 100
	defaultHighValueLimit    = 20
	defaultEnvironment       = "local"
	defaultReportsPrefix     = "reports/stats"
	defaultReportURLExpiry   = 15 * time.Minute
	defaultDialTimeout       = 10 * time.Second

	// StoreFirestore and StoreMemory name the supported order stores.
	StoreFirestore = "firestore"
	StoreMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Store       string
	Server      ServerConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Redis       RedisConfig
	Storage     StorageConfig
	Idempotency IdempotencyConfig
	Stats       StatsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigin      string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	DialTimeout  time.Duration
}

// PubSubConfig controls order event publishing. An empty TopicID disables publishing.
type PubSubConfig struct {
	ProjectID    string
	TopicID      string
	EmulatorHost string
}

// RedisConfig configures the aggregation cache. An empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// StorageConfig controls stats report exports. SignerKey holds a service account JSON key
// (usually a secret reference) used to sign download URLs.
type StorageConfig struct {
	ReportsBucket string
	ReportsPrefix string
	SignerKey     string
	URLExpiry     time.Duration
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// StatsConfig bounds aggregation parameters accepted from callers.
type StatsConfig struct {
	MaxLimit       int
	HighValueLimit int
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

// WithEnvMap injects explicit values that take precedence over the system environment.
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

// WithSecretResolver sets the resolver used for secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the configuration from defaults, the .env file, the process environment
// and explicit overrides, in increasing order of precedence. Secret references are resolved last.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
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
		Environment: strings.ToLower(stringWithDefault(lookup, "ORDERS_ENVIRONMENT", defaultEnvironment)),
		Store:       strings.ToLower(stringWithDefault(lookup, "ORDERS_STORE", StoreFirestore)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "ORDERS_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "ORDERS_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "ORDERS_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "ORDERS_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "ORDERS_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			CORSOrigin:      stringWithDefault(lookup, "FRONTEND_ORIGIN", defaultCORSOrigin),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "ORDERS_FIRESTORE_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: stringWithDefault(lookup, "ORDERS_FIRESTORE_EMULATOR_HOST", ""),
			DialTimeout:  durationWithDefault(lookup, "ORDERS_FIRESTORE_DIAL_TIMEOUT", defaultDialTimeout),
		},
		PubSub: PubSubConfig{
			ProjectID:    stringWithDefault(lookup, "ORDERS_PUBSUB_PROJECT_ID", ""),
			TopicID:      stringWithDefault(lookup, "ORDERS_PUBSUB_TOPIC", defaultOrderEventsTopic),
			EmulatorHost: stringWithDefault(lookup, "ORDERS_PUBSUB_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "ORDERS_REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "ORDERS_REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "ORDERS_REDIS_DB", 0),
			TTL:      durationWithDefault(lookup, "ORDERS_REDIS_TTL", defaultCacheTTL),
		},
		Storage: StorageConfig{
			ReportsBucket: stringWithDefault(lookup, "ORDERS_STORAGE_REPORTS_BUCKET", ""),
			ReportsPrefix: stringWithDefault(lookup, "ORDERS_STORAGE_REPORTS_PREFIX", defaultReportsPrefix),
			SignerKey:     stringWithDefault(lookup, "ORDERS_STORAGE_SIGNER_KEY", ""),
			URLExpiry:     durationWithDefault(lookup, "ORDERS_STORAGE_URL_EXPIRY", defaultReportURLExpiry),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "ORDERS_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "ORDERS_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Stats: StatsConfig{
			MaxLimit:       intWithDefault(lookup, "ORDERS_STATS_MAX_LIMIT", defaultStatsMaxLimit),
			HighValueLimit: intWithDefault(lookup, "ORDERS_STATS_HIGH_VALUE_LIMIT", defaultHighValueLimit),
		},
	}

	// Pub/Sub lives in the same project as Firestore unless told otherwise.
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	if cfg.Redis.Password, err = resolveSecret(ctx, cfg.Redis.Password, options.secret); err != nil {
		return Config{}, err
	}
	if cfg.Storage.SignerKey, err = resolveSecret(ctx, cfg.Storage.SignerKey, options.secret); err != nil {
		return Config{}, err
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsSecretReference reports whether value points at Secret Manager rather than holding a literal.
func IsSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !IsSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	resolved, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		var secretErr *SecretError
		if errors.As(err, &secretErr) {
			return "", err
		}
		return "", &SecretError{Ref: ref, Err: err}
	}
	return resolved, nil
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func validateConfig(cfg Config) error {
	var invalid []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid = append(invalid, "Server.Port")
	} else if _, err := strconv.Atoi(cfg.Server.Port); err != nil {
		invalid = append(invalid, "Server.Port")
	}
	switch cfg.Store {
	case StoreFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case StoreMemory:
	default:
		invalid = append(invalid, "Store")
	}
	if cfg.Redis.Addr != "" && cfg.Redis.TTL <= 0 {
		invalid = append(invalid, "Redis.TTL")
	}
	if cfg.Storage.ReportsBucket != "" && cfg.Storage.URLExpiry <= 0 {
		invalid = append(invalid, "Storage.URLExpiry")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Stats.MaxLimit <= 0 {
		invalid = append(invalid, "Stats.MaxLimit")
	}
	if cfg.Stats.HighValueLimit <= 0 {
		invalid = append(invalid, "Stats.HighValueLimit")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
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
	if _, err := os.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	values, err := godotenv.Read(absPath)
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

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}
