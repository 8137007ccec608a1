package config

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	Auth     AuthConfig     `env:",prefix=AUTH_"`
	Vault    VaultConfig    `env:",prefix=VAULT_"`
	OAuth    OAuthConfig    `env:",prefix=OAUTH_"`
	Strava   ProviderConfig `env:",prefix=STRAVA_"`
	Garmin   ProviderConfig `env:",prefix=GARMIN_"`
	Match    MatchConfig    `env:",prefix=MATCH_"`
	Sync     SyncConfig     `env:",prefix=SYNC_"`
	Kafka    KafkaConfig    `env:",prefix=KAFKA_"`
	Security SecurityConfig `env:",prefix="`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	Env      string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=trainsync"`
	Password string `env:"PASSWORD,default=trainsync_password"`
	DBName   string `env:"DB,default=trainsync_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

// AuthConfig configures validation of session tokens minted by the external
// identity service. The secret is shared with that service.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET,required"`
}

// VaultConfig holds the server-side key used to encrypt provider tokens at
// rest. The key is base64 and must decode to exactly 32 bytes.
type VaultConfig struct {
	Key string `env:"KEY,required"`
}

type OAuthConfig struct {
	StateTTL        Duration `env:"STATE_TTL,default=5m"`
	CallbackBaseURL string   `env:"CALLBACK_BASE_URL,default=http://localhost:8080"`
}

// ProviderConfig is the per-provider OAuth application and endpoint setup.
type ProviderConfig struct {
	Enabled      bool     `env:"ENABLED,default=false"`
	ClientID     string   `env:"CLIENT_ID,default="`
	ClientSecret string   `env:"CLIENT_SECRET,default="`
	BaseURL      string   `env:"BASE_URL,default="`
	AuthURL      string   `env:"AUTH_URL,default="`
	Timeout      Duration `env:"TIMEOUT,default=10s"`
}

// MatchConfig is the matching policy. Threshold values are deployment policy,
// not business rules.
type MatchConfig struct {
	Window            Duration `env:"WINDOW,default=24h"`
	Floor             float64  `env:"FLOOR,default=0.40"`
	PossibleThreshold float64  `env:"POSSIBLE_THRESHOLD,default=0.40"`
	ProbableThreshold float64  `env:"PROBABLE_THRESHOLD,default=0.65"`
	ExactThreshold    float64  `env:"EXACT_THRESHOLD,default=0.85"`
}

type SyncConfig struct {
	MaxBatchSize int      `env:"MAX_BATCH_SIZE,default=50"`
	Concurrency  int      `env:"CONCURRENCY,default=4"`
	ErrorListCap int      `env:"ERROR_LIST_CAP,default=10"`
	LockTTL      Duration `env:"LOCK_TTL,default=2m"`
}

// KafkaConfig configures the sync-completed event publisher. With no brokers
// set the publisher is a no-op and completions are only logged.
type KafkaConfig struct {
	Brokers []string `env:"BROKERS,default="`
	Topic   string   `env:"TOPIC,default=trainsync.sync.completed"`
}

type SecurityConfig struct {
	RateLimitRequests int      `env:"RATE_LIMIT_REQUESTS,default=10"`
	RateLimitWindow   Duration `env:"RATE_LIMIT_WINDOW,default=1m"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,PUT,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// KeyBytes decodes the vault key.
func (v VaultConfig) KeyBytes() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(v.Key)
	if err != nil {
		return nil, fmt.Errorf("vault key is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("vault key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(config.Auth.JWTSecret) < 32 {
		return nil, fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters long")
	}

	if _, err := config.Vault.KeyBytes(); err != nil {
		return nil, err
	}

	if !config.Strava.Enabled && !config.Garmin.Enabled {
		return nil, fmt.Errorf("at least one provider must be enabled")
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}
