package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	JWT      JWTConfig      `env:",prefix=JWT_"`
	Vault    VaultConfig    `env:",prefix=VAULT_"`
	Fitbit   FitbitConfig   `env:",prefix=FITBIT_"`
	FHIR     FHIRConfig     `env:",prefix=FHIR_"`
	Sync     SyncConfig     `env:",prefix=SYNC_"`
	Security SecurityConfig `env:",prefix="`
	CORS     CORSConfig     `env:",prefix=CORS_"`

	Env            string `env:"ENV,default=development"`
	MigrationsPath string `env:"MIGRATIONS_PATH,default=migrations"`
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
	User     string `env:"USER,default=vendorsync"`
	Password string `env:"PASSWORD,default=vendorsync_password"`
	DBName   string `env:"DB,default=vendorsync_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type JWTConfig struct {
	Secret            string   `env:"SECRET,required"`
	AccessTokenExpiry Duration `env:"ACCESS_TOKEN_EXPIRY,default=30m"`
	StateTokenExpiry  Duration `env:"STATE_TOKEN_EXPIRY,default=5m"`
}

// VaultConfig configures encryption-at-rest for OAuth credentials.
// The AES key is derived from EncryptionKey and KeySalt with argon2id.
type VaultConfig struct {
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`
	KeySalt       string `env:"KEY_SALT,default=vendorsync-oauth-vault"`
}

type FitbitConfig struct {
	ClientID     string   `env:"CLIENT_ID"`
	ClientSecret string   `env:"CLIENT_SECRET"`
	APIURL       string   `env:"API_URL,default=https://api.fitbit.com"`
	TokenURL     string   `env:"TOKEN_URL,default=https://api.fitbit.com/oauth2/token"`
	AuthorizeURL string   `env:"AUTHORIZE_URL,default=https://www.fitbit.com/oauth2/authorize"`
	RedirectURI  string   `env:"REDIRECT_URI,default=http://localhost:8080/api/v1/integrations/fitbit/callback"`
	Scopes       []string `env:"SCOPES,default=activity,heartrate,oxygen_saturation,weight,profile"`
	Timeout      Duration `env:"TIMEOUT,default=30s"`
}

type FHIRConfig struct {
	BaseURL string   `env:"BASE_URL,default=http://localhost:8090/fhir"`
	Timeout Duration `env:"TIMEOUT,default=30s"`
}

type SyncConfig struct {
	PollInterval        Duration `env:"POLL_INTERVAL,default=5s"`
	ScheduleTick        Duration `env:"SCHEDULE_TICK,default=60s"`
	MinHoursBetweenRuns int      `env:"MIN_HOURS_BETWEEN_RUNS,default=6"`
	MaxAttempts         int      `env:"MAX_ATTEMPTS,default=5"`
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

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if len(config.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	// A short vault secret makes the derived AES key guessable; refuse to start.
	if len(config.Vault.EncryptionKey) < 32 {
		return nil, fmt.Errorf("VAULT_ENCRYPTION_KEY must be at least 32 characters long")
	}

	if config.Sync.MinHoursBetweenRuns < 1 {
		return nil, fmt.Errorf("SYNC_MIN_HOURS_BETWEEN_RUNS must be at least 1")
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}
