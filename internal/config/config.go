package config

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration. It is loaded once at startup and
// not mutated afterwards.
type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Storage   StorageConfig
	JWT       JWTConfig
	Password  PasswordConfig
	Cookie    CookieConfig
	Google    GoogleConfig
	RateLimit RateLimitConfig
	AMQP      AMQPConfig
	Sentry    SentryConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// AllowedOrigins lists browser origins allowed to send credentialed requests.
	AllowedOrigins []string
}

func (s ServerConfig) IsProduction() bool { return strings.EqualFold(s.Environment, "production") }

type PostgresConfig struct {
	URL           string
	MaxOpenConns  int
	RunMigrations bool
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

// Backend names accepted by StorageConfig.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

type StorageConfig struct {
	Users           string
	Sessions        string
	JanitorInterval time.Duration
}

type JWTConfig struct {
	AccessSecret    string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Issuer          string
}

type PasswordConfig struct {
	BcryptCost int
}

type CookieConfig struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	SameSite string
}

// SameSiteMode maps the configured policy onto net/http's enum.
func (c CookieConfig) SameSiteMode() http.SameSite {
	switch strings.ToLower(c.SameSite) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

type GoogleConfig struct {
	ClientID       string
	ClientSecret   string
	RedirectURL    string
	Issuer         string
	AllowedDomains []string
}

func (g GoogleConfig) Enabled() bool { return g.ClientID != "" }

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type AMQPConfig struct {
	URL   string
	Queue string
}

type SentryConfig struct {
	DSN string
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables and an optional .env file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("POSTGRES_MAX_OPEN_CONNS", 10)
	v.SetDefault("RUN_MIGRATIONS", false)
	v.SetDefault("MONGODB_DATABASE", "storefront")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("USER_STORE", BackendPostgres)
	v.SetDefault("SESSION_STORE", BackendPostgres)
	v.SetDefault("SESSION_JANITOR_INTERVAL", 60)
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 15)
	v.SetDefault("JWT_REFRESH_TOKEN_TTL", 10080)
	v.SetDefault("JWT_ISSUER", "storefront-auth")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("COOKIE_NAME", "refresh_token")
	v.SetDefault("COOKIE_PATH", "/auth")
	v.SetDefault("COOKIE_SAMESITE", "strict")
	v.SetDefault("GOOGLE_ISSUER", "https://accounts.google.com")
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_USE_REDIS", false)
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("AMQP_QUEUE", "auth.events")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	env := v.GetString("SERVER_ENVIRONMENT")
	secure := strings.EqualFold(env, "production")
	if v.IsSet("COOKIE_SECURE") {
		secure = v.GetBool("COOKIE_SECURE")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Host:           v.GetString("SERVER_HOST"),
			Environment:    env,
			ReadTimeout:    time.Duration(v.GetInt("SERVER_READ_TIMEOUT")) * time.Second,
			WriteTimeout:   time.Duration(v.GetInt("SERVER_WRITE_TIMEOUT")) * time.Second,
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Postgres: PostgresConfig{
			URL:           v.GetString("DATABASE_URL"),
			MaxOpenConns:  v.GetInt("POSTGRES_MAX_OPEN_CONNS"),
			RunMigrations: v.GetBool("RUN_MIGRATIONS"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Storage: StorageConfig{
			Users:           strings.ToLower(v.GetString("USER_STORE")),
			Sessions:        strings.ToLower(v.GetString("SESSION_STORE")),
			JanitorInterval: time.Duration(v.GetInt("SESSION_JANITOR_INTERVAL")) * time.Minute,
		},
		JWT: JWTConfig{
			AccessSecret:    v.GetString("JWT_ACCESS_SECRET"),
			RefreshSecret:   v.GetString("JWT_REFRESH_SECRET"),
			AccessTokenTTL:  time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
			RefreshTokenTTL: time.Duration(v.GetInt("JWT_REFRESH_TOKEN_TTL")) * time.Minute,
			Issuer:          v.GetString("JWT_ISSUER"),
		},
		Password: PasswordConfig{
			BcryptCost: v.GetInt("BCRYPT_COST"),
		},
		Cookie: CookieConfig{
			Name:     v.GetString("COOKIE_NAME"),
			Path:     v.GetString("COOKIE_PATH"),
			Domain:   v.GetString("COOKIE_DOMAIN"),
			Secure:   secure,
			SameSite: strings.ToLower(v.GetString("COOKIE_SAMESITE")),
		},
		Google: GoogleConfig{
			ClientID:       v.GetString("GOOGLE_CLIENT_ID"),
			ClientSecret:   v.GetString("GOOGLE_CLIENT_SECRET"),
			RedirectURL:    v.GetString("GOOGLE_REDIRECT_URL"),
			Issuer:         v.GetString("GOOGLE_ISSUER"),
			AllowedDomains: splitList(v.GetString("GOOGLE_ALLOWED_DOMAINS")),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		AMQP: AMQPConfig{
			URL:   v.GetString("AMQP_URL"),
			Queue: v.GetString("AMQP_QUEUE"),
		},
		Sentry: SentryConfig{DSN: v.GetString("SENTRY_DSN")},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const minSecretLen = 32

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWT.AccessSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_ACCESS_SECRET must be at least %d bytes", minSecretLen))
	}
	if len(c.JWT.RefreshSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("JWT_REFRESH_SECRET must be at least %d bytes", minSecretLen))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ"))
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	} else if c.JWT.AccessTokenTTL >= c.JWT.RefreshTokenTTL {
		errs = append(errs, errors.New("JWT_ACCESS_TOKEN_TTL must be shorter than JWT_REFRESH_TOKEN_TTL"))
	}
	if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}

	switch c.Storage.Users {
	case BackendPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when USER_STORE=postgres"))
		}
	case BackendMongo:
		if c.MongoDB.URI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required when USER_STORE=mongo"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown USER_STORE %q", c.Storage.Users))
	}

	switch c.Storage.Sessions {
	case BackendPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when SESSION_STORE=postgres"))
		}
	case BackendMongo:
		if c.MongoDB.URI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required when SESSION_STORE=mongo"))
		}
	case BackendRedis:
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required when SESSION_STORE=redis"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown SESSION_STORE %q", c.Storage.Sessions))
	}

	if c.RateLimit.UseRedis && c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required when RATE_LIMIT_USE_REDIS=true"))
	}

	switch c.Cookie.SameSite {
	case "strict", "lax":
	case "none":
		if !c.Cookie.Secure {
			errs = append(errs, errors.New("COOKIE_SAMESITE=none requires COOKIE_SECURE=true"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown COOKIE_SAMESITE %q", c.Cookie.SameSite))
	}
	if c.Cookie.Name == "" {
		errs = append(errs, errors.New("COOKIE_NAME must not be empty"))
	}

	if c.Google.Enabled() && (c.Google.ClientSecret == "" || c.Google.RedirectURL == "") {
		errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URL are required when GOOGLE_CLIENT_ID is set"))
	}

	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
