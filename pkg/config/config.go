package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// devSecret is the placeholder signing secret used outside production.
const devSecret = "dev_secret"

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	SSO      SSOConfig
	Cache    CacheConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret       string
	Expiration   time.Duration
	Issuer       string
	CookieName   string
	CookieSecure bool
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SSOConfig wires the county single sign-on gateway.
type SSOConfig struct {
	Enabled         bool
	ServiceURL      string
	RequestTimeout  time.Duration
	DefaultRoleName string
	EmailDomain     string
}

// CacheConfig tunes the department directory cache.
type CacheConfig struct {
	DepartmentTTL time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:       v.GetString("JWT_SECRET"),
		Expiration:   parseDuration(v.GetString("JWT_EXPIRATION"), 30*time.Minute),
		Issuer:       v.GetString("JWT_ISSUER"),
		CookieName:   v.GetString("JWT_COOKIE_NAME"),
		CookieSecure: v.GetBool("JWT_COOKIE_SECURE"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.SSO = SSOConfig{
		Enabled:         v.GetBool("SSO_ENABLED"),
		ServiceURL:      v.GetString("SSO_SERVICE_URL"),
		RequestTimeout:  parseDuration(v.GetString("SSO_REQUEST_TIMEOUT"), 10*time.Second),
		DefaultRoleName: v.GetString("SSO_DEFAULT_ROLE"),
		EmailDomain:     v.GetString("SSO_EMAIL_DOMAIN"),
	}

	cfg.Cache = CacheConfig{
		DepartmentTTL: parseDuration(v.GetString("DEPARTMENT_CACHE_TTL"), 5*time.Minute),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate rejects configurations that must never reach production. A
// missing or placeholder signing secret fails startup instead of being
// silently replaced at runtime.
func (c *Config) validate() error {
	if c.Env == EnvProduction {
		if c.JWT.Secret == "" || c.JWT.Secret == devSecret {
			return fmt.Errorf("JWT_SECRET must be set to a non-default value in production")
		}
		if c.SSO.Enabled && c.SSO.ServiceURL == "" {
			return fmt.Errorf("SSO_SERVICE_URL is required when SSO is enabled")
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "question_tracker")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", devSecret)
	v.SetDefault("JWT_EXPIRATION", "30m")
	v.SetDefault("JWT_ISSUER", "question-tracker")
	v.SetDefault("JWT_COOKIE_NAME", "access_token")
	v.SetDefault("JWT_COOKIE_SECURE", true)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SSO_ENABLED", false)
	v.SetDefault("SSO_SERVICE_URL", "")
	v.SetDefault("SSO_REQUEST_TIMEOUT", "10s")
	v.SetDefault("SSO_DEFAULT_ROLE", "staff")
	v.SetDefault("SSO_EMAIL_DOMAIN", "oa.example.gov.tw")

	v.SetDefault("DEPARTMENT_CACHE_TTL", "5m")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
