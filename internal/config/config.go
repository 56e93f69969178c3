package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "INKWELL"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabaseDriver   = "sqlite"
	defaultDatabaseDSN      = "inkwell.db"
	defaultCacheDriver      = "memory"
	defaultRefreshInterval  = 5 * time.Minute
	defaultRefreshTimeout   = 10 * time.Second
	defaultTokenIssuer      = "inkwell"
	defaultTokenTTL         = 24 * time.Hour
	defaultLogLevel         = "info"
	defaultLogFormat        = "json"
	defaultOperationTimeout = 5 * time.Second
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	AllowedOrigins   []string
	DatabaseDriver   string
	DatabaseDSN      string
	CacheDriver      string
	RedisAddress     string
	RedisPassword    string
	RedisDB          int
	AsyncRefresh     bool
	RefreshInterval  time.Duration
	RefreshTimeout   time.Duration
	SigningSecret    string
	TokenIssuer      string
	TokenTTL         time.Duration
	LogLevel         string
	LogFormat        string
	OperationTimeout time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("cache.driver", defaultCacheDriver)
	configViper.SetDefault("cache.redis_db", 0)
	configViper.SetDefault("cache.async_refresh", false)
	configViper.SetDefault("cache.refresh_interval", defaultRefreshInterval)
	configViper.SetDefault("cache.refresh_timeout", defaultRefreshTimeout)
	configViper.SetDefault("auth.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("store.operation_timeout", defaultOperationTimeout)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		AllowedOrigins:   configViper.GetStringSlice("http.allowed_origins"),
		DatabaseDriver:   strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:      configViper.GetString("database.dsn"),
		CacheDriver:      strings.ToLower(strings.TrimSpace(configViper.GetString("cache.driver"))),
		RedisAddress:     configViper.GetString("cache.redis_address"),
		RedisPassword:    configViper.GetString("cache.redis_password"),
		RedisDB:          configViper.GetInt("cache.redis_db"),
		AsyncRefresh:     configViper.GetBool("cache.async_refresh"),
		RefreshInterval:  configViper.GetDuration("cache.refresh_interval"),
		RefreshTimeout:   configViper.GetDuration("cache.refresh_timeout"),
		SigningSecret:    configViper.GetString("auth.signing_secret"),
		TokenIssuer:      configViper.GetString("auth.issuer"),
		TokenTTL:         configViper.GetDuration("auth.token_ttl"),
		LogLevel:         configViper.GetString("log.level"),
		LogFormat:        configViper.GetString("log.format"),
		OperationTimeout: configViper.GetDuration("store.operation_timeout"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.CacheDriver {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.RedisAddress) == "" {
			return fmt.Errorf("cache.redis_address is required for the redis cache driver")
		}
	default:
		return fmt.Errorf("cache.driver must be memory or redis, got %q", c.CacheDriver)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("cache.refresh_interval must not be negative")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}
