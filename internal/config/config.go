// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App         AppConfig         `koanf:"app"`
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Redis       RedisConfig       `koanf:"redis"`
	Auth        AuthConfig        `koanf:"auth"`
	Entitlement EntitlementConfig `koanf:"entitlement"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit"`
	CORS        CORSConfig        `koanf:"cors"`
	Log         LogConfig         `koanf:"log"`
	Otel        OtelConfig        `koanf:"otel"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig is optional: with an empty URL the service only verifies
// tokens and serves capability queries.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

type AuthConfig struct {
	JWTSecret          string        `koanf:"jwt_secret"`
	AccessTokenExpire  time.Duration `koanf:"access_token_expire"`
	RefreshTokenExpire time.Duration `koanf:"refresh_token_expire"`
	Issuer             string        `koanf:"issuer"`
	Audience           string        `koanf:"audience"`
	CookieName         string        `koanf:"cookie_name"`
	PasswordCost       int           `koanf:"password_cost"`
}

type EntitlementConfig struct {
	MatrixPath string `koanf:"matrix_path"`
	UpgradeURL string `koanf:"upgrade_url"`
}

// RateLimitConfig budgets are requests per minute. Forwarding headers only
// pick the anonymous bucket when TrustProxyHeaders is set, which is only
// safe behind a proxy that overwrites them.
type RateLimitConfig struct {
	FreeRequests      int  `koanf:"free_requests"`
	FreeBurst         int  `koanf:"free_burst"`
	ProRequests       int  `koanf:"pro_requests"`
	ProBurst          int  `koanf:"pro_burst"`
	TrustProxyHeaders bool `koanf:"trust_proxy_headers"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

const minSecretLength = 32

// Load builds a Config from defaults, then the optional yaml file, then
// environment variables. Each call returns a fresh value.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "marketplace-access",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.auto_migrate":       true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"auth.access_token_expire":  "168h",
		"auth.refresh_token_expire": "720h",
		"auth.issuer":               "marketplace-access",
		"auth.audience":             "marketplace",
		"auth.cookie_name":          "session",
		"auth.password_cost":        12,

		"entitlement.upgrade_url": "/upgrade-pro",

		"rate_limit.free_requests": 60,
		"rate_limit.free_burst":    10,
		"rate_limit.pro_requests":  600,
		"rate_limit.pro_burst":     100,

		"rate_limit.trust_proxy_headers": false,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"PATCH",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "marketplace-access",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"APP_NAME":                    "app.name",
	"DATABASE_URL":                "database.url",
	"DATABASE_AUTO_MIGRATE":       "database.auto_migrate",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_SECRET":                  "auth.jwt_secret",
	"JWT_ACCESS_TOKEN_EXPIRE":     "auth.access_token_expire",
	"JWT_REFRESH_TOKEN_EXPIRE":    "auth.refresh_token_expire",
	"JWT_ISSUER":                  "auth.issuer",
	"JWT_AUDIENCE":                "auth.audience",
	"SESSION_COOKIE_NAME":         "auth.cookie_name",
	"PASSWORD_COST":               "auth.password_cost",
	"ENTITLEMENT_MATRIX_PATH":     "entitlement.matrix_path",
	"UPGRADE_URL":                 "entitlement.upgrade_url",
	"RATE_LIMIT_FREE_REQUESTS":    "rate_limit.free_requests",
	"RATE_LIMIT_FREE_BURST":       "rate_limit.free_burst",
	"RATE_LIMIT_PRO_REQUESTS":     "rate_limit.pro_requests",
	"RATE_LIMIT_PRO_BURST":        "rate_limit.pro_burst",
	"RATE_LIMIT_TRUST_PROXY":      "rate_limit.trust_proxy_headers",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if len(c.Auth.JWTSecret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minSecretLength)
	}

	if c.Auth.AccessTokenExpire <= 0 {
		return fmt.Errorf("auth.access_token_expire must be positive")
	}

	if c.Auth.PasswordCost < 4 || c.Auth.PasswordCost > 31 {
		return fmt.Errorf("auth.password_cost must be between 4 and 31")
	}

	if strings.TrimSpace(c.Auth.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}

	if c.Entitlement.UpgradeURL == "" {
		return fmt.Errorf("entitlement.upgrade_url is required")
	}

	if err := validateBudget("free", c.RateLimit.FreeRequests, c.RateLimit.FreeBurst); err != nil {
		return err
	}

	if err := validateBudget("pro", c.RateLimit.ProRequests, c.RateLimit.ProBurst); err != nil {
		return err
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return nil
}

func validateBudget(tier string, requests, burst int) error {
	if requests <= 0 {
		return fmt.Errorf("rate_limit.%s_requests must be positive", tier)
	}
	if burst <= 0 {
		return fmt.Errorf("rate_limit.%s_burst must be positive", tier)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
