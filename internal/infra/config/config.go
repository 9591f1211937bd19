package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/config.yaml"

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Diagnosis DiagnosisConfig `yaml:"diagnosis"`
	Storage   StorageConfig   `yaml:"storage"`
	Valkey    ValkeyConfig    `yaml:"valkey"`
	Postgres  PostgresConfig  `yaml:"postgres"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address      string          `yaml:"address"`
	ReadTimeout  time.Duration   `yaml:"readTimeout"`
	WriteTimeout time.Duration   `yaml:"writeTimeout"`
	CORSOrigins  []string        `yaml:"corsOrigins"`
	RateLimit    RateLimitConfig `yaml:"rateLimit"`
	Retry        RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries of JSON POSTs. Exclude lists
// paths whose handler writes state and must not be replayed.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// AuthConfig holds token signing and Google sign-in settings.
type AuthConfig struct {
	Secret          string        `yaml:"secret"`
	TokenTTL        time.Duration `yaml:"tokenTtl"`
	RefreshTokenTTL time.Duration `yaml:"refreshTokenTtl"`
	Google          GoogleConfig  `yaml:"google"`
}

// GoogleConfig is empty when Google sign-in is disabled.
type GoogleConfig struct {
	ClientID             string `yaml:"clientId"`
	ClientSecret         string `yaml:"clientSecret"`
	RedirectURL          string `yaml:"redirectUrl"`
	TokenEncryptionKey   string `yaml:"tokenEncryptionKey"`
	PostLoginRedirectURL string `yaml:"postLoginRedirectUrl"`
}

// DiagnosisConfig tunes the analysis workflow.
type DiagnosisConfig struct {
	MockDelay        time.Duration `yaml:"mockDelay"`
	ProgressInterval time.Duration `yaml:"progressInterval"`
	MaxImageBytes    int64         `yaml:"maxImageBytes"`
	MaxAge           int           `yaml:"maxAge"`
	HistoryTTL       time.Duration `yaml:"historyTtl"`
	HistoryLimit     int           `yaml:"historyLimit"`
}

// StorageConfig points at the R2 bucket that archives uploads. An empty
// endpoint selects the in-memory archive.
type StorageConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
}

// ValkeyConfig contains connection information for report history.
type ValkeyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Prefix  string `yaml:"prefix"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat(defaultConfigPath); err == nil {
		if err := hydrateFromFile(cfg, defaultConfigPath); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	envString("HTTP_ADDRESS", &cfg.HTTP.Address)
	if v := os.Getenv("HTTP_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = splitList(v)
	}
	envBool("HTTP_RATE_LIMIT_ENABLED", &cfg.HTTP.RateLimit.Enabled)
	envInt("HTTP_RATE_LIMIT_RPM", &cfg.HTTP.RateLimit.RequestsPerMinute)
	envInt("HTTP_RATE_LIMIT_BURST", &cfg.HTTP.RateLimit.Burst)
	envBool("HTTP_RETRY_ENABLED", &cfg.HTTP.Retry.Enabled)
	envInt("HTTP_RETRY_MAX_ATTEMPTS", &cfg.HTTP.Retry.MaxAttempts)
	envDuration("HTTP_RETRY_BASE_BACKOFF", &cfg.HTTP.Retry.BaseBackoff)

	envString("AUTH_SECRET", &cfg.Auth.Secret)
	envDuration("AUTH_TOKEN_TTL", &cfg.Auth.TokenTTL)
	envDuration("AUTH_REFRESH_TOKEN_TTL", &cfg.Auth.RefreshTokenTTL)
	envString("GOOGLE_CLIENT_ID", &cfg.Auth.Google.ClientID)
	envString("GOOGLE_CLIENT_SECRET", &cfg.Auth.Google.ClientSecret)
	envString("GOOGLE_REDIRECT_URL", &cfg.Auth.Google.RedirectURL)
	envString("GOOGLE_TOKEN_ENCRYPTION_KEY", &cfg.Auth.Google.TokenEncryptionKey)
	envString("GOOGLE_POST_LOGIN_REDIRECT_URL", &cfg.Auth.Google.PostLoginRedirectURL)

	envDuration("DIAGNOSIS_MOCK_DELAY", &cfg.Diagnosis.MockDelay)
	envDuration("DIAGNOSIS_PROGRESS_INTERVAL", &cfg.Diagnosis.ProgressInterval)
	if v := os.Getenv("DIAGNOSIS_MAX_IMAGE_BYTES"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Diagnosis.MaxImageBytes = parsed
		}
	}
	envInt("DIAGNOSIS_MAX_AGE", &cfg.Diagnosis.MaxAge)
	envDuration("DIAGNOSIS_HISTORY_TTL", &cfg.Diagnosis.HistoryTTL)
	envInt("DIAGNOSIS_HISTORY_LIMIT", &cfg.Diagnosis.HistoryLimit)

	envString("R2_ENDPOINT", &cfg.Storage.Endpoint)
	envString("R2_ACCESS_KEY", &cfg.Storage.AccessKey)
	envString("R2_SECRET_KEY", &cfg.Storage.SecretKey)
	envString("R2_BUCKET", &cfg.Storage.Bucket)
	envString("R2_REGION", &cfg.Storage.Region)

	envBool("VALKEY_ENABLED", &cfg.Valkey.Enabled)
	envString("VALKEY_ADDR", &cfg.Valkey.Addr)
	envString("VALKEY_PREFIX", &cfg.Valkey.Prefix)

	envString("POSTGRES_DSN", &cfg.Postgres.DSN)
	if v := os.Getenv("POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.MinConns = int32(parsed)
		}
	}
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			*dst = parsed
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "1" || strings.EqualFold(v, "true")
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:      ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude: []string{
					"/api/v1/auth/register",
				},
			},
		},
		Auth: AuthConfig{
			Secret:          "dev-secret-change-me",
			TokenTTL:        time.Hour,
			RefreshTokenTTL: 30 * 24 * time.Hour,
		},
		Diagnosis: DiagnosisConfig{
			MockDelay:        2 * time.Second,
			ProgressInterval: 150 * time.Millisecond,
			MaxImageBytes:    10 << 20,
			MaxAge:           150,
			HistoryTTL:       30 * 24 * time.Hour,
			HistoryLimit:     20,
		},
		Storage: StorageConfig{
			Bucket: "xray-uploads",
			Region: "auto",
		},
		Valkey: ValkeyConfig{
			Prefix: "xray",
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("auth.secret cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("auth token ttls must be positive")
	}
	if c.Auth.RefreshTokenTTL < c.Auth.TokenTTL {
		return errors.New("auth.refreshTokenTtl cannot be shorter than auth.tokenTtl")
	}
	if g := c.Auth.Google; g.ClientID != "" || g.ClientSecret != "" || g.RedirectURL != "" {
		if g.ClientID == "" || g.ClientSecret == "" || g.RedirectURL == "" {
			return errors.New("auth.google requires clientId, clientSecret and redirectUrl together")
		}
		if strings.TrimSpace(g.TokenEncryptionKey) == "" {
			return errors.New("auth.google.tokenEncryptionKey cannot be empty when google sign-in is enabled")
		}
	}
	if c.Diagnosis.MockDelay < 0 {
		return errors.New("diagnosis.mockDelay cannot be negative")
	}
	if c.Diagnosis.ProgressInterval <= 0 {
		return errors.New("diagnosis.progressInterval must be positive")
	}
	if c.Diagnosis.MaxImageBytes <= 0 {
		return errors.New("diagnosis.maxImageBytes must be positive")
	}
	if c.Diagnosis.MaxAge <= 0 {
		return errors.New("diagnosis.maxAge must be positive")
	}
	if c.Diagnosis.HistoryTTL < 0 {
		return errors.New("diagnosis.historyTtl cannot be negative")
	}
	if c.Diagnosis.HistoryLimit <= 0 {
		return errors.New("diagnosis.historyLimit must be positive")
	}
	if c.Storage.Endpoint != "" && strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("storage.bucket cannot be empty when storage.endpoint is set")
	}
	if c.Valkey.Enabled && strings.TrimSpace(c.Valkey.Addr) == "" {
		return errors.New("valkey.addr cannot be empty when valkey is enabled")
	}
	return nil
}
