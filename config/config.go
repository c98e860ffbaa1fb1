package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	// DatabaseURL пустой: сервис работает на in-memory хранилище (только для разработки).
	DatabaseURL    string
	JWTSecretKey   string
	ServerPort     int
	Env            string
	LogLevel       string
	AllowedOrigins []string

	JoinCodeTTL          time.Duration
	RateLimitMaxFailures int
	RateLimitWindow      time.Duration
	AutoAllocateInterval time.Duration
	NotifyConcurrency    int
	DatabaseTimeout      time.Duration
	ShutdownTimeout      time.Duration
	RequestTimeout       time.Duration

	R2 R2Config
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicBaseURL   string
}

// Enabled is true when every R2 setting is present.
func (c R2Config) Enabled() bool {
	return c.AccountID != "" && c.AccessKeyID != "" && c.SecretAccessKey != "" && c.BucketName != ""
}

func (c R2Config) partial() bool {
	set := 0
	for _, v := range []string{c.AccountID, c.AccessKeyID, c.SecretAccessKey, c.BucketName} {
		if v != "" {
			set++
		}
	}
	return set > 0 && set < 4
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("ALLOWED_ORIGINS", "*")
	v.SetDefault("JOIN_CODE_TTL", 7*24*time.Hour)
	v.SetDefault("RATE_LIMIT_MAX_FAILURES", 5)
	v.SetDefault("RATE_LIMIT_WINDOW", 5*time.Minute)
	v.SetDefault("AUTO_ALLOCATE_INTERVAL", time.Duration(0))
	v.SetDefault("NOTIFY_CONCURRENCY", 8)
	v.SetDefault("DATABASE_TIMEOUT", 5*time.Second)
	v.SetDefault("SHUTDOWN_TIMEOUT", 15*time.Second)
	v.SetDefault("REQUEST_TIMEOUT", 30*time.Second)

	// ключи без значения по умолчанию всё равно должны читаться из окружения
	for _, key := range []string{
		"DATABASE_URL", "JWT_SECRET_KEY",
		"R2_ACCOUNT_ID", "R2_ACCESS_KEY_ID", "R2_SECRET_ACCESS_KEY", "R2_BUCKET_NAME", "R2_PUBLIC_BASE_URL",
	} {
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()
	return v
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()
	return fromViper(newViper())
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseURL:          v.GetString("DATABASE_URL"),
		JWTSecretKey:         v.GetString("JWT_SECRET_KEY"),
		ServerPort:           v.GetInt("SERVER_PORT"),
		Env:                  strings.ToLower(v.GetString("ENV")),
		LogLevel:             strings.ToLower(v.GetString("LOG_LEVEL")),
		AllowedOrigins:       splitList(v.GetString("ALLOWED_ORIGINS")),
		JoinCodeTTL:          v.GetDuration("JOIN_CODE_TTL"),
		RateLimitMaxFailures: v.GetInt("RATE_LIMIT_MAX_FAILURES"),
		RateLimitWindow:      v.GetDuration("RATE_LIMIT_WINDOW"),
		AutoAllocateInterval: v.GetDuration("AUTO_ALLOCATE_INTERVAL"),
		NotifyConcurrency:    v.GetInt("NOTIFY_CONCURRENCY"),
		DatabaseTimeout:      v.GetDuration("DATABASE_TIMEOUT"),
		ShutdownTimeout:      v.GetDuration("SHUTDOWN_TIMEOUT"),
		RequestTimeout:       v.GetDuration("REQUEST_TIMEOUT"),
		R2: R2Config{
			AccountID:       v.GetString("R2_ACCOUNT_ID"),
			AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
			SecretAccessKey: v.GetString("R2_SECRET_ACCESS_KEY"),
			BucketName:      v.GetString("R2_BUCKET_NAME"),
			PublicBaseURL:   v.GetString("R2_PUBLIC_BASE_URL"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.JWTSecretKey == "" {
		errs = append(errs, errors.New("JWT_SECRET_KEY environment variable is not set"))
	}
	if c.DatabaseURL == "" && !c.IsDevelopment() {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required when ENV=%s", c.Env))
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.LogLevel))
	}
	if c.JoinCodeTTL < 0 {
		errs = append(errs, errors.New("JOIN_CODE_TTL must not be negative"))
	}
	if c.RateLimitMaxFailures <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX_FAILURES must be positive, got %d", c.RateLimitMaxFailures))
	}
	if c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	if c.AutoAllocateInterval < 0 {
		errs = append(errs, errors.New("AUTO_ALLOCATE_INTERVAL must not be negative"))
	}
	if c.NotifyConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("NOTIFY_CONCURRENCY must be positive, got %d", c.NotifyConcurrency))
	}
	if c.R2.partial() {
		errs = append(errs, errors.New("R2 settings are incomplete: set all of R2_ACCOUNT_ID, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY, R2_BUCKET_NAME or none"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
