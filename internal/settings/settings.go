package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/notification"
)

// Settings is the process configuration.
type Settings struct {
	Debug       bool   `toml:"debug"`
	HTTPAddr    string `toml:"http_addr"`
	DatabaseURL string `toml:"database_url"`

	Redis   Redis   `toml:"redis"`
	SMTP    SMTP    `toml:"smtp"`
	Auth    Auth    `toml:"auth"`
	Links   Links   `toml:"links"`
	Metrics Metrics `toml:"metrics"`
}

type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// SMTP configures mail delivery. An empty Host means emails are only logged.
type SMTP struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
}

// Auth holds token and challenge tunables, in the units of their
// environment variables.
type Auth struct {
	JWTSecretKey                    string `toml:"jwt_secret_key"`
	AccessTokenExpireMinutes        int    `toml:"access_token_expire_minutes"`
	RefreshTokenExpireHours         int    `toml:"refresh_token_expire_hours"`
	ResetPasswordTokenExpireMinutes int    `toml:"reset_password_token_expire_minutes"`
	TokenLength                     int    `toml:"token_length"`
	TokenExpiryMinutes              int    `toml:"token_expiry_minutes"`
	MaxInvalidAttempts              int    `toml:"max_invalid_attempts"`
	MaxTokenRequestAttempts         int    `toml:"max_token_request_attempts"`
	BlockedUserDurationMinutes      int    `toml:"blocked_user_duration_minutes"`
	AutoUnblock                     bool   `toml:"auto_unblock"`
}

type Links struct {
	ProjectBaseURL string `toml:"project_base_url"`
	APIPrefix      string `toml:"api_prefix"`
}

type Metrics struct {
	Enabled           bool `toml:"enabled"`
	LatencyHistograms bool `toml:"latency_histograms"`
}

// Default returns the settings used when neither file nor environment
// override a value.
func Default() Settings {
	return Settings{
		HTTPAddr: ":8000",
		Redis: Redis{
			Addr: "localhost:6379",
		},
		SMTP: SMTP{
			Port: 587,
		},
		Auth: Auth{
			AccessTokenExpireMinutes:        15,
			RefreshTokenExpireHours:         12,
			ResetPasswordTokenExpireMinutes: 24 * 60,
			TokenLength:                     6,
			TokenExpiryMinutes:              10,
			MaxInvalidAttempts:              5,
			MaxTokenRequestAttempts:         3,
			BlockedUserDurationMinutes:      10,
		},
		Links: Links{
			ProjectBaseURL: "http://localhost:8000",
			APIPrefix:      "/api/v1",
		},
		Metrics: Metrics{
			Enabled: true,
		},
	}
}

// Load returns Default overlaid with the TOML file at path, if path is not
// empty, and then with the environment.
func Load(path string) (Settings, error) {
	s := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &s); err != nil {
			return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
		}
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv. Malformed numbers and booleans are reported together.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}

	flag("DEBUG", &s.Debug)
	str("HTTP_ADDR", &s.HTTPAddr)
	str("DATABASE_URL", &s.DatabaseURL)

	str("REDIS_ADDR", &s.Redis.Addr)
	str("REDIS_PASSWORD", &s.Redis.Password)
	num("REDIS_DB", &s.Redis.DB)

	str("SMTP_HOST", &s.SMTP.Host)
	num("SMTP_PORT", &s.SMTP.Port)
	str("SMTP_USERNAME", &s.SMTP.Username)
	str("SMTP_PASSWORD", &s.SMTP.Password)
	str("SMTP_FROM", &s.SMTP.From)

	str("JWT_SECRET_KEY", &s.Auth.JWTSecretKey)
	num("ACCESS_TOKEN_EXPIRE_MINUTES", &s.Auth.AccessTokenExpireMinutes)
	num("REFRESH_TOKEN_EXPIRE_HOURS", &s.Auth.RefreshTokenExpireHours)
	num("RESET_PASSWORD_TOKEN_EXPIRE_MINUTES", &s.Auth.ResetPasswordTokenExpireMinutes)
	num("TOKEN_LENGTH", &s.Auth.TokenLength)
	num("TOKEN_EXPIRY_MINUTES", &s.Auth.TokenExpiryMinutes)
	num("MAX_INVALID_ATTEMPTS", &s.Auth.MaxInvalidAttempts)
	num("MAX_TOKEN_REQUEST_ATTEMPTS", &s.Auth.MaxTokenRequestAttempts)
	num("BLOCKED_USER_DURATION_MINUTES", &s.Auth.BlockedUserDurationMinutes)
	flag("AUTO_UNBLOCK", &s.Auth.AutoUnblock)

	str("PROJECT_BASE_URL", &s.Links.ProjectBaseURL)
	str("API_PREFIX", &s.Links.APIPrefix)

	flag("METRICS_ENABLED", &s.Metrics.Enabled)
	flag("METRICS_LATENCY_HISTOGRAMS", &s.Metrics.LatencyHistograms)

	return errors.Join(errs...)
}

// EngineConfig converts s into an authcore.Config and validates it.
func (s Settings) EngineConfig() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()

	cfg.JWT.PrivateKey = []byte(s.Auth.JWTSecretKey)
	cfg.JWT.AccessTTL = time.Duration(s.Auth.AccessTokenExpireMinutes) * time.Minute
	cfg.JWT.RefreshTTL = time.Duration(s.Auth.RefreshTokenExpireHours) * time.Hour
	cfg.JWT.ResetPasswordTTL = time.Duration(s.Auth.ResetPasswordTokenExpireMinutes) * time.Minute

	cfg.MFA.CodeLength = s.Auth.TokenLength
	cfg.MFA.CodeTTL = time.Duration(s.Auth.TokenExpiryMinutes) * time.Minute
	cfg.MFA.MaxIncorrectAttempts = s.Auth.MaxInvalidAttempts
	cfg.MFA.MaxResends = s.Auth.MaxTokenRequestAttempts
	cfg.MFA.LockoutDuration = time.Duration(s.Auth.BlockedUserDurationMinutes) * time.Minute
	cfg.MFA.AutoUnblock = s.Auth.AutoUnblock

	cfg.Links.BaseURL = strings.TrimRight(s.Links.ProjectBaseURL, "/")
	cfg.Links.APIPrefix = s.Links.APIPrefix

	cfg.Metrics.Enabled = s.Metrics.Enabled
	cfg.Metrics.EnableLatencyHistograms = s.Metrics.LatencyHistograms

	if err := cfg.Validate(); err != nil {
		return authcore.Config{}, fmt.Errorf("invalid auth settings: %w", err)
	}
	return cfg, nil
}

// SMTPConfig returns the mail transport settings.
func (s Settings) SMTPConfig() notification.SMTPConfig {
	return notification.SMTPConfig{
		Host:     s.SMTP.Host,
		Port:     s.SMTP.Port,
		Username: s.SMTP.Username,
		Password: s.SMTP.Password,
		From:     s.SMTP.From,
	}
}

// Validate checks the settings needed to serve.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required")
	}
	if strings.TrimSpace(s.Redis.Addr) == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if len(s.Auth.JWTSecretKey) < 32 {
		return errors.New("JWT_SECRET_KEY must be at least 32 bytes")
	}
	if s.SMTP.Host != "" && s.SMTP.From == "" {
		return errors.New("SMTP_FROM is required when SMTP_HOST is set")
	}
	return nil
}
