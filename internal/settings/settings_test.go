package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authcore.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8000", s.HTTPAddr)
	assert.Equal(t, 15, s.Auth.AccessTokenExpireMinutes)
	assert.Equal(t, 3, s.Auth.MaxTokenRequestAttempts)
	assert.Equal(t, "/api/v1", s.Links.APIPrefix)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := writeFile(t, `
http_addr = ":9000"
database_url = "postgres://file/db"

[redis]
addr = "redis:6379"
db = 2

[auth]
jwt_secret_key = "from-file-from-file-from-file-xx"
token_length = 8
max_invalid_attempts = 3
`)

	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("TOKEN_EXPIRY_MINUTES", "5")
	t.Setenv("DEBUG", "true")
	t.Setenv("AUTO_UNBLOCK", "1")
	t.Setenv("METRICS_ENABLED", "true")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", s.HTTPAddr)
	assert.Equal(t, "postgres://env/db", s.DatabaseURL)
	assert.Equal(t, "redis:6379", s.Redis.Addr)
	assert.Equal(t, 2, s.Redis.DB)
	assert.Equal(t, 8, s.Auth.TokenLength)
	assert.Equal(t, 3, s.Auth.MaxInvalidAttempts)
	assert.Equal(t, 5, s.Auth.TokenExpiryMinutes)
	assert.True(t, s.Debug)
	assert.True(t, s.Auth.AutoUnblock)
	assert.True(t, s.Metrics.Enabled)
	assert.False(t, s.Metrics.LatencyHistograms)
	assert.Equal(t, 12, s.Auth.RefreshTokenExpireHours, "unset keys keep defaults")
}

func TestLoadReportsMalformedValues(t *testing.T) {
	t.Setenv("REDIS_DB", "two")
	t.Setenv("DEBUG", "maybe")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REDIS_DB")
	assert.Contains(t, err.Error(), "DEBUG")

	_, err = Load(writeFile(t, "http_addr = "))
	require.Error(t, err)
}

func TestEngineConfig(t *testing.T) {
	s := Default()
	s.Auth.JWTSecretKey = testSecret
	s.Auth.BlockedUserDurationMinutes = 30
	s.Auth.ResetPasswordTokenExpireMinutes = 60
	s.Links.ProjectBaseURL = "https://auth.example.com/"

	cfg, err := s.EngineConfig()
	require.NoError(t, err)

	assert.Equal(t, []byte(testSecret), cfg.JWT.PrivateKey)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 12*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, time.Hour, cfg.JWT.ResetPasswordTTL)
	assert.Equal(t, 30*time.Minute, cfg.MFA.LockoutDuration)
	assert.Equal(t, 6, cfg.MFA.CodeLength)
	assert.Equal(t, "https://auth.example.com", cfg.Links.BaseURL)
	assert.False(t, cfg.MFA.AutoUnblock)
}

func TestEngineConfigRejectsInvalid(t *testing.T) {
	s := Default()
	_, err := s.EngineConfig()
	assert.Error(t, err, "missing secret")

	s.Auth.JWTSecretKey = testSecret
	s.Auth.MaxInvalidAttempts = 0
	_, err = s.EngineConfig()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	s := Default()
	s.Auth.JWTSecretKey = testSecret
	assert.Error(t, s.Validate(), "database url required")

	s.DatabaseURL = "postgres://localhost/auth"
	assert.NoError(t, s.Validate())

	s.SMTP.Host = "smtp.example.com"
	assert.Error(t, s.Validate(), "from required with smtp host")

	s.SMTP.From = "no-reply@example.com"
	assert.NoError(t, s.Validate())

	s.Auth.JWTSecretKey = "short"
	assert.Error(t, s.Validate())
}
