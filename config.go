package authcore

import (
	"errors"
	"net/url"
	"strings"
	"time"
)

// Config holds every tunable of an Engine. Start from DefaultConfig and
// override fields; Builder.Build validates the result.
type Config struct {
	JWT          JWTConfig
	MFA          MFAConfig
	Password     PasswordConfig
	Revocation   RevocationConfig
	Notification NotificationConfig
	Links        LinkConfig
	Metrics      MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token signing and lifetimes.
type JWTConfig struct {
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	ResetPasswordTTL time.Duration
	SigningMethod    string // "hs256" (default) or "ed25519"
	PrivateKey       []byte
	PublicKey        []byte
	KeyID            string
	VerifyKeys       map[string][]byte
	Issuer           string
	Audience         string
	Leeway           time.Duration
	MaxFutureIAT     time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig configures the one-time-code challenge.
type MFAConfig struct {
	CodeLength           int
	CodeTTL              time.Duration
	MaxIncorrectAttempts int
	MaxResends           int
	LockoutDuration      time.Duration
	// AutoUnblock clears the blocked flag at login once BlockedUntil has
	// passed. When false a lockout stays until an operator clears it.
	AutoUnblock bool
	// FirstLoginResetLink adds a reset-password link to the code email of a
	// principal that has never logged in.
	FirstLoginResetLink bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig configures Argon2id hashing.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
}

/*
====================================
REVOCATION CONFIG
====================================
*/

// RevocationConfig configures the revocation cache.
type RevocationConfig struct {
	CachePrefix string
}

/*
====================================
NOTIFICATION CONFIG
====================================
*/

// NotificationConfig configures the email dispatcher.
type NotificationConfig struct {
	BufferSize  int
	DropIfFull  bool
	SendTimeout time.Duration
}

// LinkConfig configures links embedded in emails.
type LinkConfig struct {
	// BaseURL is the absolute public URL of the API host.
	BaseURL   string
	APIPrefix string
	// ResetPasswordPath is appended to BaseURL/APIPrefix and receives the
	// token as the "token" query parameter.
	ResetPasswordPath string
}

// MetricsConfig toggles in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       12 * time.Hour,
			ResetPasswordTTL: 24 * time.Hour,
			SigningMethod:    "hs256",
			MaxFutureIAT:     30 * time.Second,
		},
		MFA: MFAConfig{
			CodeLength:           6,
			CodeTTL:              10 * time.Minute,
			MaxIncorrectAttempts: 5,
			MaxResends:           3,
			LockoutDuration:      10 * time.Minute,
			AutoUnblock:          false,
			FirstLoginResetLink:  true,
		},
		Password: PasswordConfig{
			Memory:           65536,
			Time:             3,
			Parallelism:      2,
			SaltLength:       16,
			KeyLength:        32,
			MaxPasswordBytes: 1024,
			UpgradeOnLogin:   true,
		},
		Revocation: RevocationConfig{
			CachePrefix: "blacklist",
		},
		Notification: NotificationConfig{
			BufferSize:  1024,
			DropIfFull:  true,
			SendTimeout: 30 * time.Second,
		},
		Links: LinkConfig{
			BaseURL:           "http://localhost:8000",
			APIPrefix:         "/api/v1",
			ResetPasswordPath: "auth/set-password/",
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting of c.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.ResetPasswordTTL <= 0 {
		return errors.New("JWT ResetPasswordTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
		if len(c.JWT.PublicKey) == 0 && len(c.JWT.VerifyKeys) == 0 {
			return errors.New("ed25519 requires PublicKey or VerifyKeys")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 || c.JWT.MaxFutureIAT > 10*time.Minute {
		return errors.New("JWT MaxFutureIAT must be between 0 and 10m")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// MFA
	if c.MFA.CodeLength < 4 || c.MFA.CodeLength > 32 {
		return errors.New("MFA CodeLength must be between 4 and 32")
	}
	if c.MFA.CodeTTL <= 0 {
		return errors.New("MFA CodeTTL must be > 0")
	}
	if c.MFA.MaxIncorrectAttempts <= 0 {
		return errors.New("MFA MaxIncorrectAttempts must be > 0")
	}
	if c.MFA.MaxResends < 0 {
		return errors.New("MFA MaxResends must be >= 0")
	}
	if c.MFA.LockoutDuration <= 0 {
		return errors.New("MFA LockoutDuration must be > 0")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KiB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Revocation
	if strings.TrimSpace(c.Revocation.CachePrefix) == "" {
		return errors.New("Revocation CachePrefix must not be empty")
	}
	if strings.ContainsAny(c.Revocation.CachePrefix, "*?[]") {
		return errors.New("Revocation CachePrefix must not contain glob characters")
	}

	// Notification
	if c.Notification.BufferSize <= 0 {
		return errors.New("Notification BufferSize must be > 0")
	}
	if c.Notification.SendTimeout < 0 {
		return errors.New("Notification SendTimeout must be >= 0")
	}

	// Links
	u, err := url.Parse(c.Links.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("Links BaseURL must be an absolute http(s) URL")
	}

	return nil
}
