package jwt

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind identifies the purpose of a token. Every token carries exactly one kind.
type Kind string

const (
	KindAccess        Kind = "access"
	KindRefresh       Kind = "refresh"
	KindResetPassword Kind = "reset_password"
)

// Valid reports whether k is one of the known token kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAccess, KindRefresh, KindResetPassword:
		return true
	}
	return false
}

// Claim names on the wire.
const (
	ClaimKind      = "token_type"
	ClaimIssuedAt  = "iat"
	ClaimExpiresAt = "exp"
	ClaimID        = "jti"
	ClaimIssuer    = "iss"
	ClaimAudience  = "aud"
	ClaimUserID    = "user_id"
	ClaimEmail     = "email"
)

// SigningMethod selects the signature algorithm of a Codec.
type SigningMethod string

const (
	MethodHS256   SigningMethod = "hs256"
	MethodEd25519 SigningMethod = "ed25519"
)

var (
	// ErrInvalidOrExpired is returned for every signature, format, claim or expiry failure.
	ErrInvalidOrExpired = errors.New("jwt: token is invalid or expired")
	// ErrInvalidKind is returned by VerifyKind when the decoded kind is not allowed.
	ErrInvalidKind = errors.New("jwt: token kind not allowed")
	// ErrEncoding is returned by Issue when the signer is misconfigured.
	ErrEncoding = errors.New("jwt: token encoding failed")
)

// Config configures a Codec.
//
// For HS256 PrivateKey is the shared secret. For Ed25519 PrivateKey signs and
// PublicKey (or VerifyKeys) verifies. VerifyKeys, when set, selects the
// verification key by the token's kid header and allows key rotation.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Codec signs and verifies tokens. It is stateless and safe for concurrent use.
type Codec struct {
	config Config
	parser *jwt.Parser
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodHS256
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 16 {
			return nil, errors.New("hs256 requires a secret of at least 16 bytes")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	for kid := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	c := &Codec{config: cfg}
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	c.parser = jwt.NewParser(options...)
	return c, nil
}

// Issue signs claims as a token of the given kind valid for ttl.
//
// The reserved claims token_type, iat, exp and jti are always stamped by the
// codec and override any caller-provided values.
func (c *Codec) Issue(kind Kind, claims map[string]any, ttl time.Duration) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: unknown kind %q", ErrEncoding, kind)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: non-positive ttl", ErrEncoding)
	}

	now := c.config.Now()
	out := make(jwt.MapClaims, len(claims)+6)
	for k, v := range claims {
		out[k] = v
	}
	out[ClaimKind] = string(kind)
	out[ClaimIssuedAt] = jwt.NewNumericDate(now)
	out[ClaimExpiresAt] = jwt.NewNumericDate(now.Add(ttl))
	out[ClaimID] = newJTI()
	if c.config.Issuer != "" {
		out[ClaimIssuer] = c.config.Issuer
	}
	if c.config.Audience != "" {
		out[ClaimAudience] = c.config.Audience
	}

	token := jwt.NewWithClaims(c.method(), out)
	if c.config.KeyID != "" {
		token.Header["kid"] = c.config.KeyID
	}
	key, err := c.signKey()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return signed, nil
}

// Verify checks the signature and the presence and validity of exp, iat, jti
// and token_type. Every failure is reported as ErrInvalidOrExpired.
func (c *Codec) Verify(token string) (Claims, error) {
	parsed := jwt.MapClaims{}
	tok, err := c.parser.ParseWithClaims(token, parsed, c.keyFunc)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidOrExpired
	}

	iat, err := parsed.GetIssuedAt()
	if err != nil || iat == nil {
		return nil, ErrInvalidOrExpired
	}
	if iat.Time.After(c.config.Now().Add(c.config.MaxFutureIAT)) {
		return nil, ErrInvalidOrExpired
	}
	if jti, _ := parsed[ClaimID].(string); jti == "" {
		return nil, ErrInvalidOrExpired
	}
	if kind, _ := parsed[ClaimKind].(string); kind == "" {
		return nil, ErrInvalidOrExpired
	}

	return Claims(parsed), nil
}

// VerifyKind verifies token and additionally requires its kind to be one of
// allowed. Access tokens must carry user_id and reset-password tokens must
// carry email; a missing kind-specific claim is ErrInvalidOrExpired.
func (c *Codec) VerifyKind(token string, allowed ...Kind) (Claims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}

	kind := claims.Kind()
	permitted := false
	for _, k := range allowed {
		if k == kind {
			permitted = true
			break
		}
	}
	if !permitted {
		return nil, ErrInvalidKind
	}

	switch kind {
	case KindAccess:
		if claims.UserID() == "" {
			return nil, ErrInvalidOrExpired
		}
	case KindResetPassword:
		if claims.Email() == "" {
			return nil, ErrInvalidOrExpired
		}
	}
	return claims, nil
}

func newJTI() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}
