package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// MinPasswordBytes is the shortest password Hash accepts.
	MinPasswordBytes = 10
	// DefaultMaxPasswordBytes bounds hashing cost when Config.MaxPasswordBytes is unset.
	DefaultMaxPasswordBytes = 1024
)

var (
	// ErrPolicy is returned when a password is outside the accepted length range.
	ErrPolicy = errors.New("password: does not satisfy policy")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("password: malformed hash")
)

// Config holds the Argon2id cost parameters used for new hashes.
type Config struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
}

// DefaultConfig returns the production cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:           64 * 1024,
		Time:             3,
		Parallelism:      2,
		SaltLength:       16,
		KeyLength:        32,
		MaxPasswordBytes: DefaultMaxPasswordBytes,
	}
}

// Argon2 hashes and verifies Argon2id PHC strings.
type Argon2 struct {
	config Config
}

// NewArgon2 validates cfg and returns an Argon2 hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MaxPasswordBytes == 0 {
		cfg.MaxPasswordBytes = DefaultMaxPasswordBytes
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Argon2{config: cfg}, nil
}

// Hash returns the PHC encoding of password under fresh random salt.
// Passwords are hashed as raw bytes with no Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < MinPasswordBytes {
		return "", fmt.Errorf("%w: must be at least %d bytes", ErrPolicy, MinPasswordBytes)
	}
	if err := a.checkMax(password); err != nil {
		return "", err
	}

	h := phc{
		memory:      a.config.Memory,
		time:        a.config.Time,
		parallelism: a.config.Parallelism,
		salt:        make([]byte, a.config.SaltLength),
	}
	if _, err := io.ReadFull(rand.Reader, h.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	h.key = h.derive(password, a.config.KeyLength)
	return h.String(), nil
}

// Verify reports whether password matches encodedHash in constant time.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if err := a.checkMax(password); err != nil {
		return false, err
	}
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	got := h.derive(password, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current configuration.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	h, err := decodePHC(encodedHash)
	if err != nil {
		return false, err
	}
	weaker := h.memory < a.config.Memory ||
		h.time < a.config.Time ||
		h.parallelism < a.config.Parallelism
	return weaker || uint32(len(h.key)) != a.config.KeyLength, nil
}

func (a *Argon2) checkMax(password string) error {
	if len(password) > a.config.MaxPasswordBytes {
		return fmt.Errorf("%w: must be at most %d bytes", ErrPolicy, a.config.MaxPasswordBytes)
	}
	return nil
}

// phc is a decoded "$argon2id$v=19$m=<kb>,t=<passes>,p=<lanes>$<salt>$<key>"
// string with standard padded base64 fields.
type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func (h *phc) derive(password string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(password), h.salt, h.time, h.memory, h.parallelism, keyLen)
}

func (h *phc) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "$%s$v=%d$m=%d,t=%d,p=%d$", algorithmID, argon2.Version, h.memory, h.time, h.parallelism)
	b.WriteString(base64.StdEncoding.EncodeToString(h.salt))
	b.WriteByte('$')
	b.WriteString(base64.StdEncoding.EncodeToString(h.key))
	return b.String()
}

func decodePHC(encoded string) (*phc, error) {
	fields := strings.Split(encoded, "$")
	if len(fields) != 6 || fields[0] != "" || fields[1] != algorithmID {
		return nil, fmt.Errorf("%w: not an %s string", ErrMalformedHash, algorithmID)
	}

	raw, ok := strings.CutPrefix(fields[2], "v=")
	if !ok {
		return nil, fmt.Errorf("%w: missing version", ErrMalformedHash)
	}
	if v, err := strconv.Atoi(raw); err != nil || v != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrMalformedHash, raw)
	}

	h := &phc{}
	if err := h.decodeParams(fields[3]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}

	var err error
	if h.salt, err = base64.StdEncoding.DecodeString(fields[4]); err != nil || len(h.salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	if h.key, err = base64.StdEncoding.DecodeString(fields[5]); err != nil || len(h.key) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}
	return h, nil
}

// decodeParams reads exactly one each of m, t and p, in any order.
func (h *phc) decodeParams(field string) error {
	seen := make(map[string]bool, 3)
	for _, pair := range strings.Split(field, ",") {
		name, raw, ok := strings.Cut(pair, "=")
		if !ok || seen[name] {
			return fmt.Errorf("parameter %q", pair)
		}
		seen[name] = true

		bits := 32
		if name == "p" {
			bits = 8
		}
		v, err := strconv.ParseUint(raw, 10, bits)
		if err != nil {
			return fmt.Errorf("parameter %q", pair)
		}

		switch name {
		case "m":
			if v < uint64(minMemoryKB) {
				return fmt.Errorf("memory %d below %d", v, minMemoryKB)
			}
			h.memory = uint32(v)
		case "t":
			if v < uint64(minTimeCost) {
				return errors.New("zero time cost")
			}
			h.time = uint32(v)
		case "p":
			if v < uint64(minParallelism) {
				return errors.New("zero parallelism")
			}
			h.parallelism = uint8(v)
		default:
			return fmt.Errorf("unknown parameter %q", name)
		}
	}
	if len(seen) != 3 {
		return errors.New("missing parameters")
	}
	return nil
}

func validateConfig(cfg Config) error {
	switch {
	case cfg.Memory < minMemoryKB:
		return fmt.Errorf("password: memory %d KB below %d", cfg.Memory, minMemoryKB)
	case cfg.Time < minTimeCost:
		return errors.New("password: time cost must be positive")
	case cfg.Parallelism < minParallelism:
		return errors.New("password: parallelism must be positive")
	case cfg.SaltLength < minSaltLength:
		return fmt.Errorf("password: salt length %d below %d", cfg.SaltLength, minSaltLength)
	case cfg.KeyLength < minKeyLength:
		return fmt.Errorf("password: key length %d below %d", cfg.KeyLength, minKeyLength)
	case cfg.MaxPasswordBytes < MinPasswordBytes:
		return fmt.Errorf("password: max length %d below minimum %d", cfg.MaxPasswordBytes, MinPasswordBytes)
	}
	return nil
}
