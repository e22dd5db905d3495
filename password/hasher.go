package password

import "sync"

// Hasher hashes new passwords with Argon2id and verifies both Argon2id and
// legacy bcrypt hashes. Legacy hashes always report NeedsUpgrade so callers
// can rehash after a successful verification.
type Hasher struct {
	argon *Argon2

	dummyOnce sync.Once
	dummy     string
}

// NewHasher returns a Hasher using cfg for new hashes.
func NewHasher(cfg Config) (*Hasher, error) {
	a, err := NewArgon2(cfg)
	if err != nil {
		return nil, err
	}
	return &Hasher{argon: a}, nil
}

// Hash hashes password with Argon2id.
func (h *Hasher) Hash(password string) (string, error) {
	return h.argon.Hash(password)
}

// Verify reports whether password matches encodedHash.
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		return verifyBcrypt(password, encodedHash)
	}
	return h.argon.Verify(password, encodedHash)
}

// NeedsUpgrade reports whether encodedHash should be replaced by a fresh hash.
func (h *Hasher) NeedsUpgrade(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	upgrade, err := h.argon.NeedsUpgrade(encodedHash)
	return err == nil && upgrade
}

// VerifyDummy performs a verification with the same cost as a real one
// against a fixed hash. It is used when no account matched so that response
// time does not depend on account existence.
func (h *Hasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = h.argon.Hash("dummy-password-for-timing")
	})
	if h.dummy != "" {
		_, _ = h.argon.Verify(password, h.dummy)
	}
}
