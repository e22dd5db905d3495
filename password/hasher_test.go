package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	h, err := NewHasher(Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewHasher error: %v", err)
	}
	return h
}

func TestHasherVerifiesLegacyBcrypt(t *testing.T) {
	h := newTestHasher(t)

	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	ok, err := h.Verify("legacy-password", string(legacy))
	if err != nil || !ok {
		t.Fatalf("expected legacy hash to verify, ok=%v err=%v", ok, err)
	}
	ok, err = h.Verify("other-password", string(legacy))
	if err != nil || ok {
		t.Fatalf("expected mismatch without error, ok=%v err=%v", ok, err)
	}
	if !h.NeedsUpgrade(string(legacy)) {
		t.Fatal("expected bcrypt hash to need upgrade")
	}
}

func TestHasherHashesWithArgon2(t *testing.T) {
	h := newTestHasher(t)

	hash, err := h.Hash("fresh-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %s", hash)
	}
	if h.NeedsUpgrade(hash) {
		t.Fatal("fresh hash must not need upgrade")
	}
	ok, err := h.Verify("fresh-password", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification, ok=%v err=%v", ok, err)
	}
}

func TestHasherBcryptLongPasswordDoesNotMatch(t *testing.T) {
	h := newTestHasher(t)
	base := strings.Repeat("p", 72)
	legacy, err := bcrypt.GenerateFromPassword([]byte(base), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	if ok, _ := h.Verify(base+"suffix", string(legacy)); ok {
		t.Fatal("expected password beyond 72 bytes not to match")
	}
}

func TestHasherVerifyDummyDoesNotPanic(t *testing.T) {
	h := newTestHasher(t)
	h.VerifyDummy("anything")
	h.VerifyDummy("")
}

func TestHasherNeedsUpgrade(t *testing.T) {
	h := newTestHasher(t)

	fresh, err := h.Hash("upgrade-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	weak := cheapConfig()
	weak.KeyLength = 16
	weaker, err := mustArgon2(t, weak).Hash("upgrade-password")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	legacy := map[string][]byte{}
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		b, err := bcrypt.GenerateFromPassword([]byte("upgrade-password"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("bcrypt: %v", err)
		}
		legacy[prefix] = append([]byte(prefix), b[4:]...)
	}

	cases := []struct {
		name    string
		encoded string
		want    bool
	}{
		{"current argon2id", fresh, false},
		{"weaker argon2id", weaker, true},
		{"bcrypt 2a", string(legacy["$2a$"]), true},
		{"bcrypt 2b", string(legacy["$2b$"]), true},
		{"bcrypt 2y", string(legacy["$2y$"]), true},
		{"unparseable", "plaintext", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := h.NeedsUpgrade(tc.encoded); got != tc.want {
				t.Fatalf("NeedsUpgrade = %v, want %v", got, tc.want)
			}
			if tc.encoded == "plaintext" {
				return
			}
			if ok, err := h.Verify("upgrade-password", tc.encoded); err != nil || !ok {
				t.Fatalf("expected verification, ok=%v err=%v", ok, err)
			}
		})
	}
}
