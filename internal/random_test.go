package internal

import (
	"strings"
	"testing"
)

func TestNewAlphanumericCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := NewAlphanumericCode(6)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected length 6, got %q", code)
		}
		for _, r := range code {
			if !strings.ContainsRune(alphanumeric, r) {
				t.Fatalf("unexpected rune %q in %q", r, code)
			}
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 190 {
		t.Fatalf("expected codes to be random, got %d distinct of 200", len(seen))
	}
}

func TestNewAlphanumericCodeRejectsBadLength(t *testing.T) {
	if _, err := NewAlphanumericCode(0); err == nil {
		t.Fatal("expected zero length to fail")
	}
}
