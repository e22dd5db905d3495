package internal

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

const alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewAlphanumericCode returns a uniformly random code of length characters
// drawn from ASCII letters and digits.
func NewAlphanumericCode(length int) (string, error) {
	return randomString(length, alphanumeric)
}

func randomString(length int, alphabet string) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}
