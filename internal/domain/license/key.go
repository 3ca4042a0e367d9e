package license

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

const (
	keyAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyGroups     = 4
	keyGroupWidth = 4
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func IsValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GenerateKey returns a random key in XXXX-XXXX-XXXX-XXXX form. Uniqueness is the store's job.
func GenerateKey() (string, error) {
	max := big.NewInt(int64(len(keyAlphabet)))
	var b strings.Builder
	b.Grow(keyGroups*keyGroupWidth + keyGroups - 1)

	for g := 0; g < keyGroups; g++ {
		if g > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < keyGroupWidth; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("failed to read random bytes for license key: %w", err)
			}
			b.WriteByte(keyAlphabet[n.Int64()])
		}
	}
	return b.String(), nil
}
