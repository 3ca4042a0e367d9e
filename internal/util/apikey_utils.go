package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/makkenzo/entitlement-service/internal/domain/apikey"
)

const apiKeyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateRandomString(length int) (string, error) {
	max := big.NewInt(int64(len(apiKeyAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(apiKeyAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// GenerateAPIKey returns a new key in ks_<prefix>_<secret> form with its lookup prefix
// and the hash that is stored.
func GenerateAPIKey() (fullKey string, prefix string, keyHash string, err error) {
	prefix, err = generateRandomString(apikey.PrefixLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate prefix: %w", err)
	}

	secret, err := generateRandomString(apikey.SecretLength)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to generate secret: %w", err)
	}

	fullKey = fmt.Sprintf(apikey.KeyFormat, prefix, secret)
	return fullKey, prefix, HashAPIKey(fullKey), nil
}

func HashAPIKey(fullKey string) string {
	sum := sha256.Sum256([]byte(fullKey))
	return hex.EncodeToString(sum[:])
}

// ParseAPIKeyPrefix extracts the prefix of a well-formed key.
func ParseAPIKeyPrefix(fullKey string) (string, bool) {
	parts := strings.Split(fullKey, "_")
	if len(parts) != 3 || parts[0] != apikey.KeyScheme {
		return "", false
	}
	if len(parts[1]) != apikey.PrefixLength || len(parts[2]) != apikey.SecretLength {
		return "", false
	}
	return parts[1], true
}

func CompareAPIKeyHash(fullKey, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashAPIKey(fullKey)), []byte(storedHash)) == 1
}
