package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAPIKey(t *testing.T) {
	fullKey, prefix, hash, err := GenerateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(fullKey, "ks_"+prefix+"_"))
	assert.Len(t, hash, 64)
	assert.True(t, CompareAPIKeyHash(fullKey, hash))
	assert.False(t, CompareAPIKeyHash(fullKey+"x", hash))

	parsed, ok := ParseAPIKeyPrefix(fullKey)
	require.True(t, ok)
	assert.Equal(t, prefix, parsed)
}

func TestParseAPIKeyPrefix_RejectsMalformed(t *testing.T) {
	for _, key := range []string{"", "ks_abc", "xx_abcdefgh_" + strings.Repeat("a", 32), "ks_abcdefgh_short"} {
		_, ok := ParseAPIKeyPrefix(key)
		assert.False(t, ok, key)
	}
}
