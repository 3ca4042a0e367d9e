package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "ABCD-****-****-5678", MaskKey("ABCD-1234-EFGH-5678"))
	assert.Equal(t, "abcd****", MaskKey("abcdefgh"))
	assert.Equal(t, "****", MaskKey("ab"))
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", MaskEmail("jane@example.com"))
	assert.Equal(t, "***", MaskEmail("not-an-email"))
	assert.Equal(t, "***", MaskEmail("@example.com"))
}

func TestNewZapLogger_InvalidLevelFallsBack(t *testing.T) {
	l, err := NewZapLogger("loud", "json")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(0))
	assert.False(t, l.Core().Enabled(-1))
}
