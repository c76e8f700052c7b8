package idgen

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSecretCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		code, err := NewSecretCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		assert.True(t, IsSecretCode(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 495)
}

func TestAlphabetExcludesConfusables(t *testing.T) {
	for _, r := range "O0I1l" {
		assert.False(t, strings.ContainsRune(CodeAlphabet, r), string(r))
	}
	assert.Len(t, CodeAlphabet, 56)
}

func TestIsSecretCode(t *testing.T) {
	assert.True(t, IsSecretCode("ABCD2345"))
	assert.False(t, IsSecretCode("ABCD234"))
	assert.False(t, IsSecretCode("ABCD23450"))
	assert.False(t, IsSecretCode("ABCD0345"))
	assert.False(t, IsSecretCode("eyJhbGci"+"OiJIUzI1NiJ9"))
	assert.False(t, IsSecretCode(""))
}

func TestNewRemittanceID(t *testing.T) {
	a, b := NewRemittanceID(), NewRemittanceID()
	assert.True(t, strings.HasPrefix(a, "RMT"))
	assert.Len(t, a, 35)
	assert.NotEqual(t, a, b)
}

func TestManualClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	assert.Equal(t, start, clock.Now())
	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())
}

func TestMaskCode(t *testing.T) {
	assert.Equal(t, "AB******", MaskCode("ABCD2345"))
	assert.Equal(t, "**", MaskCode("AB"))
}
