package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CodeAlphabet excludes the confusable glyphs O, 0, I, 1 and l.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

const CodeLength = 8

const remittancePrefix = "RMT"

// Clock is the time source used by the engines.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// NewRemittanceID returns an opaque, globally unique remittance identifier.
// It fits the 35 character ISO 20022 identification fields.
func NewRemittanceID() string {
	return remittancePrefix + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// NewSecretCode draws CodeLength characters uniformly from CodeAlphabet.
func NewSecretCode() (string, error) {
	code := make([]byte, CodeLength)
	alphabetLen := big.NewInt(int64(len(CodeAlphabet)))

	for i := range code {
		n, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", fmt.Errorf("failed to draw secret code: %w", err)
		}
		code[i] = CodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// IsSecretCode reports whether s has the length and alphabet of a secret code.
func IsSecretCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(CodeAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}

// MaskCode keeps the first two characters for log correlation.
func MaskCode(code string) string {
	if len(code) <= 2 {
		return strings.Repeat("*", len(code))
	}
	return code[:2] + strings.Repeat("*", len(code)-2)
}
