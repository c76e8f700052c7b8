package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/argon2"

	"github.com/ruralpay/remittance/internal/idgen"
	"github.com/ruralpay/remittance/internal/models"
)

// SecretSource yields the process-wide signing secret. It is read once, at codec construction.
type SecretSource interface {
	Secret() (string, error)
}

// StaticSecret is a SecretSource backed by configuration.
type StaticSecret string

func (s StaticSecret) Secret() (string, error) {
	if s == "" {
		return "", errors.New("token secret is not configured")
	}
	return string(s), nil
}

// Payload is what a claim token attests.
type Payload struct {
	RemittanceID string
	SecretCode   string
	ExpiresAt    time.Time
}

// claims carries the exact expiry in xat; exp is rounded up to the next
// whole second so the registered claim never ends a token early.
type claims struct {
	RemittanceID  string `json:"rid"`
	SecretCode    string `json:"code"`
	ExpiresAtNano int64  `json:"xat,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies claim tokens as compact HS256 envelopes.
type Codec struct {
	key    []byte
	parser *jwt.Parser
	clock  idgen.Clock
}

// NewCodec derives the signing key from the secret and salt. A missing secret is an error.
func NewCodec(source SecretSource, salt string, clock idgen.Clock) (*Codec, error) {
	secret, err := source.Secret()
	if err != nil {
		return nil, fmt.Errorf("failed to load token secret: %w", err)
	}
	if secret == "" {
		return nil, errors.New("token secret is empty")
	}

	key := argon2.IDKey([]byte(secret), []byte(salt), 3, 32*1024, 4, 32)

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(clock.Now),
	)

	return &Codec{key: key, parser: parser, clock: clock}, nil
}

// Sign returns the compact token for p.
func (c *Codec) Sign(p Payload) (string, error) {
	if p.RemittanceID == "" || p.SecretCode == "" || p.ExpiresAt.IsZero() {
		return "", models.NewError(models.KindValidation, "token payload is incomplete")
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RemittanceID:  p.RemittanceID,
		SecretCode:    p.SecretCode,
		ExpiresAtNano: p.ExpiresAt.UnixNano(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt.Truncate(time.Second).Add(time.Second)),
		},
	})

	signed, err := tok.SignedString(c.key)
	if err != nil {
		return "", models.WrapError(models.KindInternal, err, "failed to sign token")
	}
	return signed, nil
}

// Verify checks the signature and expiry and returns the attested payload.
// A token is valid up to and including its expiry instant.
func (c *Codec) Verify(raw string) (Payload, error) {
	var cl claims
	_, err := c.parser.ParseWithClaims(raw, &cl, func(*jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return Payload{}, classify(err)
	}

	if cl.RemittanceID == "" || cl.SecretCode == "" {
		return Payload{}, models.NewError(models.KindTokenMalformed, "token is missing required claims")
	}

	expiresAt := cl.ExpiresAt.Time
	if cl.ExpiresAtNano != 0 {
		expiresAt = time.Unix(0, cl.ExpiresAtNano).UTC()
	}
	if c.clock.Now().After(expiresAt) {
		return Payload{}, models.NewError(models.KindTokenExpired, "token expired at %s", expiresAt.Format(time.RFC3339Nano))
	}

	return Payload{
		RemittanceID: cl.RemittanceID,
		SecretCode:   cl.SecretCode,
		ExpiresAt:    expiresAt,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return models.WrapError(models.KindTokenMalformed, err, "malformed token")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return models.WrapError(models.KindTokenInvalid, err, "invalid token signature")
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.WrapError(models.KindTokenExpired, err, "token expired")
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return models.WrapError(models.KindTokenMalformed, err, "token is missing expiry")
	default:
		return models.WrapError(models.KindTokenInvalid, err, "invalid token")
	}
}
