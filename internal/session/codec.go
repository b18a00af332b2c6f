package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"

	"seep/internal/types"
)

const (
	tokenIssuer = "seep"
	hkdfInfo    = "seep session cookie v1"
	signingLen  = 32
)

// ErrInvalidToken is returned for any cookie value that does not decode to a
// session id signed with the current key.
var ErrInvalidToken = errors.New("session: invalid token")

// Codec signs session ids into cookie values.
type Codec struct {
	key   []byte
	clock types.Clock
}

// NewCodec derives the signing key from secret.
func NewCodec(secret types.SecretString, clock types.Clock) (*Codec, error) {
	if secret.IsZero() {
		return nil, errors.New("session: empty secret")
	}
	if clock == nil {
		clock = types.RealClock{}
	}

	key := make([]byte, signingLen)
	r := hkdf.New(sha256.New, []byte(secret.Unmask()), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("session: derive key: %w", err)
	}
	return &Codec{key: key, clock: clock}, nil
}

// Encode returns a signed token naming id.
func (c *Codec) Encode(id string) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:   tokenIssuer,
		ID:       id,
		IssuedAt: jwt.NewNumericDate(c.clock.Now()),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
}

// Decode verifies token and returns the session id it names.
func (c *Codec) Decode(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(func() time.Time { return c.clock.Now() }),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := uuid.Parse(claims.ID); err != nil {
		return "", fmt.Errorf("%w: bad session id", ErrInvalidToken)
	}
	return claims.ID, nil
}
