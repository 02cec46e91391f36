// Package token issues and validates the HS256 bearer tokens carried in the
// Authorization header.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/flightontime/flightontime/internal/core"
)

// MinSecretLength is the minimum HMAC-SHA256 key size in bytes.
const MinSecretLength = 32

// Issuer mints signed tokens. The login flow consumes it.
type Issuer interface {
	Issue(p core.Principal, ttl time.Duration) (string, error)
}

// Validator verifies tokens. It never panics and reports failures through
// the Result rather than an error.
type Validator interface {
	Validate(raw string) Result
}

// Config holds the signing material.
type Config struct {
	Secret []byte
}

// Option customizes a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for iat, exp and expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(c *Codec) {
		if clock != nil {
			c.now = clock
		}
	}
}

// Codec signs and verifies tokens with a process-wide secret.
// It holds no mutable state and is safe for concurrent use.
type Codec struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

type claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// NewCodec validates cfg and returns a codec.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes, got %d", MinSecretLength, len(cfg.Secret))
	}

	secret := make([]byte, len(cfg.Secret))
	copy(secret, cfg.Secret)

	c := &Codec{
		secret: secret,
		now:    time.Now,
		// Expiry is checked against the injected clock below, not by the parser.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs a token for p valid for ttl from now.
func (c *Codec) Issue(p core.Principal, ttl time.Duration) (string, error) {
	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		return "", errors.New("token subject is required")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses raw, checks the signature and expiry, and extracts the
// principal.
func (c *Codec) Validate(raw string) Result {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Invalid(ReasonMalformed)
	}

	// MapClaims accepts any JSON object, so the signature is verified before
	// claim types are looked at.
	parsed := jwt.MapClaims{}
	_, err := c.parser.ParseWithClaims(raw, parsed, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return Invalid(classify(err))
	}

	p, ok := principalFrom(parsed)
	if !ok {
		return Invalid(ReasonMalformed)
	}
	if !p.ExpiresAt.After(c.now()) {
		return Invalid(ReasonExpired)
	}
	return Valid(p)
}

// principalFrom reads sub, role and exp from verified claims. Missing or
// mistyped claims report false.
func principalFrom(mc jwt.MapClaims) (core.Principal, bool) {
	subject, err := mc.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return core.Principal{}, false
	}
	exp, err := mc.GetExpirationTime()
	if err != nil || exp == nil {
		return core.Principal{}, false
	}

	role, isString := mc["role"].(string)
	if _, present := mc["role"]; present && !isString {
		return core.Principal{}, false
	}

	return core.Principal{
		Subject:   subject,
		Role:      role,
		ExpiresAt: exp.Time,
	}, true
}

func classify(err error) Reason {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return ReasonSignatureMismatch
	default:
		return ReasonMalformed
	}
}
