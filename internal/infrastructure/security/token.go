package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

const defaultTokenTTL = 30 * time.Minute

// TokenConfig is fixed at startup and never mutated afterwards.
type TokenConfig struct {
	Secret    string
	Algorithm string
	TTL       time.Duration
}

// JWTCodec implements ports.TokenCodec with HMAC-signed JWTs.
type JWTCodec struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
}

var _ ports.TokenCodec = (*JWTCodec)(nil)

// NewJWTCodec validates cfg and builds a codec. Only HMAC algorithms are
// accepted.
func NewJWTCodec(cfg TokenConfig) (*JWTCodec, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token codec: empty signing secret")
	}
	alg := cfg.Algorithm
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := jwt.GetSigningMethod(alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("token codec: unsupported signing algorithm %q", alg)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &JWTCodec{secret: []byte(cfg.Secret), method: method, ttl: ttl}, nil
}

// Issue signs a token for subject. The returned expiry is the exp claim as
// encoded, truncated to whole seconds.
func (c *JWTCodec) Issue(subject string, now time.Time) (string, time.Time, error) {
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks the signature before any claim, so an altered token is
// always Malformed even when its expiry has also passed.
func (c *JWTCodec) Verify(token string, now time.Time) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", &domain.TokenError{Kind: domain.TokenExpired, Err: err}
	default:
		return "", &domain.TokenError{Kind: domain.TokenMalformed, Err: err}
	}

	if claims.Subject == "" {
		return "", &domain.TokenError{Kind: domain.TokenMissingSubject}
	}
	return claims.Subject, nil
}
