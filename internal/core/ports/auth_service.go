package ports

import (
	"context"
	"time"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
)

// PasswordHasher hashes and verifies user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify returns (false, nil) on mismatch and a non-nil error only for a
	// malformed hash.
	Verify(password, hash string) (bool, error)
}

// TokenCodec issues and verifies signed session tokens. Verify failures are
// always *domain.TokenError.
type TokenCodec interface {
	Issue(subject string, now time.Time) (token string, expiresAt time.Time, err error)
	Verify(token string, now time.Time) (subject string, err error)
}

type AuthService interface {
	Register(ctx context.Context, username, password string) (*domain.Token, error)
	Login(ctx context.Context, username, password string) (*domain.Token, error)
	VerifyToken(ctx context.Context, token string) (*domain.User, error)
}
