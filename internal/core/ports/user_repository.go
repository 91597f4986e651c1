package ports

import (
	"context"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
)

// UserRepository is the user store accessor consumed by the auth and score
// services. Implementations return domain taxonomy errors only.
type UserRepository interface {
	Exists(ctx context.Context, username string) (bool, error)
	// Insert fails with domain.ErrConflict when the username already exists.
	Insert(ctx context.Context, user *domain.User) error
	// Fetch fails with domain.ErrNotFound when no row matches.
	Fetch(ctx context.Context, username string) (*domain.User, error)
	// AddScore atomically adds delta to the stored score (null counts as 0)
	// and returns the new total. Same-user calls are serialized.
	AddScore(ctx context.Context, username string, delta int64) (int64, error)
	// Leaderboard returns up to limit users with a score, highest first.
	Leaderboard(ctx context.Context, limit int) ([]domain.ScoreEntry, error)
	// Delete fails with domain.ErrNotFound when no row matches.
	Delete(ctx context.Context, username string) error
	Ping(ctx context.Context) error
}

// ScoreEventRecorder persists the score audit trail.
type ScoreEventRecorder interface {
	Record(ctx context.Context, event domain.ScoreEvent) error
}
