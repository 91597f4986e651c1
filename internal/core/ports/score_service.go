package ports

import (
	"context"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
)

// ScoreUpdateInput is the DTO passed from the transport layer to ScoreService.
type ScoreUpdateInput struct {
	Username string
	Delta    int64
	// IdempotencyKey is optional; an empty key disables replay protection.
	IdempotencyKey string
}

// ScoreUpdateResult is returned by ScoreService.AddPoints.
type ScoreUpdateResult struct {
	Total int64
	// Replayed is true when the key matched an earlier, completed update.
	Replayed bool
}

// ScoreService defines the scoring use cases.
type ScoreService interface {
	AddPoints(ctx context.Context, input ScoreUpdateInput) (*ScoreUpdateResult, error)
	Leaderboard(ctx context.Context, limit int) ([]domain.ScoreEntry, error)
}

// UserService defines account administration.
type UserService interface {
	Delete(ctx context.Context, username string) error
}

// Claim describes the state of an idempotency key after ReplayStore.Claim.
type Claim struct {
	// Claimed is true when this caller owns the key and must apply the update.
	Claimed bool
	// Completed is true when an earlier request finished; Total holds its result.
	Completed bool
	Total     int64
}

// ReplayStore remembers the outcome of idempotent score updates.
type ReplayStore interface {
	Claim(ctx context.Context, key string) (Claim, error)
	Complete(ctx context.Context, key string, total int64) error
	Release(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// ScoreAuditor receives applied score deltas for asynchronous recording.
type ScoreAuditor interface {
	Enqueue(event domain.ScoreEvent)
}
