package postgres

import (
	"context"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

// ScoreEventRecorder appends to the score_events table.
type ScoreEventRecorder struct {
	pool poolIface
}

var _ ports.ScoreEventRecorder = (*ScoreEventRecorder)(nil)

func NewScoreEventRecorder(pool poolIface) *ScoreEventRecorder {
	return &ScoreEventRecorder{pool: pool}
}

// Record fails with domain.ErrNotFound when the user was deleted before the
// event was written.
func (r *ScoreEventRecorder) Record(ctx context.Context, event domain.ScoreEvent) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO score_events (username, delta, total, created_at)
		VALUES ($1, $2, $3, $4)
	`, event.Username, event.Delta, event.Total, event.Timestamp)
	if err != nil {
		return wrap("SCORE_EVENT_INSERT_FAILED", err, "username", event.Username)
	}
	return nil
}
