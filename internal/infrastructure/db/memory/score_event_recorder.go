package memory

import (
	"context"
	"sync"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

// ScoreEventRecorder keeps the score audit trail in a slice.
type ScoreEventRecorder struct {
	mu     sync.Mutex
	events []domain.ScoreEvent
}

var _ ports.ScoreEventRecorder = (*ScoreEventRecorder)(nil)

func NewScoreEventRecorder() *ScoreEventRecorder {
	return &ScoreEventRecorder{}
}

func (r *ScoreEventRecorder) Record(_ context.Context, event domain.ScoreEvent) error {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (r *ScoreEventRecorder) Events() []domain.ScoreEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ScoreEvent, len(r.events))
	copy(out, r.events)
	return out
}
