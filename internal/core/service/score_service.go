package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
	"github.com/quizbuster/quizbuster-api/internal/pkg/clock"
	"github.com/quizbuster/quizbuster-api/internal/pkg/metrics"
)

const (
	defaultLeaderboardSize = 10
	maxLeaderboardSize     = 100
)

type ScoreService struct {
	repo   ports.UserRepository
	replay ports.ReplayStore
	audit  ports.ScoreAuditor
	clock  clock.Clock
	log    zerolog.Logger
}

var _ ports.ScoreService = (*ScoreService)(nil)

// NewScoreService returns a ScoreService. replay and audit may be nil.
func NewScoreService(
	repo ports.UserRepository,
	replay ports.ReplayStore,
	audit ports.ScoreAuditor,
	clk clock.Clock,
	log zerolog.Logger,
) *ScoreService {
	if clk == nil {
		clk = clock.New()
	}
	return &ScoreService{repo: repo, replay: replay, audit: audit, clock: clk, log: log}
}

// AddPoints adds in.Delta to the user's score and returns the new total.
// Negative deltas are accepted.
func (s *ScoreService) AddPoints(ctx context.Context, in ports.ScoreUpdateInput) (*ports.ScoreUpdateResult, error) {
	if strings.TrimSpace(in.Username) == "" {
		return nil, fmt.Errorf("add points: %w: username is required", domain.ErrInvalidInput)
	}

	if in.IdempotencyKey == "" || s.replay == nil {
		total, err := s.apply(ctx, in.Username, in.Delta)
		if err != nil {
			return nil, err
		}
		return &ports.ScoreUpdateResult{Total: total}, nil
	}

	key := in.Username + ":" + in.IdempotencyKey

	// 1. Claim the key. An unreachable replay store does not block scoring.
	claim, err := s.replay.Claim(ctx, key)
	switch {
	case err != nil:
		s.log.Warn().Err(err).Str("username", in.Username).Msg("idempotency claim failed, applying anyway")
	case claim.Completed:
		metrics.ScoreReplaysTotal.WithLabelValues("hit").Inc()
		s.log.Debug().Str("username", in.Username).Msg("score update replayed")
		return &ports.ScoreUpdateResult{Total: claim.Total, Replayed: true}, nil
	case !claim.Claimed:
		metrics.ScoreReplaysTotal.WithLabelValues("in_flight").Inc()
		return nil, domain.ErrRequestInFlight
	default:
		metrics.ScoreReplaysTotal.WithLabelValues("miss").Inc()
	}

	// 2. Apply the delta.
	total, applyErr := s.apply(ctx, in.Username, in.Delta)
	if applyErr != nil {
		if err == nil {
			if relErr := s.replay.Release(ctx, key); relErr != nil {
				s.log.Warn().Err(relErr).Str("username", in.Username).Msg("failed to release idempotency key")
			}
		}
		return nil, applyErr
	}

	// 3. Remember the result for replays.
	if err == nil {
		if cErr := s.replay.Complete(ctx, key, total); cErr != nil {
			s.log.Warn().Err(cErr).Str("username", in.Username).Msg("failed to store idempotent result")
		}
	}
	return &ports.ScoreUpdateResult{Total: total}, nil
}

func (s *ScoreService) apply(ctx context.Context, username string, delta int64) (int64, error) {
	total, err := s.repo.AddScore(ctx, username, delta)
	if err != nil {
		metrics.ScoreUpdatesTotal.WithLabelValues(errorLabel(err)).Inc()
		return 0, fmt.Errorf("add points: %w", err)
	}
	metrics.ScoreUpdatesTotal.WithLabelValues("applied").Inc()

	if s.audit != nil {
		s.audit.Enqueue(domain.ScoreEvent{
			Username:  username,
			Delta:     delta,
			Total:     total,
			Timestamp: s.clock.Now(),
		})
	}

	s.log.Info().
		Str("username", username).
		Int64("delta", delta).
		Int64("total", total).
		Msg("score updated")
	return total, nil
}

// Leaderboard returns the top scores. limit is clamped to [1, 100] with 10
// used for non-positive values.
func (s *ScoreService) Leaderboard(ctx context.Context, limit int) ([]domain.ScoreEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardSize
	}
	if limit > maxLeaderboardSize {
		limit = maxLeaderboardSize
	}
	entries, err := s.repo.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return entries, nil
}

func errorLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}
