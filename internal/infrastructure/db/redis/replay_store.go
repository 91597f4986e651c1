package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

const (
	defaultReplayTTL = 24 * time.Hour
	// pendingTTL bounds how long a crashed request can hold a key.
	pendingTTL   = time.Minute
	pendingValue = "pending"

	claimAttempts = 2
)

// ReplayStore records the outcome of idempotent score updates.
// Key format: idem:score:<username>:<idempotency_key>
// The value is "pending" while the update runs, then the resulting total.
type ReplayStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ports.ReplayStore = (*ReplayStore)(nil)

// NewReplayStore creates a ReplayStore keeping completed results for ttl.
func NewReplayStore(client *redis.Client, ttl time.Duration) *ReplayStore {
	if ttl <= 0 {
		ttl = defaultReplayTTL
	}
	return &ReplayStore{client: client, ttl: ttl}
}

// Claim takes ownership of key when nobody holds it. Otherwise it reports
// whether the earlier request already completed. A key released between
// SETNX and GET is claimed again once.
func (s *ReplayStore) Claim(ctx context.Context, key string) (ports.Claim, error) {
	for attempt := 1; attempt <= claimAttempts; attempt++ {
		ok, err := s.client.SetNX(ctx, s.key(key), pendingValue, pendingTTL).Result()
		if err != nil {
			return ports.Claim{}, fmt.Errorf("replay claim: %w", err)
		}
		if ok {
			return ports.Claim{Claimed: true}, nil
		}

		val, err := s.client.Get(ctx, s.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return ports.Claim{}, fmt.Errorf("replay lookup: %w", err)
		}
		if val == pendingValue {
			return ports.Claim{}, nil
		}

		total, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return ports.Claim{}, fmt.Errorf("replay decode %q: %w", val, err)
		}
		return ports.Claim{Completed: true, Total: total}, nil
	}
	// The key keeps changing hands; report it as held.
	return ports.Claim{}, nil
}

// Complete stores the resulting total for the replay window.
func (s *ReplayStore) Complete(ctx context.Context, key string, total int64) error {
	if err := s.client.Set(ctx, s.key(key), strconv.FormatInt(total, 10), s.ttl).Err(); err != nil {
		return fmt.Errorf("replay complete: %w", err)
	}
	return nil
}

// Release drops a claim so the request can be retried.
func (s *ReplayStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("replay release: %w", err)
	}
	return nil
}

func (s *ReplayStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *ReplayStore) key(key string) string {
	return "idem:score:" + key
}
