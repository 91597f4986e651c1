package domain

import (
	"math"
	"time"
)

// ScoreEntry is one leaderboard row.
type ScoreEntry struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// ScoreEvent records an applied score delta for the audit trail.
type ScoreEvent struct {
	Username  string
	Delta     int64
	Total     int64
	Timestamp time.Time
}

// ApplyDelta returns current+delta, or ErrScoreOutOfRange when the sum
// overflows.
func ApplyDelta(current, delta int64) (int64, error) {
	if (delta > 0 && current > math.MaxInt64-delta) ||
		(delta < 0 && current < math.MinInt64-delta) {
		return 0, ErrScoreOutOfRange
	}
	return current + delta, nil
}
