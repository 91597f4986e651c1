// Package memory provides process-local implementations of the storage ports.
// It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/oops"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

// row guards a single user. Score updates lock the row, never the map, so
// updates for different users proceed in parallel.
type row struct {
	mu      sync.Mutex
	user    domain.User
	deleted bool
}

// UserRepository is an in-memory ports.UserRepository.
type UserRepository struct {
	mu   sync.RWMutex
	rows map[string]*row
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository() *UserRepository {
	return &UserRepository{rows: make(map[string]*row)}
}

func (r *UserRepository) lookup(username string) (*row, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rw, ok := r.rows[username]
	return rw, ok
}

func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, oops.Code("USER_EXISTS_FAILED").Wrapf(domain.ErrUnavailable, "%v", err)
	}
	_, ok := r.lookup(username)
	return ok, nil
}

func (r *UserRepository) Insert(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_INSERT_FAILED").Wrapf(domain.ErrUnavailable, "%v", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[user.Username]; ok {
		return oops.Code("USER_DUPLICATE").
			With("username", user.Username).
			Wrapf(domain.ErrConflict, "username %q already exists", user.Username)
	}
	rw := &row{user: *user}
	rw.user.Score = cloneScore(user.Score)
	r.rows[user.Username] = rw
	return nil
}

func (r *UserRepository) Fetch(ctx context.Context, username string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("USER_FETCH_FAILED").Wrapf(domain.ErrUnavailable, "%v", err)
	}
	rw, ok := r.lookup(username)
	if !ok {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.deleted {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}
	u := rw.user
	u.Score = cloneScore(rw.user.Score)
	return &u, nil
}

// AddScore holds the row mutex across the read and the write.
func (r *UserRepository) AddScore(ctx context.Context, username string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, oops.Code("SCORE_UPDATE_FAILED").Wrapf(domain.ErrUnavailable, "%v", err)
	}
	rw, ok := r.lookup(username)
	if !ok {
		return 0, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.deleted {
		return 0, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}
	total, err := domain.ApplyDelta(rw.user.CurrentScore(), delta)
	if err != nil {
		return 0, oops.Code("SCORE_OUT_OF_RANGE").With("username", username, "delta", delta).Wrap(err)
	}
	rw.user.Score = &total
	return total, nil
}

func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]domain.ScoreEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("LEADERBOARD_FAILED").Wrapf(domain.ErrUnavailable, "%v", err)
	}

	r.mu.RLock()
	rows := make([]*row, 0, len(r.rows))
	for _, rw := range r.rows {
		rows = append(rows, rw)
	}
	r.mu.RUnlock()

	entries := make([]domain.ScoreEntry, 0, len(rows))
	for _, rw := range rows {
		rw.mu.Lock()
		if !rw.deleted && rw.user.Score != nil {
			entries = append(entries, domain.ScoreEntry{Username: rw.user.Username, Score: *rw.user.Score})
		}
		rw.mu.Unlock()
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Username < entries[j].Username
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *UserRepository) Delete(ctx context.Context, username string) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("USER_DELETE_FAILED").Wrapf(domain.ErrUnavailable, "%v", err)
	}

	r.mu.Lock()
	rw, ok := r.rows[username]
	if ok {
		delete(r.rows, username)
	}
	r.mu.Unlock()
	if !ok {
		return oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}

	// A score update already holding the row finishes first; later ones see
	// the tombstone.
	rw.mu.Lock()
	rw.deleted = true
	rw.mu.Unlock()
	return nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneScore(s *int64) *int64 {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
