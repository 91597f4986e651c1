package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

// UserRepository implements ports.UserRepository using PostgreSQL.
type UserRepository struct {
	pool poolIface
}

var _ ports.UserRepository = (*UserRepository)(nil)

// NewUserRepository creates a UserRepository backed by pool.
func NewUserRepository(pool poolIface) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`,
		username).Scan(&exists)
	if err != nil {
		return false, wrap("USER_EXISTS_FAILED", err, "username", username)
	}
	return exists, nil
}

// Insert relies on the primary key to reject a concurrent duplicate.
func (r *UserRepository) Insert(ctx context.Context, user *domain.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (username, password_hash, role, score, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		user.Username,
		user.PasswordHash,
		user.Role,
		user.Score,
		user.CreatedAt,
	)
	if err != nil {
		return wrap("USER_INSERT_FAILED", err, "username", user.Username)
	}
	return nil
}

func (r *UserRepository) Fetch(ctx context.Context, username string) (*domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `
		SELECT username, password_hash, role, score, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.Username, &u.PasswordHash, &u.Role, &u.Score, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}
	if err != nil {
		return nil, wrap("USER_FETCH_FAILED", err, "username", username)
	}
	return &u, nil
}

// AddScore locks the user's row for the read-add-write sequence, so
// concurrent updates of one user serialize while other users are untouched.
func (r *UserRepository) AddScore(ctx context.Context, username string, delta int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, wrap("TX_BEGIN_FAILED", err, "username", username)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var current *int64
	err = tx.QueryRow(ctx,
		`SELECT score FROM users WHERE username = $1 FOR UPDATE`,
		username).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}
	if err != nil {
		return 0, wrap("SCORE_READ_FAILED", err, "username", username)
	}

	var base int64
	if current != nil {
		base = *current
	}
	total, err := domain.ApplyDelta(base, delta)
	if err != nil {
		return 0, oops.Code("SCORE_OUT_OF_RANGE").With("username", username, "delta", delta).Wrap(err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET score = $2 WHERE username = $1`,
		username, total); err != nil {
		return 0, wrap("SCORE_WRITE_FAILED", err, "username", username)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrap("TX_COMMIT_FAILED", err, "username", username)
	}
	return total, nil
}

func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]domain.ScoreEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT username, score
		FROM users
		WHERE score IS NOT NULL
		ORDER BY score DESC, username ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, wrap("LEADERBOARD_FAILED", err, "limit", limit)
	}
	defer rows.Close()

	entries := make([]domain.ScoreEntry, 0, limit)
	for rows.Next() {
		var e domain.ScoreEntry
		if err := rows.Scan(&e.Username, &e.Score); err != nil {
			return nil, wrap("LEADERBOARD_SCAN_FAILED", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("LEADERBOARD_ITERATE_FAILED", err)
	}
	return entries, nil
}

func (r *UserRepository) Delete(ctx context.Context, username string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return wrap("USER_DELETE_FAILED", err, "username", username)
	}
	if tag.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return wrap("PING_FAILED", err)
	}
	return nil
}
