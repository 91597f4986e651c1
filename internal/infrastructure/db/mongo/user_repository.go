package mongo

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

const collectionUsers = "users"

// UserRepository implements ports.UserRepository using MongoDB. The username
// is the document _id, so the primary index enforces uniqueness.
type UserRepository struct {
	col *mongo.Collection
}

var _ ports.UserRepository = (*UserRepository)(nil)

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

// userDocument omits score until the first update; $inc on a null field
// is rejected by the server.
type userDocument struct {
	Username     string    `bson:"_id"`
	PasswordHash string    `bson:"password_hash"`
	Role         string    `bson:"role"`
	Score        *int64    `bson:"score,omitempty"`
	CreatedAt    time.Time `bson:"created_at"`
}

func (d *userDocument) toDomain() *domain.User {
	return &domain.User{
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		Role:         d.Role,
		Score:        d.Score,
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

func (r *UserRepository) Exists(ctx context.Context, username string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err := r.col.FindOne(ctx, bson.M{"_id": username},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, wrap("USER_EXISTS_FAILED", err, "username", username)
	}
	return true, nil
}

func (r *UserRepository) Insert(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := userDocument{
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Role:         user.Role,
		Score:        user.Score,
		CreatedAt:    user.CreatedAt.UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return wrap("USER_INSERT_FAILED", err, "username", user.Username)
	}
	return nil
}

func (r *UserRepository) Fetch(ctx context.Context, username string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDocument
	err := r.col.FindOne(ctx, bson.M{"_id": username}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}
	if err != nil {
		return nil, wrap("USER_FETCH_FAILED", err, "username", username)
	}
	return doc.toDomain(), nil
}

// AddScore applies $inc in a single findAndModify, which the server executes
// atomically per document. The filter only matches when the sum stays inside
// the int64 range.
func (r *UserRepository) AddScore(ctx context.Context, username string, delta int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"score": 1})

	var doc struct {
		Score int64 `bson:"score"`
	}
	err := r.col.FindOneAndUpdate(ctx,
		scoreFilter(username, delta),
		bson.M{"$inc": bson.M{"score": delta}},
		opts,
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		exists, existsErr := r.Exists(ctx, username)
		if existsErr != nil {
			return 0, existsErr
		}
		if exists {
			return 0, oops.Code("SCORE_OUT_OF_RANGE").
				With("username", username, "delta", delta).
				Wrap(domain.ErrScoreOutOfRange)
		}
		return 0, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}
	if err != nil {
		return 0, wrap("SCORE_UPDATE_FAILED", err, "username", username)
	}
	return doc.Score, nil
}

// scoreFilter matches username only while score+delta fits in an int64. $not
// keeps documents without a score matching.
func scoreFilter(username string, delta int64) bson.M {
	filter := bson.M{"_id": username}
	switch {
	case delta > 0:
		filter["score"] = bson.M{"$not": bson.M{"$gt": math.MaxInt64 - delta}}
	case delta < 0:
		filter["score"] = bson.M{"$not": bson.M{"$lt": math.MinInt64 - delta}}
	}
	return filter
}

func (r *UserRepository) Leaderboard(ctx context.Context, limit int) ([]domain.ScoreEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{{Key: "score", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"score": 1})

	cursor, err := r.col.Find(ctx, bson.M{"score": bson.M{"$exists": true, "$ne": nil}}, opts)
	if err != nil {
		return nil, wrap("LEADERBOARD_FAILED", err, "limit", limit)
	}
	defer cursor.Close(ctx)

	entries := make([]domain.ScoreEntry, 0, limit)
	for cursor.Next(ctx) {
		var doc struct {
			Username string `bson:"_id"`
			Score    int64  `bson:"score"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrap("LEADERBOARD_DECODE_FAILED", err)
		}
		entries = append(entries, domain.ScoreEntry{Username: doc.Username, Score: doc.Score})
	}
	if err := cursor.Err(); err != nil {
		return nil, wrap("LEADERBOARD_ITERATE_FAILED", err)
	}
	return entries, nil
}

func (r *UserRepository) Delete(ctx context.Context, username string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": username})
	if err != nil {
		return wrap("USER_DELETE_FAILED", err, "username", username)
	}
	if res.DeletedCount == 0 {
		return oops.Code("USER_NOT_FOUND").With("username", username).Wrap(domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	if err := r.col.Database().Client().Ping(ctx, nil); err != nil {
		return wrap("PING_FAILED", err)
	}
	return nil
}

// EnsureIndexes creates the leaderboard index on the users collection.
func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "score", Value: -1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return wrap("USER_INDEX_FAILED", err)
	}
	return nil
}
