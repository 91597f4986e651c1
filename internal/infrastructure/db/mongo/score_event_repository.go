package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

const collectionScoreEvents = "score_events"

// ScoreEventRepository persists the score audit trail to MongoDB.
type ScoreEventRepository struct {
	col *mongo.Collection
}

var _ ports.ScoreEventRecorder = (*ScoreEventRepository)(nil)

func NewScoreEventRepository(db *mongo.Database) *ScoreEventRepository {
	return &ScoreEventRepository{col: db.Collection(collectionScoreEvents)}
}

// Record inserts one event into the score_events collection.
func (r *ScoreEventRepository) Record(ctx context.Context, event domain.ScoreEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"username":   event.Username,
		"delta":      event.Delta,
		"total":      event.Total,
		"created_at": event.Timestamp.UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return wrap("SCORE_EVENT_INSERT_FAILED", err, "username", event.Username)
	}
	return nil
}

// EnsureIndexes creates the per-user history index.
func (r *ScoreEventRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "username", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return wrap("SCORE_EVENT_INDEX_FAILED", err)
	}
	return nil
}
