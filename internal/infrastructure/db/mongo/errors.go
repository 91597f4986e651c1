package mongo

import (
	"context"
	"errors"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
)

// classify maps a driver error onto the domain taxonomy.
func classify(err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return domain.ErrConflict
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrNotFound
	case mongo.IsNetworkError(err),
		mongo.IsTimeout(err),
		errors.Is(err, mongo.ErrClientDisconnected),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.ErrUnavailable
	default:
		return domain.ErrInternal
	}
}

// wrap translates err into the domain taxonomy, keeping only its message.
func wrap(code string, err error, attrs ...any) error {
	return oops.Code(code).With(attrs...).Wrapf(classify(err), "%v", err)
}
