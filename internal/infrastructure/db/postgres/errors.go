package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
)

// classify maps a pgx error onto the domain taxonomy.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgerrcode.UniqueViolation:
			return domain.ErrConflict
		case pgErr.Code == pgerrcode.ForeignKeyViolation:
			return domain.ErrNotFound
		case pgErr.Code == pgerrcode.NumericValueOutOfRange:
			return domain.ErrInvalidInput
		case pgerrcode.IsConnectionException(pgErr.Code),
			pgerrcode.IsInsufficientResources(pgErr.Code),
			pgerrcode.IsOperatorIntervention(pgErr.Code):
			return domain.ErrUnavailable
		default:
			return domain.ErrInternal
		}
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.As(err, &connErr),
		errors.As(err, &netErr),
		pgconn.Timeout(err),
		pgconn.SafeToRetry(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return domain.ErrUnavailable
	}
	return domain.ErrInternal
}

// wrap translates err into the domain taxonomy. Only the driver's message
// survives; its type does not.
func wrap(code string, err error, attrs ...any) error {
	return oops.Code(code).With(attrs...).Wrapf(classify(err), "%v", err)
}
