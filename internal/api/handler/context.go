package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/quizbuster/quizbuster-api/internal/api/middleware"
	"github.com/quizbuster/quizbuster-api/internal/core/domain"
)

// ctxUser returns the caller resolved by the Auth middleware. A missing user
// means the route was mounted without Auth; it is rejected rather than
// served anonymously.
func ctxUser(c echo.Context) (*domain.User, error) {
	user := middleware.CurrentUser(c)
	if user == nil {
		return nil, domain.ErrUnauthorized
	}
	return user, nil
}
