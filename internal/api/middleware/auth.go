package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/core/ports"
)

// UserContextKey is the echo context key holding the authenticated *domain.User.
const UserContextKey = "user"

// Auth resolves the bearer token through the auth service and injects the
// user into context. Every rejection is domain.ErrUnauthorized so the error
// handler answers 401 with a WWW-Authenticate challenge.
func Auth(auth ports.AuthService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return domain.ErrUnauthorized
			}

			user, err := auth.VerifyToken(c.Request().Context(), token)
			if err != nil {
				return err
			}

			c.Set(UserContextKey, user)
			return next(c)
		}
	}
}

// CurrentUser returns the user injected by Auth, or nil.
func CurrentUser(c echo.Context) *domain.User {
	user, _ := c.Get(UserContextKey).(*domain.User)
	return user
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
