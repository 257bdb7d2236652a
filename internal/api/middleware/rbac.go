package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bestheroz/account-service/internal/core/domain"
)

// RequireAuthority lets the request through only when the authenticated
// operator carries at least one of the given authorities.
func RequireAuthority(authorities ...domain.Authority) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			op, ok := c.Get(OperatorKey).(domain.Operator)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
			}
			for _, a := range authorities {
				if op.HasAuthority(a) {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
		}
	}
}

// RequireKind restricts a route to operators of the given account kind.
func RequireKind(kind domain.Kind) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			op, ok := c.Get(OperatorKey).(domain.Operator)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
			}
			if op.Kind != kind {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
