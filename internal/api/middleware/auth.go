package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bestheroz/account-service/internal/core/domain"
)

// OperatorKey is the echo context key the Auth middleware stores the
// authenticated domain.Operator under.
const OperatorKey = "operator"

// AccessTokenParser validates an access token and returns its principal.
type AccessTokenParser interface {
	ParseAccessToken(token string) (*domain.Operator, error)
}

// Auth validates the bearer access token and injects the operator into context.
func Auth(tokens AccessTokenParser) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			op, err := tokens.ParseAccessToken(parts[1])
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(OperatorKey, *op)
			return next(c)
		}
	}
}
