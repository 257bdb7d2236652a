package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/bestheroz/account-service/internal/api/middleware"
	"github.com/bestheroz/account-service/internal/core/domain"
)

// ctxOperator extracts the operator injected by the Auth middleware. Its
// absence means the route was mounted without authentication.
func ctxOperator(c echo.Context) (domain.Operator, error) {
	op, ok := c.Get(middleware.OperatorKey).(domain.Operator)
	if !ok || !op.Kind.Valid() {
		return domain.Operator{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return op, nil
}
