package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bestheroz/account-service/internal/api/metrics"
	"github.com/bestheroz/account-service/internal/core/domain"
	"github.com/bestheroz/account-service/internal/core/ports"
)

// RenewTokenHeader carries the refresh token on renewal requests.
const RenewTokenHeader = "AuthorizationR"

// AccountHandler serves the account and session endpoints of one kind.
type AccountHandler struct {
	accounts  ports.AccountService
	sessions  ports.SessionService
	directory ports.AccountDirectory
	kind      string
}

func NewAccountHandler(accounts ports.AccountService, sessions ports.SessionService, directory ports.AccountDirectory) *AccountHandler {
	return &AccountHandler{
		accounts:  accounts,
		sessions:  sessions,
		directory: directory,
		kind:      string(accounts.Kind()),
	}
}

// List handles GET /api/v1/{kind}.
//
// @Summary      List accounts
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        page         query     int     false  "1-based page"           default(1)
// @Param        pageSize     query     int     false  "Page size (max 100)"    default(20)
// @Param        id           query     int     false  "Exact account id"
// @Param        loginId      query     string  false  "Login id substring"
// @Param        name         query     string  false  "Name substring"
// @Param        useFlag      query     bool    false  "Filter by use flag"
// @Param        managerFlag  query     bool    false  "Filter by manager flag (admins only)"
// @Success      200          {object}  listAccountsResponse
// @Failure      400          {object}  errorResponse
// @Failure      401          {object}  errorResponse
// @Failure      403          {object}  errorResponse
// @Router       /api/v1/admins [get]
// @Router       /api/v1/users [get]
func (h *AccountHandler) List(c echo.Context) error {
	var filter ports.ListAccountsFilter
	err := echo.QueryParamsBinder(c).
		Int("page", &filter.Page).
		Int("pageSize", &filter.PageSize).
		Int64("id", &filter.ID).
		String("loginId", &filter.LoginID).
		String("name", &filter.Name).
		BindError()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid query parameters")
	}
	if filter.UseFlag, err = optionalBool(c, "useFlag"); err != nil {
		return err
	}
	if filter.ManagerFlag, err = optionalBool(c, "managerFlag"); err != nil {
		return err
	}

	ctx := c.Request().Context()
	result, err := h.accounts.List(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newAuditResolver(ctx, h.directory).toListResponse(result))
}

// CheckLoginID handles GET /api/v1/{kind}/check-login-id.
//
// @Summary      Check whether a login id is available
// @Tags         accounts
// @Produce      json
// @Param        loginId    query     string  true   "Login id to check"
// @Param        excludeId  query     int     false  "Account id to ignore"
// @Success      200        {boolean}  bool
// @Failure      400        {object}  errorResponse
// @Router       /api/v1/admins/check-login-id [get]
// @Router       /api/v1/users/check-login-id [get]
func (h *AccountHandler) CheckLoginID(c echo.Context) error {
	var (
		loginID   string
		excludeID int64
	)
	if err := echo.QueryParamsBinder(c).
		MustString("loginId", &loginID).
		Int64("excludeId", &excludeID).
		BindError(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "loginId is required")
	}

	available, err := h.accounts.CheckLoginIDAvailable(c.Request().Context(), loginID, excludeID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, available)
}

// Login handles POST /api/v1/{kind}/login.
//
// @Summary      Log in
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      200   {object}  tokenResponse
// @Failure      400   {object}  errorResponse
// @Failure      429   {object}  errorResponse
// @Router       /api/v1/admins/login [post]
// @Router       /api/v1/users/login [post]
func (h *AccountHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pair, err := h.sessions.Login(c.Request().Context(), req.LoginID, req.Password)
	metrics.LoginsTotal.WithLabelValues(h.kind, resultLabel(err, "success")).Inc()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// RenewToken handles GET /api/v1/{kind}/renew-token.
//
// @Summary      Renew the token pair
// @Description  Presenting the current refresh token rotates it. A superseded token is
// @Description  answered with the current pair for 3 seconds after the last rotation.
// @Tags         sessions
// @Produce      json
// @Param        AuthorizationR  header    string  true  "Refresh token"
// @Success      200             {object}  tokenResponse
// @Failure      400             {object}  errorResponse
// @Failure      401             {object}  errorResponse
// @Router       /api/v1/admins/renew-token [get]
// @Router       /api/v1/users/renew-token [get]
func (h *AccountHandler) RenewToken(c echo.Context) error {
	presented := strings.TrimSpace(c.Request().Header.Get(RenewTokenHeader))
	if len(presented) > 7 && strings.EqualFold(presented[:7], "bearer ") {
		presented = strings.TrimSpace(presented[7:])
	}
	if presented == "" {
		metrics.TokenRenewalsTotal.WithLabelValues(h.kind, domain.ErrUnauthorized.Code).Inc()
		return domain.ErrUnauthorized
	}

	pair, err := h.sessions.RenewToken(c.Request().Context(), presented)
	if err != nil {
		metrics.TokenRenewalsTotal.WithLabelValues(h.kind, resultLabel(err, "")).Inc()
		return err
	}
	result := "rotated"
	if !pair.Rotated {
		result = "grace"
	}
	metrics.TokenRenewalsTotal.WithLabelValues(h.kind, result).Inc()
	return c.JSON(http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// Logout handles DELETE /api/v1/{kind}/logout.
//
// @Summary      Log out
// @Tags         sessions
// @Security     BearerAuth
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Router       /api/v1/admins/logout [delete]
// @Router       /api/v1/users/logout [delete]
func (h *AccountHandler) Logout(c echo.Context) error {
	op, err := ctxOperator(c)
	if err != nil {
		return err
	}
	if err := h.sessions.Logout(c.Request().Context(), op.ID); err != nil {
		return err
	}
	metrics.LogoutsTotal.WithLabelValues(h.kind).Inc()
	return c.NoContent(http.StatusNoContent)
}

// Get handles GET /api/v1/{kind}/:id.
//
// @Summary      Get an account
// @Tags         accounts
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      int  true  "Account id"
// @Success      200  {object}  accountResponse
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /api/v1/admins/{id} [get]
// @Router       /api/v1/users/{id} [get]
func (h *AccountHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	account, err := h.accounts.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newAuditResolver(ctx, h.directory).toAccountResponse(account))
}

// Create handles POST /api/v1/{kind}.
//
// @Summary      Create an account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      createAccountRequest  true  "Account"
// @Success      200   {object}  accountResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /api/v1/admins [post]
// @Router       /api/v1/users [post]
func (h *AccountHandler) Create(c echo.Context) error {
	op, err := ctxOperator(c)
	if err != nil {
		return err
	}
	var req createAccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	account, err := h.accounts.Create(ctx, toCreateAccountInput(req), op)
	if err != nil {
		return err
	}
	metrics.AccountMutationsTotal.WithLabelValues(h.kind, "create").Inc()
	return c.JSON(http.StatusOK, newAuditResolver(ctx, h.directory).toAccountResponse(account))
}

// Update handles PUT /api/v1/{kind}/:id.
//
// @Summary      Update an account
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                   true  "Account id"
// @Param        body  body      updateAccountRequest  true  "Account"
// @Success      200   {object}  accountResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /api/v1/admins/{id} [put]
// @Router       /api/v1/users/{id} [put]
func (h *AccountHandler) Update(c echo.Context) error {
	op, err := ctxOperator(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req updateAccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	account, err := h.accounts.Update(ctx, id, toUpdateAccountInput(req), op)
	if err != nil {
		return err
	}
	metrics.AccountMutationsTotal.WithLabelValues(h.kind, "update").Inc()
	return c.JSON(http.StatusOK, newAuditResolver(ctx, h.directory).toAccountResponse(account))
}

// ChangePassword handles PATCH /api/v1/{kind}/:id/password.
//
// @Summary      Change an account password
// @Tags         accounts
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      int                    true  "Account id"
// @Param        body  body      changePasswordRequest  true  "Passwords"
// @Success      200   {object}  accountResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /api/v1/admins/{id}/password [patch]
// @Router       /api/v1/users/{id}/password [patch]
func (h *AccountHandler) ChangePassword(c echo.Context) error {
	op, err := ctxOperator(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	account, err := h.accounts.ChangePassword(ctx, id, ports.ChangePasswordInput{
		OldPassword: req.OldPassword,
		NewPassword: req.NewPassword,
	}, op)
	if err != nil {
		return err
	}
	metrics.AccountMutationsTotal.WithLabelValues(h.kind, "change_password").Inc()
	return c.JSON(http.StatusOK, newAuditResolver(ctx, h.directory).toAccountResponse(account))
}

// Remove handles DELETE /api/v1/{kind}/:id.
//
// @Summary      Remove an account
// @Tags         accounts
// @Security     BearerAuth
// @Param        id   path  int  true  "Account id"
// @Success      204
// @Failure      400  {object}  errorResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Router       /api/v1/admins/{id} [delete]
// @Router       /api/v1/users/{id} [delete]
func (h *AccountHandler) Remove(c echo.Context) error {
	op, err := ctxOperator(c)
	if err != nil {
		return err
	}
	id, err := pathID(c)
	if err != nil {
		return err
	}

	if err := h.accounts.Remove(c.Request().Context(), id, op); err != nil {
		return err
	}
	metrics.AccountMutationsTotal.WithLabelValues(h.kind, "remove").Inc()
	return c.NoContent(http.StatusNoContent)
}

func pathID(c echo.Context) (int64, error) {
	var id int64
	if err := echo.PathParamsBinder(c).MustInt64("id", &id).BindError(); err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid account id")
	}
	return id, nil
}

// optionalBool parses a boolean query parameter, returning nil when absent.
func optionalBool(c echo.Context, name string) (*bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, name+" must be a boolean")
	}
	return &v, nil
}

// resultLabel maps an operation outcome to a metric label: ok for success,
// the domain code for domain errors, "error" otherwise.
func resultLabel(err error, ok string) string {
	if err == nil {
		return ok
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "error"
}
