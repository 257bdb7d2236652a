package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/bestheroz/account-service/internal/core/domain"
)

func TestHTTPErrorHandler(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody errorResponse
	}{
		{
			name:     "client error",
			err:      domain.ErrAlreadyJoinedAccount,
			wantCode: http.StatusBadRequest,
			wantBody: errorResponse{Error: domain.ErrAlreadyJoinedAccount.Message, Code: "ALREADY_JOINED_ACCOUNT"},
		},
		{
			name:     "wrapped client error",
			err:      fmt.Errorf("update: %w", domain.ErrUnknownAccount),
			wantCode: http.StatusBadRequest,
			wantBody: errorResponse{Error: domain.ErrUnknownAccount.Message, Code: "UNKNOWN_ACCOUNT"},
		},
		{
			name:     "unauthorized",
			err:      domain.ErrUnauthorized,
			wantCode: http.StatusUnauthorized,
			wantBody: errorResponse{Error: "unauthorized", Code: "UNAUTHORIZED"},
		},
		{
			name:     "throttled",
			err:      domain.ErrTooManyLoginAttempts,
			wantCode: http.StatusTooManyRequests,
			wantBody: errorResponse{Error: domain.ErrTooManyLoginAttempts.Message, Code: "TOO_MANY_LOGIN_ATTEMPTS"},
		},
		{
			name:     "echo error",
			err:      echo.NewHTTPError(http.StatusUnprocessableEntity, "loginid is required"),
			wantCode: http.StatusUnprocessableEntity,
			wantBody: errorResponse{Error: "loginid is required"},
		},
		{
			name:     "unexpected error",
			err:      errors.New("connection reset"),
			wantCode: http.StatusInternalServerError,
			wantBody: errorResponse{Error: "internal server error"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			NewHTTPErrorHandler(zerolog.Nop())(tc.err, c)

			if rec.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rec.Code)
			}
			var body errorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body != tc.wantBody {
				t.Errorf("expected body %+v, got %+v", tc.wantBody, body)
			}
		})
	}
}
