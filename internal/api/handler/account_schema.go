package handler

import (
	"time"

	"github.com/bestheroz/account-service/internal/core/domain"
)

// errorResponse is the standard error envelope returned on all 4xx/5xx responses.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// --- Request / Response types ---

type loginRequest struct {
	LoginID  string `json:"loginId"  validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type createAccountRequest struct {
	LoginID     string             `json:"loginId"     validate:"required,max=100"`
	Password    string             `json:"password"    validate:"required,min=4,max=100"`
	Name        string             `json:"name"        validate:"required,max=100"`
	UseFlag     bool               `json:"useFlag"`
	ManagerFlag bool               `json:"managerFlag"`
	Authorities []domain.Authority `json:"authorities" validate:"dive,oneof=ADMIN_VIEW ADMIN_EDIT USER_VIEW USER_EDIT NOTICE_VIEW NOTICE_EDIT"`
}

// updateAccountRequest replaces the profile; an empty password keeps the
// current one.
type updateAccountRequest struct {
	LoginID     string             `json:"loginId"     validate:"required,max=100"`
	Password    string             `json:"password"    validate:"omitempty,min=4,max=100"`
	Name        string             `json:"name"        validate:"required,max=100"`
	UseFlag     bool               `json:"useFlag"`
	ManagerFlag bool               `json:"managerFlag"`
	Authorities []domain.Authority `json:"authorities" validate:"dive,oneof=ADMIN_VIEW ADMIN_EDIT USER_VIEW USER_EDIT NOTICE_VIEW NOTICE_EDIT"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=4,max=100"`
}

type accountResponse struct {
	ID               int64                 `json:"id"`
	Kind             domain.Kind           `json:"kind"`
	LoginID          string                `json:"loginId"`
	Name             string                `json:"name"`
	UseFlag          bool                  `json:"useFlag"`
	ManagerFlag      *bool                 `json:"managerFlag,omitempty"`
	Authorities      []domain.Authority    `json:"authorities"`
	JoinedAt         time.Time             `json:"joinedAt"`
	ChangePasswordAt *time.Time            `json:"changePasswordAt,omitempty"`
	LatestActiveAt   *time.Time            `json:"latestActiveAt,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	CreatedBy        domain.AccountSummary `json:"createdBy"`
	UpdatedAt        time.Time             `json:"updatedAt"`
	UpdatedBy        domain.AccountSummary `json:"updatedBy"`
}

type listAccountsResponse struct {
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
	Total    int64             `json:"total"`
	Items    []accountResponse `json:"items"`
}
