package ports

import (
	"context"

	"github.com/bestheroz/account-service/internal/core/domain"
)

// CreateAccountInput carries the fields of a new account.
type CreateAccountInput struct {
	LoginID     string
	Password    string
	Name        string
	UseFlag     bool
	ManagerFlag bool // admin only
	Authorities []domain.Authority
}

// UpdateAccountInput carries the replacement profile of an account.
// An empty Password keeps the current one.
type UpdateAccountInput struct {
	LoginID     string
	Password    string
	Name        string
	UseFlag     bool
	ManagerFlag bool // admin only
	Authorities []domain.Authority
}

// ChangePasswordInput carries a password change request.
type ChangePasswordInput struct {
	OldPassword string
	NewPassword string
}

// ListResult is one page of accounts.
type ListResult struct {
	Page     int
	PageSize int
	Total    int64
	Items    []*domain.Account
}

// AccountService defines the account lifecycle use cases for one kind.
type AccountService interface {
	Kind() domain.Kind
	List(ctx context.Context, filter ListAccountsFilter) (*ListResult, error)
	Get(ctx context.Context, id int64) (*domain.Account, error)
	Create(ctx context.Context, input CreateAccountInput, operator domain.Operator) (*domain.Account, error)
	Update(ctx context.Context, id int64, input UpdateAccountInput, operator domain.Operator) (*domain.Account, error)
	ChangePassword(ctx context.Context, id int64, input ChangePasswordInput, operator domain.Operator) (*domain.Account, error)
	Remove(ctx context.Context, id int64, operator domain.Operator) error
	CheckLoginIDAvailable(ctx context.Context, loginID string, excludeID int64) (bool, error)
}

// AccountDirectory resolves audit references across both kinds.
type AccountDirectory interface {
	Resolve(ctx context.Context, ref domain.AuditRef) (*domain.AccountSummary, error)
}
