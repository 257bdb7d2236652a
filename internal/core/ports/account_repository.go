package ports

import (
	"context"
	"time"

	"github.com/bestheroz/account-service/internal/core/domain"
)

// ListAccountsFilter carries the query parameters for listing accounts.
// Removed accounts are always excluded.
type ListAccountsFilter struct {
	ID          int64  // optional: exact id
	LoginID     string // optional: substring match
	Name        string // optional: substring match
	UseFlag     *bool
	ManagerFlag *bool
	Page        int // 1-based
	PageSize    int
}

// AccountRepository persists accounts of a single kind.
//
// Profile writes (Create, Update) and session writes (SetRefreshToken,
// RotateRefreshToken, ClearRefreshToken) touch disjoint columns so that a
// concurrent renewal is never lost to an unrelated profile update.
type AccountRepository interface {
	Kind() domain.Kind
	// Create inserts a new account. A login-id collision with a
	// non-removed account returns domain.ErrDuplicateLoginID.
	Create(ctx context.Context, account *domain.Account) error
	// Update writes every profile field of an existing account, including
	// the soft-delete marker, and clears the session when the account is removed.
	Update(ctx context.Context, account *domain.Account) error
	// FindByID returns the account regardless of its removed flag.
	FindByID(ctx context.Context, id int64) (*domain.Account, error)
	FindActiveByLoginID(ctx context.Context, loginID string) (*domain.Account, error)
	// LoginIDTaken reports whether a non-removed account other than
	// excludeID (0 = none) uses loginID.
	LoginIDTaken(ctx context.Context, loginID string, excludeID int64) (bool, error)
	List(ctx context.Context, filter ListAccountsFilter) ([]*domain.Account, int64, error)

	SetRefreshToken(ctx context.Context, id int64, token string, activeAt time.Time) error
	// RotateRefreshToken replaces the stored token only if it still equals
	// current. It reports whether the swap happened.
	RotateRefreshToken(ctx context.Context, id int64, current, next string, activeAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, id int64) error
}
