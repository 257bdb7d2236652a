package ports

import (
	"context"

	"github.com/bestheroz/account-service/internal/core/domain"
)

// TokenPair is returned by login and renewal.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	// Rotated is false when a renewal reused the current token inside the
	// grace window.
	Rotated bool
}

// SessionService defines login, renewal and logout for one kind.
type SessionService interface {
	Kind() domain.Kind
	Login(ctx context.Context, loginID, password string) (*TokenPair, error)
	RenewToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, id int64) error
}
