package ports

import (
	"context"

	"github.com/bestheroz/account-service/internal/core/domain"
)

// PasswordHasher is the opaque hash/verify capability.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, digest string) bool
}

// TokenIssuer creates and validates signed access and refresh tokens.
type TokenIssuer interface {
	CreateAccessToken(op domain.Operator) (string, error)
	CreateRefreshToken(op domain.Operator) (string, error)
	// ValidateRefreshToken checks signature, expiry and token use.
	ValidateRefreshToken(token string) bool
	// DecodeSubject extracts the account id and kind without verifying the token.
	DecodeSubject(token string) (int64, domain.Kind, error)
	ParseAccessToken(token string) (*domain.Operator, error)
}

// IDGenerator hands out account ids.
type IDGenerator interface {
	NextID() int64
}

// LoginLimiter throttles repeated failed logins for a login id.
type LoginLimiter interface {
	// Check returns domain.ErrTooManyLoginAttempts once the failure budget is spent.
	Check(ctx context.Context, kind domain.Kind, loginID string) error
	RecordFailure(ctx context.Context, kind domain.Kind, loginID string) error
	Reset(ctx context.Context, kind domain.Kind, loginID string) error
}
