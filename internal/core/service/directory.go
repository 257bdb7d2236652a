package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bestheroz/account-service/internal/core/domain"
	"github.com/bestheroz/account-service/internal/core/ports"
)

// AccountDirectory resolves audit references into display summaries. It
// reads through to the per-kind repositories, so removed accounts still
// resolve.
type AccountDirectory struct {
	repos map[domain.Kind]ports.AccountRepository
}

func NewAccountDirectory(repos ...ports.AccountRepository) *AccountDirectory {
	d := &AccountDirectory{repos: make(map[domain.Kind]ports.AccountRepository, len(repos))}
	for _, r := range repos {
		d.repos[r.Kind()] = r
	}
	return d
}

func (d *AccountDirectory) Resolve(ctx context.Context, ref domain.AuditRef) (*domain.AccountSummary, error) {
	repo, ok := d.repos[ref.Kind]
	if !ok {
		return nil, domain.ErrUnknownAccount
	}
	account, err := repo.FindByID(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return nil, domain.ErrUnknownAccount
		}
		return nil, fmt.Errorf("resolve %s %d: %w", ref.Kind, ref.ID, err)
	}
	summary := account.Summary()
	return &summary, nil
}
