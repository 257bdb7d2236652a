package handler

import (
	"context"

	"github.com/bestheroz/account-service/internal/core/domain"
	"github.com/bestheroz/account-service/internal/core/ports"
)

// --- Request → Service input ---

func toCreateAccountInput(req createAccountRequest) ports.CreateAccountInput {
	return ports.CreateAccountInput{
		LoginID:     req.LoginID,
		Password:    req.Password,
		Name:        req.Name,
		UseFlag:     req.UseFlag,
		ManagerFlag: req.ManagerFlag,
		Authorities: req.Authorities,
	}
}

func toUpdateAccountInput(req updateAccountRequest) ports.UpdateAccountInput {
	return ports.UpdateAccountInput{
		LoginID:     req.LoginID,
		Password:    req.Password,
		Name:        req.Name,
		UseFlag:     req.UseFlag,
		ManagerFlag: req.ManagerFlag,
		Authorities: req.Authorities,
	}
}

// --- Domain → Response ---

// auditResolver resolves audit references through the directory, memoising
// results for the lifetime of one response.
type auditResolver struct {
	ctx       context.Context
	directory ports.AccountDirectory
	seen      map[domain.AuditRef]domain.AccountSummary
}

func newAuditResolver(ctx context.Context, directory ports.AccountDirectory) *auditResolver {
	return &auditResolver{ctx: ctx, directory: directory, seen: make(map[domain.AuditRef]domain.AccountSummary)}
}

// resolve falls back to the bare reference when the account cannot be
// found, e.g. for the system operator.
func (r *auditResolver) resolve(ref domain.AuditRef) domain.AccountSummary {
	if s, ok := r.seen[ref]; ok {
		return s
	}
	summary := domain.AccountSummary{ID: ref.ID, Kind: ref.Kind}
	if r.directory != nil {
		if s, err := r.directory.Resolve(r.ctx, ref); err == nil {
			summary = *s
		}
	}
	r.seen[ref] = summary
	return summary
}

func (r *auditResolver) toAccountResponse(a *domain.Account) accountResponse {
	resp := accountResponse{
		ID:               a.ID,
		Kind:             a.Kind,
		LoginID:          a.LoginID,
		Name:             a.Name,
		UseFlag:          a.UseFlag,
		Authorities:      a.EffectiveAuthorities(),
		JoinedAt:         a.JoinedAt,
		ChangePasswordAt: a.ChangePasswordAt,
		LatestActiveAt:   a.LatestActiveAt,
		CreatedAt:        a.CreatedAt,
		CreatedBy:        r.resolve(a.CreatedBy),
		UpdatedAt:        a.UpdatedAt,
		UpdatedBy:        r.resolve(a.UpdatedBy),
	}
	if resp.Authorities == nil {
		resp.Authorities = []domain.Authority{}
	}
	if a.Kind == domain.KindAdmin {
		managerFlag := a.ManagerFlag
		resp.ManagerFlag = &managerFlag
	}
	return resp
}

func (r *auditResolver) toListResponse(result *ports.ListResult) listAccountsResponse {
	items := make([]accountResponse, 0, len(result.Items))
	for _, a := range result.Items {
		items = append(items, r.toAccountResponse(a))
	}
	return listAccountsResponse{
		Page:     result.Page,
		PageSize: result.PageSize,
		Total:    result.Total,
		Items:    items,
	}
}
