package domain

import (
	"slices"
	"time"
)

// Kind tags an account as administrative or ordinary. The two kinds have
// disjoint identity spaces and disjoint login-id namespaces.
type Kind string

const (
	KindAdmin Kind = "ADMIN"
	KindUser  Kind = "USER"
)

// Valid reports whether k is one of the known account kinds.
func (k Kind) Valid() bool {
	return k == KindAdmin || k == KindUser
}

// AuditRef points at the account that created or last updated a record.
type AuditRef struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

// AccountSummary is the display projection of an AuditRef.
type AccountSummary struct {
	ID      int64  `json:"id"`
	Kind    Kind   `json:"kind"`
	LoginID string `json:"loginId"`
	Name    string `json:"name"`
}

// Account is the aggregate shared by both kinds. ManagerFlag is only
// meaningful for KindAdmin and stays false for ordinary accounts.
type Account struct {
	ID               int64
	Kind             Kind
	LoginID          string
	PasswordDigest   string
	RefreshToken     string
	Name             string
	UseFlag          bool
	ManagerFlag      bool
	Authorities      []Authority
	JoinedAt         time.Time
	ChangePasswordAt *time.Time
	LatestActiveAt   *time.Time
	RemovedFlag      bool
	RemovedAt        *time.Time
	CreatedAt        time.Time
	CreatedBy        AuditRef
	UpdatedAt        time.Time
	UpdatedBy        AuditRef
}

// EffectiveAuthorities returns the stored authorities, or every authority
// for a manager admin.
func (a *Account) EffectiveAuthorities() []Authority {
	if a.Kind == KindAdmin && a.ManagerFlag {
		return AllAuthorities()
	}
	return slices.Clone(a.Authorities)
}

// HasSession reports whether the refresh-token slot is occupied.
func (a *Account) HasSession() bool {
	return a.RefreshToken != ""
}

// Principal builds the operator a token issued for this account represents.
func (a *Account) Principal() Operator {
	return Operator{
		ID:          a.ID,
		Kind:        a.Kind,
		LoginID:     a.LoginID,
		Name:        a.Name,
		ManagerFlag: a.Kind == KindAdmin && a.ManagerFlag,
		Authorities: a.EffectiveAuthorities(),
	}
}

// Ref returns the audit reference of this account.
func (a *Account) Ref() AuditRef {
	return AuditRef{Kind: a.Kind, ID: a.ID}
}

// Summary returns the display projection of this account.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{ID: a.ID, Kind: a.Kind, LoginID: a.LoginID, Name: a.Name}
}

// MarkCreated stamps the join and creator fields of a new account.
func (a *Account) MarkCreated(op Operator, now time.Time) {
	a.JoinedAt = now
	a.RemovedFlag = false
	a.RemovedAt = nil
	a.CreatedAt = now
	a.CreatedBy = op.Ref()
	a.Touch(op, now)
}

// Touch stamps the updater fields.
func (a *Account) Touch(op Operator, now time.Time) {
	a.UpdatedAt = now
	a.UpdatedBy = op.Ref()
}

// SetPassword replaces the digest and stamps changePasswordAt.
func (a *Account) SetPassword(digest string, now time.Time) {
	a.PasswordDigest = digest
	a.ChangePasswordAt = &now
}

// Remove soft-deletes the account and ends its session.
func (a *Account) Remove(op Operator, now time.Time) {
	a.RemovedFlag = true
	a.RemovedAt = &now
	a.RefreshToken = ""
	a.Touch(op, now)
}

// StartSession stores a freshly issued refresh token.
func (a *Account) StartSession(refreshToken string, now time.Time) {
	a.RefreshToken = refreshToken
	a.LatestActiveAt = &now
}

// EndSession clears the refresh-token slot.
func (a *Account) EndSession() {
	a.RefreshToken = ""
}
