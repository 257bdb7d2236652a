package domain

import "slices"

// Operator is the authenticated actor performing an operation.
type Operator struct {
	ID          int64
	Kind        Kind
	LoginID     string
	Name        string
	ManagerFlag bool
	Authorities []Authority
}

// SystemOperator is used for records written by the service itself, such as
// the bootstrap administrator.
var SystemOperator = Operator{ID: 0, Kind: KindAdmin, LoginID: "system", Name: "system"}

// Ref returns the audit reference of the operator.
func (o Operator) Ref() AuditRef {
	return AuditRef{Kind: o.Kind, ID: o.ID}
}

// Is reports whether the operator is the account identified by kind and id.
func (o Operator) Is(kind Kind, id int64) bool {
	return o.Kind == kind && o.ID == id
}

// HasAuthority reports whether the operator carries a.
func (o Operator) HasAuthority(a Authority) bool {
	return slices.Contains(o.Authorities, a)
}
