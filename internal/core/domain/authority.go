package domain

// Authority is a permission tag carried by accounts and access tokens.
type Authority string

const (
	AuthorityAdminView  Authority = "ADMIN_VIEW"
	AuthorityAdminEdit  Authority = "ADMIN_EDIT"
	AuthorityUserView   Authority = "USER_VIEW"
	AuthorityUserEdit   Authority = "USER_EDIT"
	AuthorityNoticeView Authority = "NOTICE_VIEW"
	AuthorityNoticeEdit Authority = "NOTICE_EDIT"
)

var allAuthorities = []Authority{
	AuthorityAdminView,
	AuthorityAdminEdit,
	AuthorityUserView,
	AuthorityUserEdit,
	AuthorityNoticeView,
	AuthorityNoticeEdit,
}

// AllAuthorities returns every known authority. The slice is a copy.
func AllAuthorities() []Authority {
	out := make([]Authority, len(allAuthorities))
	copy(out, allAuthorities)
	return out
}

// ViewAuthority returns the authority needed to read accounts of kind k.
func ViewAuthority(k Kind) Authority {
	if k == KindAdmin {
		return AuthorityAdminView
	}
	return AuthorityUserView
}

// EditAuthority returns the authority needed to mutate accounts of kind k.
func EditAuthority(k Kind) Authority {
	if k == KindAdmin {
		return AuthorityAdminEdit
	}
	return AuthorityUserEdit
}
