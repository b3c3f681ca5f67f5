package activity

import "strings"

type ScopeRole string

const (
	ScopeAdmin   ScopeRole = "Admin"
	ScopeCompany ScopeRole = "Company"
	ScopePartner ScopeRole = "Partner"
)

// RoleScope limits which owners' activity a caller may see.
type RoleScope struct {
	Role      ScopeRole
	CompanyID *int64
	PartnerID *int64
}

func AdminScope() RoleScope {
	return RoleScope{Role: ScopeAdmin}
}

func CompanyScope(companyID int64) RoleScope {
	return RoleScope{Role: ScopeCompany, CompanyID: &companyID}
}

func PartnerScope(partnerID int64) RoleScope {
	return RoleScope{Role: ScopePartner, PartnerID: &partnerID}
}

func (s RoleScope) String() string {
	switch s.Role {
	case ScopeCompany:
		if s.CompanyID != nil {
			return "company"
		}
	case ScopePartner:
		if s.PartnerID != nil {
			return "partner"
		}
	case ScopeAdmin, "":
		return "admin"
	}
	return "none"
}

// clause returns the predicate over users_portal u and companies c. visible is false when
// the scope cannot see any owner, in which case no query should run.
func (s RoleScope) clause() (sql string, args []any, visible bool) {
	switch ScopeRole(strings.TrimSpace(string(s.Role))) {
	case ScopeAdmin, "":
		return "", nil, true
	case ScopeCompany:
		if s.CompanyID == nil {
			return "", nil, false
		}
		return "u.company_id = ?", []any{*s.CompanyID}, true
	case ScopePartner:
		if s.PartnerID == nil {
			return "", nil, false
		}
		return "(u.partner_id = ? OR c.partner_id = ?)", []any{*s.PartnerID, *s.PartnerID}, true
	default:
		return "", nil, false
	}
}
