package rbac

import (
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/shared"
)

// Grants maps a role to the capabilities it holds without explicit grants.
type Grants map[roles.Role][]string

// DefaultGrants returns the built-in capability table.
func DefaultGrants() Grants {
	core := shared.CoreScopes()
	with := func(extra ...string) []string {
		out := make([]string, 0, len(core)+len(extra))
		out = append(out, core...)
		return append(out, extra...)
	}
	return Grants{
		roles.Patient: with(
			shared.PermAppointmentsView,
			shared.PermAppointmentsManage,
			shared.PermTelemedicineJoin,
			shared.PermRecordsView,
			shared.PermPrescriptionsView,
		),
		roles.Provider: with(shared.ClinicalScopes()...),
		roles.Caregiver: with(
			shared.PermAppointmentsView,
			shared.PermRecordsView,
			shared.PermPrescriptionsView,
		),
		roles.Admin: with(
			shared.PermUsersView,
			shared.PermUsersManage,
			shared.PermRolesView,
			shared.PermAuditView,
			shared.PermSecurityView,
			shared.PermSecurityManage,
			shared.PermCommunityModerate,
			shared.PermSystemSettings,
		),
		roles.Compliance: with(
			shared.PermAuditView,
			shared.PermAuditExport,
			shared.PermComplianceView,
			shared.PermSecurityView,
			shared.PermUsersView,
		),
		roles.Pharmco: with(
			shared.PermTrialsView,
			shared.PermTrialsManage,
			shared.PermResearchView,
		),
		roles.Researcher: with(
			shared.PermResearchView,
			shared.PermResearchExport,
			shared.PermTrialsView,
		),
		roles.Superadmin: AllCapabilities(),
	}
}

// AllCapabilities lists every capability known to the portal.
func AllCapabilities() []string {
	var all []string
	all = append(all, shared.CoreScopes()...)
	all = append(all, shared.ClinicalScopes()...)
	all = append(all, shared.OversightScopes()...)
	all = append(all, shared.ResearchScopes()...)
	return normalizePermissions(all)
}
