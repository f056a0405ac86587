package shared

// Portal capabilities. Navigation items, pages and API endpoints are gated on
// these tags; roles receive default grants in rbac.DefaultGrants and a
// principal may carry additional explicit grants in its credential.
const (
	PermDashboardView = "dashboard.view"
	PermProfileEdit   = "profile.edit"

	PermAppointmentsView   = "appointments.view"
	PermAppointmentsManage = "appointments.manage"
	PermTelemedicineJoin   = "telemedicine.join"

	PermRecordsView  = "records.view"
	PermRecordsEdit  = "records.edit"
	PermPatientsView = "patients.view"

	PermPrescriptionsView  = "prescriptions.view"
	PermPrescriptionsWrite = "prescriptions.write"

	PermMessagesView      = "messages.view"
	PermNotificationsView = "notifications.view"
	PermCommunityView     = "community.view"
	PermCommunityModerate = "community.moderate"
)

// Administrative and oversight capabilities.
const (
	PermUsersView   = "users.view"
	PermUsersManage = "users.manage"
	PermRolesView   = "roles.view"

	PermAuditView       = "audit.view"
	PermAuditExport     = "audit.export"
	PermComplianceView  = "compliance.view"
	PermSecurityView    = "security.view"
	PermSecurityManage  = "security.manage"
	PermPermissionsView = "permissions.view"
	PermSystemSettings  = "system.settings"
)

// Research and industry capabilities.
const (
	PermResearchView   = "research.view"
	PermResearchExport = "research.export"
	PermTrialsView     = "trials.view"
	PermTrialsManage   = "trials.manage"
)

// CoreScopes lists the capabilities every authenticated principal needs to
// use the portal shell.
func CoreScopes() []string {
	return []string{
		PermDashboardView,
		PermProfileEdit,
		PermMessagesView,
		PermNotificationsView,
		PermCommunityView,
		PermPermissionsView,
	}
}

// ClinicalScopes lists capabilities around appointments and medical records.
func ClinicalScopes() []string {
	return []string{
		PermAppointmentsView,
		PermAppointmentsManage,
		PermTelemedicineJoin,
		PermRecordsView,
		PermRecordsEdit,
		PermPatientsView,
		PermPrescriptionsView,
		PermPrescriptionsWrite,
	}
}

// OversightScopes lists administrative, compliance and security capabilities.
func OversightScopes() []string {
	return []string{
		PermUsersView,
		PermUsersManage,
		PermRolesView,
		PermAuditView,
		PermAuditExport,
		PermComplianceView,
		PermSecurityView,
		PermSecurityManage,
		PermCommunityModerate,
		PermSystemSettings,
	}
}

// ResearchScopes lists research and pharma capabilities.
func ResearchScopes() []string {
	return []string{
		PermResearchView,
		PermResearchExport,
		PermTrialsView,
		PermTrialsManage,
	}
}
