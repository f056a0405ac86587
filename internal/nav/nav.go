// Package nav builds the navigation menu from tagged descriptors. Visibility
// comes from the permission evaluator and the role namespaces; there is no
// per-role menu definition.
package nav

import (
	"net/http"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/rbac"
	"github.com/careportal/careportal/internal/roles"
	"github.com/careportal/careportal/internal/shared"
	"github.com/careportal/careportal/internal/view"
)

// Item is a navigation descriptor.
type Item struct {
	Label       string
	Href        string
	Group       string
	Requirement rbac.Requirement
	// Tile marks items shown on dashboards as well as in the menu.
	Tile bool
	// NeedsApproval hides the item until an administrator approves the account.
	NeedsApproval bool
}

// Entry is an Item resolved for one principal.
type Entry struct {
	Item
	Show   bool
	Active bool
}

// Items returns the portal navigation in display order.
func Items() []Item {
	return []Item{
		{Label: "Dashboard", Href: "/dashboard", Group: "Overview", Requirement: rbac.Capability(shared.PermDashboardView)},

		{Label: "Appointments", Href: "/appointments", Group: "Care", Requirement: rbac.Capability(shared.PermAppointmentsView), Tile: true},
		{Label: "Telemedicine", Href: "/telemedicine", Group: "Care", Requirement: rbac.Capability(shared.PermTelemedicineJoin), Tile: true, NeedsApproval: true},
		{Label: "Medical records", Href: "/records", Group: "Care", Requirement: rbac.Capability(shared.PermRecordsView), Tile: true, NeedsApproval: true},
		{Label: "Prescriptions", Href: "/prescriptions", Group: "Care", Requirement: rbac.Capability(shared.PermPrescriptionsView), Tile: true, NeedsApproval: true},
		{Label: "Billing", Href: "/billing", Group: "Care", Requirement: rbac.AnyRole(roles.Patient), Tile: true},
		{Label: "Patients", Href: "/patients", Group: "Care", Requirement: rbac.Capability(shared.PermPatientsView), Tile: true, NeedsApproval: true},

		{Label: "Messages", Href: "/messages", Group: "Community", Requirement: rbac.Capability(shared.PermMessagesView), Tile: true},
		{Label: "Notifications", Href: "/notifications", Group: "Community", Requirement: rbac.Capability(shared.PermNotificationsView)},
		{Label: "Community", Href: "/community", Group: "Community", Requirement: rbac.Capability(shared.PermCommunityView)},

		{Label: "Research", Href: "/research", Group: "Research", Requirement: rbac.Capability(shared.PermResearchView), Tile: true, NeedsApproval: true},
		{Label: "Clinical trials", Href: "/trials", Group: "Research", Requirement: rbac.Capability(shared.PermTrialsView), Tile: true, NeedsApproval: true},

		{Label: "Users", Href: "/users", Group: "Oversight", Requirement: rbac.Capability(shared.PermUsersView), Tile: true},
		{Label: "Roles", Href: "/admin/roles", Group: "Oversight", Requirement: rbac.Capability(shared.PermRolesView), Tile: true},
		{Label: "Security console", Href: "/security", Group: "Oversight", Requirement: rbac.Capability(shared.PermSecurityView), Tile: true},
		{Label: "Compliance", Href: "/compliance", Group: "Oversight", Requirement: rbac.Capability(shared.PermComplianceView), Tile: true},
		{Label: "Audit trail", Href: "/audit", Group: "Oversight", Requirement: rbac.Capability(shared.PermAuditView), Tile: true},
		{Label: "Reports", Href: "/reports", Group: "Oversight", Requirement: rbac.AnyRole(roles.Admin, roles.Compliance), Tile: true},

		{Label: "My permissions", Href: "/account/permissions", Group: "Account", Requirement: rbac.Capability(shared.PermPermissionsView)},
	}
}

// Builder resolves descriptors for a principal.
type Builder struct {
	items     []Item
	evaluator *rbac.Evaluator
	registry  *roles.Registry
}

// NewBuilder constructs a Builder over items.
func NewBuilder(items []Item, evaluator *rbac.Evaluator, registry *roles.Registry) *Builder {
	return &Builder{items: items, evaluator: evaluator, registry: registry}
}

// Resolve computes Show and Active for every item.
func (b *Builder) Resolve(p *auth.Principal, currentPath string) []Entry {
	out := make([]Entry, 0, len(b.items))
	for _, item := range b.items {
		out = append(out, Entry{
			Item:   item,
			Show:   b.visible(p, item),
			Active: currentPath != "" && roles.MatchPrefix(currentPath, item.Href),
		})
	}
	return out
}

// Visible returns the items p may see.
func (b *Builder) Visible(p *auth.Principal, currentPath string) []Entry {
	var out []Entry
	for _, e := range b.Resolve(p, currentPath) {
		if e.Show {
			out = append(out, e)
		}
	}
	return out
}

// Tiles returns the dashboard tiles p may see.
func (b *Builder) Tiles(p *auth.Principal) []Entry {
	var out []Entry
	for _, e := range b.Visible(p, "") {
		if e.Tile {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the item registered for href.
func (b *Builder) Find(href string) (Item, bool) {
	for _, item := range b.items {
		if item.Href == href {
			return item, true
		}
	}
	return Item{}, false
}

// Items returns the descriptors the builder resolves.
func (b *Builder) Items() []Item {
	return append([]Item(nil), b.items...)
}

func (b *Builder) visible(p *auth.Principal, item Item) bool {
	if p == nil {
		return false
	}
	if item.NeedsApproval && !p.Approved && p.Role != roles.Superadmin {
		return false
	}
	if !b.evaluator.CanAccess(p, item.Requirement) {
		return false
	}
	return b.registry.Permits(p.Role, item.Href)
}

// Decorator fills the layout navigation for the principal on the request.
func (b *Builder) Decorator() view.Decorator {
	return func(_ http.ResponseWriter, r *http.Request, data *view.TemplateData) {
		p := auth.PrincipalFromContext(r.Context())
		if p == nil {
			return
		}
		for _, e := range b.Visible(p, data.CurrentPath) {
			data.Nav = append(data.Nav, view.NavLink{
				Label:  e.Label,
				Href:   e.Href,
				Group:  e.Group,
				Active: e.Active,
			})
		}
	}
}
