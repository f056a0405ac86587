package roles

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role identifies one tier of portal user. The set is closed.
type Role string

const (
	Patient    Role = "patient"
	Provider   Role = "provider"
	Admin      Role = "admin"
	Compliance Role = "compliance"
	Caregiver  Role = "caregiver"
	Pharmco    Role = "pharmco"
	Researcher Role = "researcher"
	Superadmin Role = "superadmin"
)

// DefaultFallback is the landing path for principals whose role is unknown.
const DefaultFallback = "/dashboard"

var all = []Role{Patient, Provider, Admin, Compliance, Caregiver, Pharmco, Researcher, Superadmin}

var displayOverrides = map[Role]string{
	Pharmco:    "Pharma Partner",
	Superadmin: "Super Admin",
}

// All returns every known role in display order.
func All() []Role {
	out := make([]Role, len(all))
	copy(out, all)
	return out
}

// Parse normalises s and reports whether it names a known role.
func Parse(s string) (Role, bool) {
	candidate := Role(strings.ToLower(strings.TrimSpace(s)))
	if candidate.Valid() {
		return candidate, true
	}
	return "", false
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	for _, known := range all {
		if r == known {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// DisplayName returns the human readable label of the role.
func (r Role) DisplayName() string {
	if label, ok := displayOverrides[r]; ok {
		return label
	}
	if r == "" {
		return "Guest"
	}
	return cases.Title(language.English).String(string(r))
}

// Route binds a role to the path prefixes it may reach and its landing page.
type Route struct {
	Role        Role
	Description string
	Prefixes    []string
	Fallback    string
}
