// Package rbac decides what an authenticated principal may see and do.
package rbac

import (
	"sort"
	"strings"

	"github.com/careportal/careportal/internal/auth"
	"github.com/careportal/careportal/internal/roles"
)

// Requirement describes what a page, nav entry or endpoint asks of a
// principal: a capability tag, a role allow-list, or both. Either one
// satisfies the requirement.
type Requirement struct {
	Capability string
	Roles      []roles.Role
}

// Empty reports whether the requirement asks for nothing.
func (r Requirement) Empty() bool {
	return strings.TrimSpace(r.Capability) == "" && len(r.Roles) == 0
}

// Capability builds a capability-only requirement.
func Capability(capability string) Requirement {
	return Requirement{Capability: capability}
}

// AnyRole builds a role-only requirement.
func AnyRole(rs ...roles.Role) Requirement {
	return Requirement{Roles: rs}
}

// Evaluator answers permission questions from role defaults plus explicit
// grants carried by the principal. It holds no per-request state.
type Evaluator struct {
	grants map[roles.Role]map[string]struct{}
}

// NewEvaluator builds an Evaluator over grants.
func NewEvaluator(grants Grants) *Evaluator {
	index := make(map[roles.Role]map[string]struct{}, len(grants))
	for role, caps := range grants {
		set := make(map[string]struct{}, len(caps))
		for _, c := range normalizePermissions(caps) {
			set[c] = struct{}{}
		}
		index[role] = set
	}
	return &Evaluator{grants: index}
}

// DefaultEvaluator returns an Evaluator over DefaultGrants.
func DefaultEvaluator() *Evaluator {
	return NewEvaluator(DefaultGrants())
}

// CanAccess reports whether p satisfies req. Superadmin satisfies every
// requirement. An empty requirement is satisfied by anyone, including an
// anonymous caller. Otherwise a nil principal is refused.
func (e *Evaluator) CanAccess(p *auth.Principal, req Requirement) bool {
	if p != nil && p.Role == roles.Superadmin {
		return true
	}
	if req.Empty() {
		return true
	}
	if p == nil {
		return false
	}
	for _, allowed := range req.Roles {
		if allowed == p.Role {
			return true
		}
	}
	capability := strings.ToLower(strings.TrimSpace(req.Capability))
	if capability == "" {
		return false
	}
	return e.holds(p, capability)
}

// HasAny reports whether p holds at least one of caps.
func (e *Evaluator) HasAny(p *auth.Principal, caps ...string) bool {
	required := normalizePermissions(caps)
	if len(required) == 0 {
		return true
	}
	for _, c := range required {
		if e.CanAccess(p, Capability(c)) {
			return true
		}
	}
	return false
}

// Capabilities returns the sorted effective capability set of p.
func (e *Evaluator) Capabilities(p *auth.Principal) []string {
	if p == nil {
		return []string{}
	}
	if p.Role == roles.Superadmin {
		return AllCapabilities()
	}
	set := make(map[string]struct{})
	for c := range e.grants[p.Role] {
		set[c] = struct{}{}
	}
	for _, c := range normalizePermissions(p.Permissions) {
		set[c] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (e *Evaluator) holds(p *auth.Principal, capability string) bool {
	if _, ok := e.grants[p.Role][capability]; ok {
		return true
	}
	return hasAnyPermission(p.Permissions, []string{capability})
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(strings.ToLower(p))
		if p == "" {
			continue
		}
		unique[p] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for p := range unique {
		normalized = append(normalized, p)
	}
	sort.Strings(normalized)
	return normalized
}

func hasAnyPermission(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, p := range granted {
		set[strings.TrimSpace(strings.ToLower(p))] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}
