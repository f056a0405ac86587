package roles

import (
	"fmt"
	"strings"
)

// Registry is the static role to route-pattern table. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	order      []Role
	routes     map[Role]Route
	namespaces []string
}

// NewRegistry validates routes and builds a Registry. Every known role must
// appear exactly once with exactly one fallback path.
func NewRegistry(routes []Route) (*Registry, error) {
	reg := &Registry{routes: make(map[Role]Route, len(routes))}
	seenPrefix := make(map[string]struct{})
	for _, route := range routes {
		if !route.Role.Valid() {
			return nil, fmt.Errorf("roles: unknown role %q", route.Role)
		}
		if _, dup := reg.routes[route.Role]; dup {
			return nil, fmt.Errorf("roles: role %q declared twice", route.Role)
		}
		if !strings.HasPrefix(route.Fallback, "/") {
			return nil, fmt.Errorf("roles: role %q needs an absolute fallback path", route.Role)
		}
		prefixes := make([]string, 0, len(route.Prefixes))
		for _, prefix := range route.Prefixes {
			if err := validatePrefix(prefix); err != nil {
				return nil, fmt.Errorf("roles: role %q: %w", route.Role, err)
			}
			prefixes = append(prefixes, prefix)
			if _, ok := seenPrefix[prefix]; !ok {
				seenPrefix[prefix] = struct{}{}
				reg.namespaces = append(reg.namespaces, prefix)
			}
		}
		route.Prefixes = prefixes
		reg.routes[route.Role] = route
		reg.order = append(reg.order, route.Role)
	}
	for _, role := range all {
		if _, ok := reg.routes[role]; !ok {
			return nil, fmt.Errorf("roles: role %q has no route entry", role)
		}
	}
	return reg, nil
}

// AllowedPrefixes returns the ordered prefixes role may access. Unknown roles
// yield an empty slice.
func (r *Registry) AllowedPrefixes(role Role) []string {
	if r == nil {
		return []string{}
	}
	route, ok := r.routes[role]
	if !ok {
		return []string{}
	}
	out := make([]string, len(route.Prefixes))
	copy(out, route.Prefixes)
	return out
}

// FallbackPath returns the landing page for role, or DefaultFallback.
func (r *Registry) FallbackPath(role Role) string {
	if r == nil {
		return DefaultFallback
	}
	if route, ok := r.routes[role]; ok {
		return route.Fallback
	}
	return DefaultFallback
}

// Owns reports whether one of role's prefixes matches path.
func (r *Registry) Owns(role Role, path string) bool {
	if r == nil {
		return false
	}
	route, ok := r.routes[role]
	if !ok {
		return false
	}
	for _, prefix := range route.Prefixes {
		if MatchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Namespaced reports whether path falls under a prefix claimed by any role.
// Paths outside every namespace are shared by all authenticated principals.
func (r *Registry) Namespaced(path string) bool {
	if r == nil {
		return false
	}
	for _, prefix := range r.namespaces {
		if MatchPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Permits reports whether role may reach path as far as namespaces go: the
// path is shared or role owns it.
func (r *Registry) Permits(role Role, path string) bool {
	return !r.Namespaced(path) || r.Owns(role, path)
}

// Routes returns the table in declaration order.
func (r *Registry) Routes() []Route {
	if r == nil {
		return nil
	}
	out := make([]Route, 0, len(r.order))
	for _, role := range r.order {
		route := r.routes[role]
		route.Prefixes = append([]string(nil), route.Prefixes...)
		out = append(out, route)
	}
	return out
}

// MatchPrefix matches path against prefix by equality or prefix plus a path
// separator, so "/admin" never matches "/administration".
func MatchPrefix(path, prefix string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" {
		return path == "/"
	}
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func validatePrefix(prefix string) error {
	if !strings.HasPrefix(prefix, "/") {
		return fmt.Errorf("prefix %q must start with /", prefix)
	}
	if len(prefix) > 1 && strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("prefix %q must not end with /", prefix)
	}
	return nil
}
