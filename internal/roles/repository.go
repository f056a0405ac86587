package roles

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed roles.yaml
var defaultTable []byte

type tableDocument struct {
	Roles []routeDocument `yaml:"roles"`
}

type routeDocument struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Fallback    string   `yaml:"fallback"`
	Prefixes    []string `yaml:"prefixes"`
}

// Load reads the route table from path, or the embedded default table when
// path is empty.
func Load(path string) (*Registry, error) {
	if path == "" {
		return ParseTable(defaultTable)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("roles: read table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes a YAML route table into a Registry.
func ParseTable(data []byte) (*Registry, error) {
	var doc tableDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("roles: decode table: %w", err)
	}
	routes := make([]Route, 0, len(doc.Roles))
	for _, entry := range doc.Roles {
		role, ok := Parse(entry.Name)
		if !ok {
			return nil, fmt.Errorf("roles: unknown role %q", entry.Name)
		}
		routes = append(routes, Route{
			Role:        role,
			Description: entry.Description,
			Prefixes:    entry.Prefixes,
			Fallback:    entry.Fallback,
		})
	}
	return NewRegistry(routes)
}

// Default returns the registry built from the embedded table.
func Default() *Registry {
	reg, err := ParseTable(defaultTable)
	if err != nil {
		panic(err)
	}
	return reg
}
