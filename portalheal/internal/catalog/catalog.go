// Package catalog holds the known portal markup variants. Each profile maps
// semantic roles to CSS selectors; signatures feed the diagnostic
// fingerprint. Profile order is match priority.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/paulhshort/grid4-netsapiens-skin-sub000/portalheal/internal/dom"
)

// Role is a semantic label resolved to a concrete selector by a profile.
type Role string

const (
	RoleNavigationContainer Role = "navigationContainer"
	RoleMainContent         Role = "mainContent"
	RoleSidebar             Role = "sidebar"
	RoleHeader              Role = "header"
	RoleNavigationList      Role = "navigationList"
	RoleRootContainer       Role = "rootContainer"
)

// Roles lists every role in a stable order.
func Roles() []Role {
	return []Role{
		RoleNavigationContainer,
		RoleMainContent,
		RoleSidebar,
		RoleHeader,
		RoleNavigationList,
		RoleRootContainer,
	}
}

// KeyRoles are sampled to decide whether a profile matches.
func KeyRoles() []Role {
	return []Role{RoleNavigationContainer, RoleMainContent}
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles() {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("catalog: invalid")

// Profile is one known markup variant.
type Profile struct {
	Name      string          `yaml:"name" json:"name"`
	Selectors map[Role]string `yaml:"selectors" json:"selectors"`
}

// Signature is a fingerprint entry: Key is reported when Selector matches.
type Signature struct {
	Key      string `yaml:"key" json:"key"`
	Selector string `yaml:"selector" json:"selector"`
}

// Catalog is the static, read-only selector catalog.
type Catalog struct {
	Profiles   []Profile   `yaml:"profiles" json:"profiles"`
	Signatures []Signature `yaml:"signatures" json:"signatures"`
}

// Validate checks names are unique and every role key is known.
func (c *Catalog) Validate() error {
	if len(c.Profiles) == 0 {
		return fmt.Errorf("%w: no profiles", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Profiles))
	for i, p := range c.Profiles {
		if p.Name == "" {
			return fmt.Errorf("%w: profile %d has no name", ErrInvalid, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate profile %q", ErrInvalid, p.Name)
		}
		seen[p.Name] = true
		for role, sel := range p.Selectors {
			if _, ok := ParseRole(string(role)); !ok {
				return fmt.Errorf("%w: profile %q: unknown role %q", ErrInvalid, p.Name, role)
			}
			if strings.TrimSpace(sel) == "" {
				continue
			}
			if err := dom.ValidSelector(sel); err != nil {
				return fmt.Errorf("%w: profile %q: role %s: %v", ErrInvalid, p.Name, role, err)
			}
		}
	}
	for i, s := range c.Signatures {
		if s.Key == "" || s.Selector == "" {
			return fmt.Errorf("%w: signature %d is incomplete", ErrInvalid, i)
		}
		if err := dom.ValidSelector(s.Selector); err != nil {
			return fmt.Errorf("%w: signature %q: %v", ErrInvalid, s.Key, err)
		}
	}
	return nil
}

// Profile returns the named profile.
func (c *Catalog) Profile(name string) (Profile, bool) {
	for _, p := range c.Profiles {
		if p.Name == name {
			return p, true
		}
	}
	return Profile{}, false
}

// Union returns, for every role, the comma-joined union of all profiles'
// selectors in catalog order with duplicates removed.
func (c *Catalog) Union() map[Role]string {
	out := make(map[Role]string, len(Roles()))
	for _, role := range Roles() {
		var parts []string
		seen := make(map[string]bool)
		for _, p := range c.Profiles {
			sel := strings.TrimSpace(p.Selectors[role])
			if sel == "" || seen[sel] {
				continue
			}
			seen[sel] = true
			parts = append(parts, sel)
		}
		out[role] = strings.Join(parts, ", ")
	}
	return out
}

// LoadFile reads a YAML catalog.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Marshal encodes the catalog as YAML.
func (c *Catalog) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
