// AngelaMos | 2026
// loader.go

package entitlement

import (
	"fmt"
	"slices"

	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.yaml.in/yaml/v3"

	"github.com/carterperez-dev/marketplace-access/internal/identity"
)

// Document is the serialisable form of a Matrix, used for the optional
// matrix file and the admin snapshot endpoint.
type Document struct {
	Roles    map[string]RoleServicesDoc `koanf:"roles"    json:"roles"    yaml:"roles"`
	Features map[string]FeatureRuleDoc  `koanf:"features" json:"features" yaml:"features"`
}

type RoleServicesDoc struct {
	Basic []string `koanf:"basic" json:"basic" yaml:"basic"`
	Pro   []string `koanf:"pro"   json:"pro"   yaml:"pro"`
}

type FeatureRuleDoc struct {
	AllowedRoles []string `koanf:"allowed_roles" json:"allowedRoles" yaml:"allowed_roles"`
	ProOnly      bool     `koanf:"pro_only"      json:"proOnly"      yaml:"pro_only"`
}

func LoadFile(path string) (*Matrix, error) {
	return load(file.Provider(path))
}

func LoadBytes(data []byte) (*Matrix, error) {
	return load(rawbytes.Provider(data))
}

func load(p koanf.Provider) (*Matrix, error) {
	k := koanf.New(".")

	if err := k.Load(p, kyaml.Parser()); err != nil {
		return nil, fmt.Errorf("load matrix: %w", err)
	}

	var doc Document
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("decode matrix: %w", err)
	}

	m, err := FromDocument(doc)
	if err != nil {
		return nil, err
	}

	if err := m.ValidateErr(); err != nil {
		return nil, fmt.Errorf("load matrix: %w", err)
	}

	return m, nil
}

// FromDocument rejects unknown role and feature names up front.
func FromDocument(doc Document) (*Matrix, error) {
	roleServices := make(map[identity.Role]RoleServices, len(doc.Roles))
	for name, rs := range doc.Roles {
		role, err := identity.ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("matrix roles: %w", err)
		}
		roleServices[role] = RoleServices{Basic: rs.Basic, Pro: rs.Pro}
	}

	features := make(map[Feature]FeatureRule, len(doc.Features))
	for name, fr := range doc.Features {
		f, err := ParseFeature(name)
		if err != nil {
			return nil, fmt.Errorf("matrix features: %w", err)
		}

		allowed := make([]identity.Role, 0, len(fr.AllowedRoles))
		for _, r := range fr.AllowedRoles {
			role, err := identity.ParseRole(r)
			if err != nil {
				return nil, fmt.Errorf("matrix feature %q: %w", name, err)
			}
			allowed = append(allowed, role)
		}

		features[f] = FeatureRule{AllowedRoles: allowed, ProOnly: fr.ProOnly}
	}

	return NewMatrix(roleServices, features), nil
}

// YAML renders the matrix in the same shape LoadFile reads.
func (m *Matrix) YAML() ([]byte, error) {
	return yaml.Marshal(m.Document())
}

func (m *Matrix) Document() Document {
	doc := Document{
		Roles:    make(map[string]RoleServicesDoc, len(m.roleServices)),
		Features: make(map[string]FeatureRuleDoc, len(m.features)),
	}

	for role, rs := range m.roleServices {
		doc.Roles[string(role)] = RoleServicesDoc{
			Basic: slices.Clone(rs.Basic),
			Pro:   slices.Clone(rs.Pro),
		}
	}

	for f, rule := range m.features {
		doc.Features[string(f)] = FeatureRuleDoc{
			AllowedRoles: identity.RoleStrings(rule.AllowedRoles),
			ProOnly:      rule.ProOnly,
		}
	}

	return doc
}
