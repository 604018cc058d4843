package rules

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"example.com/siwegate/internal/siwe"
)

const (
	ProfileStrict      = "strict"
	ProfileDevelopment = "development"
	ProfileSecurity    = "security"
	ProfileBasic       = "basic"
)

var (
	ErrUnknownProfileFormat = errors.New("rules: unknown profile file format")
	ErrInvalidProfile       = errors.New("rules: invalid profile")
)

type Action string

const (
	ActionDrop    Action = "drop"
	ActionPromote Action = "promote"
)

// FilterRule matches diagnostics by type, severity and code. Empty lists
// match anything; a diagnostic must satisfy every non-empty list.
type FilterRule struct {
	Action     Action           `json:"action" yaml:"action" toml:"action"`
	Types      []siwe.ErrorType `json:"types,omitempty" yaml:"types,omitempty" toml:"types,omitempty"`
	Severities []siwe.Severity  `json:"severities,omitempty" yaml:"severities,omitempty" toml:"severities,omitempty"`
	Codes      []siwe.Code      `json:"codes,omitempty" yaml:"codes,omitempty" toml:"codes,omitempty"`

	// Severity is the target of a promote rule.
	Severity siwe.Severity `json:"severity,omitempty" yaml:"severity,omitempty" toml:"severity,omitempty"`
}

func (r FilterRule) matches(d siwe.ValidationError) bool {
	return containsOrEmpty(r.Types, d.Type) &&
		containsOrEmpty(r.Severities, d.Severity) &&
		containsOrEmpty(r.Codes, d.Code)
}

func containsOrEmpty[T comparable](list []T, v T) bool {
	if len(list) == 0 {
		return true
	}
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// Profile is a named, stateless filtering policy.
type Profile struct {
	Name        string `json:"name" yaml:"name" toml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`

	// SecurityChecks enables the cross-field security validators.
	SecurityChecks bool         `json:"securityChecks" yaml:"securityChecks" toml:"securityChecks"`
	Rules          []FilterRule `json:"rules,omitempty" yaml:"rules,omitempty" toml:"rules,omitempty"`
}

// Apply returns the diagnostics that survive the profile. Rules run in order;
// the first drop rule that matches removes a diagnostic, every matching
// promote rule rewrites its severity. The input is not modified.
func (p Profile) Apply(diags []siwe.ValidationError) []siwe.ValidationError {
	out := make([]siwe.ValidationError, 0, len(diags))
next:
	for _, d := range diags {
		for _, r := range p.Rules {
			if !r.matches(d) {
				continue
			}
			switch r.Action {
			case ActionDrop:
				continue next
			case ActionPromote:
				d.Severity = r.Severity
			}
		}
		out = append(out, d)
	}
	return out
}

func (p Profile) validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	for i, r := range p.Rules {
		switch r.Action {
		case ActionDrop:
		case ActionPromote:
			switch r.Severity {
			case siwe.SeverityError, siwe.SeverityWarning, siwe.SeverityInfo:
			default:
				return fmt.Errorf("%w: %s rule %d promotes to %q", ErrInvalidProfile, p.Name, i, r.Severity)
			}
		default:
			return fmt.Errorf("%w: %s rule %d has action %q", ErrInvalidProfile, p.Name, i, r.Action)
		}
	}
	return nil
}

// ProfileSet maps profile names to profiles. It is plain configuration and
// is passed to the engine rather than held globally.
type ProfileSet map[string]Profile

// DefaultProfiles returns a fresh copy of the four built-in profiles.
func DefaultProfiles() ProfileSet {
	return ProfileSet{
		ProfileStrict: {
			Name:           ProfileStrict,
			Description:    "every diagnostic, security checks enabled",
			SecurityChecks: true,
		},
		ProfileDevelopment: {
			Name:        ProfileDevelopment,
			Description: "local development: security warnings and dev-host notes hidden",
			Rules: []FilterRule{
				{Action: ActionDrop, Types: []siwe.ErrorType{siwe.TypeSecurity}, Severities: []siwe.Severity{siwe.SeverityWarning}},
				{Action: ActionDrop, Severities: []siwe.Severity{siwe.SeverityInfo},
					Codes: []siwe.Code{siwe.CodeDevTestIndicators, siwe.CodeDevelopmentDomain, siwe.CodeDomainSecurityRisk}},
			},
		},
		ProfileSecurity: {
			Name:           ProfileSecurity,
			Description:    "security warnings are treated as errors",
			SecurityChecks: true,
			Rules: []FilterRule{
				{Action: ActionPromote, Types: []siwe.ErrorType{siwe.TypeSecurity}, Severities: []siwe.Severity{siwe.SeverityWarning},
					Severity: siwe.SeverityError},
			},
		},
		ProfileBasic: {
			Name:        ProfileBasic,
			Description: "format errors and security errors only",
			Rules: []FilterRule{
				{Action: ActionDrop, Severities: []siwe.Severity{siwe.SeverityWarning, siwe.SeverityInfo}},
				{Action: ActionDrop, Types: []siwe.ErrorType{siwe.TypeCompliance}},
			},
		},
	}
}

func (s ProfileSet) Lookup(name string) (Profile, bool) {
	p, ok := s[name]
	return p, ok
}

// Names returns the profile names in sorted order.
func (s ProfileSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge returns a new set with other's profiles layered over s.
func (s ProfileSet) Merge(other ProfileSet) ProfileSet {
	out := make(ProfileSet, len(s)+len(other))
	for k, v := range s {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

type profileFile struct {
	Profiles []Profile `json:"profiles" yaml:"profiles" toml:"profiles"`
}

// LoadProfiles reads a profile file; the format follows the extension
// (.yaml, .yml, .toml or .json).
func LoadProfiles(path string) (ProfileSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	set, err := DecodeProfiles(data, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// DecodeProfiles parses profiles in the given format.
func DecodeProfiles(data []byte, format string) (ProfileSet, error) {
	var pf profileFile
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &pf); err != nil {
			return nil, fmt.Errorf("decode yaml profiles: %w", err)
		}
	case "toml":
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&pf); err != nil {
			return nil, fmt.Errorf("decode toml profiles: %w", err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&pf); err != nil {
			return nil, fmt.Errorf("decode json profiles: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfileFormat, format)
	}
	set := make(ProfileSet, len(pf.Profiles))
	for _, p := range pf.Profiles {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := set[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate profile %q", ErrInvalidProfile, p.Name)
		}
		set[p.Name] = p
	}
	return set, nil
}
