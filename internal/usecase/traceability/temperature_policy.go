package traceability

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"foodtrace/internal/domain/trace"
)

type temperaturePolicyConfig struct {
	Min         *float64 `toml:"min"`
	Max         *float64 `toml:"max"`
	Description string   `toml:"description"`
}

type temperaturePolicyFile struct {
	Version  int                                `toml:"version"`
	Policies map[string]temperaturePolicyConfig `toml:"policies"`
}

type TemperaturePolicy struct {
	Name        string
	Band        trace.TemperatureBand
	Description string
}

// TemperaturePolicies maps a policy name to its band.
type TemperaturePolicies map[string]TemperaturePolicy

func (p TemperaturePolicies) Lookup(name string) (TemperaturePolicy, bool) {
	policy, ok := p[normalizePolicyName(name)]
	return policy, ok
}

func (p TemperaturePolicies) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadTemperaturePolicies reads a TOML policy file. A missing file yields an
// empty set so deployments without custom policies keep working.
func LoadTemperaturePolicies(path string) (TemperaturePolicies, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return TemperaturePolicies{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TemperaturePolicies{}, nil
		}
		return nil, err
	}
	return ParseTemperaturePolicies(raw)
}

func ParseTemperaturePolicies(raw []byte) (TemperaturePolicies, error) {
	var file temperaturePolicyFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("%w: parse temperature policies: %v", trace.ErrValidation, err)
	}
	if file.Version != 0 && file.Version != 1 {
		return nil, fmt.Errorf("%w: unsupported temperature policy version %d", trace.ErrValidation, file.Version)
	}

	policies := make(TemperaturePolicies, len(file.Policies))
	for rawName, cfg := range file.Policies {
		name := normalizePolicyName(rawName)
		if name == "" {
			return nil, fmt.Errorf("%w: temperature policy name is required", trace.ErrValidation)
		}
		if name == trace.DefaultPolicyKey || strings.HasPrefix(name, "range:") {
			return nil, fmt.Errorf("%w: temperature policy name %q is reserved", trace.ErrValidation, name)
		}
		if cfg.Min == nil || cfg.Max == nil {
			return nil, fmt.Errorf("%w: policies.%s requires min and max", trace.ErrValidation, name)
		}

		band := trace.TemperatureBand{Min: *cfg.Min, Max: *cfg.Max}
		if err := band.Validate(); err != nil {
			return nil, fmt.Errorf("policies.%s: %w", name, err)
		}
		policies[name] = TemperaturePolicy{
			Name:        name,
			Band:        band,
			Description: strings.TrimSpace(cfg.Description),
		}
	}
	return policies, nil
}

func normalizePolicyName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
