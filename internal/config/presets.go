package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	sigsyaml "sigs.k8s.io/yaml"
)

// Presets are named lists of removal patterns loaded from the config file
// (.bagfilter.yaml), so recurring cleanups can be selected with --preset.
//
//	presets:
//	  cameras:
//	    - /camera/*
//	  debug:
//	    - /rosout
//	    - /diagnostics*
type Presets map[string][]string

// presetNamePattern validates preset names.
var presetNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ParsePresets parses the presets section from raw config file bytes.
// Other sections are ignored.
func ParsePresets(data []byte) (Presets, error) {
	var raw struct {
		Presets Presets `json:"presets,omitempty"`
	}

	if err := sigsyaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing presets: %w", err)
	}

	if raw.Presets == nil {
		raw.Presets = Presets{}
	}

	if err := raw.Presets.Validate(); err != nil {
		return nil, err
	}

	return raw.Presets, nil
}

// LoadPresets reads the presets from the config file at path. An empty path
// yields no presets.
func LoadPresets(path string) (Presets, error) {
	if path == "" {
		return Presets{}, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // user-provided config path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	return ParsePresets(data)
}

// Validate checks preset names and patterns.
func (p Presets) Validate() error {
	for _, name := range p.Names() {
		if !presetNamePattern.MatchString(name) {
			return fmt.Errorf("presets[%s]: name is invalid (must match %s)", name, presetNamePattern.String())
		}

		patterns := p[name]
		if len(patterns) == 0 {
			return fmt.Errorf("presets[%s]: at least one pattern is required", name)
		}

		for i, pattern := range patterns {
			if strings.TrimSpace(pattern) == "" {
				return fmt.Errorf("presets[%s][%d]: pattern must not be empty", name, i)
			}
		}
	}

	return nil
}

// Names returns the preset names in sorted order.
func (p Presets) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// Expand returns the patterns of the named presets in the order given.
func (p Presets) Expand(names []string) ([]string, error) {
	var out []string

	for _, name := range names {
		patterns, ok := p[name]
		if !ok {
			if len(p) == 0 {
				return nil, fmt.Errorf("unknown preset %q: no presets configured", name)
			}

			return nil, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(p.Names(), ", "))
		}

		out = append(out, patterns...)
	}

	return out, nil
}
