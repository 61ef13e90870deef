// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PlugHub Contributors

// Package plugin provides plugin management and lifecycle control.
package plugin

import (
	"fmt"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

// Dialect identifies the plugin runtime.
type Dialect string

// Plugin dialects supported by the host.
const (
	DialectLua    Dialect = "lua"
	DialectNative Dialect = "native"
)

// Manifest represents a plugin.yaml file.
type Manifest struct {
	ID           string   `yaml:"id" json:"id"`
	Name         string   `yaml:"name" json:"name"`
	Version      string   `yaml:"version" json:"version"`
	Author       string   `yaml:"author,omitempty" json:"author,omitempty"`
	Description  string   `yaml:"description,omitempty" json:"description,omitempty"`
	Dialect      Dialect  `yaml:"dialect" json:"dialect"`
	Main         string   `yaml:"main,omitempty" json:"main,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Builtin      bool     `yaml:"builtin,omitempty" json:"builtin,omitempty"`
}

// maxIDLength is the maximum allowed length for plugin identifiers.
const maxIDLength = 64

// idPattern validates plugin identifiers: must start with a lowercase
// letter, followed by lowercase letters, digits, or hyphens. Cannot end
// with a hyphen. Single character identifiers are allowed.
var idPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("manifest data is empty")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	if m.ID == "" || !idPattern.MatchString(m.ID) {
		return fmt.Errorf("id %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.ID)
	}
	if len(m.ID) > maxIDLength {
		return fmt.Errorf("id must be %d characters or less, got %d", maxIDLength, len(m.ID))
	}

	if m.Name == "" {
		return fmt.Errorf("name is required")
	}

	if m.Version == "" {
		return fmt.Errorf("version is required")
	}
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("version %q is not valid semver: %w", m.Version, err)
	}

	switch m.Dialect {
	case DialectLua:
		if m.Main == "" {
			return fmt.Errorf("main is required when dialect is lua")
		}
	case DialectNative:
		// Native plugins are resolved by id through the host registry;
		// main is ignored.
	default:
		return fmt.Errorf("dialect must be 'lua' or 'native', got %q", m.Dialect)
	}

	for _, dep := range m.Dependencies {
		if dep == m.ID {
			return fmt.Errorf("plugin %q cannot depend on itself", m.ID)
		}
		if !idPattern.MatchString(dep) {
			return fmt.Errorf("dependency %q is not a valid plugin id", dep)
		}
	}

	return nil
}

// SemVersion returns the parsed manifest version. Validate must have
// succeeded first.
func (m *Manifest) SemVersion() *semver.Version {
	v, _ := semver.NewVersion(m.Version)
	return v
}
