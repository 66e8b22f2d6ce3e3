// Package repository provides package repositories the solver can resolve
// against: package definition manifests, in-memory, filesystem and S3
// repositories, and providers layering repositories, filters and caching.
package repository

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// Manifest represents a package.yaml package definition.
type Manifest struct {
	Name        string     `yaml:"name" json:"name"`
	Version     string     `yaml:"version" json:"version"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Authors     []string   `yaml:"authors,omitempty" json:"authors,omitempty"`
	Timestamp   int64      `yaml:"timestamp,omitempty" json:"timestamp,omitempty"`
	Requires    []string   `yaml:"requires,omitempty" json:"requires,omitempty"`
	Variants    [][]string `yaml:"variants,omitempty" json:"variants,omitempty"`
}

// ManifestFile is the package definition filename.
const ManifestFile = "package.yaml"

// ReadManifest reads and parses the package.yaml in dir.
func ReadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest parses manifest data from YAML bytes.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// WriteManifest writes m to dir, creating it if needed.
func WriteManifest(m *Manifest, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644)
}

// Validate checks the name, version and every requirement string.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("manifest: name is required")
	}
	if req, err := version.ParseRequirement(m.Name); err != nil || req.Family != m.Name {
		return fmt.Errorf("manifest: invalid package name %q", m.Name)
	}
	if _, err := version.Parse(m.Version); err != nil {
		return fmt.Errorf("manifest %s: %w", m.Name, err)
	}
	if _, err := version.ParseRequirements(m.Requires); err != nil {
		return fmt.Errorf("manifest %s: %w", m.FullName(), err)
	}
	for i, v := range m.Variants {
		if _, err := version.ParseRequirements(v); err != nil {
			return fmt.Errorf("manifest %s: variant %d: %w", m.FullName(), i, err)
		}
	}
	return nil
}

// FullName returns the package name with version.
func (m *Manifest) FullName() string {
	if m.Version == "" {
		return m.Name
	}
	return m.Name + "-" + m.Version
}

// SolverVariants returns one solver variant per declared variant, in index
// order, or a single variant without an index when none are declared.
// Each variant's Handle is m.
func (m *Manifest) SolverVariants() ([]*solver.Variant, error) {
	ver, err := version.Parse(m.Version)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", m.Name, err)
	}
	common, err := version.ParseRequirements(m.Requires)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", m.FullName(), err)
	}

	build := func(index int, extra []version.Requirement) (*solver.Variant, error) {
		reqs := append(append([]version.Requirement(nil), common...), extra...)
		v, err := solver.NewVariant(m.Name, ver, index, reqs)
		if err != nil {
			return nil, err
		}
		if m.Timestamp > 0 {
			v.Timestamp = time.Unix(m.Timestamp, 0).UTC()
		}
		v.Handle = m
		return v, nil
	}

	if len(m.Variants) == 0 {
		v, err := build(solver.NoIndex, nil)
		if err != nil {
			return nil, err
		}
		return []*solver.Variant{v}, nil
	}

	variants := make([]*solver.Variant, 0, len(m.Variants))
	for i, vr := range m.Variants {
		extra, err := version.ParseRequirements(vr)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: variant %d: %w", m.FullName(), i, err)
		}
		v, err := build(i, extra)
		if err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, nil
}
