// Package lockfile reads and writes .rez.lock files, which record a
// resolved package set so it can be reproduced or checked later.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
)

// FileName is the lock file name.
const FileName = ".rez.lock"

// FormatVersion is the lock file format version written by Generate.
const FormatVersion = "1"

// LockFile represents the contents of .rez.lock.
type LockFile struct {
	Version   string          `json:"version"`
	Request   []string        `json:"request"`
	Timestamp int64           `json:"timestamp,omitempty"`
	Packages  []LockedPackage `json:"packages"`
}

// LockedPackage records one resolved variant.
type LockedPackage struct {
	Family  string `json:"family"`
	Version string `json:"version"`
	Index   *int   `json:"index,omitempty"`
}

func (p LockedPackage) String() string {
	name := p.Family + "-" + p.Version
	if p.Version == "" {
		name = p.Family
	}
	if p.Index != nil {
		name += fmt.Sprintf("[%d]", *p.Index)
	}
	return name
}

// Read reads and parses the lock file in dir. It returns nil if the lock
// file does not exist.
func Read(dir string) (*LockFile, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading lock file: %w", err)
	}

	var lf LockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}
	if lf.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported lock file version %q", lf.Version)
	}
	return &lf, nil
}

// Write writes lf to dir, packages sorted by family.
func Write(dir string, lf *LockFile) error {
	sort.Slice(lf.Packages, func(i, j int) bool {
		return lf.Packages[i].Family < lf.Packages[j].Family
	})

	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling lock file: %w", err)
	}
	if err := os.WriteFile(Path(dir), append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing lock file: %w", err)
	}
	return nil
}

// Path returns the lock file path in dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Generate creates a lock file from a resolve. A zero timestamp is
// omitted.
func Generate(request []string, resolved []*solver.Variant, timestamp time.Time) *LockFile {
	lf := &LockFile{
		Version: FormatVersion,
		Request: append([]string(nil), request...),
	}
	if !timestamp.IsZero() {
		lf.Timestamp = timestamp.Unix()
	}
	for _, v := range resolved {
		lf.Packages = append(lf.Packages, locked(v))
	}
	return lf
}

func locked(v *solver.Variant) LockedPackage {
	p := LockedPackage{Family: v.Family, Version: v.Version.String()}
	if v.Index != solver.NoIndex {
		idx := v.Index
		p.Index = &idx
	}
	return p
}

// Pins returns one exact requirement per locked package, for resolving the
// locked set again. An unversioned package is pinned by family alone.
func (lf *LockFile) Pins() []string {
	pins := make([]string, 0, len(lf.Packages))
	for _, p := range lf.Packages {
		if p.Version == "" {
			pins = append(pins, p.Family)
			continue
		}
		pins = append(pins, p.Family+"=="+p.Version)
	}
	return pins
}

// Validate compares a resolve against lf and returns the mismatches, or
// nil if the resolve matches.
func Validate(lf *LockFile, resolved []*solver.Variant) []string {
	if lf == nil {
		return nil
	}

	lockedByFamily := make(map[string]LockedPackage)
	for _, p := range lf.Packages {
		lockedByFamily[p.Family] = p
	}

	var mismatches []string
	seen := make(map[string]bool)
	for _, v := range resolved {
		seen[v.Family] = true
		got := locked(v)
		want, ok := lockedByFamily[v.Family]
		switch {
		case !ok:
			mismatches = append(mismatches, fmt.Sprintf("%s: resolved but not locked", got))
		case want.Version != got.Version:
			mismatches = append(mismatches, fmt.Sprintf(
				"%s: version mismatch (locked: %s, resolved: %s)",
				v.Family, want.Version, got.Version,
			))
		case want.String() != got.String():
			mismatches = append(mismatches, fmt.Sprintf(
				"%s: variant mismatch (locked: %s, resolved: %s)",
				v.Family, want, got,
			))
		}
	}
	for _, p := range lf.Packages {
		if !seen[p.Family] {
			mismatches = append(mismatches, fmt.Sprintf("%s: locked but not resolved", p))
		}
	}
	return mismatches
}
