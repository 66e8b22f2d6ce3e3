package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// Filesystem is a repository laid out as <root>/<family>/<version>/package.yaml.
// Manifests are read one version at a time as the solver pulls variants.
type Filesystem struct {
	root   string
	logger *slog.Logger
}

// NewFilesystem returns a repository rooted at root.
func NewFilesystem(root string, logger *slog.Logger) *Filesystem {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filesystem{root: root, logger: logger}
}

// Root returns the repository root directory.
func (r *Filesystem) Root() string {
	return r.root
}

// FamilyExists reports whether <root>/<family> is a directory.
func (r *Filesystem) FamilyExists(_ context.Context, family string) (bool, error) {
	if !validFamilyName(family) {
		return false, nil
	}
	info, err := os.Stat(filepath.Join(r.root, family))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking family %s: %w", family, err)
	}
	return info.IsDir(), nil
}

// Variants yields the family's variants in ascending order, reading each
// version's manifest only when the sequence reaches it. Manifests released
// after cutoff are skipped.
func (r *Filesystem) Variants(ctx context.Context, family string, cutoff time.Time) iter.Seq2[*solver.Variant, error] {
	return func(yield func(*solver.Variant, error) bool) {
		versions, err := r.versions(family)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, ver := range versions {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			dir := filepath.Join(r.root, family, ver.String())
			m, err := ReadManifest(dir)
			if err != nil {
				yield(nil, fmt.Errorf("%s: %w", dir, err))
				return
			}
			if m.Name != family || !parseVersionOrEmpty(m.Version).Equal(ver) {
				r.logger.Warn("skipping misplaced package", "dir", dir, "package", m.FullName())
				continue
			}
			if !cutoff.IsZero() && m.Timestamp > 0 && time.Unix(m.Timestamp, 0).After(cutoff) {
				continue
			}
			variants, err := m.SolverVariants()
			if err != nil {
				yield(nil, err)
				return
			}
			for _, v := range variants {
				if !yield(v, nil) {
					return
				}
			}
		}
	}
}

// versions lists the version directories of family, ascending. Directories
// that are not valid versions or hold no manifest are ignored.
func (r *Filesystem) versions(family string) ([]version.Version, error) {
	dir := filepath.Join(r.root, family)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var versions []version.Version
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ver, err := version.Parse(e.Name())
		if err != nil || ver.String() != e.Name() {
			r.logger.Debug("ignoring directory", "dir", filepath.Join(dir, e.Name()))
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, e.Name(), ManifestFile)); err != nil {
			continue
		}
		versions = append(versions, ver)
	}
	slices.SortFunc(versions, version.Version.Compare)
	return versions, nil
}

// Families scans every family directory in parallel.
func (r *Filesystem) Families(ctx context.Context) ([]Family, error) {
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", r.root, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() && validFamilyName(e.Name()) {
			names = append(names, e.Name())
		}
	}

	families := make([]Family, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, name := range names {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			versions, err := r.versions(name)
			if err != nil {
				return err
			}
			f := Family{Name: name}
			for _, v := range versions {
				f.Versions = append(f.Versions, v.String())
			}
			families[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := families[:0]
	for _, f := range families {
		if len(f.Versions) > 0 {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func validFamilyName(name string) bool {
	req, err := version.ParseRequirement(name)
	return err == nil && req.Family == name && req.Range.IsAny() && !req.Conflict
}

func parseVersionOrEmpty(s string) version.Version {
	v, err := version.Parse(s)
	if err != nil {
		return version.Version{}
	}
	return v
}
