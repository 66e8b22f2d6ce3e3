// Package resolve runs complete resolves: it builds the repository stack
// from configuration and wraps each solve with limits, logging, metrics
// and a solve id.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/config"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/repository"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/telemetry"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// Status is the outcome of a resolve.
type Status string

const (
	StatusSolved  Status = "solved"
	StatusFailed  Status = "failed"
	StatusAborted Status = "aborted"
)

// Package is one resolved variant.
type Package struct {
	Name    string `json:"name"`
	Family  string `json:"family"`
	Version string `json:"version"`
	Index   *int   `json:"index,omitempty"`
}

// Result describes a finished resolve.
type Result struct {
	SolveID string   `json:"solve_id"`
	Request []string `json:"request"`
	Status  Status   `json:"status"`

	// Packages are in dependency order, dependencies first.
	Packages []Package         `json:"packages,omitempty"`
	Variants []*solver.Variant `json:"-"`

	Failure             string   `json:"failure,omitempty"`
	FailureDescription  string   `json:"failure_description,omitempty"`
	FailureRequirements []string `json:"failure_requirements,omitempty"`
	AbortReason         string   `json:"abort_reason,omitempty"`

	Graph *solver.Graph `json:"graph,omitempty"`

	NumSolves int           `json:"num_solves"`
	NumFails  int           `json:"num_fails"`
	Duration  time.Duration `json:"duration_ns"`
}

// Settings configures a Resolver.
type Settings struct {
	Options   solver.Options
	TimeLimit time.Duration
	Logger    *slog.Logger
	Metrics   *telemetry.Metrics
}

// Resolver resolves requests against one provider. It is safe for
// concurrent use when its provider is.
type Resolver struct {
	provider solver.Provider
	cache    *repository.Cached
	settings Settings
	logger   *slog.Logger
}

// New returns a resolver over provider.
func New(provider solver.Provider, settings Settings) *Resolver {
	logger := settings.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Resolver{provider: provider, settings: settings, logger: logger}
	if c, ok := provider.(*repository.Cached); ok {
		r.cache = c
	}
	return r
}

// FromConfig builds the repository stack described by cfg: filesystem
// repositories in packages path order, then S3 repositories, filtered by
// the package filter and cached when enabled. When cache watching is on,
// watching lasts until ctx is done.
func FromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *telemetry.Metrics) (*Resolver, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var repos []solver.Provider
	for _, root := range cfg.PackagesPath {
		repos = append(repos, repository.NewFilesystem(root, logger))
	}
	for _, u := range cfg.S3Repositories {
		repo, err := repository.NewS3FromURL(ctx, u, logger)
		if err != nil {
			return nil, err
		}
		repos = append(repos, repo)
	}

	var provider solver.Provider = repository.NewChain(repos...)
	if !cfg.PackageFilter.IsEmpty() {
		f, err := repository.NewFilter(provider, cfg.PackageFilter)
		if err != nil {
			return nil, err
		}
		provider = f
	}
	if cfg.Cache.Enabled {
		cached := repository.NewCached(provider, logger)
		if cfg.Cache.Watch && len(cfg.PackagesPath) > 0 {
			if err := cached.Watch(ctx, cfg.PackagesPath...); err != nil {
				return nil, err
			}
		}
		provider = cached
	}

	opts := cfg.SolverOptions()
	opts.Logger = logger
	return New(provider, Settings{
		Options:   opts,
		TimeLimit: time.Duration(cfg.Solver.TimeLimit),
		Logger:    logger,
		Metrics:   metrics,
	}), nil
}

// Provider returns the provider resolves run against.
func (r *Resolver) Provider() solver.Provider {
	return r.provider
}

// Families lists the families of the provider, if it can list them.
func (r *Resolver) Families(ctx context.Context) ([]repository.Family, error) {
	l, ok := r.provider.(repository.Lister)
	if !ok {
		return nil, fmt.Errorf("repository cannot list families")
	}
	return l.Families(ctx)
}

// SetTimestamp hides packages released after t in later resolves.
func (r *Resolver) SetTimestamp(t time.Time) {
	r.settings.Options.Timestamp = t
}

// Resolve solves requests. Stopping on the time limit, MaxFails or the
// context is reported as StatusAborted; repository errors are returned.
func (r *Resolver) Resolve(ctx context.Context, requests []string) (*Result, error) {
	reqs, err := version.ParseRequirements(requests)
	if err != nil {
		return nil, err
	}

	ctx = telemetry.WithSolveID(ctx, telemetry.SolveID(ctx))
	logger := telemetry.SolveLogger(r.logger, ctx, strings.Join(requests, " "))

	if r.settings.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.settings.TimeLimit)
		defer cancel()
	}

	opts := r.settings.Options
	opts.Logger = logger
	var before repository.CacheStats
	if r.cache != nil {
		before = r.cache.Stats()
	}

	start := time.Now()
	logger.Info("resolve started")

	s, err := solver.New(reqs, r.provider, opts)
	if err != nil {
		return nil, err
	}
	solveErr := s.Solve(ctx)
	duration := time.Since(start)
	r.recordCache(before)

	if solveErr != nil {
		r.recordSolve("error", duration, s)
		logger.Error("resolve error", "error", solveErr, "duration", duration)
		return nil, solveErr
	}

	res := &Result{
		SolveID:   telemetry.SolveID(ctx),
		Request:   append([]string(nil), requests...),
		NumSolves: s.NumSolves(),
		NumFails:  s.NumFails(),
		Duration:  duration,
		Graph:     s.Graph(),
	}
	switch s.Status() {
	case solver.StatusSolved:
		res.Status = StatusSolved
		res.Variants = s.Resolved()
		for _, v := range res.Variants {
			res.Packages = append(res.Packages, packageOf(v))
		}
	case solver.StatusFailed:
		res.Status = StatusFailed
		reason := s.FailureReason()
		res.Failure = reason.String()
		res.FailureDescription = reason.Description()
		for _, req := range reason.Requirements() {
			res.FailureRequirements = append(res.FailureRequirements, req.String())
		}
	default:
		res.Status = StatusAborted
		res.AbortReason = s.AbortReason()
	}

	r.recordSolve(string(res.Status), duration, s)
	logger.Info("resolve finished",
		"status", string(res.Status),
		"packages", len(res.Packages),
		"solves", res.NumSolves,
		"fails", res.NumFails,
		"duration", duration,
	)
	return res, nil
}

func (r *Resolver) recordSolve(status string, d time.Duration, s *solver.Solver) {
	if r.settings.Metrics == nil {
		return
	}
	r.settings.Metrics.RecordSolve(status, d, s.NumSolves(), s.NumFails())
}

func (r *Resolver) recordCache(before repository.CacheStats) {
	if r.settings.Metrics == nil || r.cache == nil {
		return
	}
	after := r.cache.Stats()
	r.settings.Metrics.RecordCache(
		after.Hits-before.Hits,
		after.Misses-before.Misses,
		after.Invalidations-before.Invalidations,
	)
}

func packageOf(v *solver.Variant) Package {
	p := Package{Name: v.String(), Family: v.Family, Version: v.Version.String()}
	if v.Index != solver.NoIndex {
		idx := v.Index
		p.Index = &idx
	}
	return p
}
