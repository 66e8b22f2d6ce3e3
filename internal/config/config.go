// Package config loads rez-solve configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/repository"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/solver"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/telemetry"
)

// FileName is the default configuration filename.
const FileName = "rezsolve.yaml"

// Config is the complete rez-solve configuration.
type Config struct {
	// PackagesPath lists filesystem repository roots, searched in order.
	PackagesPath []string `yaml:"packages_path"`

	// S3Repositories lists s3://bucket/prefix repositories searched after
	// PackagesPath.
	S3Repositories []string `yaml:"s3_repositories,omitempty"`

	PackageFilter repository.FilterRules `yaml:"package_filter,omitempty"`
	Solver        SolverConfig           `yaml:"solver"`
	Cache         CacheConfig            `yaml:"cache"`
	Log           LogConfig              `yaml:"log"`
}

// SolverConfig holds search options.
type SolverConfig struct {
	Prefer         string   `yaml:"prefer"`
	MaxFails       int      `yaml:"max_fails"`
	TimeLimit      Duration `yaml:"time_limit"`
	Unoptimised    bool     `yaml:"unoptimised"`
	MaxFailHistory int      `yaml:"max_fail_history"`
}

// CacheConfig controls the cross-solve repository cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Watch   bool `yaml:"watch"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// UnmarshalYAML accepts a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		PackagesPath: []string{filepath.Join(home, "packages")},
		Solver: SolverConfig{
			Prefer:         solver.PreferNewest.String(),
			MaxFailHistory: solver.DefaultOptions().MaxFailHistory,
		},
		Cache: CacheConfig{Enabled: true},
		Log:   LogConfig{Level: "warn", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is empty, in which case
// ./rezsolve.yaml is tried.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = FileName
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("REZ_PACKAGES_PATH"); ok {
		c.PackagesPath = filepath.SplitList(v)
	}
	if v, ok := lookup("REZ_SOLVER_PREFER"); ok {
		c.Solver.Prefer = v
	}
	if v, ok := lookup("REZ_SOLVER_MAX_FAILS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REZ_SOLVER_MAX_FAILS: invalid integer %q", v)
		}
		c.Solver.MaxFails = n
	}
	if v, ok := lookup("REZ_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	if len(c.PackagesPath) == 0 && len(c.S3Repositories) == 0 {
		errs = append(errs, errors.New("packages_path or s3_repositories is required"))
	}
	for _, u := range c.S3Repositories {
		if _, _, err := repository.ParseS3URL(u); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := solver.ParsePreference(c.Solver.Prefer); err != nil {
		errs = append(errs, fmt.Errorf("solver.prefer: %w", err))
	}
	if c.Solver.MaxFails < 0 {
		errs = append(errs, errors.New("solver.max_fails must not be negative"))
	}
	if c.Solver.TimeLimit < 0 {
		errs = append(errs, errors.New("solver.time_limit must not be negative"))
	}
	if c.Solver.MaxFailHistory < 0 {
		errs = append(errs, errors.New("solver.max_fail_history must not be negative"))
	}
	if _, err := telemetry.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if c.Cache.Watch && !c.Cache.Enabled {
		errs = append(errs, errors.New("cache.watch requires cache.enabled"))
	}
	if _, err := repository.NewFilter(repository.NewMemory(), c.PackageFilter); err != nil {
		errs = append(errs, fmt.Errorf("package_filter: %w", err))
	}
	return errors.Join(errs...)
}

// SolverOptions converts the solver section to solver options.
func (c *Config) SolverOptions() solver.Options {
	opts := solver.DefaultOptions()
	if p, err := solver.ParsePreference(c.Solver.Prefer); err == nil {
		opts.Preference = p
	}
	opts.MaxFails = c.Solver.MaxFails
	opts.Unoptimised = c.Solver.Unoptimised
	opts.MaxFailHistory = c.Solver.MaxFailHistory
	return opts
}
