// Package main is the entry point for the rez-solve CLI tool.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/config"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/telemetry"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	configPath   string
	packagesPath string
	verbose      bool
	solveID      string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "rez-solve",
		Short: "Resolve package requests into a consistent environment",
		Long: `rez-solve resolves package requests against package repositories
(filesystem package paths and S3 mirrors) into a set of package variants
in which every requirement is satisfied, or explains why no such set
exists.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./"+config.FileName+")")
	root.PersistentFlags().StringVar(&packagesPath, "packages-path", "", "Package repository roots, separated by "+string(filepath.ListSeparator))
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&solveID, "solve-id", "", "Set explicit solve ID")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newSolveCmd())
	root.AddCommand(newFamiliesCmd())

	return root
}

// loadConfig loads the configuration and applies the global flags.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if packagesPath != "" {
		cfg.PackagesPath = filepath.SplitList(packagesPath)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	level, err := telemetry.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, telemetry.NewLogger(os.Stderr, level, cfg.Log.Format), nil
}

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
