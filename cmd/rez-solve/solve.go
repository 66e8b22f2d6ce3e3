package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/config"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/lockfile"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/resolve"
	"github.com/AcademySoftwareFoundation/rez-sub000/internal/telemetry"
)

func newSolveCmd() *cobra.Command {
	var (
		oldest      bool
		maxFails    int
		timeLimit   time.Duration
		timestamp   int64
		asJSON      bool
		graphFile   string
		writeLock   bool
		checkLock   bool
		fromLock    bool
		lockDir     string
		metricsFile string
	)

	cmd := &cobra.Command{
		Use:   "solve [requests...]",
		Short: "Resolve package requests",
		Long: `Resolve package requests such as "foo-1.2+" "bar" "!baz" into one
variant per package family. The command exits with an error when the
resolve fails or is aborted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			applySolveFlags(cmd, cfg, oldest, maxFails, timeLimit)

			requests := args
			if fromLock {
				lf, err := lockfile.Read(lockDir)
				if err != nil {
					return err
				}
				if lf == nil {
					return fmt.Errorf("no lock file in %s", lockDir)
				}
				if len(requests) == 0 {
					requests = lf.Request
				}
				requests = append(append([]string(nil), requests...), lf.Pins()...)
				if timestamp == 0 {
					timestamp = lf.Timestamp
				}
			}
			if len(requests) == 0 {
				return errors.New("no packages requested")
			}

			var metrics *telemetry.Metrics
			if metricsFile != "" {
				metrics = telemetry.NewMetrics()
			}
			cfg.Cache.Watch = false
			r, err := resolve.FromConfig(cmd.Context(), cfg, logger, metrics)
			if err != nil {
				return err
			}
			var cutoff time.Time
			if timestamp > 0 {
				cutoff = time.Unix(timestamp, 0)
				r.SetTimestamp(cutoff)
			}

			ctx := telemetry.WithSolveID(cmd.Context(), solveID)
			res, err := r.Resolve(ctx, requests)
			if metrics != nil {
				if werr := metrics.WriteTextfile(metricsFile); werr != nil {
					logger.Warn("writing metrics failed", "path", metricsFile, "error", werr)
				}
			}
			if err != nil {
				return err
			}

			if graphFile != "" && res.Graph != nil {
				if err := writeGraph(graphFile, res); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				printResult(out, res)
			}

			switch res.Status {
			case resolve.StatusFailed:
				return fmt.Errorf("resolve failed: %s", res.FailureDescription)
			case resolve.StatusAborted:
				return fmt.Errorf("resolve aborted: %s", res.AbortReason)
			}

			if checkLock {
				lf, err := lockfile.Read(lockDir)
				if err != nil {
					return err
				}
				if lf == nil {
					return fmt.Errorf("no lock file in %s", lockDir)
				}
				if mismatches := lockfile.Validate(lf, res.Variants); len(mismatches) > 0 {
					for _, m := range mismatches {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", m)
					}
					return fmt.Errorf("resolve does not match %s (%d mismatches)", lockfile.Path(lockDir), len(mismatches))
				}
			}
			if writeLock {
				lf := lockfile.Generate(requests, res.Variants, cutoff)
				if err := lockfile.Write(lockDir, lf); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", lockfile.Path(lockDir))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&oldest, "oldest", false, "Prefer the oldest versions")
	cmd.Flags().IntVar(&maxFails, "max-fails", 0, "Abort after this many failed phases (0 = no limit)")
	cmd.Flags().DurationVar(&timeLimit, "time-limit", 0, "Abort after this long (0 = no limit)")
	cmd.Flags().Int64Var(&timestamp, "time", 0, "Ignore packages released after this unix time")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().StringVar(&graphFile, "graph", "", "Write the resolve graph to a DOT file")
	cmd.Flags().BoolVar(&writeLock, "lock", false, "Write the resolve to "+lockfile.FileName)
	cmd.Flags().BoolVar(&checkLock, "check-lock", false, "Fail if the resolve differs from "+lockfile.FileName)
	cmd.Flags().BoolVar(&fromLock, "from-lock", false, "Resolve the locked packages again")
	cmd.Flags().StringVar(&lockDir, "lock-dir", ".", "Directory holding "+lockfile.FileName)
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file")

	return cmd
}

func applySolveFlags(cmd *cobra.Command, cfg *config.Config, oldest bool, maxFails int, timeLimit time.Duration) {
	if oldest {
		cfg.Solver.Prefer = "oldest"
	}
	if cmd.Flags().Changed("max-fails") {
		cfg.Solver.MaxFails = maxFails
	}
	if cmd.Flags().Changed("time-limit") {
		cfg.Solver.TimeLimit = config.Duration(timeLimit)
	}
}

func writeGraph(path string, res *resolve.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating graph file: %w", err)
	}
	if err := res.Graph.WriteDOT(f); err != nil {
		f.Close()
		return fmt.Errorf("writing graph: %w", err)
	}
	return f.Close()
}

func printResult(w io.Writer, res *resolve.Result) {
	switch res.Status {
	case resolve.StatusSolved:
		fmt.Fprintln(w, "resolved packages:")
		for _, p := range res.Packages {
			fmt.Fprintf(w, "  %s\n", p.Name)
		}
	case resolve.StatusFailed:
		fmt.Fprintf(w, "resolve failed: %s\n", res.Failure)
	case resolve.StatusAborted:
		fmt.Fprintf(w, "resolve aborted: %s\n", res.AbortReason)
	}
	fmt.Fprintf(w, "(%d solves, %d fails, %s)\n", res.NumSolves, res.NumFails, res.Duration.Round(time.Microsecond))
}
