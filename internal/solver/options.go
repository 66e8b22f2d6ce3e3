package solver

import (
	"fmt"
	"log/slog"
	"time"
)

// Preference selects which end of a family's versions the solver tries
// first.
type Preference int

const (
	PreferNewest Preference = iota
	PreferOldest
)

func (p Preference) String() string {
	switch p {
	case PreferNewest:
		return "newest"
	case PreferOldest:
		return "oldest"
	}
	return fmt.Sprintf("Preference(%d)", int(p))
}

// ParsePreference parses "newest" or "oldest".
func ParsePreference(s string) (Preference, error) {
	switch s {
	case "newest", "":
		return PreferNewest, nil
	case "oldest":
		return PreferOldest, nil
	}
	return PreferNewest, fmt.Errorf("unknown preference %q (want newest or oldest)", s)
}

// State is passed to a Callback before each solve step.
type State struct {
	NumSolves int
	NumFails  int
	// Phase describes the phase on top of the stack.
	Phase string
}

// Callback is consulted before each step. Returning false stops the solve,
// with reason reported by Solver.AbortReason.
type Callback func(State) (cont bool, reason string)

// Options configures a Solver.
type Options struct {
	Preference Preference

	// Timestamp hides variants released after it. Zero disables the cutoff.
	Timestamp time.Time

	// MaxFails stops the solve after this many failed phases. Zero means
	// no limit.
	MaxFails int

	// MaxFailHistory bounds how many failed phases are kept for
	// diagnostics. The first failure is always kept. Zero means no limit.
	MaxFailHistory int

	// Unoptimised rechecks every scope pair on each reduction round.
	Unoptimised bool

	Callback Callback
	Logger   *slog.Logger
}

// DefaultOptions returns options preferring the newest versions, with no
// limits and a failure history of 100 phases.
func DefaultOptions() Options {
	return Options{
		Preference:     PreferNewest,
		MaxFailHistory: 100,
	}
}
