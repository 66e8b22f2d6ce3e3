// Package solver resolves package requests into a consistent set of
// package variants.
//
// The search works on phases. A phase holds one scope per package family:
// the candidate variants still possible for that family, or an exclusion
// when the family is only constrained by anti-requirements. Solving a
// phase repeats three moves until nothing changes:
//
//   - extract: a requirement shared by every candidate of a scope is
//     hoisted out and applied to the scope of the required family;
//   - propagate: hoisted requirements narrow existing scopes or add new
//     ones;
//   - reduce: candidates whose own requirements conflict with another
//     scope are removed.
//
// A phase in which some family still has several candidates is split in
// two, preferred candidates first, and the solver backtracks to the other
// half when the first fails. Solved phases are checked for dependency
// cycles and their variants ordered dependencies first.
package solver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AcademySoftwareFoundation/rez-sub000/internal/version"
)

// Status is the overall state of a Solver.
type Status int

const (
	// StatusUnsolved means the search is not finished, or was stopped.
	StatusUnsolved Status = iota
	StatusSolved
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUnsolved:
		return "unsolved"
	case StatusSolved:
		return "solved"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Solver searches for a set of variants satisfying a request. A Solver is
// not safe for concurrent use.
type Solver struct {
	request []version.Requirement
	opts    Options
	logger  *slog.Logger
	cache   *variantCache

	stack    []*phase
	failures []*phase

	requestConflict bool
	numSolves       int
	numFails        int
	abortReason     string
}

// New returns a solver for requests. Requirements on the same family are
// merged; if they cannot be merged the solver is failed from the start and
// no search happens.
func New(requests []version.Requirement, provider Provider, opts Options) (*Solver, error) {
	if provider == nil {
		return nil, errors.New("solver requires a provider")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	list := version.NewRequirementList(requests)
	s := &Solver{
		request: list.Requirements(),
		opts:    opts,
		logger:  logger,
		cache:   newVariantCache(provider, opts.Timestamp, opts.Preference),
	}

	if a, b, failed := list.Conflict(); failed {
		p := newPhase(s.request, s.cache, opts.Unoptimised)
		p.fail(&DependencyConflicts{Conflicts: []DependencyConflict{{Dependency: a, Conflicting: b}}})
		s.requestConflict = true
		s.recordFailure(p)
		logger.Debug("request conflicts", "request", list.String(), "conflict", p.failure.String())
		return s, nil
	}

	s.stack = []*phase{newPhase(s.request, s.cache, opts.Unoptimised)}
	return s, nil
}

// Request returns the merged request.
func (s *Solver) Request() []version.Requirement {
	return append([]version.Requirement(nil), s.request...)
}

// Status reports the state of the search.
func (s *Solver) Status() Status {
	if s.requestConflict {
		return StatusFailed
	}
	top := s.top()
	if top == nil {
		return StatusUnsolved
	}
	switch top.status {
	case phaseSolved:
		return StatusSolved
	case phaseFailed, phaseCyclic:
		if len(s.stack) == 1 {
			return StatusFailed
		}
	}
	return StatusUnsolved
}

func (s *Solver) top() *phase {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

func (s *Solver) push(p *phase) {
	s.stack = append(s.stack, p)
}

func (s *Solver) pop() *phase {
	p := s.top()
	s.stack = s.stack[:len(s.stack)-1]
	return p
}

// Step advances the search by solving one phase. It is a no-op once the
// solver is solved or failed.
//
// Provider reads inside a step are not cancelled by ctx; Solve checks the
// context between steps. If Step returns an error the search state is
// unchanged and Step may be called again.
func (s *Solver) Step(ctx context.Context) error {
	if s.Status() != StatusUnsolved {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	p := s.pop()
	for (p.status == phaseFailed || p.status == phaseCyclic) && len(s.stack) > 0 {
		p = s.pop()
	}
	if p.status == phaseFailed || p.status == phaseCyclic {
		// The last alternative failed.
		s.push(p)
		return nil
	}

	work := p
	var far *phase
	if p.status == phaseExhausted {
		near, rest, err := p.split()
		if err != nil {
			s.push(p)
			return err
		}
		work, far = near, rest
	}

	next, err := work.solve(ctx)
	if err != nil {
		s.push(p)
		return fmt.Errorf("solving %s: %w", work, err)
	}
	if far != nil {
		s.push(far)
		s.logger.Debug("split phase", "near", work.String(), "far", far.String())
	}
	s.numSolves++
	if next.status == phaseSolved {
		next.finalize()
	}
	if next.status == phaseFailed || next.status == phaseCyclic {
		s.numFails++
		s.recordFailure(next)
	}
	s.push(next)

	s.logger.Debug("solved phase",
		"phase", next.String(),
		"status", next.status.String(),
		"depth", len(s.stack),
		"solves", s.numSolves,
		"fails", s.numFails,
	)
	if next.failure != nil {
		s.logger.Debug("phase failed", "reason", next.failure.Description())
	}
	return nil
}

func (s *Solver) recordFailure(p *phase) {
	s.failures = append(s.failures, p)
	if limit := s.opts.MaxFailHistory; limit > 0 && len(s.failures) > limit {
		// Keep the first failure; drop the oldest after it.
		s.failures = append(s.failures[:1], s.failures[2:]...)
	}
}

// Solve steps until the solver is solved or failed, or until the context,
// MaxFails or the callback stops it. A stopped solver stays unsolved and
// reports why through AbortReason. Solve releases provider resources
// before returning.
func (s *Solver) Solve(ctx context.Context) error {
	defer s.Close()

	for s.Status() == StatusUnsolved {
		if reason, stop := s.shouldStop(ctx); stop {
			s.abortReason = reason
			s.logger.Debug("solve stopped", "reason", reason, "solves", s.numSolves, "fails", s.numFails)
			return nil
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Solver) shouldStop(ctx context.Context) (string, bool) {
	if err := ctx.Err(); err != nil {
		return err.Error(), true
	}
	if s.opts.MaxFails > 0 && s.numFails >= s.opts.MaxFails {
		return fmt.Sprintf("reached the limit of %d failures", s.opts.MaxFails), true
	}
	if s.opts.Callback != nil {
		state := State{NumSolves: s.numSolves, NumFails: s.numFails}
		if top := s.top(); top != nil {
			state.Phase = top.String()
		}
		if cont, reason := s.opts.Callback(state); !cont {
			if reason == "" {
				reason = "stopped by callback"
			}
			return reason, true
		}
	}
	return "", false
}

// Close stops any provider sequences still open. Solve calls it; callers
// driving the solver with Step should call it when done.
func (s *Solver) Close() {
	s.cache.close()
}

// AbortReason returns why Solve stopped early, or "".
func (s *Solver) AbortReason() string {
	return s.abortReason
}

// NumSolves returns the number of phases solved so far.
func (s *Solver) NumSolves() int {
	return s.numSolves
}

// NumFails returns the number of failed phases so far.
func (s *Solver) NumFails() int {
	return s.numFails
}

// NumFailures returns the number of failures kept for diagnostics.
func (s *Solver) NumFailures() int {
	return len(s.failures)
}

// Resolved returns the resolved variants, dependencies first, or nil if
// the solver is not solved.
func (s *Solver) Resolved() []*Variant {
	if s.Status() != StatusSolved {
		return nil
	}
	return append([]*Variant(nil), s.top().resolved...)
}

func (s *Solver) defaultFailure() int {
	if len(s.failures) == 0 {
		return -1
	}
	if top := s.top(); top != nil && top.status == phaseCyclic {
		return len(s.failures) - 1
	}
	return 0
}

func (s *Solver) failure(i int) *phase {
	if i < 0 {
		i = s.defaultFailure()
	}
	if i < 0 || i >= len(s.failures) {
		return nil
	}
	return s.failures[i]
}

// FailureReason returns the reason of the earliest failure, or of the most
// recent one if the search ended on a cycle. It returns nil if nothing
// failed.
func (s *Solver) FailureReason() FailureReason {
	return s.FailureReasonAt(-1)
}

// FailureReasonAt returns the reason of the i-th kept failure. A negative
// i selects the default failure, as FailureReason does.
func (s *Solver) FailureReasonAt(i int) FailureReason {
	p := s.failure(i)
	if p == nil {
		return nil
	}
	return p.failure
}

// FailureRequirements returns the requirements implicated in the i-th kept
// failure. A negative i selects the default failure.
func (s *Solver) FailureRequirements(i int) []version.Requirement {
	reason := s.FailureReasonAt(i)
	if reason == nil {
		return nil
	}
	return reason.Requirements()
}

// FailureGraph returns the pruned graph of the i-th kept failure. A
// negative i selects the default failure.
func (s *Solver) FailureGraph(i int) *Graph {
	p := s.failure(i)
	if p == nil {
		return nil
	}
	return buildGraph(s.request, p)
}

// Graph returns the graph of the resolve: the solved phase, the default
// failure, or the phase currently on top of the stack.
func (s *Solver) Graph() *Graph {
	switch s.Status() {
	case StatusSolved:
		return buildGraph(s.request, s.top())
	case StatusFailed:
		return s.FailureGraph(-1)
	}
	if top := s.top(); top != nil {
		return buildGraph(s.request, top)
	}
	return nil
}
