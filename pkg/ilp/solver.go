// Package ilp provides a small integer-program abstraction for the
// update scheduler. The formulation layer only talks to the Solver
// interface, so a different backend can be dropped in; the built-in
// backend is a branch-and-bound search over bounded integer variables,
// which is adequate for the problem sizes the scheduler produces.
package ilp

import (
	"time"

	"github.com/netshift-network/netshift/pkg/util"
)

// Var is a variable handle issued by AddVariable.
type Var int

// Solution assigns a value to every variable.
type Solution map[Var]int

// Constraint restricts solutions. Feasible is called on partial
// assignments and must only return false when no completion can satisfy
// the constraint; Satisfied is called on full assignments.
type Constraint interface {
	Feasible(partial Solution) bool
	Satisfied(full Solution) bool
}

// Objective is a linear objective to minimize.
type Objective struct {
	Coeffs map[Var]int
}

// Value computes the objective of a (partial) solution.
func (o Objective) Value(sol Solution) int {
	total := 0
	for v, c := range o.Coeffs {
		if val, ok := sol[v]; ok {
			total += c * val
		}
	}
	return total
}

// Solver is the backend interface of the scheduler.
type Solver interface {
	// AddVariable introduces a variable with inclusive bounds.
	AddVariable(lo, hi int) Var
	// AddConstraint adds a constraint over existing variables.
	AddConstraint(c Constraint)
	// SetObjective sets the linear objective to minimize.
	SetObjective(obj Objective)
	// SolveWithTimeout searches for an optimal solution. It fails with
	// util.ErrSchedulerInfeasible when no assignment satisfies all
	// constraints, and with util.ErrSchedulerTimeout when the deadline
	// expires first.
	SolveWithTimeout(timeout time.Duration) (Solution, error)
}

// ============================================================================
// Constraint kinds
// ============================================================================

// AtMostDiff requires x + offset <= y.
type AtMostDiff struct {
	X, Y   Var
	Offset int
}

// Feasible implements Constraint.
func (c AtMostDiff) Feasible(partial Solution) bool {
	x, okX := partial[c.X]
	y, okY := partial[c.Y]
	if !okX || !okY {
		return true
	}
	return x+c.Offset <= y
}

// Satisfied implements Constraint.
func (c AtMostDiff) Satisfied(full Solution) bool {
	return full[c.X]+c.Offset <= full[c.Y]
}

// LoopBreak requires every variable in Old to be no later than every
// variable in New: t_o <= t_n for all pairs. The scheduler uses it to
// keep transient forwarding loops from ever activating: a loop can only
// close at a round boundary where some old edge is still installed
// while some new edge already fired, which is exactly an old variable
// scheduled strictly after a new one.
type LoopBreak struct {
	Old []Var
	New []Var
}

// Feasible implements Constraint.
func (c LoopBreak) Feasible(partial Solution) bool {
	for _, o := range c.Old {
		vo, ok := partial[o]
		if !ok {
			continue
		}
		for _, n := range c.New {
			vn, ok := partial[n]
			if !ok {
				continue
			}
			if vo > vn {
				return false
			}
		}
	}
	return true
}

// Satisfied implements Constraint.
func (c LoopBreak) Satisfied(full Solution) bool {
	return c.Feasible(full)
}

// FullCheck defers to a callback once every listed variable is assigned.
// The scheduler uses it for invariant preservation, where feasibility of
// a round sequence is precomputed outside the solver.
type FullCheck struct {
	Vars  []Var
	Check func(Solution) bool
}

// Feasible implements Constraint.
func (c FullCheck) Feasible(partial Solution) bool {
	for _, v := range c.Vars {
		if _, ok := partial[v]; !ok {
			return true
		}
	}
	return c.Check(partial)
}

// Satisfied implements Constraint.
func (c FullCheck) Satisfied(full Solution) bool {
	return c.Check(full)
}

// ============================================================================
// Built-in backend
// ============================================================================

type variable struct {
	lo, hi int
}

// BranchBound is the built-in solver backend: depth-first search in
// variable order with constraint pruning and objective bounding. Values
// are tried ascending, so among equal-objective solutions the result is
// deterministic and lexicographically minimal in variable order.
type BranchBound struct {
	vars        []variable
	constraints []Constraint
	objective   Objective
}

// NewBranchBound creates an empty solver.
func NewBranchBound() *BranchBound {
	return &BranchBound{}
}

// AddVariable implements Solver.
func (s *BranchBound) AddVariable(lo, hi int) Var {
	s.vars = append(s.vars, variable{lo: lo, hi: hi})
	return Var(len(s.vars) - 1)
}

// AddConstraint implements Solver.
func (s *BranchBound) AddConstraint(c Constraint) {
	s.constraints = append(s.constraints, c)
}

// SetObjective implements Solver.
func (s *BranchBound) SetObjective(obj Objective) {
	s.objective = obj
}

// SolveWithTimeout implements Solver.
func (s *BranchBound) SolveWithTimeout(timeout time.Duration) (Solution, error) {
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	var best Solution
	bestCost := 0
	current := make(Solution, len(s.vars))
	timedOut := false

	var search func(idx int)
	search = func(idx int) {
		if timedOut {
			return
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			timedOut = true
			return
		}
		if best != nil && s.objective.Value(current) >= bestCost {
			// partial cost can only grow: all coefficients are
			// non-negative in the scheduler's formulation
			return
		}
		if idx == len(s.vars) {
			for _, c := range s.constraints {
				if !c.Satisfied(current) {
					return
				}
			}
			cost := s.objective.Value(current)
			if best == nil || cost < bestCost {
				best = make(Solution, len(current))
				for v, val := range current {
					best[v] = val
				}
				bestCost = cost
			}
			return
		}
		v := Var(idx)
		for val := s.vars[idx].lo; val <= s.vars[idx].hi; val++ {
			current[v] = val
			ok := true
			for _, c := range s.constraints {
				if !c.Feasible(current) {
					ok = false
					break
				}
			}
			if ok {
				search(idx + 1)
			}
			delete(current, v)
			if timedOut {
				return
			}
		}
	}
	search(0)

	if timedOut && best == nil {
		return nil, util.ErrSchedulerTimeout
	}
	if best == nil {
		return nil, util.ErrSchedulerInfeasible
	}
	return best, nil
}
