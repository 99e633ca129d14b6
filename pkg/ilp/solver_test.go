package ilp

import (
	"errors"
	"testing"
	"time"

	"github.com/netshift-network/netshift/pkg/util"
)

// ============================================================================
// Constraint Tests
// ============================================================================

func TestAtMostDiff(t *testing.T) {
	c := AtMostDiff{X: 0, Y: 1, Offset: 1}

	if !c.Feasible(Solution{0: 3}) {
		t.Error("partially assigned constraint must stay feasible")
	}
	if c.Feasible(Solution{0: 3, 1: 3}) {
		t.Error("3+1 <= 3 should be infeasible")
	}
	if !c.Satisfied(Solution{0: 2, 1: 3}) {
		t.Error("2+1 <= 3 should hold")
	}
}

func TestLoopBreak(t *testing.T) {
	c := LoopBreak{Old: []Var{0}, New: []Var{1}}

	if !c.Satisfied(Solution{0: 1, 1: 1}) {
		t.Error("equal rounds satisfy the constraint")
	}
	if !c.Satisfied(Solution{0: 0, 1: 1}) {
		t.Error("old before new satisfies the constraint")
	}
	if c.Satisfied(Solution{0: 2, 1: 1}) {
		t.Error("old strictly after new violates the constraint")
	}
	if !c.Feasible(Solution{0: 2}) {
		t.Error("partial assignment must stay feasible")
	}
	if c.Feasible(Solution{0: 2, 1: 1}) {
		t.Error("assigned violating pair must prune the search")
	}
}

// ============================================================================
// Solver Tests
// ============================================================================

func TestSolveChain(t *testing.T) {
	s := NewBranchBound()
	a := s.AddVariable(0, 2)
	b := s.AddVariable(0, 2)
	c := s.AddVariable(0, 2)
	s.AddConstraint(AtMostDiff{X: a, Y: b, Offset: 1})
	s.AddConstraint(AtMostDiff{X: b, Y: c, Offset: 1})
	s.SetObjective(Objective{Coeffs: map[Var]int{a: 1, b: 1, c: 1}})

	sol, err := s.SolveWithTimeout(0)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol[a] != 0 || sol[b] != 1 || sol[c] != 2 {
		t.Errorf("solution = %v, want a=0 b=1 c=2", sol)
	}
}

func TestSolveInfeasible(t *testing.T) {
	s := NewBranchBound()
	a := s.AddVariable(0, 1)
	b := s.AddVariable(0, 1)
	s.AddConstraint(AtMostDiff{X: a, Y: b, Offset: 1})
	s.AddConstraint(AtMostDiff{X: b, Y: a, Offset: 1})

	_, err := s.SolveWithTimeout(0)
	if !errors.Is(err, util.ErrSchedulerInfeasible) {
		t.Fatalf("err = %v, want infeasible", err)
	}
}

func TestSolveMinimizesObjective(t *testing.T) {
	s := NewBranchBound()
	a := s.AddVariable(0, 3)
	b := s.AddVariable(0, 3)
	// no constraints: the minimum is everything at zero
	s.SetObjective(Objective{Coeffs: map[Var]int{a: 1, b: 1}})

	sol, err := s.SolveWithTimeout(time.Second)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol[a] != 0 || sol[b] != 0 {
		t.Errorf("solution = %v, want all zero", sol)
	}
}

func TestSolveLoopBreak(t *testing.T) {
	s := NewBranchBound()
	a := s.AddVariable(0, 1)
	b := s.AddVariable(0, 1)
	// b's old edge must retire no later than a's new edge fires, and a
	// must come strictly after b
	s.AddConstraint(LoopBreak{Old: []Var{b}, New: []Var{a}})
	s.AddConstraint(AtMostDiff{X: b, Y: a, Offset: 1})
	s.SetObjective(Objective{Coeffs: map[Var]int{a: 1, b: 1}})

	sol, err := s.SolveWithTimeout(0)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol[b] != 0 || sol[a] != 1 {
		t.Errorf("solution = %v, want b=0 a=1", sol)
	}
}

func TestSolveFullCheck(t *testing.T) {
	s := NewBranchBound()
	a := s.AddVariable(0, 2)
	b := s.AddVariable(0, 2)
	// forbid the all-zero assignment through the callback
	s.AddConstraint(FullCheck{
		Vars: []Var{a, b},
		Check: func(sol Solution) bool {
			return sol[a]+sol[b] > 0
		},
	})
	s.SetObjective(Objective{Coeffs: map[Var]int{a: 1, b: 1}})

	sol, err := s.SolveWithTimeout(0)
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if sol[a]+sol[b] != 1 {
		t.Errorf("solution = %v, want total cost 1", sol)
	}
}

func TestSolveDeterministicTieBreak(t *testing.T) {
	// two symmetric optimal solutions; ascending search picks the
	// lexicographically smallest in variable order
	for i := 0; i < 3; i++ {
		s := NewBranchBound()
		a := s.AddVariable(0, 1)
		b := s.AddVariable(0, 1)
		s.AddConstraint(FullCheck{
			Vars: []Var{a, b},
			Check: func(sol Solution) bool {
				return sol[a]+sol[b] > 0
			},
		})
		s.SetObjective(Objective{Coeffs: map[Var]int{a: 1, b: 1}})

		sol, err := s.SolveWithTimeout(0)
		if err != nil {
			t.Fatalf("solve: %v", err)
		}
		if sol[a] != 0 || sol[b] != 1 {
			t.Fatalf("iteration %d: solution = %v, want a=0 b=1", i, sol)
		}
	}
}
