// Package spec implements the invariant language of the reconfiguration
// planner: per-prefix predicates over forwarding states, a small
// path-property language, and the YAML specification loader.
package spec

import (
	"errors"
	"fmt"

	"github.com/netshift-network/netshift/pkg/fwstate"
	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/util"
)

// Invariant is a per-prefix predicate over a forwarding state. Check
// returns nil when the predicate holds, an error describing the
// violation otherwise.
type Invariant interface {
	Check(st *fwstate.State) error
	Router() model.RouterID
	Prefix() model.Prefix
	Describe() string
}

// Reachable requires a loop- and black-hole-free forwarding path from
// the router to some egress.
type Reachable struct {
	R model.RouterID
	P model.Prefix
}

// Check implements Invariant.
func (inv Reachable) Check(st *fwstate.State) error {
	if _, err := st.Paths(inv.R, inv.P); err != nil {
		return fmt.Errorf("%s: %w", inv.Describe(), err)
	}
	return nil
}

// Router implements Invariant.
func (inv Reachable) Router() model.RouterID { return inv.R }

// Prefix implements Invariant.
func (inv Reachable) Prefix() model.Prefix { return inv.P }

// Describe implements Invariant.
func (inv Reachable) Describe() string {
	return fmt.Sprintf("reachable(%s, %s)", inv.R, inv.P)
}

// NotReachable requires that no forwarding path exists.
type NotReachable struct {
	R model.RouterID
	P model.Prefix
}

// Check implements Invariant.
func (inv NotReachable) Check(st *fwstate.State) error {
	paths, err := st.Paths(inv.R, inv.P)
	if err == nil && len(paths) > 0 {
		return fmt.Errorf("%s: path %v exists", inv.Describe(), paths[0])
	}
	return nil
}

// Router implements Invariant.
func (inv NotReachable) Router() model.RouterID { return inv.R }

// Prefix implements Invariant.
func (inv NotReachable) Prefix() model.Prefix { return inv.P }

// Describe implements Invariant.
func (inv NotReachable) Describe() string {
	return fmt.Sprintf("not_reachable(%s, %s)", inv.R, inv.P)
}

// LoopFree requires that the forwarding procedure terminates: black
// holes are tolerated, loops are not.
type LoopFree struct {
	R model.RouterID
	P model.Prefix
}

// Check implements Invariant.
func (inv LoopFree) Check(st *fwstate.State) error {
	_, err := st.Paths(inv.R, inv.P)
	if err != nil && errors.Is(err, util.ErrForwardingLoop) {
		return fmt.Errorf("%s: %w", inv.Describe(), err)
	}
	return nil
}

// Router implements Invariant.
func (inv LoopFree) Router() model.RouterID { return inv.R }

// Prefix implements Invariant.
func (inv LoopFree) Prefix() model.Prefix { return inv.P }

// Describe implements Invariant.
func (inv LoopFree) Describe() string {
	return fmt.Sprintf("loop_free(%s, %s)", inv.R, inv.P)
}

// PathCondition requires that every forwarding path satisfies a path
// expression.
type PathCondition struct {
	R    model.RouterID
	P    model.Prefix
	Cond PathExpr
}

// Check implements Invariant.
func (inv PathCondition) Check(st *fwstate.State) error {
	paths, err := st.Paths(inv.R, inv.P)
	if err != nil {
		return fmt.Errorf("%s: %w", inv.Describe(), err)
	}
	for _, path := range paths {
		if !inv.Cond.Matches(path) {
			return fmt.Errorf("%s: path %v violates condition", inv.Describe(), path)
		}
	}
	return nil
}

// Router implements Invariant.
func (inv PathCondition) Router() model.RouterID { return inv.R }

// Prefix implements Invariant.
func (inv PathCondition) Prefix() model.Prefix { return inv.P }

// Describe implements Invariant.
func (inv PathCondition) Describe() string {
	return fmt.Sprintf("path_condition(%s, %s, %s)", inv.R, inv.P, inv.Cond)
}

// Specification maps each prefix to the invariants that must hold for
// it, at every step of a reconfiguration.
type Specification map[model.Prefix][]Invariant

// Add appends an invariant for its prefix.
func (s Specification) Add(inv Invariant) {
	s[inv.Prefix()] = append(s[inv.Prefix()], inv)
}

// For returns the invariants of one prefix.
func (s Specification) For(prefix model.Prefix) []Invariant {
	return s[prefix]
}

// Check evaluates every invariant against a forwarding state and
// returns the first violation.
func (s Specification) Check(st *fwstate.State) error {
	for _, invariants := range s {
		for _, inv := range invariants {
			if err := inv.Check(st); err != nil {
				return err
			}
		}
	}
	return nil
}

// CheckPrefix evaluates only the invariants of one prefix.
func (s Specification) CheckPrefix(prefix model.Prefix, st *fwstate.State) error {
	for _, inv := range s[prefix] {
		if err := inv.Check(st); err != nil {
			return err
		}
	}
	return nil
}
