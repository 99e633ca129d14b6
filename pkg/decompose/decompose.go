// Package decompose implements the reconfiguration planner: it takes a
// source network, a target configuration modifier and a specification,
// and produces an ordered schedule of atomic router-local commands that
// keeps the specification satisfied throughout the transition.
package decompose

import (
	"fmt"
	"time"

	"github.com/netshift-network/netshift/pkg/fwstate"
	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/sim"
	"github.com/netshift-network/netshift/pkg/spec"
	"github.com/netshift-network/netshift/pkg/util"
)

// CommandInfo precomputes everything the planner needs about a
// reconfiguration: both converged networks, both forwarding states and
// their diff.
type CommandInfo struct {
	NetBefore *sim.Network
	NetAfter  *sim.Network
	FwBefore  *fwstate.State
	FwAfter   *fwstate.State
	FwDiff    fwstate.Diff
	Command   *sim.Modifier
	Spec      spec.Specification
}

// NewCommandInfo simulates the source network to convergence, applies
// the command on a copy, and computes the forwarding delta.
func NewCommandInfo(net *sim.Network, command *sim.Modifier, sp spec.Specification) (*CommandInfo, error) {
	before := net.Clone()
	if err := before.Simulate(); err != nil {
		return nil, fmt.Errorf("simulating source network: %w", err)
	}
	after := before.Clone()
	if err := after.ApplyModifier(command); err != nil {
		return nil, fmt.Errorf("applying target command: %w", err)
	}
	if err := after.Simulate(); err != nil {
		return nil, fmt.Errorf("simulating target network: %w", err)
	}
	fwBefore := before.GetForwardingState()
	fwAfter := after.GetForwardingState()
	return &CommandInfo{
		NetBefore: before,
		NetAfter:  after,
		FwBefore:  fwBefore,
		FwAfter:   fwAfter,
		FwDiff:    fwBefore.DiffAgainst(fwAfter),
		Command:   command,
		Spec:      sp,
	}, nil
}

// AffectedRouters returns the routers whose next hops change for the
// prefix, sorted.
func (info *CommandInfo) AffectedRouters(prefix model.Prefix) []model.RouterID {
	deltas := info.FwDiff[prefix]
	out := make([]model.RouterID, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, d.Router)
	}
	return out
}

// DeltaFor returns the forwarding delta of one router for one prefix.
func (info *CommandInfo) DeltaFor(prefix model.Prefix, router model.RouterID) (fwstate.RouterDelta, bool) {
	for _, d := range info.FwDiff[prefix] {
		if d.Router == router {
			return d, true
		}
	}
	return fwstate.RouterDelta{}, false
}

// ConditionBundle groups the conditions that must hold before the first
// and after the last step of a prefix's migration.
type ConditionBundle struct {
	Pre  []*Condition `json:"pre,omitempty"`
	Post []*Condition `json:"post,omitempty"`
}

// Decomposition is the planner's output: the original command, the
// setup and cleanup command lists, the main sequence (outer list is a
// step, inner commands may run in parallel across prefixes), the BGP
// dependency graphs, the schedule, and the forwarding state trace.
type Decomposition struct {
	OriginalCommand *sim.Modifier
	// ApplyOriginalFirst tells the runtime to apply the original
	// command right after setup instead of before cleanup; used when
	// the command introduces the new route.
	ApplyOriginalFirst bool
	Setup              []*AtomicCommand
	Main               [][]*AtomicCommand
	Cleanup            []*AtomicCommand
	Bundles            map[model.Prefix]*ConditionBundle
	Deps               map[model.Prefix]*DependencyGraph
	Schedule           map[model.Prefix]map[model.RouterID]int
	// Trace holds the expected forwarding state after each main step.
	// It is transient and never serialized.
	Trace []*fwstate.State
}

// Rounds returns the number of main steps.
func (d *Decomposition) Rounds() int { return len(d.Main) }

// Options tune the planner.
type Options struct {
	// MaxRoundsPerPrefix caps the schedule length of each prefix;
	// 0 means the number of affected routers.
	MaxRoundsPerPrefix int
	// SolverTimeout bounds each solver invocation; 0 means no limit.
	SolverTimeout time.Duration
}

// Decompose runs the full pipeline: simulate both configurations,
// compute the forwarding delta, derive BGP dependencies, schedule the
// router updates, and synthesize atomic commands.
func Decompose(net *sim.Network, command *sim.Modifier, sp spec.Specification, opts Options) (*Decomposition, error) {
	info, err := NewCommandInfo(net, command, sp)
	if err != nil {
		return nil, err
	}

	deps := FindDependencies(info)
	schedule, err := ScheduleAll(info, deps, opts)
	if err != nil {
		return nil, err
	}

	decomp, err := Synthesize(info, deps, schedule)
	if err != nil {
		return nil, err
	}
	decomp.Trace = buildTrace(info, schedule, decomp.Rounds())

	// the simulated trace must satisfy the specification at every step
	for step, st := range decomp.Trace {
		for prefix := range info.FwDiff {
			if err := sp.CheckPrefix(prefix, st); err != nil {
				util.WithPrefix(prefix.String()).Errorf("scheduled trace violates specification at step %d: %v", step, err)
				return nil, util.ErrSchedulerInfeasible
			}
		}
	}
	return decomp, nil
}

// buildTrace derives the expected forwarding state after each main
// step by patching the before-state with the deltas of all routers
// scheduled at or before the step.
func buildTrace(info *CommandInfo, schedule map[model.Prefix]map[model.RouterID]int, rounds int) []*fwstate.State {
	trace := make([]*fwstate.State, 0, rounds)
	for step := 0; step < rounds; step++ {
		st := info.FwBefore.Clone()
		for prefix, perRouter := range schedule {
			for router, round := range perRouter {
				if round > step {
					continue
				}
				if delta, ok := info.DeltaFor(prefix, router); ok {
					st.SetNextHops(router, prefix, delta.New)
				}
			}
		}
		trace = append(trace, st)
	}
	return trace
}
