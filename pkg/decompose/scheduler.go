package decompose

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/netshift-network/netshift/pkg/ilp"
	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/util"
)

// ScheduleAll computes, per prefix, a round assignment for every
// affected router. The number of rounds is minimized first, then the
// sum of rounds (earlier updates preferred). Each prefix needs at most
// as many rounds as it has affected routers; otherwise the scheduler
// reports infeasibility.
func ScheduleAll(info *CommandInfo, deps map[model.Prefix]*DependencyGraph, opts Options) (map[model.Prefix]map[model.RouterID]int, error) {
	out := make(map[model.Prefix]map[model.RouterID]int)
	for _, prefix := range sortedDiffPrefixes(info) {
		schedule, err := SchedulePrefix(info, deps[prefix], prefix, opts)
		if err != nil {
			return nil, err
		}
		out[prefix] = schedule
	}
	return out, nil
}

func sortedDiffPrefixes(info *CommandInfo) []model.Prefix {
	out := make([]model.Prefix, 0, len(info.FwDiff))
	for prefix := range info.FwDiff {
		out = append(out, prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// SchedulePrefix finds the smallest number of rounds that admits a
// valid assignment, growing the bound one round at a time.
func SchedulePrefix(info *CommandInfo, graph *DependencyGraph, prefix model.Prefix, opts Options) (map[model.RouterID]int, error) {
	affected := info.AffectedRouters(prefix)
	if len(affected) == 0 {
		return map[model.RouterID]int{}, nil
	}
	maxRounds := opts.MaxRoundsPerPrefix
	if maxRounds <= 0 {
		maxRounds = len(affected)
	}
	for rounds := 1; rounds <= maxRounds; rounds++ {
		schedule, err := scheduleWithRounds(info, graph, prefix, affected, rounds, opts)
		if err == nil {
			return schedule, nil
		}
		if errors.Is(err, util.ErrSchedulerTimeout) {
			return nil, err
		}
		if !errors.Is(err, util.ErrSchedulerInfeasible) {
			return nil, err
		}
	}
	return nil, util.ErrSchedulerInfeasible
}

// scheduleWithRounds formulates the integer program for a fixed round
// bound and solves it.
func scheduleWithRounds(info *CommandInfo, graph *DependencyGraph, prefix model.Prefix, affected []model.RouterID, rounds int, opts Options) (map[model.RouterID]int, error) {
	solver := ilp.NewBranchBound()

	vars := make(map[model.RouterID]ilp.Var, len(affected))
	order := make([]model.RouterID, len(affected))
	copy(order, affected)
	for _, router := range order {
		vars[router] = solver.AddVariable(0, rounds-1)
	}

	// forwarding dependencies: no transient state at any round boundary
	// may hold both an old and a new edge of the same loop, so every
	// old edge must retire no later than any new edge fires
	for _, loop := range AllLoops(info, prefix) {
		oldVars, newVars, permanent := classifyLoop(info, prefix, loop, vars)
		if permanent {
			continue
		}
		if len(newVars) == 0 {
			// loop made of old edges only would exist in the source
			// state already; nothing to constrain
			continue
		}
		if len(oldVars) == 0 {
			// loop made of new edges only exists in the target state;
			// the target network is converged and loop-free, so this
			// cannot happen
			return nil, util.ErrSchedulerInfeasible
		}
		solver.AddConstraint(ilp.LoopBreak{Old: oldVars, New: newVars})
	}

	// BGP dependencies: an upstream that must provide the new route
	// updates no later than its dependents. The same round is allowed:
	// every step replays to convergence, so in-round propagation is
	// guaranteed and the command preconditions enforce the order within
	// the round.
	if graph != nil {
		for _, edge := range graph.MustBefore() {
			u, r := edge[0], edge[1]
			if u == r {
				continue
			}
			solver.AddConstraint(ilp.AtMostDiff{X: vars[u], Y: vars[r], Offset: 0})
		}
	}

	// invariant preservation: every intermediate forwarding state of
	// the prefix satisfies its invariants; results are cached per
	// fired-router set
	invariants := info.Spec.For(prefix)
	if len(invariants) > 0 {
		allVars := make([]ilp.Var, 0, len(order))
		for _, router := range order {
			allVars = append(allVars, vars[router])
		}
		cache := make(map[string]bool)
		solver.AddConstraint(ilp.FullCheck{
			Vars: allVars,
			Check: func(sol ilp.Solution) bool {
				for step := 0; step < rounds; step++ {
					fired := make([]model.RouterID, 0, len(order))
					for _, router := range order {
						if sol[vars[router]] <= step {
							fired = append(fired, router)
						}
					}
					if !transientOK(info, prefix, fired, cache) {
						return false
					}
				}
				return true
			},
		})
	}

	objective := ilp.Objective{Coeffs: make(map[ilp.Var]int, len(vars))}
	for _, v := range vars {
		objective.Coeffs[v] = 1
	}
	solver.SetObjective(objective)

	solution, err := solver.SolveWithTimeout(opts.SolverTimeout)
	if err != nil {
		return nil, err
	}
	out := make(map[model.RouterID]int, len(vars))
	for router, v := range vars {
		out[router] = solution[v]
	}
	return out, nil
}

// classifyLoop splits a loop's edges into old-only and new-only
// variables. Edges of unaffected routers are always active; a loop made
// only of those is permanent and reported as such.
func classifyLoop(info *CommandInfo, prefix model.Prefix, loop []model.RouterID, vars map[model.RouterID]ilp.Var) (oldVars, newVars []ilp.Var, permanent bool) {
	anyConditional := false
	for i, router := range loop {
		next := loop[(i+1)%len(loop)]
		delta, affected := info.DeltaFor(prefix, router)
		if !affected {
			continue
		}
		inOld := containsRouter(delta.Old, next)
		inNew := containsRouter(delta.New, next)
		switch {
		case inOld && inNew:
			// active on both sides, no constraint from this edge
		case inOld:
			oldVars = append(oldVars, vars[router])
			anyConditional = true
		case inNew:
			newVars = append(newVars, vars[router])
			anyConditional = true
		}
	}
	return oldVars, newVars, !anyConditional
}

func containsRouter(list []model.RouterID, r model.RouterID) bool {
	for _, x := range list {
		if x == r {
			return true
		}
	}
	return false
}

// transientOK checks (and caches) whether the prefix invariants hold in
// the transient state where exactly the fired routers use their new
// next hops.
func transientOK(info *CommandInfo, prefix model.Prefix, fired []model.RouterID, cache map[string]bool) bool {
	key := firedKey(fired)
	if ok, seen := cache[key]; seen {
		return ok
	}
	st := info.FwBefore.Clone()
	for _, router := range fired {
		if delta, ok := info.DeltaFor(prefix, router); ok {
			st.SetNextHops(router, prefix, delta.New)
		}
	}
	ok := info.Spec.CheckPrefix(prefix, st) == nil
	cache[key] = ok
	return ok
}

func firedKey(fired []model.RouterID) string {
	ids := make([]string, len(fired))
	for i, r := range fired {
		ids[i] = strconv.Itoa(int(r))
	}
	sort.Strings(ids)
	return strings.Join(ids, ",")
}
