// Package runtime replays a decomposition against the simulator:
// setup, the scheduled main sequence, the original command and cleanup,
// waiting on each command's pre- and postconditions and checking the
// specification after every step.
package runtime

import (
	"errors"
	"fmt"
	"time"

	"github.com/netshift-network/netshift/pkg/decompose"
	"github.com/netshift-network/netshift/pkg/fwstate"
	"github.com/netshift-network/netshift/pkg/sim"
	"github.com/netshift-network/netshift/pkg/spec"
	"github.com/netshift-network/netshift/pkg/util"
)

// ErrWrongFinalState reports that the replayed network differs from the
// network obtained by applying the original command directly.
var ErrWrongFinalState = errors.New("replayed network differs from the expected final state")

// Stats are collected while replaying a decomposition.
type Stats struct {
	RoutesBefore int            `json:"routes_before"`
	RoutesAfter  int            `json:"routes_after"`
	MaxRoutes    int            `json:"max_routes"`
	Steps        int            `json:"steps"`
	FwDeltas     []fwstate.Diff `json:"-"`
}

// Options tune the replay.
type Options struct {
	// CondRetries bounds how often a condition is polled before the
	// replay gives up.
	CondRetries int
	// CondBackoff is the initial delay between polls; it doubles on
	// every retry.
	CondBackoff time.Duration
	// SkipFinalCheck disables the comparison against the directly
	// reconfigured network.
	SkipFinalCheck bool
}

// DefaultOptions are suitable for simulated replay, where conditions
// are stable once the network converged.
func DefaultOptions() Options {
	return Options{CondRetries: 3, CondBackoff: 10 * time.Millisecond}
}

// Controller replays one decomposition.
type Controller struct {
	decomp *decompose.Decomposition
	spec   spec.Specification
	opts   Options
}

// NewController creates a replay controller.
func NewController(decomp *decompose.Decomposition, sp spec.Specification, opts Options) *Controller {
	return &Controller{decomp: decomp, spec: sp, opts: opts}
}

// Run executes the decomposition on the network. Failures in the main
// sequence are followed by a best-effort run of all remaining cleanup
// commands before the original error surfaces.
func (c *Controller) Run(net *sim.Network) (*Stats, error) {
	stats := &Stats{RoutesBefore: countRoutes(net)}

	var expected *sim.Network
	if !c.opts.SkipFinalCheck {
		expected = net.Clone()
		if err := expected.ApplyModifier(c.decomp.OriginalCommand); err != nil {
			return nil, fmt.Errorf("applying original command to reference network: %w", err)
		}
	}

	runErr := c.execute(net, stats)

	// cleanup is idempotent: run every remaining command even after a
	// failure, then surface the first error
	for _, cmd := range c.decomp.Cleanup {
		if err := net.ApplyModifier(cmd.Modifier); err != nil {
			util.WithOperation("cleanup").Warnf("cleanup command failed: %v", err)
		}
	}

	stats.RoutesAfter = countRoutes(net)
	c.trackMax(net, stats)
	if runErr != nil {
		return stats, runErr
	}

	if expected != nil && !net.EqualTo(expected) {
		return stats, ErrWrongFinalState
	}
	return stats, nil
}

// execute runs setup, the original command at its scheduled position,
// and the main sequence.
func (c *Controller) execute(net *sim.Network, stats *Stats) error {
	for _, cmd := range c.decomp.Setup {
		if err := c.applyCommand(net, cmd, stats); err != nil {
			return err
		}
	}
	if c.decomp.ApplyOriginalFirst {
		if err := net.ApplyModifier(c.decomp.OriginalCommand); err != nil {
			return err
		}
	}

	previous := net.GetForwardingState()
	for step, commands := range c.decomp.Main {
		for _, cmd := range commands {
			if err := c.applyCommand(net, cmd, stats); err != nil {
				return fmt.Errorf("step %d: %w", step, err)
			}
		}
		current := net.GetForwardingState()
		stats.FwDeltas = append(stats.FwDeltas, previous.DiffAgainst(current))
		previous = current
		stats.Steps++

		if err := c.checkSpec(current, step); err != nil {
			return err
		}
	}

	if !c.decomp.ApplyOriginalFirst {
		if err := net.ApplyModifier(c.decomp.OriginalCommand); err != nil {
			return err
		}
		if err := c.checkSpec(net.GetForwardingState(), len(c.decomp.Main)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) checkSpec(st *fwstate.State, step int) error {
	for prefix, invariants := range c.spec {
		for _, inv := range invariants {
			if err := inv.Check(st); err != nil {
				util.WithPrefix(prefix.String()).Errorf("invariant violated at step %d: %v", step, err)
				return &util.InvariantError{
					Prefix:    prefix.String(),
					Router:    inv.Router().String(),
					Invariant: inv.Describe(),
					Step:      step,
				}
			}
		}
	}
	return nil
}

// applyCommand waits for the preconditions, applies the modifier, and
// waits for the postconditions.
func (c *Controller) applyCommand(net *sim.Network, cmd *decompose.AtomicCommand, stats *Stats) error {
	for _, cond := range cmd.Pre {
		if err := c.await(net, cond, util.ErrPreconditionFailed); err != nil {
			return err
		}
	}
	if err := net.ApplyModifier(cmd.Modifier); err != nil {
		return err
	}
	c.trackMax(net, stats)
	for _, cond := range cmd.Post {
		if err := c.await(net, cond, util.ErrPostconditionFailed); err != nil {
			return err
		}
	}
	return nil
}

// await polls a condition with bounded exponential backoff.
func (c *Controller) await(net *sim.Network, cond *decompose.Condition, kind error) error {
	delay := c.opts.CondBackoff
	for attempt := 0; ; attempt++ {
		ok, err := cond.Satisfied(net)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if attempt >= c.opts.CondRetries {
			return &util.ConditionError{
				Kind:      kind,
				Router:    cond.Router.String(),
				Condition: cond.String(),
			}
		}
		time.Sleep(delay)
		delay *= 2
	}
}

func (c *Controller) trackMax(net *sim.Network, stats *Stats) {
	if n := countRoutes(net); n > stats.MaxRoutes {
		stats.MaxRoutes = n
	}
}

// countRoutes totals the RIB-In and RIB entries across all internal
// routers.
func countRoutes(net *sim.Network) int {
	total := 0
	prefixes := net.KnownPrefixes()
	for _, id := range net.InternalRouters() {
		r, err := net.GetRouter(id)
		if err != nil {
			continue
		}
		for _, prefix := range prefixes {
			total += len(r.RibInAll(prefix))
			if r.SelectedRoute(prefix) != nil {
				total++
			}
		}
	}
	return total
}

// Run replays a decomposition with default options.
func Run(net *sim.Network, decomp *decompose.Decomposition, sp spec.Specification) (*Stats, error) {
	return NewController(decomp, sp, DefaultOptions()).Run(net)
}
