package decompose

import (
	"fmt"
	"sort"

	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/policy"
	"github.com/netshift-network/netshift/pkg/sim"
)

// ConditionKind enumerates the predicates an atomic command can wait
// for on the live BGP state.
type ConditionKind string

const (
	// CondRibInContains waits until the router has a route for the
	// prefix with the given next hop in its RIB-In from the neighbor.
	CondRibInContains ConditionKind = "rib_in_contains"
	// CondSelectedNextHop waits until the router's selected route for
	// the prefix has the given next hop.
	CondSelectedNextHop ConditionKind = "selected_next_hop"
	// CondNoRoute waits until the router has no route for the prefix.
	CondNoRoute ConditionKind = "no_route"
)

// Condition is a predicate on the live BGP state, checked by polling
// the target router's RIB.
type Condition struct {
	Kind     ConditionKind  `json:"kind"`
	Router   model.RouterID `json:"router"`
	Neighbor model.RouterID `json:"neighbor,omitempty"`
	Prefix   model.Prefix   `json:"-"`
	NextHop  model.RouterID `json:"next_hop,omitempty"`
}

// Satisfied polls the condition against a network.
func (c *Condition) Satisfied(net *sim.Network) (bool, error) {
	r, err := net.GetRouter(c.Router)
	if err != nil {
		return false, err
	}
	switch c.Kind {
	case CondRibInContains:
		entry := r.RibInFrom(c.Neighbor, c.Prefix)
		return entry != nil && entry.Route.NextHop == c.NextHop, nil
	case CondSelectedNextHop:
		route := r.SelectedRoute(c.Prefix)
		return route != nil && route.NextHop == c.NextHop, nil
	case CondNoRoute:
		return r.SelectedRoute(c.Prefix) == nil, nil
	default:
		return false, fmt.Errorf("unknown condition kind '%s'", c.Kind)
	}
}

func (c *Condition) String() string {
	switch c.Kind {
	case CondRibInContains:
		return fmt.Sprintf("%s has route for %s via %s from %s", c.Router, c.Prefix, c.NextHop, c.Neighbor)
	case CondSelectedNextHop:
		return fmt.Sprintf("%s selects %s via %s", c.Router, c.Prefix, c.NextHop)
	case CondNoRoute:
		return fmt.Sprintf("%s has no route for %s", c.Router, c.Prefix)
	}
	return string(c.Kind)
}

// AtomicCommand is a single router-local configuration change paired
// with a precondition (wait before applying) and a postcondition (wait
// after applying).
type AtomicCommand struct {
	Modifier *sim.Modifier `json:"modifier"`
	Pre      []*Condition  `json:"pre,omitempty"`
	Post     []*Condition  `json:"post,omitempty"`
	// Router and Prefix identify what the command migrates; setup and
	// cleanup commands leave Router unset.
	Router model.RouterID `json:"router,omitempty"`
	Prefix model.Prefix   `json:"-"`
	Round  int            `json:"round,omitempty"`
}

func (c *AtomicCommand) String() string {
	return c.Modifier.String()
}

// Route-map order keys reserved for transient planner entries. They sit
// far below any user entry so they always evaluate first. Each prefix
// gets its own slice of the key space so migrations of several prefixes
// never collide on a shared session.
const (
	orderTagBase     int16 = -32000
	orderTriggerBase int16 = -31000
	orderPinBase     int16 = -30000
	ordersPerPrefix  int16 = 64
)

func tagOrder(prefixIdx, round int) int16 {
	return orderTagBase + int16(prefixIdx)*ordersPerPrefix + int16(round)
}

func triggerOrder(prefixIdx, round int) int16 {
	return orderTriggerBase + int16(prefixIdx)*ordersPerPrefix + int16(round)
}

func pinOrder(prefixIdx int) int16 {
	return orderPinBase + int16(prefixIdx)
}

// controlCommunity derives the control community of a prefix and round.
func controlCommunity(prefixIdx, round int) model.Community {
	return model.Community(0xFF000000 | uint32(prefixIdx)<<8 | uint32(round))
}

// Synthesize translates a schedule into atomic commands. Router
// updates are driven by a control community per (prefix, round): setup
// installs pin entries holding every affected router on its old route
// and trigger entries that prefer the new route once it carries the
// round's community; each main step tags the community onto the new
// route at its eBGP ingress, flipping exactly the routers of that
// round; cleanup removes all transient entries and, for commands that
// retire the old route, applies the original command first.
func Synthesize(info *CommandInfo, deps map[model.Prefix]*DependencyGraph, schedule map[model.Prefix]map[model.RouterID]int) (*Decomposition, error) {
	decomp := &Decomposition{
		OriginalCommand: info.Command,
		Bundles:         make(map[model.Prefix]*ConditionBundle),
		Deps:            deps,
		Schedule:        schedule,
	}

	prefixes := sortedDiffPrefixes(info)
	maxRound := 0
	for _, perRouter := range schedule {
		for _, round := range perRouter {
			if round+1 > maxRound {
				maxRound = round + 1
			}
		}
	}
	decomp.Main = make([][]*AtomicCommand, maxRound)

	for prefixIdx, prefix := range prefixes {
		graph := deps[prefix]
		bundle := &ConditionBundle{}
		decomp.Bundles[prefix] = bundle

		ingress, ingressExt := newRouteIngress(info, prefix)
		decomp.ApplyOriginalFirst = decomp.ApplyOriginalFirst || ingressNeedsCommand(info, prefix, ingress, ingressExt)

		for _, router := range info.AffectedRouters(prefix) {
			dep := graph.Nodes[router]
			round := schedule[prefix][router]

			// pin the old route so nothing moves before its round
			if len(dep.OldFrom) > 0 {
				pin := pinCommand(prefix, prefixIdx, router, dep.OldFrom[0])
				decomp.Setup = append(decomp.Setup, pin)
			}

			if len(dep.NewFrom) == 0 {
				// the router ends up without a route: its step
				// installs a transient drop that cleanup removes after
				// the original command retired the old route
				cmd := dropCommand(prefix, router, round)
				decomp.Main[round] = append(decomp.Main[round], cmd)
				decomp.Cleanup = append(decomp.Cleanup, &AtomicCommand{
					Modifier: sim.Remove(&sim.ConfigExpr{
						Kind:   sim.ExprStaticRoute,
						Router: router,
						Prefix: prefix,
					}),
					Prefix: prefix,
				})
				bundle.Post = append(bundle.Post, &Condition{
					Kind: CondNoRoute, Router: router, Prefix: prefix,
				})
				continue
			}

			upstream := dep.NewFrom[0]
			trigger := triggerCommand(prefix, prefixIdx, router, upstream, round)
			decomp.Setup = append(decomp.Setup, trigger)
			decomp.Cleanup = append(decomp.Cleanup, invert(trigger))

			bundle.Post = append(bundle.Post, &Condition{
				Kind: CondSelectedNextHop, Router: router, Prefix: prefix, NextHop: dep.NewNextHop,
			})
		}

		if ingress.IsSome() {
			bundle.Pre = append(bundle.Pre, &Condition{
				Kind:     CondRibInContains,
				Router:   ingress,
				Neighbor: ingressExt,
				Prefix:   prefix,
				NextHop:  ingressExt,
			})

			// one tag command per round that has routers for this prefix
			for round := 0; round < maxRound; round++ {
				routers := routersOfRound(info, schedule, prefix, round)
				if len(routers) == 0 {
					continue
				}
				tag := tagCommand(prefix, prefixIdx, ingress, ingressExt, round, routers, graph, schedule[prefix])
				decomp.Main[round] = append(decomp.Main[round], tag)
				decomp.Cleanup = append(decomp.Cleanup, invert(tag))
			}
		}
	}

	// pins come off last, after the original command has been applied
	for prefixIdx, prefix := range prefixes {
		graph := deps[prefix]
		for _, router := range info.AffectedRouters(prefix) {
			dep := graph.Nodes[router]
			if len(dep.OldFrom) > 0 {
				decomp.Cleanup = append(decomp.Cleanup, invert(pinCommand(prefix, prefixIdx, router, dep.OldFrom[0])))
			}
		}
	}

	return decomp, nil
}

// newRouteIngress finds the router that learns the new route over eBGP,
// and the external router providing it. When several ingresses exist,
// the lowest router ID wins.
func newRouteIngress(info *CommandInfo, prefix model.Prefix) (model.RouterID, model.RouterID) {
	best := model.NoRouter
	bestExt := model.NoRouter
	for _, id := range info.NetAfter.InternalRouters() {
		r, err := info.NetAfter.GetRouter(id)
		if err != nil {
			continue
		}
		entry := r.RibFor(prefix)
		if entry == nil {
			continue
		}
		if info.NetAfter.IsExternal(entry.Selected.From) {
			if !best.IsSome() || id < best {
				best = id
				bestExt = entry.Selected.From
			}
		}
	}
	return best, bestExt
}

// ingressNeedsCommand reports whether the new route only exists after
// the original command is applied, in which case the runtime applies it
// right after setup.
func ingressNeedsCommand(info *CommandInfo, prefix model.Prefix, ingress, ext model.RouterID) bool {
	if !ingress.IsSome() {
		return false
	}
	r, err := info.NetBefore.GetRouter(ingress)
	if err != nil {
		return true
	}
	return r.RibInFrom(ext, prefix) == nil
}

func routersOfRound(info *CommandInfo, schedule map[model.Prefix]map[model.RouterID]int, prefix model.Prefix, round int) []model.RouterID {
	var out []model.RouterID
	for router, r := range schedule[prefix] {
		if r == round {
			out = append(out, router)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// pinCommand holds a router on its old route with a transient weight:
// weight is router-local and never propagates, so pinning one router
// cannot disturb any other.
func pinCommand(prefix model.Prefix, prefixIdx int, router, oldFrom model.RouterID) *AtomicCommand {
	weight := uint32(300)
	return &AtomicCommand{
		Modifier: sim.Insert(&sim.ConfigExpr{
			Kind:      sim.ExprRouteMapEntry,
			Router:    router,
			Neighbor:  oldFrom,
			Direction: policy.DirectionIn,
			Entry: &policy.Entry{
				Order: pinOrder(prefixIdx),
				State: policy.StateAllow,
				Match: policy.Match{PrefixIn: []model.Prefix{prefix}},
				Set:   []policy.SetAction{{Kind: policy.SetWeight, Value: &weight}},
			},
		}),
		Prefix: prefix,
	}
}

// triggerCommand prefers the new route once it carries the round's
// control community, again with a router-local weight so the gate fires
// per router, not network-wide.
func triggerCommand(prefix model.Prefix, prefixIdx int, router, upstream model.RouterID, round int) *AtomicCommand {
	weight := uint32(400)
	community := controlCommunity(prefixIdx, round)
	return &AtomicCommand{
		Modifier: sim.Insert(&sim.ConfigExpr{
			Kind:      sim.ExprRouteMapEntry,
			Router:    router,
			Neighbor:  upstream,
			Direction: policy.DirectionIn,
			Entry: &policy.Entry{
				Order: triggerOrder(prefixIdx, round),
				State: policy.StateAllow,
				Match: policy.Match{
					PrefixIn:         []model.Prefix{prefix},
					CommunityPresent: &community,
				},
				Set: []policy.SetAction{{Kind: policy.SetWeight, Value: &weight}},
			},
		}),
		Prefix: prefix,
	}
}

// tagCommand builds the per-round toggle: it adds the round's control
// community to the new route at its eBGP ingress. Postconditions cover
// every router of the round; preconditions only those whose upstream
// already carries the new route before the toggle, i.e. an unaffected
// upstream or one scheduled in an earlier round. Same-round cascades
// are ordered by BGP propagation itself.
func tagCommand(prefix model.Prefix, prefixIdx int, ingress, ext model.RouterID, round int, routers []model.RouterID, graph *DependencyGraph, rounds map[model.RouterID]int) *AtomicCommand {
	community := controlCommunity(prefixIdx, round)
	cmd := &AtomicCommand{
		Modifier: sim.Insert(&sim.ConfigExpr{
			Kind:      sim.ExprRouteMapEntry,
			Router:    ingress,
			Neighbor:  ext,
			Direction: policy.DirectionIn,
			Entry: &policy.Entry{
				Order: tagOrder(prefixIdx, round),
				State: policy.StateAllow,
				Match: policy.Match{PrefixIn: []model.Prefix{prefix}},
				Set:   []policy.SetAction{{Kind: policy.SetCommunityAdd, Community: community}},
				Flow:  policy.Flow{Continue: true},
			},
		}),
		Router: ingress,
		Prefix: prefix,
		Round:  round,
	}
	for _, router := range routers {
		dep := graph.Nodes[router]
		if len(dep.NewFrom) == 0 {
			continue
		}
		upstream := dep.NewFrom[0]
		upstreamRound, upstreamAffected := rounds[upstream]
		if !upstreamAffected || upstreamRound < round {
			cmd.Pre = append(cmd.Pre, &Condition{
				Kind:     CondRibInContains,
				Router:   router,
				Neighbor: upstream,
				Prefix:   prefix,
				NextHop:  dep.NewNextHop,
			})
		}
		cmd.Post = append(cmd.Post, &Condition{
			Kind:    CondSelectedNextHop,
			Router:  router,
			Prefix:  prefix,
			NextHop: dep.NewNextHop,
		})
	}
	return cmd
}

// dropCommand installs a transient drop for a router that loses its
// route.
func dropCommand(prefix model.Prefix, router model.RouterID, round int) *AtomicCommand {
	return &AtomicCommand{
		Modifier: sim.Insert(&sim.ConfigExpr{
			Kind:   sim.ExprStaticRoute,
			Router: router,
			Prefix: prefix,
			Target: &model.StaticRouteTarget{Kind: model.StaticDrop, Router: model.NoRouter},
		}),
		Router: router,
		Prefix: prefix,
		Round:  round,
	}
}

// invert turns an insert command into the matching remove, used for
// cleanup.
func invert(cmd *AtomicCommand) *AtomicCommand {
	return &AtomicCommand{
		Modifier: sim.Remove(cmd.Modifier.Expr),
		Prefix:   cmd.Prefix,
	}
}
