package decompose

import (
	"sort"

	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/sim"
)

// Dependency captures, for one router whose route changes, which
// upstream routers advertised the old route and which must advertise
// the new route before the router may transition.
type Dependency struct {
	Router  model.RouterID   `json:"router"`
	OldFrom []model.RouterID `json:"old_from,omitempty"`
	NewFrom []model.RouterID `json:"new_from,omitempty"`
	// OldNextHop and NewNextHop are the BGP next hops of the two
	// routes; NoRouter when the router has no route on that side.
	OldNextHop model.RouterID `json:"old_next_hop"`
	NewNextHop model.RouterID `json:"new_next_hop"`
}

// DependencyGraph is the per-prefix dependency structure. Edges of kind
// must-happen-before run from each member of NewFrom to the router;
// edges of kind may-happen-concurrently-or-before run from the router
// to each member of OldFrom.
type DependencyGraph struct {
	Prefix model.Prefix                   `json:"-"`
	Nodes  map[model.RouterID]*Dependency `json:"-"`
}

// MustBefore returns the must-happen-before edges (u -> r), restricted
// to routers that themselves appear in the graph.
func (g *DependencyGraph) MustBefore() [][2]model.RouterID {
	var out [][2]model.RouterID
	for _, dep := range g.Nodes {
		for _, u := range dep.NewFrom {
			if _, affected := g.Nodes[u]; affected {
				out = append(out, [2]model.RouterID{u, dep.Router})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// Routers returns the routers in the graph, sorted.
func (g *DependencyGraph) Routers() []model.RouterID {
	out := make([]model.RouterID, 0, len(g.Nodes))
	for r := range g.Nodes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FindDependencies computes the BGP dependency graph for every prefix
// whose forwarding state changes. A router's new_from is the set of
// neighbors that advertise the new route to it in the target network;
// in a route-reflection topology that is typically the reflector, even
// when the route originates elsewhere.
func FindDependencies(info *CommandInfo) map[model.Prefix]*DependencyGraph {
	out := make(map[model.Prefix]*DependencyGraph)
	for prefix := range info.FwDiff {
		graph := &DependencyGraph{
			Prefix: prefix,
			Nodes:  make(map[model.RouterID]*Dependency),
		}
		for _, router := range info.AffectedRouters(prefix) {
			dep := &Dependency{
				Router:     router,
				OldNextHop: model.NoRouter,
				NewNextHop: model.NoRouter,
			}
			dep.OldFrom, dep.OldNextHop = providers(info.NetBefore, router, prefix)
			dep.NewFrom, dep.NewNextHop = providers(info.NetAfter, router, prefix)
			graph.Nodes[router] = dep
		}
		out[prefix] = graph
	}
	return out
}

// providers returns the neighbors whose RIB-In entry carries the
// router's selected route, and the route's BGP next hop. The selected
// route's sender always belongs to the set; further neighbors count
// when they deliver an equal route.
func providers(net *sim.Network, router model.RouterID, prefix model.Prefix) ([]model.RouterID, model.RouterID) {
	r, err := net.GetRouter(router)
	if err != nil {
		return nil, model.NoRouter
	}
	entry := r.RibFor(prefix)
	if entry == nil {
		return nil, model.NoRouter
	}
	sel := entry.Selected
	from := []model.RouterID{sel.From}
	for _, e := range r.RibInAll(prefix) {
		if e.From != sel.From && e.Route.EqualTo(sel.Route) {
			from = append(from, e.From)
		}
	}
	sort.Slice(from, func(i, j int) bool { return from[i] < from[j] })
	return from, sel.Route.NextHop
}
