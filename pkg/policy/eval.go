package policy

import (
	"github.com/netshift-network/netshift/pkg/model"
)

// Outcome is the result of evaluating a route-map chain. Route is nil
// when the chain denied the route. IgpCost and Weight carry the decision
// overrides that are attached to the RIB-In entry rather than the route
// itself.
type Outcome struct {
	Route   *model.BgpRoute
	IgpCost *float64
	Weight  *uint32
}

// Deny reports whether the chain dropped the route.
func (o Outcome) Deny() bool { return o.Route == nil }

// Apply evaluates the route-map against a route. Entries are visited in
// ascending order. The first entry whose conditions hold decides: Deny
// drops the route, Allow applies the set actions and either exits or
// continues at the flow target. If no entry matches, the route passes
// unmodified.
func (m *RouteMap) Apply(route *model.BgpRoute) Outcome {
	if m.IsEmpty() {
		return Outcome{Route: route}
	}
	current := route.Clone()
	out := Outcome{}
	i := 0
	for i < len(m.Entries) {
		entry := &m.Entries[i]
		if !entry.Match.Holds(current) {
			i++
			continue
		}
		if entry.State == StateDeny {
			return Outcome{}
		}
		applySet(entry.Set, current, &out)
		if !entry.Flow.Continue {
			out.Route = current
			return out
		}
		if entry.Flow.Target == nil {
			i++
			continue
		}
		// jump to the next entry with order >= target
		next := len(m.Entries)
		for j := range m.Entries {
			if m.Entries[j].Order >= *entry.Flow.Target && j > i {
				next = j
				break
			}
		}
		i = next
	}
	out.Route = current
	return out
}

// ApplyChain evaluates multiple route-maps in sequence, stopping at the
// first denial. Maps later in the chain see the mutations of earlier
// ones.
func ApplyChain(maps []*RouteMap, route *model.BgpRoute) Outcome {
	out := Outcome{Route: route}
	for _, m := range maps {
		next := m.Apply(out.Route)
		if next.Deny() {
			return Outcome{}
		}
		if next.IgpCost != nil {
			out.IgpCost = next.IgpCost
		}
		if next.Weight != nil {
			out.Weight = next.Weight
		}
		out.Route = next.Route
	}
	return out
}

func applySet(actions []SetAction, route *model.BgpRoute, out *Outcome) {
	for _, a := range actions {
		switch a.Kind {
		case SetNextHop:
			route.NextHop = a.Router
		case SetLocalPref:
			route.LocalPref = cloneU32(a.Value)
		case SetMed:
			route.MED = cloneU32(a.Value)
		case SetIgpCost:
			out.IgpCost = cloneF64(a.Cost)
		case SetCommunityAdd:
			route.Communities.Add(a.Community)
		case SetCommunityRemove:
			route.Communities.Remove(a.Community)
		case SetWeight:
			out.Weight = cloneU32(a.Value)
		}
	}
}

func cloneU32(v *uint32) *uint32 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneF64(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
