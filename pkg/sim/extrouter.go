package sim

import (
	"sort"

	"github.com/netshift-network/netshift/pkg/model"
)

// ExternalRouter models a router outside the simulated AS. It only takes
// part in eBGP sessions: it advertises and withdraws routes, and records
// whatever its neighbors advertise to it.
type ExternalRouter struct {
	id   model.RouterID
	name string
	asn  model.ASN

	sessions   map[model.RouterID]bool
	advertised map[model.Prefix]*model.BgpRoute
	received   map[ribInKey]*model.BgpRoute
}

func newExternalRouter(id model.RouterID, name string, asn model.ASN) *ExternalRouter {
	return &ExternalRouter{
		id:         id,
		name:       name,
		asn:        asn,
		sessions:   make(map[model.RouterID]bool),
		advertised: make(map[model.Prefix]*model.BgpRoute),
		received:   make(map[ribInKey]*model.BgpRoute),
	}
}

// ID returns the router's identifier.
func (e *ExternalRouter) ID() model.RouterID { return e.id }

// Name returns the router's display name.
func (e *ExternalRouter) Name() string { return e.name }

// ASN returns the router's AS number.
func (e *ExternalRouter) ASN() model.ASN { return e.asn }

// Sessions returns the eBGP neighbors, sorted.
func (e *ExternalRouter) Sessions() []model.RouterID {
	out := make([]model.RouterID, 0, len(e.sessions))
	for n := range e.sessions {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasSession returns true if an eBGP session to the neighbor exists.
func (e *ExternalRouter) HasSession(neighbor model.RouterID) bool {
	return e.sessions[neighbor]
}

// Advertised returns the currently advertised route for the prefix.
func (e *ExternalRouter) Advertised(prefix model.Prefix) *model.BgpRoute {
	return e.advertised[prefix]
}

// AdvertisedPrefixes returns all advertised prefixes, sorted.
func (e *ExternalRouter) AdvertisedPrefixes() []model.Prefix {
	out := make([]model.Prefix, 0, len(e.advertised))
	for p := range e.advertised {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Received returns the route a neighbor advertised to this router.
func (e *ExternalRouter) Received(neighbor model.RouterID, prefix model.Prefix) *model.BgpRoute {
	return e.received[ribInKey{neighbor, prefix}]
}

// advertiseRoute stores the route and emits an update to every session.
func (e *ExternalRouter) advertiseRoute(route *model.BgpRoute) []*Event {
	route = route.Clone()
	route.NextHop = e.id
	e.advertised[route.Prefix] = route
	var out []*Event
	for _, neighbor := range e.Sessions() {
		out = append(out, &Event{From: e.id, To: neighbor, Payload: Update(route.Clone())})
	}
	return out
}

// withdrawRoute removes the advertisement and emits withdrawals.
func (e *ExternalRouter) withdrawRoute(prefix model.Prefix) []*Event {
	if _, ok := e.advertised[prefix]; !ok {
		return nil
	}
	delete(e.advertised, prefix)
	var out []*Event
	for _, neighbor := range e.Sessions() {
		out = append(out, &Event{From: e.id, To: neighbor, Payload: Withdraw(prefix)})
	}
	return out
}

// handleEvent records advertisements from neighbors. External routers
// never propagate.
func (e *ExternalRouter) handleEvent(ev *Event) []*Event {
	key := ribInKey{ev.From, ev.PrefixOf()}
	switch ev.Payload.Kind {
	case EventUpdate:
		e.received[key] = ev.Payload.Route.Clone()
	case EventWithdraw:
		delete(e.received, key)
	}
	return nil
}

// openSession registers a neighbor and advertises all routes to it.
func (e *ExternalRouter) openSession(neighbor model.RouterID) []*Event {
	e.sessions[neighbor] = true
	var out []*Event
	for _, prefix := range e.AdvertisedPrefixes() {
		out = append(out, &Event{From: e.id, To: neighbor, Payload: Update(e.advertised[prefix].Clone())})
	}
	return out
}

// dropNeighbor removes the session and everything received over it.
func (e *ExternalRouter) dropNeighbor(neighbor model.RouterID) {
	delete(e.sessions, neighbor)
	for k := range e.received {
		if k.from == neighbor {
			delete(e.received, k)
		}
	}
}

// clone deep-copies the external router.
func (e *ExternalRouter) clone() *ExternalRouter {
	c := newExternalRouter(e.id, e.name, e.asn)
	for n := range e.sessions {
		c.sessions[n] = true
	}
	for p, route := range e.advertised {
		c.advertised[p] = route.Clone()
	}
	for k, route := range e.received {
		c.received[k] = route.Clone()
	}
	return c
}
