package sim

import (
	"sort"

	"github.com/netshift-network/netshift/pkg/igp"
	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/policy"
)

type ribInKey struct {
	from   model.RouterID
	prefix model.Prefix
}

// RibInEntry is a route received from a neighbor, after the incoming
// route-map chain. IgpCost and Weight are decision overrides attached by
// the route-map.
type RibInEntry struct {
	Route       *model.BgpRoute
	From        model.RouterID
	SessionType model.BgpSessionType
	IgpCost     *float64
	Weight      uint32
}

// RibEntry is the outcome of the decision process for one prefix: the
// selected route and, under load balancing, all routes that tie with it
// under the first six rules.
type RibEntry struct {
	Selected *RibInEntry
	// Eligible lists all reachable candidates, best first.
	Eligible []*RibInEntry
	// Tied lists the candidates tying with the winner under rules 1-6.
	// It always contains the winner.
	Tied []*RibInEntry
}

// Router is an internal BGP router: RIB-In, decision table, sessions,
// route-maps, static routes and OSPF participation. Routers never hold a
// reference to the Network; cross-references are RouterIDs resolved
// through the network.
type Router struct {
	id   model.RouterID
	name string
	asn  model.ASN

	sessions      map[model.RouterID]model.BgpSessionType
	ribInRaw      map[ribInKey]*model.BgpRoute
	ribIn         map[ribInKey]*RibInEntry
	rib           map[model.Prefix]*RibEntry
	ribOut        map[model.RouterID]map[model.Prefix]*model.BgpRoute
	routeMaps     map[model.RouterID]map[policy.Direction]*policy.RouteMap
	staticRoutes  map[model.Prefix]model.StaticRouteTarget
	loadBalancing bool
}

func newRouter(id model.RouterID, name string, asn model.ASN) *Router {
	return &Router{
		id:           id,
		name:         name,
		asn:          asn,
		sessions:     make(map[model.RouterID]model.BgpSessionType),
		ribInRaw:     make(map[ribInKey]*model.BgpRoute),
		ribIn:        make(map[ribInKey]*RibInEntry),
		rib:          make(map[model.Prefix]*RibEntry),
		ribOut:       make(map[model.RouterID]map[model.Prefix]*model.BgpRoute),
		routeMaps:    make(map[model.RouterID]map[policy.Direction]*policy.RouteMap),
		staticRoutes: make(map[model.Prefix]model.StaticRouteTarget),
	}
}

// ID returns the router's identifier.
func (r *Router) ID() model.RouterID { return r.id }

// Name returns the router's display name.
func (r *Router) Name() string { return r.name }

// ASN returns the router's AS number.
func (r *Router) ASN() model.ASN { return r.asn }

// Sessions returns a copy of the session table.
func (r *Router) Sessions() map[model.RouterID]model.BgpSessionType {
	out := make(map[model.RouterID]model.BgpSessionType, len(r.sessions))
	for n, t := range r.sessions {
		out[n] = t
	}
	return out
}

// SessionWith returns the session type towards the neighbor.
func (r *Router) SessionWith(neighbor model.RouterID) (model.BgpSessionType, bool) {
	t, ok := r.sessions[neighbor]
	return t, ok
}

// SelectedRoute returns the selected route for the prefix, or nil.
func (r *Router) SelectedRoute(prefix model.Prefix) *model.BgpRoute {
	if e, ok := r.rib[prefix]; ok {
		return e.Selected.Route
	}
	return nil
}

// RibFor returns the decision entry for the prefix, or nil.
func (r *Router) RibFor(prefix model.Prefix) *RibEntry {
	return r.rib[prefix]
}

// RibInFrom returns the RIB-In entry from the neighbor for the prefix.
func (r *Router) RibInFrom(neighbor model.RouterID, prefix model.Prefix) *RibInEntry {
	return r.ribIn[ribInKey{neighbor, prefix}]
}

// RibInAll returns all RIB-In entries for a prefix, sorted by neighbor.
func (r *Router) RibInAll(prefix model.Prefix) []*RibInEntry {
	var out []*RibInEntry
	for k, e := range r.ribIn {
		if k.prefix.EqualTo(prefix) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

// AdvertisedTo returns the route last advertised to the neighbor for the
// prefix, or nil.
func (r *Router) AdvertisedTo(neighbor model.RouterID, prefix model.Prefix) *model.BgpRoute {
	return r.ribOut[neighbor][prefix]
}

// StaticRoute returns the static route for the prefix.
func (r *Router) StaticRoute(prefix model.Prefix) (model.StaticRouteTarget, bool) {
	t, ok := r.staticRoutes[prefix]
	return t, ok
}

// StaticRoutes returns a copy of the static route table.
func (r *Router) StaticRoutes() map[model.Prefix]model.StaticRouteTarget {
	out := make(map[model.Prefix]model.StaticRouteTarget, len(r.staticRoutes))
	for p, t := range r.staticRoutes {
		out[p] = t
	}
	return out
}

// LoadBalancing returns the load-balancing flag.
func (r *Router) LoadBalancing() bool { return r.loadBalancing }

// RouteMap returns the configured route-map for a neighbor and
// direction, or nil.
func (r *Router) RouteMap(neighbor model.RouterID, dir policy.Direction) *policy.RouteMap {
	return r.routeMaps[neighbor][dir]
}

func (r *Router) setRouteMap(neighbor model.RouterID, dir policy.Direction, m *policy.RouteMap) {
	maps := r.routeMaps[neighbor]
	if maps == nil {
		maps = make(map[policy.Direction]*policy.RouteMap)
		r.routeMaps[neighbor] = maps
	}
	if m.IsEmpty() {
		delete(maps, dir)
	} else {
		maps[dir] = m
	}
}

// knownPrefixes returns every prefix present in the RIB-In or RIB.
func (r *Router) knownPrefixes() []model.Prefix {
	seen := make(map[model.Prefix]bool)
	for k := range r.ribIn {
		seen[k.prefix] = true
	}
	for p := range r.rib {
		seen[p] = true
	}
	out := make([]model.Prefix, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// handleEvent processes one BGP message and returns the messages it
// triggers.
func (r *Router) handleEvent(ev *Event, ig *igp.Engine) []*Event {
	prefix := ev.PrefixOf()
	switch ev.Payload.Kind {
	case EventUpdate:
		r.processUpdate(ev.From, ev.Payload.Route)
	case EventWithdraw:
		delete(r.ribInRaw, ribInKey{ev.From, prefix})
		delete(r.ribIn, ribInKey{ev.From, prefix})
	}
	if !r.runDecision(prefix, ig) {
		return nil
	}
	return r.advertise(prefix)
}

// processUpdate applies loop prevention and the incoming route-map
// chain, then installs or removes the RIB-In entry.
func (r *Router) processUpdate(from model.RouterID, route *model.BgpRoute) {
	key := ribInKey{from, route.Prefix}
	sessionType, ok := r.sessions[from]
	if !ok {
		// session vanished while the message was in flight
		return
	}
	if sessionType.IsInternal() {
		// route-reflection loop prevention
		if route.OriginatorID == r.id {
			delete(r.ribInRaw, key)
			delete(r.ribIn, key)
			return
		}
		for _, cluster := range route.ClusterList {
			if cluster == r.id {
				delete(r.ribInRaw, key)
				delete(r.ribIn, key)
				return
			}
		}
	}
	r.ribInRaw[key] = route.Clone()
	r.installRibIn(key, sessionType)
}

// installRibIn applies the incoming route-map chain to the raw received
// route and installs (or removes) the post-map RIB-In entry.
func (r *Router) installRibIn(key ribInKey, sessionType model.BgpSessionType) {
	raw := r.ribInRaw[key]
	out := r.applyRouteMap(key.from, policy.DirectionIn, raw)
	if out.Deny() {
		delete(r.ribIn, key)
		return
	}
	entry := &RibInEntry{
		Route:       out.Route,
		From:        key.from,
		SessionType: sessionType,
		IgpCost:     out.IgpCost,
	}
	if out.Weight != nil {
		entry.Weight = *out.Weight
	}
	r.ribIn[key] = entry
}

// reapplyIncoming re-runs the incoming route-map chain for everything
// received from a neighbor, used after the chain changed.
func (r *Router) reapplyIncoming(neighbor model.RouterID, ig *igp.Engine) []*Event {
	sessionType, ok := r.sessions[neighbor]
	if !ok {
		return nil
	}
	affected := make(map[model.Prefix]bool)
	for key := range r.ribInRaw {
		if key.from != neighbor {
			continue
		}
		r.installRibIn(key, sessionType)
		affected[key.prefix] = true
	}
	var out []*Event
	prefixes := make([]model.Prefix, 0, len(affected))
	for p := range affected {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i].String() < prefixes[j].String() })
	for _, prefix := range prefixes {
		out = append(out, r.refreshPrefix(prefix, ig)...)
	}
	return out
}

// refreshOutgoing re-exports every selected route to one neighbor, used
// after the outgoing route-map chain changed.
func (r *Router) refreshOutgoing(neighbor model.RouterID) []*Event {
	var out []*Event
	prefixes := make([]model.Prefix, 0, len(r.rib))
	for p := range r.rib {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i].String() < prefixes[j].String() })
	for _, prefix := range prefixes {
		if ev := r.advertiseTo(neighbor, prefix); ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Router) applyRouteMap(neighbor model.RouterID, dir policy.Direction, route *model.BgpRoute) policy.Outcome {
	m := r.routeMaps[neighbor][dir]
	if m.IsEmpty() {
		return policy.Outcome{Route: route}
	}
	return m.Apply(route)
}

// runDecision re-evaluates the decision process for the prefix and
// returns true if the selection (or the tied set) changed.
func (r *Router) runDecision(prefix model.Prefix, ig *igp.Engine) bool {
	var candidates []*RibInEntry
	for k, e := range r.ribIn {
		if !k.prefix.EqualTo(prefix) {
			continue
		}
		if !ig.Reachable(r.id, e.Route.NextHop) {
			continue
		}
		candidates = append(candidates, e)
	}

	old := r.rib[prefix]
	if len(candidates) == 0 {
		delete(r.rib, prefix)
		return old != nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return r.better(candidates[i], candidates[j], ig)
	})

	entry := &RibEntry{
		Selected: candidates[0],
		Eligible: candidates,
		Tied:     []*RibInEntry{candidates[0]},
	}
	if r.loadBalancing {
		for _, c := range candidates[1:] {
			if r.tiedUnderSix(candidates[0], c, ig) {
				entry.Tied = append(entry.Tied, c)
			}
		}
	}
	r.rib[prefix] = entry

	if old == nil {
		return true
	}
	if !old.Selected.Route.EqualTo(entry.Selected.Route) || old.Selected.From != entry.Selected.From {
		return true
	}
	if len(old.Tied) != len(entry.Tied) {
		return true
	}
	for i := range old.Tied {
		if old.Tied[i].From != entry.Tied[i].From {
			return true
		}
	}
	return false
}

// igpCost returns the decision-relevant IGP cost of a candidate.
func (r *Router) igpCost(e *RibInEntry, ig *igp.Engine) float64 {
	if e.IgpCost != nil {
		return *e.IgpCost
	}
	return ig.Distance(r.id, e.Route.NextHop)
}

// originator returns the BGP identifier of the router that originated
// the candidate: the originator-id attribute for reflected routes, the
// sending neighbor otherwise.
func originator(e *RibInEntry) model.RouterID {
	if e.Route.OriginatorID.IsSome() {
		return e.Route.OriginatorID
	}
	return e.From
}

// better is the strict total order of the decision process. Reachability
// is filtered before sorting; the remaining rules apply in sequence,
// ending with the neighbor router ID which never ties.
func (r *Router) better(a, b *RibInEntry, ig *igp.Engine) bool {
	if a.Weight != b.Weight {
		return a.Weight > b.Weight
	}
	if lpA, lpB := a.Route.LocalPrefOrDefault(), b.Route.LocalPrefOrDefault(); lpA != lpB {
		return lpA > lpB
	}
	if lenA, lenB := len(a.Route.ASPath), len(b.Route.ASPath); lenA != lenB {
		return lenA < lenB
	}
	if a.Route.FirstAS() == b.Route.FirstAS() {
		if medA, medB := a.Route.MedOrDefault(), b.Route.MedOrDefault(); medA != medB {
			return medA < medB
		}
	}
	ebgpA := a.SessionType == model.SessionEBgp
	ebgpB := b.SessionType == model.SessionEBgp
	if ebgpA != ebgpB {
		return ebgpA
	}
	if costA, costB := r.igpCost(a, ig), r.igpCost(b, ig); costA != costB {
		return costA < costB
	}
	if origA, origB := originator(a), originator(b); origA != origB {
		return origA < origB
	}
	if clA, clB := len(a.Route.ClusterList), len(b.Route.ClusterList); clA != clB {
		return clA < clB
	}
	return a.From < b.From
}

// tiedUnderSix reports whether two candidates tie under rules 1-6, the
// condition for load-balanced multipath.
func (r *Router) tiedUnderSix(a, b *RibInEntry, ig *igp.Engine) bool {
	if a.Weight != b.Weight {
		return false
	}
	if a.Route.LocalPrefOrDefault() != b.Route.LocalPrefOrDefault() {
		return false
	}
	if len(a.Route.ASPath) != len(b.Route.ASPath) {
		return false
	}
	if a.Route.FirstAS() == b.Route.FirstAS() && a.Route.MedOrDefault() != b.Route.MedOrDefault() {
		return false
	}
	if (a.SessionType == model.SessionEBgp) != (b.SessionType == model.SessionEBgp) {
		return false
	}
	return r.igpCost(a, ig) == r.igpCost(b, ig)
}

// advertise recomputes the advertisement for every neighbor and emits
// updates or withdrawals where it changed.
func (r *Router) advertise(prefix model.Prefix) []*Event {
	var out []*Event
	neighbors := make([]model.RouterID, 0, len(r.sessions))
	for n := range r.sessions {
		neighbors = append(neighbors, n)
	}
	sort.Slice(neighbors, func(i, j int) bool { return neighbors[i] < neighbors[j] })

	for _, neighbor := range neighbors {
		if ev := r.advertiseTo(neighbor, prefix); ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

// advertiseTo diffs the export for one neighbor against what was last
// sent and returns the resulting message, or nil.
func (r *Router) advertiseTo(neighbor model.RouterID, prefix model.Prefix) *Event {
	newAdv := r.exportRoute(neighbor, prefix)
	oldAdv := r.ribOut[neighbor][prefix]
	switch {
	case newAdv == nil && oldAdv == nil:
		return nil
	case newAdv == nil:
		delete(r.ribOut[neighbor], prefix)
		return &Event{From: r.id, To: neighbor, Payload: Withdraw(prefix)}
	case oldAdv != nil && oldAdv.EqualTo(newAdv):
		return nil
	default:
		if r.ribOut[neighbor] == nil {
			r.ribOut[neighbor] = make(map[model.Prefix]*model.BgpRoute)
		}
		r.ribOut[neighbor][prefix] = newAdv
		return &Event{From: r.id, To: neighbor, Payload: Update(newAdv.Clone())}
	}
}

// exportRoute computes the route to advertise to a neighbor: export
// filtering rules, reflection attributes, then the outgoing route-map
// chain. Returns nil when nothing may be exported.
func (r *Router) exportRoute(neighbor model.RouterID, prefix model.Prefix) *model.BgpRoute {
	peerType, ok := r.sessions[neighbor]
	if !ok {
		return nil
	}
	entry, ok := r.rib[prefix]
	if !ok {
		return nil
	}
	sel := entry.Selected
	if sel.From == neighbor {
		// never send a route back to where it came from
		return nil
	}
	fromType := sel.SessionType
	switch peerType {
	case model.SessionEBgp:
		// export everything
	case model.SessionIBgpClient:
		// clients receive all selected routes
	case model.SessionIBgpPeer:
		// regular iBGP peers only receive routes learned over eBGP or
		// from our own clients
		if fromType != model.SessionEBgp && fromType != model.SessionIBgpClient {
			return nil
		}
	}

	route := sel.Route.Clone()
	if peerType == model.SessionEBgp {
		route.ASPath = append([]model.ASN{r.asn}, route.ASPath...)
		route.NextHop = r.id
		route.OriginatorID = model.NoRouter
		route.ClusterList = nil
		route.LocalPref = nil
	} else if fromType.IsInternal() {
		// reflecting between iBGP sessions: record the originator and
		// extend the cluster list
		if !route.OriginatorID.IsSome() {
			route.OriginatorID = sel.From
		}
		route.ClusterList = append(route.ClusterList, r.id)
	}

	out := r.applyRouteMap(neighbor, policy.DirectionOut, route)
	if out.Deny() {
		return nil
	}
	return out.Route
}

// refreshPrefix reruns the decision for a prefix and advertises changes.
func (r *Router) refreshPrefix(prefix model.Prefix, ig *igp.Engine) []*Event {
	if !r.runDecision(prefix, ig) {
		return nil
	}
	return r.advertise(prefix)
}

// refreshAll reruns the decision for every known prefix, used after IGP
// or policy changes.
func (r *Router) refreshAll(ig *igp.Engine) []*Event {
	var out []*Event
	for _, prefix := range r.knownPrefixes() {
		out = append(out, r.refreshPrefix(prefix, ig)...)
	}
	return out
}

// dropNeighbor removes all state learned from or sent to a neighbor and
// returns the events caused by re-running the decision process. Called
// on session teardown.
func (r *Router) dropNeighbor(neighbor model.RouterID, ig *igp.Engine) []*Event {
	affected := make(map[model.Prefix]bool)
	for k := range r.ribIn {
		if k.from == neighbor {
			affected[k.prefix] = true
			delete(r.ribIn, k)
		}
	}
	for k := range r.ribInRaw {
		if k.from == neighbor {
			delete(r.ribInRaw, k)
		}
	}
	delete(r.ribOut, neighbor)
	delete(r.sessions, neighbor)

	var out []*Event
	prefixes := make([]model.Prefix, 0, len(affected))
	for p := range affected {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i].String() < prefixes[j].String() })
	for _, prefix := range prefixes {
		out = append(out, r.refreshPrefix(prefix, ig)...)
	}
	return out
}

// openSession registers a session and advertises the current exports to
// the new neighbor.
func (r *Router) openSession(neighbor model.RouterID, sessionType model.BgpSessionType) []*Event {
	r.sessions[neighbor] = sessionType
	var out []*Event
	prefixes := make([]model.Prefix, 0, len(r.rib))
	for p := range r.rib {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return prefixes[i].String() < prefixes[j].String() })
	for _, prefix := range prefixes {
		if ev := r.advertiseTo(neighbor, prefix); ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

// clone deep-copies the router.
func (r *Router) clone() *Router {
	c := newRouter(r.id, r.name, r.asn)
	c.loadBalancing = r.loadBalancing
	for n, t := range r.sessions {
		c.sessions[n] = t
	}
	for k, raw := range r.ribInRaw {
		c.ribInRaw[k] = raw.Clone()
	}
	for k, e := range r.ribIn {
		copied := *e
		copied.Route = e.Route.Clone()
		if e.IgpCost != nil {
			cost := *e.IgpCost
			copied.IgpCost = &cost
		}
		c.ribIn[k] = &copied
	}
	for n, perPrefix := range r.ribOut {
		m := make(map[model.Prefix]*model.BgpRoute, len(perPrefix))
		for p, route := range perPrefix {
			m[p] = route.Clone()
		}
		c.ribOut[n] = m
	}
	for n, dirs := range r.routeMaps {
		m := make(map[policy.Direction]*policy.RouteMap, len(dirs))
		for d, rm := range dirs {
			m[d] = rm.Clone()
		}
		c.routeMaps[n] = m
	}
	for p, t := range r.staticRoutes {
		c.staticRoutes[p] = t
	}
	// rebuild the decision table from the cloned RIB-In so entries
	// point at the cloned candidates
	for p, e := range r.rib {
		sel := c.ribIn[ribInKey{e.Selected.From, p}]
		entry := &RibEntry{Selected: sel}
		for _, cand := range e.Eligible {
			entry.Eligible = append(entry.Eligible, c.ribIn[ribInKey{cand.From, p}])
		}
		for _, cand := range e.Tied {
			entry.Tied = append(entry.Tied, c.ribIn[ribInKey{cand.From, p}])
		}
		c.rib[p] = entry
	}
	return c
}
