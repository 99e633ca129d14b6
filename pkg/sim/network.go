package sim

import (
	"fmt"
	"sort"
	"sync"

	"github.com/netshift-network/netshift/pkg/fwstate"
	"github.com/netshift-network/netshift/pkg/igp"
	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/policy"
	"github.com/netshift-network/netshift/pkg/util"
)

// DefaultEventLimit bounds the number of messages one convergence run may
// process before the engine reports NoConvergence.
const DefaultEventLimit = 100000

// DefaultInternalASN is the AS number of internal routers unless
// configured otherwise.
const DefaultInternalASN model.ASN = 65001

// DefaultLinkWeight is the OSPF weight of a freshly created link.
const DefaultLinkWeight = 100.0

// Network owns the topology, all router state and the event queue. It is
// the single entry point for configuration changes and simulation.
//
// Mutating operations require exclusive access; read-only queries
// (forwarding state, path lookups) take shared access.
type Network struct {
	mu sync.RWMutex

	routers   map[model.RouterID]*Router
	externals map[model.RouterID]*ExternalRouter
	igp       *igp.Engine
	queue     EventQueue
	positions map[model.RouterID]Coord

	nextID     model.RouterID
	processed  uint64
	manual     bool
	eventLimit int
}

// NewNetwork creates an empty network with a basic FIFO queue.
func NewNetwork() *Network {
	return NewNetworkWithQueue(NewBasicQueue())
}

// NewNetworkWithQueue creates an empty network using the given queue.
func NewNetworkWithQueue(queue EventQueue) *Network {
	return &Network{
		routers:    make(map[model.RouterID]*Router),
		externals:  make(map[model.RouterID]*ExternalRouter),
		igp:        igp.NewEngine(),
		queue:      queue,
		positions:  make(map[model.RouterID]Coord),
		eventLimit: DefaultEventLimit,
	}
}

// SetEventLimit changes the per-convergence message budget.
func (n *Network) SetEventLimit(limit int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.eventLimit = limit
}

// ManualSimulation controls whether configuration changes simulate to
// convergence automatically. With manual simulation on, events stay in
// the queue until Simulate or Step is called.
func (n *Network) ManualSimulation(manual bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.manual = manual
}

// SwapQueue replaces the event queue, carrying over nothing. It is only
// valid while the current queue is empty.
func (n *Network) SwapQueue(queue EventQueue) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.queue.IsEmpty() {
		return fmt.Errorf("cannot swap queue with %d events pending", n.queue.Len())
	}
	n.queue = queue
	return nil
}

// Queue returns the event queue, for inspection only.
func (n *Network) Queue() EventQueue { return n.queue }

// MessagesProcessed returns the total number of delivered messages.
func (n *Network) MessagesProcessed() uint64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.processed
}

// Igp exposes the IGP engine for read-only use.
func (n *Network) Igp() *igp.Engine { return n.igp }

// ============================================================================
// Router management
// ============================================================================

// AddRouter creates an internal router with the default AS and returns
// its ID.
func (n *Network) AddRouter(name string) model.RouterID {
	return n.AddRouterWithASN(name, DefaultInternalASN)
}

// AddRouterWithASN creates an internal router in the given AS.
func (n *Network) AddRouterWithASN(name string, asn model.ASN) model.RouterID {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.routers[id] = newRouter(id, name, asn)
	n.igp.AddNode(id)
	return id
}

// AddExternalRouter creates an external router owning an AS number.
func (n *Network) AddExternalRouter(name string, asn model.ASN) model.RouterID {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.nextID
	n.nextID++
	n.externals[id] = newExternalRouter(id, name, asn)
	n.igp.AddNode(id)
	return id
}

// RemoveRouter removes a router: every advertisement is withdrawn and
// every session torn down first.
func (n *Network) RemoveRouter(id model.RouterID) error {
	n.mu.Lock()
	if ext, ok := n.externals[id]; ok {
		for _, prefix := range ext.AdvertisedPrefixes() {
			n.enqueue(ext.withdrawRoute(prefix))
		}
		for _, neighbor := range ext.Sessions() {
			if peer, ok := n.routers[neighbor]; ok {
				n.enqueue(peer.dropNeighbor(id, n.igp))
			}
			ext.dropNeighbor(neighbor)
		}
		delete(n.externals, id)
		n.igp.RemoveNode(id)
		n.mu.Unlock()
		return n.maybeSimulate()
	}
	r, ok := n.routers[id]
	if !ok {
		n.mu.Unlock()
		return &util.DeviceNotFoundError{Router: id.String()}
	}
	for neighbor := range r.Sessions() {
		if peer, ok := n.routers[neighbor]; ok {
			n.enqueue(peer.dropNeighbor(id, n.igp))
		} else if ext, ok := n.externals[neighbor]; ok {
			ext.dropNeighbor(id)
		}
	}
	delete(n.routers, id)
	n.igp.RemoveNode(id)
	n.refreshAllRouters()
	n.mu.Unlock()
	return n.maybeSimulate()
}

// IsInternal returns true if the ID names an internal router.
func (n *Network) IsInternal(id model.RouterID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.routers[id]
	return ok
}

// IsExternal returns true if the ID names an external router.
func (n *Network) IsExternal(id model.RouterID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.externals[id]
	return ok
}

// GetRouter returns an internal router.
func (n *Network) GetRouter(id model.RouterID) (*Router, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	r, ok := n.routers[id]
	if !ok {
		return nil, &util.DeviceNotFoundError{Router: id.String()}
	}
	return r, nil
}

// GetExternal returns an external router.
func (n *Network) GetExternal(id model.RouterID) (*ExternalRouter, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	e, ok := n.externals[id]
	if !ok {
		return nil, &util.DeviceNotFoundError{Router: id.String()}
	}
	return e, nil
}

// NameOf returns the display name of any router.
func (n *Network) NameOf(id model.RouterID) string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if r, ok := n.routers[id]; ok {
		return r.name
	}
	if e, ok := n.externals[id]; ok {
		return e.name
	}
	return id.String()
}

// SetRouterName renames a router.
func (n *Network) SetRouterName(id model.RouterID, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if r, ok := n.routers[id]; ok {
		r.name = name
		return nil
	}
	if e, ok := n.externals[id]; ok {
		e.name = name
		return nil
	}
	return &util.DeviceNotFoundError{Router: id.String()}
}

// RouterByName looks a router up by display name.
func (n *Network) RouterByName(name string) (model.RouterID, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for id, r := range n.routers {
		if r.name == name {
			return id, true
		}
	}
	for id, e := range n.externals {
		if e.name == name {
			return id, true
		}
	}
	return model.NoRouter, false
}

// InternalRouters returns all internal router IDs, sorted.
func (n *Network) InternalRouters() []model.RouterID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]model.RouterID, 0, len(n.routers))
	for id := range n.routers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ExternalRouters returns all external router IDs, sorted.
func (n *Network) ExternalRouters() []model.RouterID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]model.RouterID, 0, len(n.externals))
	for id := range n.externals {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllRouters returns every router ID, sorted.
func (n *Network) AllRouters() []model.RouterID {
	out := append(n.InternalRouters(), n.ExternalRouters()...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetPosition assigns a geographic position, used by the geo timing
// queue.
func (n *Network) SetPosition(id model.RouterID, pos Coord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.positions[id] = pos
}

// Position returns the geographic position of a router.
func (n *Network) Position(id model.RouterID) (Coord, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	pos, ok := n.positions[id]
	return pos, ok
}

// ============================================================================
// Topology
// ============================================================================

func (n *Network) hasRouter(id model.RouterID) bool {
	if _, ok := n.routers[id]; ok {
		return true
	}
	_, ok := n.externals[id]
	return ok
}

// AddLink creates the symmetric link between two routers with the
// default weight in the backbone area.
func (n *Network) AddLink(a, b model.RouterID) error {
	n.mu.Lock()
	if !n.hasRouter(a) {
		n.mu.Unlock()
		return &util.DeviceNotFoundError{Router: a.String()}
	}
	if !n.hasRouter(b) {
		n.mu.Unlock()
		return &util.DeviceNotFoundError{Router: b.String()}
	}
	n.igp.SetWeight(a, b, DefaultLinkWeight)
	n.igp.SetWeight(b, a, DefaultLinkWeight)
	n.refreshAllRouters()
	n.mu.Unlock()
	return n.maybeSimulate()
}

// SetLinkWeight sets the weight of one direction of an existing link.
func (n *Network) SetLinkWeight(src, dst model.RouterID, weight float64) error {
	n.mu.Lock()
	if !n.igp.HasLink(src, dst) {
		n.mu.Unlock()
		return &util.LinkNotFoundError{Source: src.String(), Target: dst.String()}
	}
	n.igp.SetWeight(src, dst, weight)
	n.refreshAllRouters()
	n.mu.Unlock()
	return n.maybeSimulate()
}

// LinkWeight returns the weight of a directed link.
func (n *Network) LinkWeight(src, dst model.RouterID) (float64, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if !n.igp.HasLink(src, dst) {
		return 0, &util.LinkNotFoundError{Source: src.String(), Target: dst.String()}
	}
	return n.igp.Weight(src, dst), nil
}

// SetOspfArea assigns the OSPF area of the undirected edge between a and
// b.
func (n *Network) SetOspfArea(a, b model.RouterID, area igp.AreaID) error {
	n.mu.Lock()
	if !n.igp.SetArea(a, b, area) {
		n.mu.Unlock()
		return &util.LinkNotFoundError{Source: a.String(), Target: b.String()}
	}
	n.refreshAllRouters()
	n.mu.Unlock()
	return n.maybeSimulate()
}

// RemoveLink deletes both directions of a link.
func (n *Network) RemoveLink(a, b model.RouterID) error {
	n.mu.Lock()
	if !n.igp.RemoveLink(a, b) {
		n.mu.Unlock()
		return &util.LinkNotFoundError{Source: a.String(), Target: b.String()}
	}
	n.refreshAllRouters()
	n.mu.Unlock()
	return n.maybeSimulate()
}

// refreshAllRouters re-runs every router's decision process after an IGP
// change. The IGP engine rebuilds its stale tables on the first query,
// which the decision runs issue right away.
func (n *Network) refreshAllRouters() {
	for _, id := range n.sortedInternal() {
		n.enqueue(n.routers[id].refreshAll(n.igp))
	}
}

func (n *Network) sortedInternal() []model.RouterID {
	out := make([]model.RouterID, 0, len(n.routers))
	for id := range n.routers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ============================================================================
// BGP configuration
// ============================================================================

// SetBgpSession creates or retypes the session between src and dst. For
// an iBGP-client session, src is the reflector and dst the client.
func (n *Network) SetBgpSession(src, dst model.RouterID, sessionType model.BgpSessionType) error {
	n.mu.Lock()
	srcRouter, srcInternal := n.routers[src]
	dstRouter, dstInternal := n.routers[dst]
	srcExt, srcExternal := n.externals[src]
	dstExt, dstExternal := n.externals[dst]

	if !srcInternal && !srcExternal {
		n.mu.Unlock()
		return &util.DeviceNotFoundError{Router: src.String()}
	}
	if !dstInternal && !dstExternal {
		n.mu.Unlock()
		return &util.DeviceNotFoundError{Router: dst.String()}
	}
	if srcExternal && dstExternal {
		n.mu.Unlock()
		return &util.InconsistentSessionError{
			Source: src.String(), Target: dst.String(),
			Details: "both routers are external",
		}
	}
	external := srcExternal || dstExternal
	if external && sessionType != model.SessionEBgp {
		n.mu.Unlock()
		return &util.InconsistentSessionError{
			Source: src.String(), Target: dst.String(),
			Details: fmt.Sprintf("session with an external router must be ebgp, got %s", sessionType),
		}
	}
	if !external && sessionType == model.SessionEBgp {
		n.mu.Unlock()
		return &util.InconsistentSessionError{
			Source: src.String(), Target: dst.String(),
			Details: "ebgp session between two internal routers",
		}
	}

	// tear down any previous session so both ends restart cleanly
	n.teardownSessionLocked(src, dst)

	switch {
	case external:
		internalEnd, extEnd := srcRouter, dstExt
		internalID, extID := src, dst
		if srcExternal {
			internalEnd, extEnd = dstRouter, srcExt
			internalID, extID = dst, src
		}
		n.enqueue(internalEnd.openSession(extID, model.SessionEBgp))
		n.enqueue(extEnd.openSession(internalID))
	case sessionType == model.SessionIBgpClient:
		n.enqueue(srcRouter.openSession(dst, model.SessionIBgpClient))
		n.enqueue(dstRouter.openSession(src, model.SessionIBgpPeer))
	default:
		n.enqueue(srcRouter.openSession(dst, model.SessionIBgpPeer))
		n.enqueue(dstRouter.openSession(src, model.SessionIBgpPeer))
	}
	n.mu.Unlock()
	return n.maybeSimulate()
}

// teardownSessionLocked silently removes session state on both ends; the
// callers re-run decisions as needed.
func (n *Network) teardownSessionLocked(a, b model.RouterID) {
	if r, ok := n.routers[a]; ok {
		if _, has := r.sessions[b]; has {
			n.enqueue(r.dropNeighbor(b, n.igp))
		}
	}
	if e, ok := n.externals[a]; ok {
		e.dropNeighbor(b)
	}
	if r, ok := n.routers[b]; ok {
		if _, has := r.sessions[a]; has {
			n.enqueue(r.dropNeighbor(a, n.igp))
		}
	}
	if e, ok := n.externals[b]; ok {
		e.dropNeighbor(a)
	}
}

// RemoveBgpSession tears down the session between two routers.
func (n *Network) RemoveBgpSession(a, b model.RouterID) error {
	n.mu.Lock()
	if !n.sessionExistsLocked(a, b) {
		n.mu.Unlock()
		return &util.SessionNotFoundError{Source: a.String(), Target: b.String()}
	}
	n.teardownSessionLocked(a, b)
	n.mu.Unlock()
	return n.maybeSimulate()
}

// HasBgpSession returns true if a session between the routers exists.
func (n *Network) HasBgpSession(a, b model.RouterID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionExistsLocked(a, b)
}

// SessionType returns the session type from a's perspective.
func (n *Network) SessionType(a, b model.RouterID) (model.BgpSessionType, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if r, ok := n.routers[a]; ok {
		t, ok := r.sessions[b]
		return t, ok
	}
	if e, ok := n.externals[a]; ok && e.sessions[b] {
		return model.SessionEBgp, true
	}
	return "", false
}

func (n *Network) sessionExistsLocked(a, b model.RouterID) bool {
	if r, ok := n.routers[a]; ok {
		if _, has := r.sessions[b]; has {
			return true
		}
	}
	if e, ok := n.externals[a]; ok && e.sessions[b] {
		return true
	}
	return false
}

// SetRouteMap installs (or clears, when the map is empty) the route-map
// of a router for one neighbor and direction, and re-evaluates all
// affected routes.
func (n *Network) SetRouteMap(router, neighbor model.RouterID, dir policy.Direction, m *policy.RouteMap) error {
	n.mu.Lock()
	r, ok := n.routers[router]
	if !ok {
		n.mu.Unlock()
		return &util.DeviceNotFoundError{Router: router.String()}
	}
	r.setRouteMap(neighbor, dir, m.Clone())
	if dir == policy.DirectionIn {
		n.enqueue(r.reapplyIncoming(neighbor, n.igp))
	} else {
		n.enqueue(r.refreshOutgoing(neighbor))
	}
	n.mu.Unlock()
	return n.maybeSimulate()
}

// SetStaticRoute installs a static route; a nil target removes it.
func (n *Network) SetStaticRoute(router model.RouterID, prefix model.Prefix, target *model.StaticRouteTarget) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	r, ok := n.routers[router]
	if !ok {
		return &util.DeviceNotFoundError{Router: router.String()}
	}
	if target == nil {
		delete(r.staticRoutes, prefix)
		return nil
	}
	r.staticRoutes[prefix] = *target
	return nil
}

// SetLoadBalancing toggles multipath on a router.
func (n *Network) SetLoadBalancing(router model.RouterID, enabled bool) error {
	n.mu.Lock()
	r, ok := n.routers[router]
	if !ok {
		n.mu.Unlock()
		return &util.DeviceNotFoundError{Router: router.String()}
	}
	r.loadBalancing = enabled
	for _, prefix := range r.knownPrefixes() {
		r.runDecision(prefix, n.igp)
	}
	n.mu.Unlock()
	return nil
}

// AdvertiseExternalRoute announces a route from an external router. The
// AS path must start with the external router's own AS.
func (n *Network) AdvertiseExternalRoute(ext model.RouterID, prefix model.Prefix, asPath []model.ASN, med *uint32, communities []model.Community) error {
	n.mu.Lock()
	e, ok := n.externals[ext]
	if !ok {
		n.mu.Unlock()
		return &util.DeviceNotFoundError{Router: ext.String()}
	}
	route := model.NewBgpRoute(prefix, append([]model.ASN(nil), asPath...), ext)
	route.MED = med
	route.Communities = model.NewCommunitySet(communities...)
	n.enqueue(e.advertiseRoute(route))
	n.mu.Unlock()
	return n.maybeSimulate()
}

// WithdrawExternalRoute retracts an external advertisement.
func (n *Network) WithdrawExternalRoute(ext model.RouterID, prefix model.Prefix) error {
	n.mu.Lock()
	e, ok := n.externals[ext]
	if !ok {
		n.mu.Unlock()
		return &util.DeviceNotFoundError{Router: ext.String()}
	}
	n.enqueue(e.withdrawRoute(prefix))
	n.mu.Unlock()
	return n.maybeSimulate()
}

// ============================================================================
// Simulation
// ============================================================================

func (n *Network) queueInfo() *QueueInfo {
	return &QueueInfo{Igp: n.igp, Positions: n.positions}
}

func (n *Network) enqueue(events []*Event) {
	info := n.queueInfo()
	for _, ev := range events {
		n.queue.Push(ev, info)
	}
}

// Step delivers a single event. It returns false when the queue was
// empty.
func (n *Network) Step() (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.stepLocked()
}

func (n *Network) stepLocked() (bool, error) {
	ev := n.queue.Pop()
	if ev == nil {
		return false, nil
	}
	n.processed++
	if r, ok := n.routers[ev.To]; ok {
		n.enqueue(r.handleEvent(ev, n.igp))
	} else if e, ok := n.externals[ev.To]; ok {
		n.enqueue(e.handleEvent(ev))
	}
	// events to removed routers are dropped silently
	return true, nil
}

// Simulate drains the queue to convergence. It fails with NoConvergence
// when the message budget is exceeded; the state is then unspecified and
// the caller must reset.
func (n *Network) Simulate() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	budget := n.eventLimit
	for !n.queue.IsEmpty() {
		if budget == 0 {
			return util.ErrNoConvergence
		}
		budget--
		if _, err := n.stepLocked(); err != nil {
			return err
		}
	}
	n.queue.UpdateParams(n.queueInfo())
	return nil
}

func (n *Network) maybeSimulate() error {
	n.mu.RLock()
	manual := n.manual
	n.mu.RUnlock()
	if manual {
		return nil
	}
	return n.Simulate()
}

// ============================================================================
// Forwarding state
// ============================================================================

// KnownPrefixes returns every prefix known anywhere in the network.
func (n *Network) KnownPrefixes() []model.Prefix {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.knownPrefixesLocked()
}

func (n *Network) knownPrefixesLocked() []model.Prefix {
	seen := make(map[model.Prefix]bool)
	for _, r := range n.routers {
		for _, p := range r.knownPrefixes() {
			seen[p] = true
		}
		for p := range r.staticRoutes {
			seen[p] = true
		}
	}
	for _, e := range n.externals {
		for p := range e.advertised {
			seen[p] = true
		}
	}
	out := make([]model.Prefix, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// GetForwardingState derives the forwarding state from the BGP
// selections and the IGP shortest paths.
func (n *Network) GetForwardingState() *fwstate.State {
	n.mu.RLock()
	defer n.mu.RUnlock()

	state := fwstate.New()
	for id := range n.externals {
		state.MarkEgress(id)
	}
	prefixes := n.knownPrefixesLocked()
	for _, id := range n.sortedInternal() {
		r := n.routers[id]
		for _, prefix := range prefixes {
			if hops, ok := n.nextHopsLocked(r, prefix); ok {
				state.SetNextHops(id, prefix, hops)
			}
		}
	}
	return state
}

// nextHopsLocked computes the forwarding next hops of one router for one
// prefix. The second return value is false when the router has no entry
// at all.
func (n *Network) nextHopsLocked(r *Router, prefix model.Prefix) ([]model.RouterID, bool) {
	if target, ok := r.staticRoutes[prefix]; ok {
		switch target.Kind {
		case model.StaticDrop:
			return nil, true
		case model.StaticDirect:
			if n.igp.HasLink(r.id, target.Router) {
				return []model.RouterID{target.Router}, true
			}
			return nil, true
		case model.StaticIndirect:
			return n.igp.NextHops(r.id, target.Router), true
		}
	}
	entry, ok := r.rib[prefix]
	if !ok {
		return nil, false
	}
	candidates := entry.Tied
	if !r.loadBalancing {
		candidates = []*RibInEntry{entry.Selected}
	}
	var hops []model.RouterID
	seen := make(map[model.RouterID]bool)
	for _, cand := range candidates {
		for _, hop := range n.igp.NextHops(r.id, cand.Route.NextHop) {
			if !seen[hop] {
				seen[hop] = true
				hops = append(hops, hop)
			}
		}
	}
	sort.Slice(hops, func(i, j int) bool { return hops[i] < hops[j] })
	return hops, true
}

// ============================================================================
// Cloning
// ============================================================================

// Clone deep-copies the network, including queued events.
func (n *Network) Clone() *Network {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c := &Network{
		routers:    make(map[model.RouterID]*Router, len(n.routers)),
		externals:  make(map[model.RouterID]*ExternalRouter, len(n.externals)),
		igp:        n.igp.Clone(),
		queue:      n.queue.CloneEvents(),
		positions:  make(map[model.RouterID]Coord, len(n.positions)),
		nextID:     n.nextID,
		processed:  n.processed,
		manual:     n.manual,
		eventLimit: n.eventLimit,
	}
	for id, r := range n.routers {
		c.routers[id] = r.clone()
	}
	for id, e := range n.externals {
		c.externals[id] = e.clone()
	}
	for id, pos := range n.positions {
		c.positions[id] = pos
	}
	return c
}
