// Package igp implements the OSPF shortest-path engine with hierarchical
// areas. The engine keeps, for every (source, destination) pair, the
// total cost and the set of equal-cost first hops. A change to link
// weights or area assignments marks the tables stale; they are rebuilt on
// the next query.
package igp

import (
	"math"
	"sort"

	"github.com/netshift-network/netshift/pkg/model"
)

// AreaID identifies an OSPF area. Area 0 is the backbone.
type AreaID uint32

// Backbone is the OSPF backbone area.
const Backbone AreaID = 0

// Link is a directed adjacency with a weight and an area assignment.
// Weights are per direction; the area is the same in both directions.
type Link struct {
	Weight float64 `json:"weight"`
	Area   AreaID  `json:"area"`
}

// Infinity is the cost of an unreachable destination.
var Infinity = math.Inf(1)

type pair struct {
	src, dst model.RouterID
}

// Engine is the IGP state of a network. Mutations mark the engine dirty;
// Recompute refreshes all shortest paths.
type Engine struct {
	nodes map[model.RouterID]bool
	links map[model.RouterID]map[model.RouterID]Link

	dist     map[pair]float64
	nextHops map[pair][]model.RouterID
	dirty    bool
}

// NewEngine creates an empty IGP engine.
func NewEngine() *Engine {
	return &Engine{
		nodes:    make(map[model.RouterID]bool),
		links:    make(map[model.RouterID]map[model.RouterID]Link),
		dist:     make(map[pair]float64),
		nextHops: make(map[pair][]model.RouterID),
	}
}

// AddNode registers a router with the IGP.
func (e *Engine) AddNode(id model.RouterID) {
	if !e.nodes[id] {
		e.nodes[id] = true
		e.dirty = true
	}
}

// RemoveNode removes a router and all its adjacencies.
func (e *Engine) RemoveNode(id model.RouterID) {
	delete(e.nodes, id)
	delete(e.links, id)
	for _, adj := range e.links {
		delete(adj, id)
	}
	e.dirty = true
}

// HasLink returns true if a directed adjacency exists.
func (e *Engine) HasLink(src, dst model.RouterID) bool {
	_, ok := e.links[src][dst]
	return ok
}

// SetWeight sets the weight of the directed link src -> dst, creating the
// adjacency if needed. The reverse direction keeps its own weight and
// must be configured separately.
func (e *Engine) SetWeight(src, dst model.RouterID, weight float64) {
	e.AddNode(src)
	e.AddNode(dst)
	adj := e.links[src]
	if adj == nil {
		adj = make(map[model.RouterID]Link)
		e.links[src] = adj
	}
	link := adj[dst]
	link.Weight = weight
	adj[dst] = link
	e.dirty = true
}

// Weight returns the weight of the directed link, or Infinity if absent.
func (e *Engine) Weight(src, dst model.RouterID) float64 {
	if link, ok := e.links[src][dst]; ok {
		return link.Weight
	}
	return Infinity
}

// SetArea assigns the area of the undirected edge between a and b. Both
// directions must already exist.
func (e *Engine) SetArea(a, b model.RouterID, area AreaID) bool {
	la, okA := e.links[a][b]
	lb, okB := e.links[b][a]
	if !okA || !okB {
		return false
	}
	la.Area = area
	lb.Area = area
	e.links[a][b] = la
	e.links[b][a] = lb
	e.dirty = true
	return true
}

// Area returns the area of the edge a -> b, or false if the edge is
// missing.
func (e *Engine) Area(a, b model.RouterID) (AreaID, bool) {
	link, ok := e.links[a][b]
	return link.Area, ok
}

// RemoveLink deletes both directions of the edge between a and b.
func (e *Engine) RemoveLink(a, b model.RouterID) bool {
	_, okA := e.links[a][b]
	_, okB := e.links[b][a]
	delete(e.links[a], b)
	delete(e.links[b], a)
	if okA || okB {
		e.dirty = true
	}
	return okA || okB
}

// Distance returns the IGP cost from src to dst, or Infinity when dst is
// unreachable.
func (e *Engine) Distance(src, dst model.RouterID) float64 {
	e.ensure()
	if src == dst {
		return 0
	}
	if d, ok := e.dist[pair{src, dst}]; ok {
		return d
	}
	return Infinity
}

// Reachable returns true if dst can be reached from src.
func (e *Engine) Reachable(src, dst model.RouterID) bool {
	return src == dst || !math.IsInf(e.Distance(src, dst), 1)
}

// NextHops returns the set of equal-cost first hops from src towards dst,
// sorted by router ID. Empty when dst is unreachable or equals src.
func (e *Engine) NextHops(src, dst model.RouterID) []model.RouterID {
	e.ensure()
	return e.nextHops[pair{src, dst}]
}

func (e *Engine) ensure() {
	if e.dirty {
		e.Recompute()
	}
}

// areaState is the per-area all-pairs shortest path table.
type areaState struct {
	members  map[model.RouterID]bool
	dist     map[pair]float64
	nextHops map[pair][]model.RouterID
}

// Recompute rebuilds all shortest paths: per-area Dijkstra first, then
// inter-area combination through area-border routers.
func (e *Engine) Recompute() {
	e.dirty = false
	e.dist = make(map[pair]float64)
	e.nextHops = make(map[pair][]model.RouterID)

	areas := e.computeAreas()
	backbone := areas[Backbone]

	// intra-area distances seed the global table; where a pair is a
	// member of several areas, the minimum wins
	for _, st := range areas {
		for p, d := range st.dist {
			e.merge(p, d, st.nextHops[p])
		}
	}

	// border routers per non-backbone area: members of both the area
	// and the backbone
	borders := make(map[AreaID][]model.RouterID)
	for id, st := range areas {
		if id == Backbone {
			continue
		}
		for r := range st.members {
			if backbone != nil && backbone.members[r] {
				borders[id] = append(borders[id], r)
			}
		}
		sortRouters(borders[id])
	}

	if backbone == nil {
		return
	}

	// inter-area paths: src area -> border -> backbone -> border -> dst
	// area; backbone members act as their own border with zero cost
	for srcArea, srcState := range areas {
		for dstArea, dstState := range areas {
			if srcArea == dstArea {
				continue
			}
			srcBorders := borders[srcArea]
			if srcArea == Backbone {
				srcBorders = membersOf(backbone)
			}
			dstBorders := borders[dstArea]
			if dstArea == Backbone {
				dstBorders = membersOf(backbone)
			}
			e.combine(srcState, dstState, backbone, srcBorders, dstBorders)
		}
	}
}

const costEps = 1e-9

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) < costEps
}

func membersOf(st *areaState) []model.RouterID {
	out := make([]model.RouterID, 0, len(st.members))
	for r := range st.members {
		out = append(out, r)
	}
	sortRouters(out)
	return out
}

// combine folds src-area -> backbone -> dst-area paths into the global
// table.
func (e *Engine) combine(src, dst, backbone *areaState, srcBorders, dstBorders []model.RouterID) {
	for s := range src.members {
		for d := range dst.members {
			if s == d {
				continue
			}
			best := Infinity
			var hops []model.RouterID
			for _, b1 := range srcBorders {
				c1, ok1 := areaDist(src, s, b1)
				if !ok1 {
					continue
				}
				for _, b2 := range dstBorders {
					c2, ok2 := areaDist(backbone, b1, b2)
					if !ok2 {
						continue
					}
					c3, ok3 := areaDist(dst, b2, d)
					if !ok3 {
						continue
					}
					total := c1 + c2 + c3
					if total > best+costEps {
						continue
					}
					nh := firstHopsVia(src, backbone, dst, s, b1, b2, d)
					if total < best-costEps {
						best = total
						hops = nh
					} else {
						hops = unionRouters(hops, nh)
					}
				}
			}
			if math.IsInf(best, 1) {
				continue
			}
			p := pair{s, d}
			if cur, ok := e.dist[p]; !ok || best < cur-costEps {
				e.dist[p] = best
				e.nextHops[p] = hops
			} else if nearlyEqual(best, cur) {
				e.nextHops[p] = unionRouters(e.nextHops[p], hops)
			}
		}
	}
}

// firstHopsVia returns the first hops of the composite path
// s -> b1 (src area) -> b2 (backbone) -> d (dst area).
func firstHopsVia(src, backbone, dst *areaState, s, b1, b2, d model.RouterID) []model.RouterID {
	if s != b1 {
		return src.nextHops[pair{s, b1}]
	}
	if b1 != b2 {
		return backbone.nextHops[pair{b1, b2}]
	}
	return dst.nextHops[pair{b2, d}]
}

func areaDist(st *areaState, a, b model.RouterID) (float64, bool) {
	if a == b {
		return 0, st.members[a]
	}
	d, ok := st.dist[pair{a, b}]
	return d, ok
}

func (e *Engine) merge(p pair, d float64, hops []model.RouterID) {
	if cur, ok := e.dist[p]; ok {
		if nearlyEqual(d, cur) {
			e.nextHops[p] = unionRouters(e.nextHops[p], hops)
			return
		}
		if d > cur {
			return
		}
	}
	e.dist[p] = d
	e.nextHops[p] = append([]model.RouterID(nil), hops...)
}

// computeAreas partitions the edges by area and runs Dijkstra from every
// member of every area.
func (e *Engine) computeAreas() map[AreaID]*areaState {
	areas := make(map[AreaID]*areaState)
	area := func(id AreaID) *areaState {
		st := areas[id]
		if st == nil {
			st = &areaState{
				members:  make(map[model.RouterID]bool),
				dist:     make(map[pair]float64),
				nextHops: make(map[pair][]model.RouterID),
			}
			areas[id] = st
		}
		return st
	}
	for src, adj := range e.links {
		for dst, link := range adj {
			st := area(link.Area)
			st.members[src] = true
			st.members[dst] = true
		}
	}
	for id, st := range areas {
		for member := range st.members {
			e.dijkstra(id, st, member)
		}
	}
	return areas
}

// dijkstra computes single-source shortest paths within one area,
// tracking all equal-cost first hops.
func (e *Engine) dijkstra(id AreaID, st *areaState, src model.RouterID) {
	dist := map[model.RouterID]float64{src: 0}
	hops := map[model.RouterID][]model.RouterID{}
	done := map[model.RouterID]bool{}

	for {
		// pick the closest unfinished node; ties break by router ID so
		// the computation is deterministic
		best := model.NoRouter
		bestDist := Infinity
		for node, d := range dist {
			if done[node] {
				continue
			}
			if d < bestDist-costEps || (nearlyEqual(d, bestDist) && (best == model.NoRouter || node < best)) {
				best = node
				bestDist = d
			}
		}
		if best == model.NoRouter {
			break
		}
		done[best] = true

		for neighbor, link := range e.links[best] {
			if link.Area != id {
				continue
			}
			alt := bestDist + link.Weight
			firstHops := hops[best]
			if best == src {
				firstHops = []model.RouterID{neighbor}
			}
			if cur, ok := dist[neighbor]; !ok || alt < cur-costEps {
				dist[neighbor] = alt
				hops[neighbor] = append([]model.RouterID(nil), firstHops...)
			} else if nearlyEqual(alt, cur) {
				hops[neighbor] = unionRouters(hops[neighbor], firstHops)
			}
		}
	}

	for node, d := range dist {
		if node == src {
			continue
		}
		st.dist[pair{src, node}] = d
		st.nextHops[pair{src, node}] = hops[node]
	}
}

func unionRouters(a, b []model.RouterID) []model.RouterID {
	seen := make(map[model.RouterID]bool, len(a)+len(b))
	out := make([]model.RouterID, 0, len(a)+len(b))
	for _, r := range a {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, r := range b {
		if !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	sortRouters(out)
	return out
}

func sortRouters(rs []model.RouterID) {
	sort.Slice(rs, func(i, j int) bool { return rs[i] < rs[j] })
}

// Clone returns a deep copy of the engine's nodes and links. Computed
// tables are not copied; the clone rebuilds them on its first query.
func (e *Engine) Clone() *Engine {
	c := NewEngine()
	for id := range e.nodes {
		c.nodes[id] = true
	}
	for src, adj := range e.links {
		m := make(map[model.RouterID]Link, len(adj))
		for dst, link := range adj {
			m[dst] = link
		}
		c.links[src] = m
	}
	c.dirty = true
	return c
}

// Links returns a copy of the adjacency of one router.
func (e *Engine) Links(src model.RouterID) map[model.RouterID]Link {
	out := make(map[model.RouterID]Link, len(e.links[src]))
	for dst, link := range e.links[src] {
		out[dst] = link
	}
	return out
}

// Nodes returns all registered routers, sorted.
func (e *Engine) Nodes() []model.RouterID {
	out := make([]model.RouterID, 0, len(e.nodes))
	for id := range e.nodes {
		out = append(out, id)
	}
	sortRouters(out)
	return out
}
