package decompose

import (
	"sort"

	"github.com/netshift-network/netshift/pkg/model"
)

// AllLoops enumerates every simple directed cycle in the overlay of the
// old and new forwarding graphs for a prefix: affected routers
// contribute both their old and their new next-hop edges, unaffected
// routers their current ones. The enumeration is Johnson's algorithm:
// per strongly connected component, depth-first search from a start
// node with a blocked set that is transitively unblocked through an
// unblock map whenever a cycle closes.
func AllLoops(info *CommandInfo, prefix model.Prefix) [][]model.RouterID {
	deltas, ok := info.FwDiff[prefix]
	if !ok {
		return nil
	}
	affected := make(map[model.RouterID]bool, len(deltas))
	for _, d := range deltas {
		affected[d.Router] = true
	}

	graph := overlayGraph(info, prefix, affected)
	var result [][]model.RouterID

	sccs := componentsLargerThanOne(graph)
	for len(sccs) > 0 {
		scc := sccs[len(sccs)-1]
		sccs = sccs[:len(sccs)-1]

		sccg := subgraph(graph, scc)
		start := startingNode(sccg)
		delete(scc, start)

		path := []model.RouterID{start}
		blocked := map[model.RouterID]bool{start: true}
		closed := map[model.RouterID]bool{}
		noCircuits := map[model.RouterID]map[model.RouterID]bool{}

		type frame struct {
			node model.RouterID
			nbrs []model.RouterID
		}
		stack := []*frame{{node: start, nbrs: successors(sccg, start)}}

		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if len(top.nbrs) > 0 {
				next := top.nbrs[len(top.nbrs)-1]
				top.nbrs = top.nbrs[:len(top.nbrs)-1]
				if next == start {
					result = append(result, append([]model.RouterID(nil), path...))
					for _, r := range path {
						closed[r] = true
					}
				} else if !blocked[next] {
					path = append(path, next)
					stack = append(stack, &frame{node: next, nbrs: successors(sccg, next)})
					delete(closed, next)
					blocked[next] = true
					continue
				}
			}
			if len(top.nbrs) == 0 {
				if closed[top.node] {
					unblock(top.node, blocked, noCircuits)
				} else {
					for _, nbr := range successors(sccg, top.node) {
						set := noCircuits[nbr]
						if set == nil {
							set = map[model.RouterID]bool{}
							noCircuits[nbr] = set
						}
						set[top.node] = true
					}
				}
				stack = stack[:len(stack)-1]
				path = path[:len(path)-1]
			}
		}

		h := subgraph(sccg, scc)
		sccs = append(sccs, componentsLargerThanOne(h)...)
	}

	sort.Slice(result, func(i, j int) bool { return lessLoop(result[i], result[j]) })
	return result
}

func lessLoop(a, b []model.RouterID) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func unblock(start model.RouterID, blocked map[model.RouterID]bool, noCircuits map[model.RouterID]map[model.RouterID]bool) {
	stack := map[model.RouterID]bool{start: true}
	for len(stack) > 0 {
		var node model.RouterID
		first := true
		for r := range stack {
			if first || r < node {
				node = r
				first = false
			}
		}
		delete(stack, node)
		if blocked[node] {
			delete(blocked, node)
			for r := range noCircuits[node] {
				stack[r] = true
			}
			noCircuits[node] = map[model.RouterID]bool{}
		}
	}
}

type graph map[model.RouterID][]model.RouterID

// overlayGraph builds the graph whose edges are, per router, the union
// of old and new next hops (affected) or the current next hops
// (unaffected).
func overlayGraph(info *CommandInfo, prefix model.Prefix, affected map[model.RouterID]bool) graph {
	g := make(graph)
	add := func(from, to model.RouterID) {
		for _, existing := range g[from] {
			if existing == to {
				return
			}
		}
		g[from] = append(g[from], to)
	}
	for _, router := range info.NetBefore.InternalRouters() {
		if affected[router] {
			delta, _ := info.DeltaFor(prefix, router)
			for _, hop := range delta.Old {
				add(router, hop)
			}
			for _, hop := range delta.New {
				add(router, hop)
			}
			continue
		}
		for _, hop := range info.FwBefore.NextHops(router, prefix) {
			add(router, hop)
		}
	}
	for from := range g {
		sort.Slice(g[from], func(i, j int) bool { return g[from][i] < g[from][j] })
	}
	return g
}

func successors(g graph, node model.RouterID) []model.RouterID {
	return append([]model.RouterID(nil), g[node]...)
}

func subgraph(g graph, nodes map[model.RouterID]bool) graph {
	s := make(graph, len(nodes))
	for from, tos := range g {
		if !nodes[from] {
			continue
		}
		for _, to := range tos {
			if nodes[to] {
				s[from] = append(s[from], to)
			}
		}
	}
	return s
}

// startingNode picks the node with the highest degree, ties broken by
// lowest ID.
func startingNode(g graph) model.RouterID {
	best := model.NoRouter
	bestDegree := -1
	for _, node := range sortedNodes(g) {
		if d := len(g[node]); d > bestDegree {
			best = node
			bestDegree = d
		}
	}
	return best
}

func sortedNodes(g graph) []model.RouterID {
	out := make([]model.RouterID, 0, len(g))
	for node := range g {
		out = append(out, node)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// componentsLargerThanOne runs Tarjan's algorithm and keeps the
// strongly connected components with more than one node.
func componentsLargerThanOne(g graph) []map[model.RouterID]bool {
	index := 0
	indices := map[model.RouterID]int{}
	lowlink := map[model.RouterID]int{}
	onStack := map[model.RouterID]bool{}
	var stack []model.RouterID
	var out []map[model.RouterID]bool

	var strongConnect func(v model.RouterID)
	strongConnect = func(v model.RouterID) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			component := map[model.RouterID]bool{}
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component[w] = true
				if w == v {
					break
				}
			}
			if len(component) > 1 {
				out = append(out, component)
			}
		}
	}

	for _, v := range sortedNodes(g) {
		if _, seen := indices[v]; !seen {
			strongConnect(v)
		}
	}
	return out
}
