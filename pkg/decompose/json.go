package decompose

import (
	"encoding/json"
	"sort"

	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/sim"
)

// The wire form carries prefixes as strings so that all prefix variants
// round-trip. The forwarding state trace is transient and intentionally
// not serialized; a decoded decomposition carries no trace.

type conditionJSON struct {
	Kind     ConditionKind  `json:"kind"`
	Router   model.RouterID `json:"router"`
	Neighbor model.RouterID `json:"neighbor,omitempty"`
	Prefix   string         `json:"prefix"`
	NextHop  model.RouterID `json:"next_hop,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c *Condition) MarshalJSON() ([]byte, error) {
	return json.Marshal(conditionJSON{
		Kind:     c.Kind,
		Router:   c.Router,
		Neighbor: c.Neighbor,
		Prefix:   c.Prefix.String(),
		NextHop:  c.NextHop,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var w conditionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	prefix, err := model.ParsePrefix(w.Prefix)
	if err != nil {
		return err
	}
	*c = Condition{
		Kind:     w.Kind,
		Router:   w.Router,
		Neighbor: w.Neighbor,
		Prefix:   prefix,
		NextHop:  w.NextHop,
	}
	return nil
}

type atomicCommandJSON struct {
	Modifier *sim.Modifier  `json:"modifier"`
	Pre      []*Condition   `json:"pre,omitempty"`
	Post     []*Condition   `json:"post,omitempty"`
	Router   model.RouterID `json:"router,omitempty"`
	Prefix   string         `json:"prefix,omitempty"`
	Round    int            `json:"round,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (c *AtomicCommand) MarshalJSON() ([]byte, error) {
	w := atomicCommandJSON{
		Modifier: c.Modifier,
		Pre:      c.Pre,
		Post:     c.Post,
		Router:   c.Router,
		Round:    c.Round,
	}
	if c.Prefix != nil {
		w.Prefix = c.Prefix.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *AtomicCommand) UnmarshalJSON(data []byte) error {
	var w atomicCommandJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = AtomicCommand{
		Modifier: w.Modifier,
		Pre:      w.Pre,
		Post:     w.Post,
		Router:   w.Router,
		Round:    w.Round,
	}
	if w.Prefix != "" {
		prefix, err := model.ParsePrefix(w.Prefix)
		if err != nil {
			return err
		}
		c.Prefix = prefix
	}
	return nil
}

type depGraphJSON struct {
	Prefix string        `json:"prefix"`
	Nodes  []*Dependency `json:"nodes"`
}

type roundJSON struct {
	Router model.RouterID `json:"router"`
	Round  int            `json:"round"`
}

type scheduleJSON struct {
	Prefix string      `json:"prefix"`
	Rounds []roundJSON `json:"rounds"`
}

type bundleJSON struct {
	Prefix string           `json:"prefix"`
	Bundle *ConditionBundle `json:"bundle"`
}

type decompositionJSON struct {
	OriginalCommand    *sim.Modifier      `json:"original_command"`
	ApplyOriginalFirst bool               `json:"apply_original_first,omitempty"`
	Setup              []*AtomicCommand   `json:"setup,omitempty"`
	Main               [][]*AtomicCommand `json:"main"`
	Cleanup            []*AtomicCommand   `json:"cleanup,omitempty"`
	Bundles            []bundleJSON       `json:"bundles,omitempty"`
	Deps               []depGraphJSON     `json:"deps,omitempty"`
	Schedule           []scheduleJSON     `json:"schedule,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (d *Decomposition) MarshalJSON() ([]byte, error) {
	w := decompositionJSON{
		OriginalCommand:    d.OriginalCommand,
		ApplyOriginalFirst: d.ApplyOriginalFirst,
		Setup:              d.Setup,
		Main:               d.Main,
		Cleanup:            d.Cleanup,
	}
	for _, prefix := range sortedPrefixKeys(d.Bundles) {
		w.Bundles = append(w.Bundles, bundleJSON{Prefix: prefix.String(), Bundle: d.Bundles[prefix]})
	}
	for _, prefix := range sortedDepKeys(d.Deps) {
		graph := d.Deps[prefix]
		nodes := make([]*Dependency, 0, len(graph.Nodes))
		for _, router := range graph.Routers() {
			nodes = append(nodes, graph.Nodes[router])
		}
		w.Deps = append(w.Deps, depGraphJSON{Prefix: prefix.String(), Nodes: nodes})
	}
	for _, prefix := range sortedScheduleKeys(d.Schedule) {
		sj := scheduleJSON{Prefix: prefix.String()}
		perRouter := d.Schedule[prefix]
		routers := make([]model.RouterID, 0, len(perRouter))
		for router := range perRouter {
			routers = append(routers, router)
		}
		sort.Slice(routers, func(i, j int) bool { return routers[i] < routers[j] })
		for _, router := range routers {
			sj.Rounds = append(sj.Rounds, roundJSON{Router: router, Round: perRouter[router]})
		}
		w.Schedule = append(w.Schedule, sj)
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Decomposition) UnmarshalJSON(data []byte) error {
	var w decompositionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*d = Decomposition{
		OriginalCommand:    w.OriginalCommand,
		ApplyOriginalFirst: w.ApplyOriginalFirst,
		Setup:              w.Setup,
		Main:               w.Main,
		Cleanup:            w.Cleanup,
		Bundles:            make(map[model.Prefix]*ConditionBundle),
		Deps:               make(map[model.Prefix]*DependencyGraph),
		Schedule:           make(map[model.Prefix]map[model.RouterID]int),
	}
	for _, bj := range w.Bundles {
		prefix, err := model.ParsePrefix(bj.Prefix)
		if err != nil {
			return err
		}
		d.Bundles[prefix] = bj.Bundle
	}
	for _, gj := range w.Deps {
		prefix, err := model.ParsePrefix(gj.Prefix)
		if err != nil {
			return err
		}
		graph := &DependencyGraph{Prefix: prefix, Nodes: make(map[model.RouterID]*Dependency)}
		for _, node := range gj.Nodes {
			graph.Nodes[node.Router] = node
		}
		d.Deps[prefix] = graph
	}
	for _, sj := range w.Schedule {
		prefix, err := model.ParsePrefix(sj.Prefix)
		if err != nil {
			return err
		}
		perRouter := make(map[model.RouterID]int, len(sj.Rounds))
		for _, rj := range sj.Rounds {
			perRouter[rj.Router] = rj.Round
		}
		d.Schedule[prefix] = perRouter
	}
	return nil
}

func sortedPrefixKeys(m map[model.Prefix]*ConditionBundle) []model.Prefix {
	out := make([]model.Prefix, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sortedDepKeys(m map[model.Prefix]*DependencyGraph) []model.Prefix {
	out := make([]model.Prefix, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sortedScheduleKeys(m map[model.Prefix]map[model.RouterID]int) []model.Prefix {
	out := make([]model.Prefix, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
