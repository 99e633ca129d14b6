// Package fwstate holds the forwarding state of a network: the mapping
// from (router, prefix) to the set of next hops, with longest-match
// lookup, path extraction and state diffing.
package fwstate

import (
	"sort"

	"github.com/netshift-network/netshift/pkg/model"
)

type key struct {
	router model.RouterID
	prefix model.Prefix
}

// State is the forwarding state derived from per-router BGP selections
// and IGP paths. A nil/empty next-hop set means traffic for the prefix is
// dropped at that router.
type State struct {
	nextHops map[key][]model.RouterID
	prefixes map[model.Prefix]bool
	egress   map[model.RouterID]bool
}

// New creates an empty forwarding state.
func New() *State {
	return &State{
		nextHops: make(map[key][]model.RouterID),
		prefixes: make(map[model.Prefix]bool),
		egress:   make(map[model.RouterID]bool),
	}
}

// MarkEgress marks a router as an egress: path extraction terminates
// there. External routers are egresses.
func (s *State) MarkEgress(router model.RouterID) {
	s.egress[router] = true
}

// IsEgress returns true if the router terminates forwarding paths.
func (s *State) IsEgress(router model.RouterID) bool {
	return s.egress[router]
}

// SetNextHops installs the ordered next-hop set of a router for a
// prefix. An empty set records an explicit drop.
func (s *State) SetNextHops(router model.RouterID, prefix model.Prefix, hops []model.RouterID) {
	sorted := append([]model.RouterID(nil), hops...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	s.nextHops[key{router, prefix}] = sorted
	s.prefixes[prefix] = true
}

// NextHops returns the next hops of a router for a prefix using
// longest-match: an exact entry wins, otherwise the most specific stored
// prefix containing the queried one.
func (s *State) NextHops(router model.RouterID, prefix model.Prefix) []model.RouterID {
	if hops, ok := s.nextHops[key{router, prefix}]; ok {
		return hops
	}
	match, ok := s.LongestMatch(prefix)
	if !ok {
		return nil
	}
	return s.nextHops[key{router, match}]
}

// LongestMatch returns the most specific stored prefix containing the
// queried prefix.
func (s *State) LongestMatch(prefix model.Prefix) (model.Prefix, bool) {
	var best model.Prefix
	found := false
	for p := range s.prefixes {
		if !p.Contains(prefix) {
			continue
		}
		if !found || best.Contains(p) {
			best = p
			found = true
		}
	}
	return best, found
}

// Prefixes returns all prefixes with at least one entry.
func (s *State) Prefixes() []model.Prefix {
	out := make([]model.Prefix, 0, len(s.prefixes))
	for p := range s.prefixes {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Routers returns all routers with an entry for the prefix, sorted.
func (s *State) Routers(prefix model.Prefix) []model.RouterID {
	var out []model.RouterID
	for k := range s.nextHops {
		if k.prefix.EqualTo(prefix) {
			out = append(out, k.router)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := New()
	for k, hops := range s.nextHops {
		c.nextHops[k] = append([]model.RouterID(nil), hops...)
	}
	for p := range s.prefixes {
		c.prefixes[p] = true
	}
	for r := range s.egress {
		c.egress[r] = true
	}
	return c
}

// EqualTo compares two forwarding states entry by entry.
func (s *State) EqualTo(other *State) bool {
	if len(s.nextHops) != len(other.nextHops) {
		return false
	}
	for k, hops := range s.nextHops {
		otherHops, ok := other.nextHops[k]
		if !ok || len(hops) != len(otherHops) {
			return false
		}
		for i := range hops {
			if hops[i] != otherHops[i] {
				return false
			}
		}
	}
	return true
}

// RouterDelta is the change of one router's next-hop set for a prefix.
type RouterDelta struct {
	Router model.RouterID   `json:"router"`
	Old    []model.RouterID `json:"old"`
	New    []model.RouterID `json:"new"`
}

// Diff is the per-prefix set of routers whose next hops changed.
type Diff map[model.Prefix][]RouterDelta

// DiffAgainst compares s (old) with other (new) and returns, per prefix,
// the routers whose next-hop set changed.
func (s *State) DiffAgainst(other *State) Diff {
	diff := make(Diff)
	seen := make(map[key]bool)
	record := func(k key, old, new_ []model.RouterID) {
		if seen[k] {
			return
		}
		seen[k] = true
		if equalHops(old, new_) {
			return
		}
		diff[k.prefix] = append(diff[k.prefix], RouterDelta{
			Router: k.router,
			Old:    append([]model.RouterID(nil), old...),
			New:    append([]model.RouterID(nil), new_...),
		})
	}
	for k, hops := range s.nextHops {
		record(k, hops, other.nextHops[k])
	}
	for k, hops := range other.nextHops {
		record(k, s.nextHops[k], hops)
	}
	for _, deltas := range diff {
		sort.Slice(deltas, func(i, j int) bool { return deltas[i].Router < deltas[j].Router })
	}
	return diff
}

// Apply patches the state with a diff, producing the state the diff was
// computed against.
func (s *State) Apply(diff Diff) *State {
	c := s.Clone()
	for prefix, deltas := range diff {
		for _, d := range deltas {
			if len(d.New) == 0 {
				delete(c.nextHops, key{d.Router, prefix})
				continue
			}
			c.SetNextHops(d.Router, prefix, d.New)
		}
	}
	// drop prefixes that lost every entry
	for p := range c.prefixes {
		if len(c.Routers(p)) == 0 {
			delete(c.prefixes, p)
		}
	}
	return c
}

func equalHops(a, b []model.RouterID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// EquivalenceClasses groups the prefixes that receive identical
// treatment: every router holds the same next-hop set for each member.
// Such prefixes can share a single entry in the RIBs and the forwarding
// state. Classes and their members are sorted by prefix string.
func (s *State) EquivalenceClasses() [][]model.Prefix {
	signature := func(prefix model.Prefix) string {
		var sb []byte
		for k, hops := range s.nextHops {
			if !k.prefix.EqualTo(prefix) {
				continue
			}
			sb = append(sb, []byte(k.router.String())...)
			sb = append(sb, ':')
			for _, hop := range hops {
				sb = append(sb, []byte(hop.String())...)
				sb = append(sb, ',')
			}
			sb = append(sb, ';')
		}
		return string(sortBytesLines(sb))
	}
	groups := make(map[string][]model.Prefix)
	for _, prefix := range s.Prefixes() {
		sig := signature(prefix)
		groups[sig] = append(groups[sig], prefix)
	}
	out := make([][]model.Prefix, 0, len(groups))
	for _, members := range groups {
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0].String() < out[j][0].String() })
	return out
}

// sortBytesLines canonicalizes a signature whose records are separated
// by semicolons, so map iteration order cannot leak into it.
func sortBytesLines(b []byte) []byte {
	var records []string
	start := 0
	for i, c := range b {
		if c == ';' {
			records = append(records, string(b[start:i]))
			start = i + 1
		}
	}
	sort.Strings(records)
	out := make([]byte, 0, len(b))
	for _, rec := range records {
		out = append(out, rec...)
		out = append(out, ';')
	}
	return out
}
