// Package policy implements route-maps: ordered filter/modifier chains
// applied to BGP routes on import and export.
package policy

import (
	"github.com/netshift-network/netshift/pkg/model"
)

// Direction tells whether a route-map applies to received or advertised
// routes.
type Direction string

const (
	// DirectionIn applies to routes received from a neighbor.
	DirectionIn Direction = "in"
	// DirectionOut applies to routes advertised to a neighbor.
	DirectionOut Direction = "out"
)

// State is the verdict of a route-map entry.
type State string

const (
	// StateAllow lets the route pass, after applying the set actions.
	StateAllow State = "allow"
	// StateDeny drops the route.
	StateDeny State = "deny"
)

// Match holds the conditions of a route-map entry. All set fields must
// hold for the entry to match; an empty Match matches every route.
type Match struct {
	// PrefixIn matches routes whose prefix equals one in the list.
	PrefixIn []model.Prefix `json:"-"`
	// ASPathContains matches routes with the AS anywhere in the path.
	ASPathContains *model.ASN `json:"as_path_contains,omitempty"`
	// ASPathLengthEqual matches a path of exactly this length.
	ASPathLengthEqual *int `json:"as_path_length_equal,omitempty"`
	// ASPathLengthMin and ASPathLengthMax match a length range,
	// inclusive. Both must be set together.
	ASPathLengthMin *int `json:"as_path_length_min,omitempty"`
	ASPathLengthMax *int `json:"as_path_length_max,omitempty"`
	// NextHopIs matches routes with this BGP next-hop.
	NextHopIs *model.RouterID `json:"next_hop_is,omitempty"`
	// CommunityPresent matches routes carrying the tag.
	CommunityPresent *model.Community `json:"community_present,omitempty"`
	// CommunityAbsent matches routes not carrying the tag.
	CommunityAbsent *model.Community `json:"community_absent,omitempty"`
}

// Holds evaluates the conditions against a route.
func (m *Match) Holds(route *model.BgpRoute) bool {
	if len(m.PrefixIn) > 0 {
		found := false
		for _, p := range m.PrefixIn {
			if p.EqualTo(route.Prefix) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if m.ASPathContains != nil && !route.HasASInPath(*m.ASPathContains) {
		return false
	}
	if m.ASPathLengthEqual != nil && len(route.ASPath) != *m.ASPathLengthEqual {
		return false
	}
	if m.ASPathLengthMin != nil && m.ASPathLengthMax != nil {
		l := len(route.ASPath)
		if l < *m.ASPathLengthMin || l > *m.ASPathLengthMax {
			return false
		}
	}
	if m.NextHopIs != nil && route.NextHop != *m.NextHopIs {
		return false
	}
	if m.CommunityPresent != nil && !route.Communities.Has(*m.CommunityPresent) {
		return false
	}
	if m.CommunityAbsent != nil && route.Communities.Has(*m.CommunityAbsent) {
		return false
	}
	return true
}

// SetActionKind enumerates the mutations a route-map entry can apply.
type SetActionKind string

const (
	SetNextHop         SetActionKind = "next-hop"
	SetLocalPref       SetActionKind = "local-pref"
	SetMed             SetActionKind = "med"
	SetIgpCost         SetActionKind = "igp-cost"
	SetCommunityAdd    SetActionKind = "community-add"
	SetCommunityRemove SetActionKind = "community-remove"
	SetWeight          SetActionKind = "weight"
)

// SetAction is a single attribute mutation. The interpretation of the
// fields depends on Kind:
//
//   - next-hop: Router is the new BGP next-hop
//   - local-pref, med, weight: Value is the new value, nil clears it
//   - igp-cost: Cost overrides the IGP distance used in the decision
//   - community-add, community-remove: Community is the tag
type SetAction struct {
	Kind      SetActionKind   `json:"kind"`
	Router    model.RouterID  `json:"router,omitempty"`
	Value     *uint32         `json:"value,omitempty"`
	Cost      *float64        `json:"cost,omitempty"`
	Community model.Community `json:"community,omitempty"`
}

// Flow controls what happens after an Allow entry matched.
type Flow struct {
	// Continue keeps evaluating instead of emitting the route.
	Continue bool `json:"continue,omitempty"`
	// Target, if set, jumps to the next entry with order >= Target.
	// Without it, evaluation resumes at the immediately following entry.
	Target *int16 `json:"target,omitempty"`
}

// Entry is a single route-map entry with a strict order key.
type Entry struct {
	Order int16       `json:"order"`
	State State       `json:"state"`
	Match Match       `json:"match"`
	Set   []SetAction `json:"set,omitempty"`
	Flow  Flow        `json:"flow"`
}

// RouteMap is an ordered list of entries, ascending by order key.
type RouteMap struct {
	Entries []Entry `json:"entries"`
}

// NewRouteMap creates an empty route-map.
func NewRouteMap() *RouteMap {
	return &RouteMap{}
}

// AddEntry inserts an entry keeping entries sorted by order. An entry
// with an existing order replaces the old one.
func (m *RouteMap) AddEntry(entry Entry) {
	for i, e := range m.Entries {
		if entry.Order == e.Order {
			m.Entries[i] = entry
			return
		}
		if entry.Order < e.Order {
			m.Entries = append(m.Entries[:i], append([]Entry{entry}, m.Entries[i:]...)...)
			return
		}
	}
	m.Entries = append(m.Entries, entry)
}

// RemoveEntry deletes the entry with the given order key.
func (m *RouteMap) RemoveEntry(order int16) bool {
	for i, e := range m.Entries {
		if e.Order == order {
			m.Entries = append(m.Entries[:i], m.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// GetEntry returns the entry with the given order key, or nil.
func (m *RouteMap) GetEntry(order int16) *Entry {
	for i := range m.Entries {
		if m.Entries[i].Order == order {
			return &m.Entries[i]
		}
	}
	return nil
}

// IsEmpty returns true if the map has no entries.
func (m *RouteMap) IsEmpty() bool {
	return m == nil || len(m.Entries) == 0
}

// Clone returns a deep copy of the route-map.
func (m *RouteMap) Clone() *RouteMap {
	if m == nil {
		return nil
	}
	c := &RouteMap{Entries: make([]Entry, len(m.Entries))}
	copy(c.Entries, m.Entries)
	for i := range c.Entries {
		e := &c.Entries[i]
		e.Match.PrefixIn = append([]model.Prefix(nil), e.Match.PrefixIn...)
		e.Set = append([]SetAction(nil), m.Entries[i].Set...)
	}
	return c
}
