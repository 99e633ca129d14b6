package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Community is a BGP community tag.
type Community uint32

// CommunitySet is a set of community tags.
type CommunitySet map[Community]bool

// NewCommunitySet builds a set from the given tags.
func NewCommunitySet(tags ...Community) CommunitySet {
	s := make(CommunitySet, len(tags))
	for _, t := range tags {
		s[t] = true
	}
	return s
}

// Has returns true if the tag is present.
func (s CommunitySet) Has(tag Community) bool { return s[tag] }

// Add inserts a tag.
func (s CommunitySet) Add(tag Community) { s[tag] = true }

// Remove deletes a tag.
func (s CommunitySet) Remove(tag Community) { delete(s, tag) }

// Clone returns a deep copy.
func (s CommunitySet) Clone() CommunitySet {
	c := make(CommunitySet, len(s))
	for tag := range s {
		c[tag] = true
	}
	return c
}

// EqualTo compares two sets.
func (s CommunitySet) EqualTo(other CommunitySet) bool {
	if len(s) != len(other) {
		return false
	}
	for tag := range s {
		if !other[tag] {
			return false
		}
	}
	return true
}

// Sorted returns the tags in ascending order.
func (s CommunitySet) Sorted() []Community {
	tags := make([]Community, 0, len(s))
	for tag := range s {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// MarshalJSON renders the set as a sorted array.
func (s CommunitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON reads an array of tags.
func (s *CommunitySet) UnmarshalJSON(data []byte) error {
	var tags []Community
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*s = NewCommunitySet(tags...)
	return nil
}

// DefaultLocalPref is assumed when a route carries no local preference.
const DefaultLocalPref uint32 = 100

// BgpRoute is a BGP route as carried in update messages and stored in the
// RIBs. NextHop is the router that should forward packets for the prefix;
// the forwarding state resolves it to an IGP first hop.
type BgpRoute struct {
	Prefix       Prefix       `json:"-"`
	ASPath       []ASN        `json:"as_path"`
	NextHop      RouterID     `json:"next_hop"`
	LocalPref    *uint32      `json:"local_pref,omitempty"`
	MED          *uint32      `json:"med,omitempty"`
	Communities  CommunitySet `json:"communities,omitempty"`
	OriginatorID RouterID     `json:"originator_id,omitempty"`
	ClusterList  []RouterID   `json:"cluster_list,omitempty"`
}

// NewBgpRoute creates a route with the mandatory attributes.
func NewBgpRoute(prefix Prefix, asPath []ASN, nextHop RouterID) *BgpRoute {
	return &BgpRoute{
		Prefix:       prefix,
		ASPath:       asPath,
		NextHop:      nextHop,
		Communities:  NewCommunitySet(),
		OriginatorID: NoRouter,
	}
}

// Clone returns a deep copy of the route.
func (r *BgpRoute) Clone() *BgpRoute {
	c := *r
	c.ASPath = append([]ASN(nil), r.ASPath...)
	c.ClusterList = append([]RouterID(nil), r.ClusterList...)
	c.Communities = r.Communities.Clone()
	if r.LocalPref != nil {
		lp := *r.LocalPref
		c.LocalPref = &lp
	}
	if r.MED != nil {
		med := *r.MED
		c.MED = &med
	}
	return &c
}

// LocalPrefOrDefault returns the local preference, defaulting to 100.
func (r *BgpRoute) LocalPrefOrDefault() uint32 {
	if r.LocalPref == nil {
		return DefaultLocalPref
	}
	return *r.LocalPref
}

// MedOrDefault returns the MED, defaulting to 0.
func (r *BgpRoute) MedOrDefault() uint32 {
	if r.MED == nil {
		return 0
	}
	return *r.MED
}

// FirstAS returns the neighboring AS the route was learned from, or 0 for
// an empty path.
func (r *BgpRoute) FirstAS() ASN {
	if len(r.ASPath) == 0 {
		return 0
	}
	return r.ASPath[0]
}

// HasASInPath returns true if the AS appears anywhere in the path.
func (r *BgpRoute) HasASInPath(as ASN) bool {
	for _, hop := range r.ASPath {
		if hop == as {
			return true
		}
	}
	return false
}

// EqualTo compares all route attributes.
func (r *BgpRoute) EqualTo(other *BgpRoute) bool {
	if r == nil || other == nil {
		return r == other
	}
	if !r.Prefix.EqualTo(other.Prefix) ||
		r.NextHop != other.NextHop ||
		r.LocalPrefOrDefault() != other.LocalPrefOrDefault() ||
		r.MedOrDefault() != other.MedOrDefault() ||
		r.OriginatorID != other.OriginatorID ||
		len(r.ASPath) != len(other.ASPath) ||
		len(r.ClusterList) != len(other.ClusterList) ||
		!r.Communities.EqualTo(other.Communities) {
		return false
	}
	for i := range r.ASPath {
		if r.ASPath[i] != other.ASPath[i] {
			return false
		}
	}
	for i := range r.ClusterList {
		if r.ClusterList[i] != other.ClusterList[i] {
			return false
		}
	}
	return true
}

func (r *BgpRoute) String() string {
	return fmt.Sprintf("{%s via %s path %v lp %d med %d}",
		r.Prefix, r.NextHop, r.ASPath, r.LocalPrefOrDefault(), r.MedOrDefault())
}

// routeJSON is the wire form of BgpRoute: the prefix travels as a string
// so that all three prefix variants round-trip.
type routeJSON struct {
	Prefix       string       `json:"prefix"`
	ASPath       []ASN        `json:"as_path"`
	NextHop      RouterID     `json:"next_hop"`
	LocalPref    *uint32      `json:"local_pref,omitempty"`
	MED          *uint32      `json:"med,omitempty"`
	Communities  CommunitySet `json:"communities,omitempty"`
	OriginatorID *RouterID    `json:"originator_id,omitempty"`
	ClusterList  []RouterID   `json:"cluster_list,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r *BgpRoute) MarshalJSON() ([]byte, error) {
	w := routeJSON{
		Prefix:      r.Prefix.String(),
		ASPath:      r.ASPath,
		NextHop:     r.NextHop,
		LocalPref:   r.LocalPref,
		MED:         r.MED,
		Communities: r.Communities,
		ClusterList: r.ClusterList,
	}
	if r.OriginatorID.IsSome() {
		origin := r.OriginatorID
		w.OriginatorID = &origin
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *BgpRoute) UnmarshalJSON(data []byte) error {
	var w routeJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	prefix, err := ParsePrefix(w.Prefix)
	if err != nil {
		return err
	}
	r.Prefix = prefix
	r.ASPath = w.ASPath
	r.NextHop = w.NextHop
	r.LocalPref = w.LocalPref
	r.MED = w.MED
	r.Communities = w.Communities
	if r.Communities == nil {
		r.Communities = NewCommunitySet()
	}
	r.OriginatorID = NoRouter
	if w.OriginatorID != nil {
		r.OriginatorID = *w.OriginatorID
	}
	r.ClusterList = w.ClusterList
	return nil
}
