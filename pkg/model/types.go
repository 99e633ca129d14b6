// Package model defines the shared data model of the simulator: router
// identifiers, the prefix lattice, BGP routes and session types.
package model

import "fmt"

// RouterID is a densely packed index assigned by the network at router
// creation. It is stable for the lifetime of the network.
type RouterID int

// NoRouter is the zero value used where a router reference is absent.
const NoRouter RouterID = -1

// String returns the index as a string. The network keeps the
// human-readable name; the ID alone only knows its index.
func (r RouterID) String() string {
	if r == NoRouter {
		return "none"
	}
	return fmt.Sprintf("r%d", int(r))
}

// IsSome returns true if the ID refers to a router.
func (r RouterID) IsSome() bool {
	return r != NoRouter
}

// ASN is an autonomous system number.
type ASN uint32

// BgpSessionType labels the local end of a BGP session.
type BgpSessionType string

const (
	// SessionEBgp is an external BGP session.
	SessionEBgp BgpSessionType = "ebgp"
	// SessionIBgpPeer is an internal BGP session between equals.
	SessionIBgpPeer BgpSessionType = "ibgp-peer"
	// SessionIBgpClient is the reflector side of a route-reflection
	// session: the local router acts as reflector, the neighbor is its
	// client.
	SessionIBgpClient BgpSessionType = "ibgp-client"
)

// IsInternal returns true for iBGP session types.
func (t BgpSessionType) IsInternal() bool {
	return t == SessionIBgpPeer || t == SessionIBgpClient
}

// StaticRouteTarget is the target of a static route entry.
type StaticRouteTarget struct {
	// Kind selects one of direct, indirect or drop.
	Kind StaticRouteKind `json:"kind"`
	// Router is the direct neighbor or indirect target. Unset for drop.
	Router RouterID `json:"router,omitempty"`
}

// StaticRouteKind enumerates static route behaviors.
type StaticRouteKind string

const (
	// StaticDirect forwards to a directly connected neighbor.
	StaticDirect StaticRouteKind = "direct"
	// StaticIndirect forwards towards a router via IGP shortest paths.
	StaticIndirect StaticRouteKind = "indirect"
	// StaticDrop discards traffic for the prefix.
	StaticDrop StaticRouteKind = "drop"
)

// DirectTarget builds a direct static route target.
func DirectTarget(neighbor RouterID) StaticRouteTarget {
	return StaticRouteTarget{Kind: StaticDirect, Router: neighbor}
}

// IndirectTarget builds an indirect static route target.
func IndirectTarget(router RouterID) StaticRouteTarget {
	return StaticRouteTarget{Kind: StaticIndirect, Router: router}
}

// DropTarget builds a drop static route target.
func DropTarget() StaticRouteTarget {
	return StaticRouteTarget{Kind: StaticDrop, Router: NoRouter}
}
