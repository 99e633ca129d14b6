// Package testutil provides fixture networks and helpers shared by the
// package tests.
package testutil

import (
	"testing"

	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/sim"
)

// LinearNet is the canonical e0 - b0 - r0 - r1 - b1 - e1 chain with an
// iBGP full mesh, unit link weights, and the prefix advertised at both
// ends: [1,2,3] from e0 and [2,3] from e1, so everyone initially
// forwards towards e1.
type LinearNet struct {
	Net                    *sim.Network
	B0, R0, R1, B1, E0, E1 model.RouterID
	Prefix                 model.Prefix
}

// BuildLinearNet constructs and converges the linear fixture.
func BuildLinearNet(t *testing.T) *LinearNet {
	t.Helper()
	net := sim.NewNetwork()
	b := sim.NewBuilder(net)
	prefix, err := model.ParsePrefix("10.0.0.0/8")
	if err != nil {
		t.Fatalf("parsing prefix: %v", err)
	}

	ids, err := b.LinearPath("b0", "r0", "r1", "b1")
	if err != nil {
		t.Fatalf("building linear path: %v", err)
	}
	fix := &LinearNet{Net: net, B0: ids[0], R0: ids[1], R1: ids[2], B1: ids[3], Prefix: prefix}

	fix.E0, err = b.AttachExternal("e0", 1, fix.B0)
	if err != nil {
		t.Fatalf("attaching e0: %v", err)
	}
	fix.E1, err = b.AttachExternal("e1", 2, fix.B1)
	if err != nil {
		t.Fatalf("attaching e1: %v", err)
	}
	if err := b.IBgpFullMesh(); err != nil {
		t.Fatalf("building ibgp mesh: %v", err)
	}
	if err := net.AdvertiseExternalRoute(fix.E0, prefix, []model.ASN{1, 2, 3}, nil, nil); err != nil {
		t.Fatalf("advertising from e0: %v", err)
	}
	if err := net.AdvertiseExternalRoute(fix.E1, prefix, []model.ASN{2, 3}, nil, nil); err != nil {
		t.Fatalf("advertising from e1: %v", err)
	}
	if err := net.Simulate(); err != nil {
		t.Fatalf("simulating: %v", err)
	}
	return fix
}

// CliqueNet is a 4-router clique with one route reflector (r3) and two
// externals advertising the same prefix with unique preferences.
type CliqueNet struct {
	Net     *sim.Network
	Routers []model.RouterID
	E0, E1  model.RouterID
	Prefix  model.Prefix
}

// BuildCliqueNet constructs and converges the clique fixture.
func BuildCliqueNet(t *testing.T) *CliqueNet {
	t.Helper()
	net := sim.NewNetwork()
	b := sim.NewBuilder(net)
	prefix := model.Prefix(model.SimplePrefix(0))

	ids, err := b.CompleteGraph(4, 10)
	if err != nil {
		t.Fatalf("building clique: %v", err)
	}
	fix := &CliqueNet{Net: net, Routers: ids, Prefix: prefix}

	fix.E0, err = b.AttachExternal("e0", 100, ids[0])
	if err != nil {
		t.Fatalf("attaching e0: %v", err)
	}
	fix.E1, err = b.AttachExternal("e1", 101, ids[2])
	if err != nil {
		t.Fatalf("attaching e1: %v", err)
	}
	if err := b.IBgpRouteReflection(ids[3]); err != nil {
		t.Fatalf("building route reflection: %v", err)
	}
	if err := b.UniquePreferences(prefix, []model.RouterID{fix.E0, fix.E1}); err != nil {
		t.Fatalf("advertising: %v", err)
	}
	if err := net.Simulate(); err != nil {
		t.Fatalf("simulating: %v", err)
	}
	return fix
}

// U32 returns a pointer to the value, for optional attributes.
func U32(v uint32) *uint32 { return &v }
