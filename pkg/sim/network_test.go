package sim

import (
	"errors"
	"testing"

	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/policy"
	"github.com/netshift-network/netshift/pkg/util"
)

func mustPrefix(t *testing.T, s string) model.Prefix {
	t.Helper()
	p, err := model.ParsePrefix(s)
	if err != nil {
		t.Fatalf("parsing prefix %q: %v", s, err)
	}
	return p
}

// linearNet is the canonical chain e0 - b0 - r0 - r1 - b1 - e1 with an
// iBGP full mesh and the prefix advertised at both ends; e1's path is
// shorter and wins everywhere.
type linearNet struct {
	net                    *Network
	b0, r0, r1, b1, e0, e1 model.RouterID
	prefix                 model.Prefix
}

func buildLinear(t *testing.T, queue EventQueue) *linearNet {
	t.Helper()
	net := NewNetworkWithQueue(queue)
	b := NewBuilder(net)
	fix := &linearNet{net: net, prefix: mustPrefix(t, "10.0.0.0/8")}

	ids, err := b.LinearPath("b0", "r0", "r1", "b1")
	if err != nil {
		t.Fatalf("building chain: %v", err)
	}
	fix.b0, fix.r0, fix.r1, fix.b1 = ids[0], ids[1], ids[2], ids[3]

	if fix.e0, err = b.AttachExternal("e0", 1, fix.b0); err != nil {
		t.Fatalf("attaching e0: %v", err)
	}
	if fix.e1, err = b.AttachExternal("e1", 2, fix.b1); err != nil {
		t.Fatalf("attaching e1: %v", err)
	}
	if err := b.IBgpFullMesh(); err != nil {
		t.Fatalf("ibgp mesh: %v", err)
	}
	if err := net.AdvertiseExternalRoute(fix.e0, fix.prefix, []model.ASN{1, 2, 3}, nil, nil); err != nil {
		t.Fatalf("advertising from e0: %v", err)
	}
	if err := net.AdvertiseExternalRoute(fix.e1, fix.prefix, []model.ASN{2, 3}, nil, nil); err != nil {
		t.Fatalf("advertising from e1: %v", err)
	}
	if err := net.Simulate(); err != nil {
		t.Fatalf("simulating: %v", err)
	}
	return fix
}

func assertPath(t *testing.T, fix *linearNet, from model.RouterID, want []model.RouterID) {
	t.Helper()
	st := fix.net.GetForwardingState()
	path, err := st.Path(from, fix.prefix)
	if err != nil {
		t.Fatalf("path from %s: %v", fix.net.NameOf(from), err)
	}
	if len(path) != len(want) {
		t.Fatalf("path from %s = %v, want %v", fix.net.NameOf(from), path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path from %s = %v, want %v", fix.net.NameOf(from), path, want)
		}
	}
}

// ============================================================================
// Convergence Tests
// ============================================================================

func TestLinearConvergesToShorterPath(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())

	assertPath(t, fix, fix.b0, []model.RouterID{fix.b0, fix.r0, fix.r1, fix.b1, fix.e1})
	assertPath(t, fix, fix.r0, []model.RouterID{fix.r0, fix.r1, fix.b1, fix.e1})
	assertPath(t, fix, fix.r1, []model.RouterID{fix.r1, fix.b1, fix.e1})
	assertPath(t, fix, fix.b1, []model.RouterID{fix.b1, fix.e1})
}

func TestRemoveSessionFailsOver(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())

	if err := fix.net.RemoveBgpSession(fix.b1, fix.e1); err != nil {
		t.Fatalf("removing session: %v", err)
	}
	assertPath(t, fix, fix.b1, []model.RouterID{fix.b1, fix.r1, fix.r0, fix.b0, fix.e0})
	assertPath(t, fix, fix.b0, []model.RouterID{fix.b0, fix.e0})

	// the RIB-In of b1 must no longer hold anything from e1
	r, err := fix.net.GetRouter(fix.b1)
	if err != nil {
		t.Fatal(err)
	}
	if r.RibInFrom(fix.e1, fix.prefix) != nil {
		t.Error("session teardown left a RIB-In entry behind")
	}
}

func TestWithdrawOnlyRouteLeavesBlackHole(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())

	if err := fix.net.RemoveBgpSession(fix.b1, fix.e1); err != nil {
		t.Fatal(err)
	}
	if err := fix.net.WithdrawExternalRoute(fix.e0, fix.prefix); err != nil {
		t.Fatal(err)
	}

	st := fix.net.GetForwardingState()
	_, err := st.Paths(fix.r0, fix.prefix)
	if !errors.Is(err, util.ErrForwardingBlackHole) {
		t.Fatalf("err = %v, want black hole", err)
	}
}

func TestConvergenceDeterminism(t *testing.T) {
	a := buildLinear(t, NewBasicQueue())
	b := buildLinear(t, NewBasicQueue())

	if !a.net.EqualTo(b.net) {
		t.Error("identical builds must converge to identical state")
	}
	if !a.net.GetForwardingState().EqualTo(b.net.GetForwardingState()) {
		t.Error("identical builds must yield identical forwarding states")
	}

	// re-simulating a converged network changes nothing
	c := a.net.Clone()
	if err := c.Simulate(); err != nil {
		t.Fatal(err)
	}
	if !a.net.EqualTo(c) {
		t.Error("simulating a converged network changed it")
	}
}

func TestQueueSwapIdempotence(t *testing.T) {
	basic := buildLinear(t, NewBasicQueue())
	timed := buildLinear(t, NewTimingQueue(DefaultModelParams(), 17))

	if !basic.net.GetForwardingState().EqualTo(timed.net.GetForwardingState()) {
		t.Error("the terminal forwarding state must not depend on the queue")
	}
}

func TestNoConvergenceReported(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())
	fix.net.SetEventLimit(1)

	err := fix.net.WithdrawExternalRoute(fix.e1, fix.prefix)
	if !errors.Is(err, util.ErrNoConvergence) {
		t.Fatalf("err = %v, want no convergence", err)
	}
}

func TestManualStepping(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())
	fix.net.ManualSimulation(true)

	if err := fix.net.WithdrawExternalRoute(fix.e1, fix.prefix); err != nil {
		t.Fatal(err)
	}
	if fix.net.Queue().IsEmpty() {
		t.Fatal("manual mode should leave events queued")
	}
	steps := 0
	for {
		progressed, err := fix.net.Step()
		if err != nil {
			t.Fatal(err)
		}
		if !progressed {
			break
		}
		steps++
	}
	if steps == 0 {
		t.Fatal("stepping made no progress")
	}
	assertPath(t, fix, fix.b1, []model.RouterID{fix.b1, fix.r1, fix.r0, fix.b0, fix.e0})
}

// ============================================================================
// Decision Process Tests
// ============================================================================

func TestDecisionPrefersEBgpThenIgpCost(t *testing.T) {
	// e0 and e1 advertise the same path length; borders keep their own
	// eBGP route, interior routers pick the closer egress
	net := NewNetwork()
	b := NewBuilder(net)
	prefix := mustPrefix(t, "10.0.0.0/8")

	ids, err := b.LinearPath("b0", "r0", "r1", "b1")
	if err != nil {
		t.Fatal(err)
	}
	b0, r0, r1, b1 := ids[0], ids[1], ids[2], ids[3]
	e0, err := b.AttachExternal("e0", 1, b0)
	if err != nil {
		t.Fatal(err)
	}
	e1, err := b.AttachExternal("e1", 2, b1)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.IBgpFullMesh(); err != nil {
		t.Fatal(err)
	}
	if err := net.AdvertiseExternalRoute(e0, prefix, []model.ASN{1, 3}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := net.AdvertiseExternalRoute(e1, prefix, []model.ASN{2, 3}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := net.Simulate(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		router model.RouterID
		hop    model.RouterID
	}{
		{b0, e0}, // own eBGP route beats the equal iBGP route
		{b1, e1},
		{r0, b0}, // closer egress wins on IGP cost
		{r1, b1},
	}
	st := net.GetForwardingState()
	for _, tt := range tests {
		hops := st.NextHops(tt.router, prefix)
		if len(hops) != 1 || hops[0] != tt.hop {
			t.Errorf("%s forwards via %v, want [%s]", net.NameOf(tt.router), hops, net.NameOf(tt.hop))
		}
	}
}

func TestDecisionMedComparedWithinSameAS(t *testing.T) {
	// two externals of the same AS peer with the same border; the
	// lower MED wins
	net := NewNetwork()
	b := NewBuilder(net)
	prefix := mustPrefix(t, "10.0.0.0/8")

	b0 := net.AddRouter("b0")
	ea, err := b.AttachExternal("ea", 5, b0)
	if err != nil {
		t.Fatal(err)
	}
	eb, err := b.AttachExternal("eb", 5, b0)
	if err != nil {
		t.Fatal(err)
	}
	medHigh, medLow := uint32(50), uint32(10)
	if err := net.AdvertiseExternalRoute(ea, prefix, []model.ASN{5, 9}, &medHigh, nil); err != nil {
		t.Fatal(err)
	}
	if err := net.AdvertiseExternalRoute(eb, prefix, []model.ASN{5, 9}, &medLow, nil); err != nil {
		t.Fatal(err)
	}
	if err := net.Simulate(); err != nil {
		t.Fatal(err)
	}

	r, err := net.GetRouter(b0)
	if err != nil {
		t.Fatal(err)
	}
	route := r.SelectedRoute(prefix)
	if route == nil || route.NextHop != eb {
		t.Fatalf("selected %v, want route via eb (lower MED)", route)
	}
}

func TestDecisionNeighborIdTieBreak(t *testing.T) {
	// symmetric fork: r0 learns the same route via two borders with
	// equal costs everywhere; the lower neighbor ID wins
	net := NewNetwork()
	b := NewBuilder(net)
	prefix := mustPrefix(t, "10.0.0.0/8")

	r0 := net.AddRouter("r0")
	ba := net.AddRouter("ba")
	bb := net.AddRouter("bb")
	for _, border := range []model.RouterID{ba, bb} {
		if err := net.AddLink(r0, border); err != nil {
			t.Fatal(err)
		}
		if err := net.SetLinkWeight(r0, border, 1); err != nil {
			t.Fatal(err)
		}
		if err := net.SetLinkWeight(border, r0, 1); err != nil {
			t.Fatal(err)
		}
	}
	ea, err := b.AttachExternal("ea", 7, ba)
	if err != nil {
		t.Fatal(err)
	}
	eb, err := b.AttachExternal("eb", 8, bb)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.IBgpFullMesh(); err != nil {
		t.Fatal(err)
	}
	if err := net.AdvertiseExternalRoute(ea, prefix, []model.ASN{7, 9}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := net.AdvertiseExternalRoute(eb, prefix, []model.ASN{8, 9}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := net.Simulate(); err != nil {
		t.Fatal(err)
	}

	r, err := net.GetRouter(r0)
	if err != nil {
		t.Fatal(err)
	}
	entry := r.RibFor(prefix)
	if entry == nil || entry.Selected.From != ba {
		t.Fatalf("selected from %v, want ba (lower neighbor id)", entry)
	}

	// load balancing retains both and installs both next hops
	if err := net.SetLoadBalancing(r0, true); err != nil {
		t.Fatal(err)
	}
	st := net.GetForwardingState()
	hops := st.NextHops(r0, prefix)
	if len(hops) != 2 {
		t.Fatalf("load-balanced next hops = %v, want both borders", hops)
	}
}

func TestRouteReflectionAttributes(t *testing.T) {
	// clique of 4 with reflector r3: a client learns the route only
	// through the reflector, carrying originator and cluster list
	net := NewNetwork()
	b := NewBuilder(net)
	prefix := model.Prefix(model.SimplePrefix(0))

	ids, err := b.CompleteGraph(4, 10)
	if err != nil {
		t.Fatal(err)
	}
	e0, err := b.AttachExternal("e0", 100, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	if err := b.IBgpRouteReflection(ids[3]); err != nil {
		t.Fatal(err)
	}
	if err := net.AdvertiseExternalRoute(e0, prefix, []model.ASN{100}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := net.Simulate(); err != nil {
		t.Fatal(err)
	}

	client, err := net.GetRouter(ids[1])
	if err != nil {
		t.Fatal(err)
	}
	entry := client.RibInFrom(ids[3], prefix)
	if entry == nil {
		t.Fatal("client has no route from the reflector")
	}
	if entry.Route.OriginatorID != ids[0] {
		t.Errorf("originator = %s, want %s", entry.Route.OriginatorID, ids[0])
	}
	if len(entry.Route.ClusterList) != 1 || entry.Route.ClusterList[0] != ids[3] {
		t.Errorf("cluster list = %v, want [%s]", entry.Route.ClusterList, ids[3])
	}
	if client.RibInFrom(ids[0], prefix) != nil {
		t.Error("client must not learn the route directly from another client")
	}
}

// ============================================================================
// Route-Map Tests
// ============================================================================

func TestIncomingRouteMapPerPrefixPreference(t *testing.T) {
	// e0 advertises two prefixes over the long path, e1 over the
	// short one. An incoming map on (b0, e0) with local-pref 200 pulls
	// both prefixes to e0; updating it to prefer only the first
	// prefix releases the second back to e1.
	net := NewNetwork()
	b := NewBuilder(net)
	p1 := mustPrefix(t, "10.0.0.0/8")
	p2 := mustPrefix(t, "20.0.0.0/8")

	ids, err := b.LinearPath("b0", "r0", "b1")
	if err != nil {
		t.Fatal(err)
	}
	b0, r0, b1 := ids[0], ids[1], ids[2]
	e0, err := b.AttachExternal("e0", 1, b0)
	if err != nil {
		t.Fatal(err)
	}
	e1, err := b.AttachExternal("e1", 2, b1)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.IBgpFullMesh(); err != nil {
		t.Fatal(err)
	}
	for _, p := range []model.Prefix{p1, p2} {
		if err := net.AdvertiseExternalRoute(e0, p, []model.ASN{1, 2, 3}, nil, nil); err != nil {
			t.Fatal(err)
		}
		if err := net.AdvertiseExternalRoute(e1, p, []model.ASN{2, 3}, nil, nil); err != nil {
			t.Fatal(err)
		}
	}
	if err := net.Simulate(); err != nil {
		t.Fatal(err)
	}

	st := net.GetForwardingState()
	for _, p := range []model.Prefix{p1, p2} {
		if hops := st.NextHops(r0, p); len(hops) != 1 || hops[0] != b1 {
			t.Fatalf("before map: r0 forwards %s via %v, want [b1]", p, hops)
		}
	}

	// lift everything from e0 to local-pref 200
	pref200 := uint32(200)
	m := policy.NewRouteMap()
	m.AddEntry(policy.Entry{
		Order: 10,
		State: policy.StateAllow,
		Set:   []policy.SetAction{{Kind: policy.SetLocalPref, Value: &pref200}},
	})
	if err := net.SetRouteMap(b0, e0, policy.DirectionIn, m); err != nil {
		t.Fatal(err)
	}

	st = net.GetForwardingState()
	for _, p := range []model.Prefix{p1, p2} {
		if hops := st.NextHops(r0, p); len(hops) != 1 || hops[0] != b0 {
			t.Fatalf("after map: r0 forwards %s via %v, want [b0]", p, hops)
		}
	}

	// update: demote only p2
	pref50 := uint32(50)
	m2 := m.Clone()
	m2.AddEntry(policy.Entry{
		Order: 5,
		State: policy.StateAllow,
		Match: policy.Match{PrefixIn: []model.Prefix{p2}},
		Set:   []policy.SetAction{{Kind: policy.SetLocalPref, Value: &pref50}},
	})
	if err := net.SetRouteMap(b0, e0, policy.DirectionIn, m2); err != nil {
		t.Fatal(err)
	}

	st = net.GetForwardingState()
	if hops := st.NextHops(r0, p1); len(hops) != 1 || hops[0] != b0 {
		t.Errorf("after update: r0 forwards %s via %v, want [b0]", p1, hops)
	}
	if hops := st.NextHops(r0, p2); len(hops) != 1 || hops[0] != b1 {
		t.Errorf("after update: r0 forwards %s via %v, want [b1]", p2, hops)
	}
}

func TestIncomingRouteMapDenyActsAsWithdraw(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())

	deny := policy.NewRouteMap()
	deny.AddEntry(policy.Entry{Order: 10, State: policy.StateDeny})
	if err := fix.net.SetRouteMap(fix.b1, fix.e1, policy.DirectionIn, deny); err != nil {
		t.Fatal(err)
	}

	assertPath(t, fix, fix.b1, []model.RouterID{fix.b1, fix.r1, fix.r0, fix.b0, fix.e0})
	r, err := fix.net.GetRouter(fix.b1)
	if err != nil {
		t.Fatal(err)
	}
	if r.RibInFrom(fix.e1, fix.prefix) != nil {
		t.Error("denied route must not sit in the RIB-In")
	}

	// removing the map restores the original selection
	if err := fix.net.SetRouteMap(fix.b1, fix.e1, policy.DirectionIn, policy.NewRouteMap()); err != nil {
		t.Fatal(err)
	}
	assertPath(t, fix, fix.b1, []model.RouterID{fix.b1, fix.e1})
}

// ============================================================================
// Modifier Tests
// ============================================================================

func TestApplyModifierSessionRoundTrip(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())

	remove := Remove(&ConfigExpr{
		Kind:        ExprBgpSession,
		Src:         fix.b1,
		Dst:         fix.e1,
		SessionType: model.SessionEBgp,
	})
	if err := fix.net.ApplyModifier(remove); err != nil {
		t.Fatal(err)
	}
	assertPath(t, fix, fix.b1, []model.RouterID{fix.b1, fix.r1, fix.r0, fix.b0, fix.e0})

	insert := Insert(&ConfigExpr{
		Kind:        ExprBgpSession,
		Src:         fix.b1,
		Dst:         fix.e1,
		SessionType: model.SessionEBgp,
	})
	if err := fix.net.ApplyModifier(insert); err != nil {
		t.Fatal(err)
	}
	assertPath(t, fix, fix.b1, []model.RouterID{fix.b1, fix.e1})
}

func TestApplyModifierBatchIsAtomic(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())

	batch := Batch(
		Remove(&ConfigExpr{Kind: ExprBgpSession, Src: fix.b1, Dst: fix.e1, SessionType: model.SessionEBgp}),
		Insert(&ConfigExpr{Kind: ExprStaticRoute, Router: fix.r1, Prefix: fix.prefix,
			Target: &model.StaticRouteTarget{Kind: model.StaticDrop, Router: model.NoRouter}}),
	)
	if err := fix.net.ApplyModifier(batch); err != nil {
		t.Fatal(err)
	}

	st := fix.net.GetForwardingState()
	if hops := st.NextHops(fix.r1, fix.prefix); len(hops) != 0 {
		t.Errorf("static drop ignored, next hops = %v", hops)
	}
	assertPath(t, fix, fix.b0, []model.RouterID{fix.b0, fix.e0})
}

func TestStaticRoutes(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())

	// direct: forward straight to a neighbor regardless of BGP
	if err := fix.net.SetStaticRoute(fix.r0, fix.prefix, &model.StaticRouteTarget{
		Kind: model.StaticDirect, Router: fix.b0,
	}); err != nil {
		t.Fatal(err)
	}
	st := fix.net.GetForwardingState()
	if hops := st.NextHops(fix.r0, fix.prefix); len(hops) != 1 || hops[0] != fix.b0 {
		t.Errorf("direct static route: next hops = %v, want [b0]", hops)
	}

	// indirect: resolve through the IGP
	if err := fix.net.SetStaticRoute(fix.r0, fix.prefix, &model.StaticRouteTarget{
		Kind: model.StaticIndirect, Router: fix.e1,
	}); err != nil {
		t.Fatal(err)
	}
	st = fix.net.GetForwardingState()
	if hops := st.NextHops(fix.r0, fix.prefix); len(hops) != 1 || hops[0] != fix.r1 {
		t.Errorf("indirect static route: next hops = %v, want [r1]", hops)
	}

	// removal falls back to BGP
	if err := fix.net.SetStaticRoute(fix.r0, fix.prefix, nil); err != nil {
		t.Fatal(err)
	}
	assertPath(t, fix, fix.r0, []model.RouterID{fix.r0, fix.r1, fix.b1, fix.e1})
}

// ============================================================================
// Error Tests
// ============================================================================

func TestSessionValidation(t *testing.T) {
	net := NewNetwork()
	i0 := net.AddRouter("i0")
	i1 := net.AddRouter("i1")
	x0 := net.AddExternalRouter("x0", 10)
	x1 := net.AddExternalRouter("x1", 11)

	tests := []struct {
		name string
		src  model.RouterID
		dst  model.RouterID
		kind model.BgpSessionType
		want error
	}{
		{"two externals", x0, x1, model.SessionEBgp, util.ErrInconsistentSession},
		{"ibgp with external", i0, x0, model.SessionIBgpPeer, util.ErrInconsistentSession},
		{"ebgp between internals", i0, i1, model.SessionEBgp, util.ErrInconsistentSession},
		{"unknown source", 99, i0, model.SessionIBgpPeer, util.ErrDeviceNotFound},
	}
	for _, tt := range tests {
		err := net.SetBgpSession(tt.src, tt.dst, tt.kind)
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}

	if err := net.RemoveBgpSession(i0, i1); !errors.Is(err, util.ErrSessionNotFound) {
		t.Errorf("removing a missing session: err = %v, want session not found", err)
	}
	if err := net.SetLinkWeight(i0, i1, 1); !errors.Is(err, util.ErrLinkNotFound) {
		t.Errorf("weight on a missing link: err = %v, want link not found", err)
	}
}

// ============================================================================
// Serialization Tests
// ============================================================================

func TestSerdeRoundTrip(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())

	// add some non-default config so the round trip is meaningful
	pref := uint32(200)
	m := policy.NewRouteMap()
	m.AddEntry(policy.Entry{
		Order: 10,
		State: policy.StateAllow,
		Set:   []policy.SetAction{{Kind: policy.SetLocalPref, Value: &pref}},
	})
	if err := fix.net.SetRouteMap(fix.b0, fix.e0, policy.DirectionIn, m); err != nil {
		t.Fatal(err)
	}
	if err := fix.net.SetStaticRoute(fix.r1, mustPrefix(t, "30.0.0.0/8"), &model.StaticRouteTarget{
		Kind: model.StaticDrop, Router: model.NoRouter,
	}); err != nil {
		t.Fatal(err)
	}
	fix.net.SetPosition(fix.b0, Coord{Latitude: 47.0, Longitude: -122.0})

	data, err := fix.net.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := UnmarshalNetwork(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if !fix.net.WeaklyEqual(back) {
		t.Error("reloaded network is not weakly equal to the original")
	}
	if !fix.net.GetForwardingState().EqualTo(back.GetForwardingState()) {
		t.Error("re-simulation produced a different forwarding state")
	}
}

func TestSerdeToleratesUnknownFields(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())
	data, err := fix.net.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	patched := append([]byte(`{"layout_hint": {"zoom": 2}, `), data[1:]...)

	back, err := UnmarshalNetwork(patched)
	if err != nil {
		t.Fatalf("unmarshal with unknown field: %v", err)
	}
	if !fix.net.WeaklyEqual(back) {
		t.Error("unknown fields should not affect the reload")
	}
}

func TestCloneIsolation(t *testing.T) {
	fix := buildLinear(t, NewBasicQueue())
	clone := fix.net.Clone()

	if err := clone.RemoveBgpSession(fix.b1, fix.e1); err != nil {
		t.Fatal(err)
	}
	// the original still forwards via e1
	assertPath(t, fix, fix.b1, []model.RouterID{fix.b1, fix.e1})

	st := clone.GetForwardingState()
	path, err := st.Path(fix.b1, fix.prefix)
	if err != nil {
		t.Fatal(err)
	}
	if path[len(path)-1] != fix.e0 {
		t.Errorf("clone path ends at %s, want e0", path[len(path)-1])
	}
}
