package fwstate

import (
	"errors"
	"testing"

	"github.com/netshift-network/netshift/pkg/model"
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

// chainState builds 0 -> 1 -> 2 -> egress(9) for the prefix.
func chainState(t *testing.T, prefix model.Prefix) *State {
	t.Helper()
	s := New()
	s.MarkEgress(9)
	s.SetNextHops(0, prefix, []model.RouterID{1})
	s.SetNextHops(1, prefix, []model.RouterID{2})
	s.SetNextHops(2, prefix, []model.RouterID{9})
	return s
}

// ============================================================================
// Lookup Tests
// ============================================================================

func TestNextHopsExact(t *testing.T) {
	p := mustPrefix(t, "10.0.0.0/8")
	s := chainState(t, p)

	if hops := s.NextHops(0, p); len(hops) != 1 || hops[0] != 1 {
		t.Errorf("NextHops(0) = %v, want [r1]", hops)
	}
	if hops := s.NextHops(7, p); hops != nil {
		t.Errorf("NextHops of unknown router = %v, want nil", hops)
	}
}

func TestLongestMatch(t *testing.T) {
	p8 := mustPrefix(t, "10.0.0.0/8")
	p16 := mustPrefix(t, "10.1.0.0/16")
	p24 := mustPrefix(t, "10.1.2.0/24")

	s := New()
	s.SetNextHops(0, p8, []model.RouterID{1})
	s.SetNextHops(0, p16, []model.RouterID{2})

	tests := []struct {
		query model.Prefix
		want  model.RouterID
	}{
		{p24, 2},                            // covered by /16, the most specific
		{p16, 2},                            // exact
		{mustPrefix(t, "10.2.0.0/16"), 1},   // only the /8 covers it
		{p8, 1},                             // exact
	}
	for _, tt := range tests {
		hops := s.NextHops(0, tt.query)
		if len(hops) != 1 || hops[0] != tt.want {
			t.Errorf("NextHops(0, %s) = %v, want [%s]", tt.query, hops, tt.want)
		}
	}

	if _, ok := s.LongestMatch(mustPrefix(t, "11.0.0.0/8")); ok {
		t.Error("LongestMatch should fail for an uncovered prefix")
	}
}

// ============================================================================
// Path Tests
// ============================================================================

func TestPathToEgress(t *testing.T) {
	p := mustPrefix(t, "10.0.0.0/8")
	s := chainState(t, p)

	path, err := s.Path(0, p)
	if err != nil {
		t.Fatalf("Path: %v", err)
	}
	want := []model.RouterID{0, 1, 2, 9}
	if len(path) != len(want) {
		t.Fatalf("path = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("path = %v, want %v", path, want)
		}
	}
}

func TestPathsMultipath(t *testing.T) {
	p := mustPrefix(t, "10.0.0.0/8")
	s := New()
	s.MarkEgress(9)
	s.SetNextHops(0, p, []model.RouterID{1, 2})
	s.SetNextHops(1, p, []model.RouterID{9})
	s.SetNextHops(2, p, []model.RouterID{9})

	paths, err := s.Paths(0, p)
	if err != nil {
		t.Fatalf("Paths: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("got %d paths, want 2: %v", len(paths), paths)
	}
}

func TestPathDetectsLoop(t *testing.T) {
	p := mustPrefix(t, "10.0.0.0/8")
	s := New()
	s.MarkEgress(9)
	s.SetNextHops(0, p, []model.RouterID{1})
	s.SetNextHops(1, p, []model.RouterID{2})
	s.SetNextHops(2, p, []model.RouterID{1}) // 1 <-> 2

	_, err := s.Paths(0, p)
	if !errors.Is(err, util.ErrForwardingLoop) {
		t.Fatalf("err = %v, want forwarding loop", err)
	}
	var pathErr *PathError
	if !errors.As(err, &pathErr) {
		t.Fatal("error should be a *PathError")
	}
	want := []model.RouterID{0, 1, 2, 1}
	if len(pathErr.Path) != len(want) {
		t.Fatalf("partial path = %v, want %v", pathErr.Path, want)
	}
	for i := range want {
		if pathErr.Path[i] != want[i] {
			t.Fatalf("partial path = %v, want %v", pathErr.Path, want)
		}
	}
}

func TestPathDetectsBlackHole(t *testing.T) {
	p := mustPrefix(t, "10.0.0.0/8")
	s := New()
	s.MarkEgress(9)
	s.SetNextHops(0, p, []model.RouterID{1})
	s.SetNextHops(1, p, []model.RouterID{2})
	// router 2 has no entry and is not an egress

	_, err := s.Paths(0, p)
	if !errors.Is(err, util.ErrForwardingBlackHole) {
		t.Fatalf("err = %v, want black hole", err)
	}
	var pathErr *PathError
	if !errors.As(err, &pathErr) {
		t.Fatal("error should be a *PathError")
	}
	want := []model.RouterID{0, 1, 2}
	if len(pathErr.Path) != len(want) {
		t.Fatalf("partial path = %v, want %v", pathErr.Path, want)
	}
	for i := range want {
		if pathErr.Path[i] != want[i] {
			t.Fatalf("partial path = %v, want %v", pathErr.Path, want)
		}
	}
}

func TestExplicitDropIsBlackHole(t *testing.T) {
	p := mustPrefix(t, "10.0.0.0/8")
	s := New()
	s.SetNextHops(0, p, nil)

	_, err := s.Paths(0, p)
	if !errors.Is(err, util.ErrForwardingBlackHole) {
		t.Fatalf("err = %v, want black hole", err)
	}
}

// ============================================================================
// Diff Tests
// ============================================================================

func TestDiffAndApplyRoundTrip(t *testing.T) {
	p := mustPrefix(t, "10.0.0.0/8")
	a := chainState(t, p)

	b := a.Clone()
	b.SetNextHops(0, p, []model.RouterID{2})   // changed
	b.SetNextHops(3, p, []model.RouterID{0})   // added

	diff := a.DiffAgainst(b)
	deltas := diff[p]
	if len(deltas) != 2 {
		t.Fatalf("got %d deltas, want 2: %+v", len(deltas), deltas)
	}
	if deltas[0].Router != 0 || deltas[1].Router != 3 {
		t.Errorf("deltas out of order: %+v", deltas)
	}

	patched := a.Apply(diff)
	if !patched.EqualTo(b) {
		t.Error("applying the diff to the old state must yield the new state")
	}

	if len(a.DiffAgainst(a.Clone())) != 0 {
		t.Error("diff of identical states must be empty")
	}
}

func TestDiffRemoval(t *testing.T) {
	p := mustPrefix(t, "10.0.0.0/8")
	a := chainState(t, p)
	b := a.Clone()
	bDiff := a.DiffAgainst(b)
	if len(bDiff) != 0 {
		t.Fatalf("clone diff not empty: %+v", bDiff)
	}

	c := New()
	c.MarkEgress(9)
	c.SetNextHops(1, p, []model.RouterID{2})
	c.SetNextHops(2, p, []model.RouterID{9})
	diff := a.DiffAgainst(c)
	deltas := diff[p]
	if len(deltas) != 1 || deltas[0].Router != 0 || len(deltas[0].New) != 0 {
		t.Fatalf("removal delta = %+v", deltas)
	}
	if !a.Apply(diff).EqualTo(c) {
		t.Error("applying a removal diff must delete the entry")
	}
}

func TestEquivalenceClasses(t *testing.T) {
	p1 := mustPrefix(t, "10.0.0.0/8")
	p2 := mustPrefix(t, "20.0.0.0/8")
	p3 := mustPrefix(t, "30.0.0.0/8")

	s := New()
	s.MarkEgress(9)
	// p1 and p2 share every entry, p3 differs at router 0
	for _, p := range []model.Prefix{p1, p2} {
		s.SetNextHops(0, p, []model.RouterID{1})
		s.SetNextHops(1, p, []model.RouterID{9})
	}
	s.SetNextHops(0, p3, []model.RouterID{2})
	s.SetNextHops(1, p3, []model.RouterID{9})

	classes := s.EquivalenceClasses()
	if len(classes) != 2 {
		t.Fatalf("got %d classes, want 2: %v", len(classes), classes)
	}
	if len(classes[0]) != 2 || !classes[0][0].EqualTo(p1) || !classes[0][1].EqualTo(p2) {
		t.Errorf("first class = %v, want [10.0.0.0/8 20.0.0.0/8]", classes[0])
	}
	if len(classes[1]) != 1 || !classes[1][0].EqualTo(p3) {
		t.Errorf("second class = %v, want [30.0.0.0/8]", classes[1])
	}
}
