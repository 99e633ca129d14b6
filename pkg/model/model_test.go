package model

import (
	"encoding/json"
	"testing"
)

// ============================================================================
// Prefix Tests
// ============================================================================

func TestParsePrefix(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"unit", "unit", false},
		{"0", "0", false},
		{"42", "42", false},
		{"10.0.0.0/8", "10.0.0.0/8", false},
		{"10.1.2.3/8", "10.0.0.0/8", false}, // host bits masked
		{"192.168.1.0/24", "192.168.1.0/24", false},
		{"10.0.0.0", "", true},
		{"10.0.0/8", "", true},
		{"10.0.0.0/33", "", true},
		{"abc", "", true},
	}

	for _, tt := range tests {
		p, err := ParsePrefix(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePrefix(%q) expected error, got %v", tt.in, p)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePrefix(%q) unexpected error: %v", tt.in, err)
			continue
		}
		if p.String() != tt.want {
			t.Errorf("ParsePrefix(%q) = %q, want %q", tt.in, p.String(), tt.want)
		}
	}
}

func TestIpv4PrefixContainment(t *testing.T) {
	p8, _ := ParsePrefix("10.0.0.0/8")
	p16, _ := ParsePrefix("10.1.0.0/16")
	p24, _ := ParsePrefix("10.1.2.0/24")
	other, _ := ParsePrefix("192.168.0.0/16")

	tests := []struct {
		name     string
		a, b     Prefix
		contains bool
		overlap  bool
	}{
		{"8 contains 16", p8, p16, true, true},
		{"8 contains 24", p8, p24, true, true},
		{"16 contains 24", p16, p24, true, true},
		{"16 does not contain 8", p16, p8, false, true},
		{"disjoint", p8, other, false, false},
		{"self", p8, p8, true, true},
	}

	for _, tt := range tests {
		if got := tt.a.Contains(tt.b); got != tt.contains {
			t.Errorf("%s: Contains = %t, want %t", tt.name, got, tt.contains)
		}
		if got := tt.b.ContainedBy(tt.a); got != tt.contains {
			t.Errorf("%s: ContainedBy = %t, want %t", tt.name, got, tt.contains)
		}
		if got := tt.a.Overlaps(tt.b); got != tt.overlap {
			t.Errorf("%s: Overlaps = %t, want %t", tt.name, got, tt.overlap)
		}
	}
}

func TestSimplePrefixFlat(t *testing.T) {
	a := SimplePrefix(1)
	b := SimplePrefix(2)

	if !a.EqualTo(SimplePrefix(1)) {
		t.Error("SimplePrefix(1) should equal itself")
	}
	if a.Contains(b) || a.Overlaps(b) || a.ContainedBy(b) {
		t.Error("distinct simple prefixes must not contain or overlap each other")
	}
	if !a.Contains(SimplePrefix(1)) {
		t.Error("a simple prefix contains itself")
	}
}

func TestUnitPrefix(t *testing.T) {
	u := UnitPrefix{}
	if !u.EqualTo(UnitPrefix{}) || !u.Contains(UnitPrefix{}) || !u.Overlaps(UnitPrefix{}) {
		t.Error("unit prefix relates to itself in every way")
	}
	if u.EqualTo(SimplePrefix(0)) {
		t.Error("unit prefix must not equal a simple prefix")
	}
}

func TestPrefixAsMapKey(t *testing.T) {
	m := map[Prefix]int{}
	p1, _ := ParsePrefix("10.0.0.0/8")
	p2, _ := ParsePrefix("10.0.0.0/8")
	m[p1] = 1
	m[p2] = 2
	if len(m) != 1 {
		t.Fatalf("equal prefixes should collapse to one key, got %d", len(m))
	}
	if m[p1] != 2 {
		t.Errorf("m[p1] = %d, want 2", m[p1])
	}
}

// ============================================================================
// Community Set Tests
// ============================================================================

func TestCommunitySet(t *testing.T) {
	s := NewCommunitySet(3, 1, 2)
	if !s.Has(1) || !s.Has(2) || !s.Has(3) {
		t.Fatal("set should contain all initial tags")
	}
	s.Remove(2)
	if s.Has(2) {
		t.Error("removed tag still present")
	}
	s.Add(5)

	sorted := s.Sorted()
	want := []Community{1, 3, 5}
	if len(sorted) != len(want) {
		t.Fatalf("Sorted() = %v, want %v", sorted, want)
	}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("Sorted() = %v, want %v", sorted, want)
		}
	}

	clone := s.Clone()
	clone.Add(9)
	if s.Has(9) {
		t.Error("mutating a clone must not affect the original")
	}
	if !s.EqualTo(NewCommunitySet(1, 3, 5)) {
		t.Error("EqualTo failed for equal sets")
	}
	if s.EqualTo(clone) {
		t.Error("EqualTo succeeded for different sets")
	}
}

// ============================================================================
// BgpRoute Tests
// ============================================================================

func TestBgpRouteDefaults(t *testing.T) {
	p, _ := ParsePrefix("10.0.0.0/8")
	r := NewBgpRoute(p, []ASN{1, 2}, 3)

	if r.LocalPrefOrDefault() != 100 {
		t.Errorf("default local pref = %d, want 100", r.LocalPrefOrDefault())
	}
	if r.MedOrDefault() != 0 {
		t.Errorf("default MED = %d, want 0", r.MedOrDefault())
	}
	if r.FirstAS() != 1 {
		t.Errorf("FirstAS = %d, want 1", r.FirstAS())
	}
	if !r.HasASInPath(2) || r.HasASInPath(7) {
		t.Error("HasASInPath mismatch")
	}
	if r.OriginatorID.IsSome() {
		t.Error("new route must not carry an originator")
	}
}

func TestBgpRouteCloneIsDeep(t *testing.T) {
	p, _ := ParsePrefix("10.0.0.0/8")
	lp := uint32(200)
	r := NewBgpRoute(p, []ASN{1, 2}, 3)
	r.LocalPref = &lp
	r.Communities.Add(7)
	r.ClusterList = []RouterID{4}

	c := r.Clone()
	c.ASPath[0] = 9
	c.Communities.Add(8)
	c.ClusterList[0] = 5
	*c.LocalPref = 50

	if r.ASPath[0] != 1 || r.Communities.Has(8) || r.ClusterList[0] != 4 || *r.LocalPref != 200 {
		t.Error("Clone() shares state with the original")
	}
	if !r.EqualTo(r.Clone()) {
		t.Error("route should equal its clone")
	}
	if r.EqualTo(c) {
		t.Error("route should differ from the mutated clone")
	}
}

func TestBgpRouteJSONRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"ipv4", "10.0.0.0/8"},
		{"simple", "7"},
		{"unit", "unit"},
	}

	for _, tt := range tests {
		p, _ := ParsePrefix(tt.prefix)
		med := uint32(30)
		orig := NewBgpRoute(p, []ASN{1, 2, 3}, 5)
		orig.MED = &med
		orig.Communities.Add(11)
		orig.OriginatorID = 2
		orig.ClusterList = []RouterID{2, 3}

		data, err := json.Marshal(orig)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tt.name, err)
		}
		var back BgpRoute
		if err := json.Unmarshal(data, &back); err != nil {
			t.Fatalf("%s: unmarshal: %v", tt.name, err)
		}
		if !orig.EqualTo(&back) {
			t.Errorf("%s: round trip changed the route: %s vs %s", tt.name, orig, &back)
		}
	}
}

func TestBgpRouteJSONNoOriginator(t *testing.T) {
	p, _ := ParsePrefix("10.0.0.0/8")
	orig := NewBgpRoute(p, []ASN{1}, 5)

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back BgpRoute
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.OriginatorID.IsSome() {
		t.Errorf("absent originator decoded as %s", back.OriginatorID)
	}
}

// ============================================================================
// Session / Static Route Tests
// ============================================================================

func TestSessionTypes(t *testing.T) {
	if SessionEBgp.IsInternal() {
		t.Error("ebgp is not internal")
	}
	if !SessionIBgpPeer.IsInternal() || !SessionIBgpClient.IsInternal() {
		t.Error("ibgp session types are internal")
	}
}

func TestStaticRouteTargets(t *testing.T) {
	if d := DirectTarget(3); d.Kind != StaticDirect || d.Router != 3 {
		t.Errorf("DirectTarget = %+v", d)
	}
	if i := IndirectTarget(4); i.Kind != StaticIndirect || i.Router != 4 {
		t.Errorf("IndirectTarget = %+v", i)
	}
	if dr := DropTarget(); dr.Kind != StaticDrop || dr.Router.IsSome() {
		t.Errorf("DropTarget = %+v", dr)
	}
}
