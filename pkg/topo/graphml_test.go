package topo

import (
	"testing"
)

const sampleGraphML = `<?xml version="1.0" encoding="utf-8"?>
<graphml xmlns="http://graphml.graphdrawing.org/xmlns">
  <key attr.name="label" attr.type="string" for="node" id="d0"/>
  <key attr.name="Country" attr.type="string" for="node" id="d1"/>
  <key attr.name="Latitude" attr.type="double" for="node" id="d2"/>
  <key attr.name="Longitude" attr.type="double" for="node" id="d3"/>
  <key attr.name="LinkSpeed" attr.type="double" for="edge" id="d4"/>
  <graph edgedefault="undirected">
    <node id="n0">
      <data key="d0">Seattle</data>
      <data key="d1">United States</data>
      <data key="d2">47.60621</data>
      <data key="d3">-122.33207</data>
    </node>
    <node id="n1">
      <data key="d0">Denver</data>
      <data key="d2">39.73915</data>
      <data key="d3">-104.9847</data>
    </node>
    <node id="n2"/>
    <edge source="n0" target="n1">
      <data key="d4">10.0</data>
    </edge>
    <edge source="n1" target="n2"/>
  </graph>
</graphml>`

func TestParseGraphML(t *testing.T) {
	topo, err := Parse([]byte(sampleGraphML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(topo.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(topo.Nodes))
	}
	seattle := topo.Nodes[0]
	if seattle.Label != "Seattle" || seattle.Country != "United States" {
		t.Errorf("seattle = %+v", seattle)
	}
	if seattle.Latitude == nil || *seattle.Latitude != 47.60621 {
		t.Errorf("seattle latitude = %v", seattle.Latitude)
	}

	// missing attributes are tolerated
	denver := topo.Nodes[1]
	if denver.Country != "" {
		t.Errorf("denver country = %q, want empty", denver.Country)
	}
	bare := topo.Nodes[2]
	if bare.Label != "n2" {
		t.Errorf("node without label should fall back to its id, got %q", bare.Label)
	}
	if bare.Latitude != nil {
		t.Error("missing latitude should stay nil")
	}

	if len(topo.Edges) != 2 {
		t.Fatalf("edges = %d, want 2", len(topo.Edges))
	}
	if topo.Edges[0].LinkSpeed == nil || *topo.Edges[0].LinkSpeed != 10.0 {
		t.Errorf("edge speed = %v", topo.Edges[0].LinkSpeed)
	}
	if topo.Edges[1].LinkSpeed != nil {
		t.Error("missing link speed should stay nil")
	}
}

func TestParseToleratesMalformedNumbers(t *testing.T) {
	doc := `<graphml>
  <key attr.name="Latitude" for="node" id="d2"/>
  <graph>
    <node id="n0"><data key="d2">not-a-number</data></node>
  </graph>
</graphml>`
	topo, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if topo.Nodes[0].Latitude != nil {
		t.Error("malformed latitude should be dropped, not fail the parse")
	}
}

func TestBuildNetwork(t *testing.T) {
	topo, err := Parse([]byte(sampleGraphML))
	if err != nil {
		t.Fatal(err)
	}
	net, ids, err := topo.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if got := len(net.InternalRouters()); got != 3 {
		t.Fatalf("routers = %d, want 3", got)
	}
	if _, err := net.LinkWeight(ids["n0"], ids["n1"]); err != nil {
		t.Errorf("link n0-n1 missing: %v", err)
	}
	if _, err := net.LinkWeight(ids["n1"], ids["n0"]); err != nil {
		t.Errorf("links must be symmetric: %v", err)
	}
	if pos, ok := net.Position(ids["n0"]); !ok || pos.Latitude == 0 {
		t.Errorf("position of n0 = %v, %t", pos, ok)
	}
	if _, ok := net.Position(ids["n2"]); ok {
		t.Error("node without coordinates must not get a position")
	}

	if _, _, err := (&Topology{Edges: []Edge{{Source: "a", Target: "b"}}}).Build(); err == nil {
		t.Error("edge to an unknown node must fail the build")
	}
}
