// Package topo imports GraphML topology files in the Topology-Zoo
// dialect: nodes carry label, Country, Latitude and Longitude, edges
// carry LinkSpeed. All attributes are optional; the parser fills in
// defaults for whatever is missing.
package topo

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"

	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/sim"
	"github.com/netshift-network/netshift/pkg/util"
)

// Node is one topology node.
type Node struct {
	ID        string
	Label     string
	Country   string
	Latitude  *float64
	Longitude *float64
}

// Edge is one undirected topology edge.
type Edge struct {
	Source    string
	Target    string
	LinkSpeed *float64
}

// Topology is a parsed GraphML file.
type Topology struct {
	Nodes []Node
	Edges []Edge
}

type xmlData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type xmlNode struct {
	ID   string    `xml:"id,attr"`
	Data []xmlData `xml:"data"`
}

type xmlEdge struct {
	Source string    `xml:"source,attr"`
	Target string    `xml:"target,attr"`
	Data   []xmlData `xml:"data"`
}

type xmlKey struct {
	ID   string `xml:"id,attr"`
	For  string `xml:"for,attr"`
	Name string `xml:"attr.name,attr"`
}

type xmlGraphml struct {
	Keys  []xmlKey `xml:"key"`
	Graph struct {
		Nodes []xmlNode `xml:"node"`
		Edges []xmlEdge `xml:"edge"`
	} `xml:"graph"`
}

// Parse reads a GraphML document.
func Parse(data []byte) (*Topology, error) {
	var doc xmlGraphml
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing graphml: %w", err)
	}

	// resolve attribute names through the key table
	names := make(map[string]string, len(doc.Keys))
	for _, k := range doc.Keys {
		names[k.ID] = k.Name
	}
	attr := func(data []xmlData, name string) (string, bool) {
		for _, d := range data {
			if names[d.Key] == name || d.Key == name {
				return d.Value, true
			}
		}
		return "", false
	}

	topo := &Topology{}
	for _, xn := range doc.Graph.Nodes {
		node := Node{ID: xn.ID}
		if label, ok := attr(xn.Data, "label"); ok {
			node.Label = label
		} else {
			node.Label = xn.ID
		}
		if country, ok := attr(xn.Data, "Country"); ok {
			node.Country = country
		}
		node.Latitude = floatAttr(xn.Data, attr, "Latitude", xn.ID)
		node.Longitude = floatAttr(xn.Data, attr, "Longitude", xn.ID)
		topo.Nodes = append(topo.Nodes, node)
	}
	for _, xe := range doc.Graph.Edges {
		edge := Edge{Source: xe.Source, Target: xe.Target}
		edge.LinkSpeed = floatAttr(xe.Data, attr, "LinkSpeed", xe.Source+"-"+xe.Target)
		topo.Edges = append(topo.Edges, edge)
	}
	return topo, nil
}

func floatAttr(data []xmlData, attr func([]xmlData, string) (string, bool), name, context string) *float64 {
	raw, ok := attr(data, name)
	if !ok || raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		util.Logger.Warnf("ignoring malformed %s '%s' on %s", name, raw, context)
		return nil
	}
	return &v
}

// LoadFile parses a GraphML file from disk.
func LoadFile(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading topology: %w", err)
	}
	return Parse(data)
}

// Build constructs a network from the topology: one internal router per
// node, symmetric unit-weight links, and geographic positions where the
// file provides them. It returns the name-to-ID mapping.
func (t *Topology) Build() (*sim.Network, map[string]model.RouterID, error) {
	net := sim.NewNetwork()
	ids := make(map[string]model.RouterID, len(t.Nodes))
	for _, node := range t.Nodes {
		id := net.AddRouter(node.Label)
		ids[node.ID] = id
		if node.Latitude != nil && node.Longitude != nil {
			net.SetPosition(id, sim.Coord{Latitude: *node.Latitude, Longitude: *node.Longitude})
		}
	}
	for _, edge := range t.Edges {
		src, okSrc := ids[edge.Source]
		dst, okDst := ids[edge.Target]
		if !okSrc || !okDst {
			return nil, nil, fmt.Errorf("edge %s -> %s references unknown node", edge.Source, edge.Target)
		}
		if err := net.AddLink(src, dst); err != nil {
			return nil, nil, err
		}
		if err := net.SetLinkWeight(src, dst, 1); err != nil {
			return nil, nil, err
		}
		if err := net.SetLinkWeight(dst, src, 1); err != nil {
			return nil, nil, err
		}
	}
	return net, ids, nil
}
