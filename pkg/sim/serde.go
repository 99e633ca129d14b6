package sim

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/netshift-network/netshift/pkg/igp"
	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/policy"
	"github.com/netshift-network/netshift/pkg/util"
)

// The serialized form carries only configuration, never transient state:
// no event queue contents and no RIBs. On import, the network is rebuilt
// and re-simulated, which reconstructs a weakly equal network.

type sessionJSON struct {
	Neighbor model.RouterID       `json:"neighbor"`
	Type     model.BgpSessionType `json:"type"`
}

type routeMapJSON struct {
	Neighbor  model.RouterID   `json:"neighbor"`
	Direction policy.Direction `json:"direction"`
	Map       *policy.RouteMap `json:"map"`
}

type staticRouteJSON struct {
	Prefix string                  `json:"prefix"`
	Target model.StaticRouteTarget `json:"target"`
}

type routerJSON struct {
	ID            model.RouterID    `json:"id"`
	Name          string            `json:"name"`
	ASN           model.ASN         `json:"asn"`
	Internal      bool              `json:"internal"`
	Sessions      []sessionJSON     `json:"sessions,omitempty"`
	RouteMaps     []routeMapJSON    `json:"route_maps,omitempty"`
	StaticRoutes  []staticRouteJSON `json:"static_routes,omitempty"`
	LoadBalancing bool              `json:"load_balancing,omitempty"`
}

type linkJSON struct {
	Src    model.RouterID `json:"src"`
	Dst    model.RouterID `json:"dst"`
	Weight float64        `json:"weight"`
	Area   igp.AreaID     `json:"area"`
}

type netJSON struct {
	Routers []routerJSON `json:"routers"`
	Links   []linkJSON   `json:"links"`
}

type advertJSON struct {
	Router model.RouterID  `json:"router"`
	Route  *model.BgpRoute `json:"route"`
}

type positionJSON struct {
	Router   model.RouterID `json:"router"`
	Position Coord          `json:"position"`
}

type networkFile struct {
	Net               netJSON         `json:"net"`
	ConfigNodesRoutes []advertJSON    `json:"config_nodes_routes,omitempty"`
	Position          []positionJSON  `json:"position,omitempty"`
	Specification     json.RawMessage `json:"specification,omitempty"`
}

func (n *Network) exportConfig() networkFile {
	n.mu.RLock()
	defer n.mu.RUnlock()

	var file networkFile
	for _, id := range n.sortedInternal() {
		r := n.routers[id]
		rj := routerJSON{
			ID:            id,
			Name:          r.name,
			ASN:           r.asn,
			Internal:      true,
			LoadBalancing: r.loadBalancing,
		}
		for _, neighbor := range sortedKeys(r.sessions) {
			rj.Sessions = append(rj.Sessions, sessionJSON{Neighbor: neighbor, Type: r.sessions[neighbor]})
		}
		for _, neighbor := range sortedMapKeys(r.routeMaps) {
			for _, dir := range []policy.Direction{policy.DirectionIn, policy.DirectionOut} {
				if m := r.routeMaps[neighbor][dir]; !m.IsEmpty() {
					rj.RouteMaps = append(rj.RouteMaps, routeMapJSON{Neighbor: neighbor, Direction: dir, Map: m})
				}
			}
		}
		for _, prefix := range sortedPrefixes(r.staticRoutes) {
			rj.StaticRoutes = append(rj.StaticRoutes, staticRouteJSON{
				Prefix: prefix.String(),
				Target: r.staticRoutes[prefix],
			})
		}
		file.Net.Routers = append(file.Net.Routers, rj)
	}
	for _, id := range sortedExtKeys(n.externals) {
		ext := n.externals[id]
		rj := routerJSON{ID: id, Name: ext.name, ASN: ext.asn, Internal: false}
		for _, neighbor := range ext.Sessions() {
			rj.Sessions = append(rj.Sessions, sessionJSON{Neighbor: neighbor, Type: model.SessionEBgp})
		}
		file.Net.Routers = append(file.Net.Routers, rj)

		for _, prefix := range ext.AdvertisedPrefixes() {
			file.ConfigNodesRoutes = append(file.ConfigNodesRoutes, advertJSON{
				Router: id,
				Route:  ext.advertised[prefix],
			})
		}
	}
	for _, src := range n.igp.Nodes() {
		for dst, link := range n.igp.Links(src) {
			file.Net.Links = append(file.Net.Links, linkJSON{Src: src, Dst: dst, Weight: link.Weight, Area: link.Area})
		}
	}
	sort.Slice(file.Net.Links, func(i, j int) bool {
		a, b := file.Net.Links[i], file.Net.Links[j]
		if a.Src != b.Src {
			return a.Src < b.Src
		}
		return a.Dst < b.Dst
	})
	for _, id := range sortedCoordKeys(n.positions) {
		file.Position = append(file.Position, positionJSON{Router: id, Position: n.positions[id]})
	}
	return file
}

// MarshalJSON serializes the network configuration.
func (n *Network) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.exportConfig())
}

// UnmarshalNetwork rebuilds a network from its serialized configuration
// and re-simulates it to convergence. Unknown top-level fields are
// logged and ignored; malformed optional fields are logged and skipped.
func UnmarshalNetwork(data []byte) (*Network, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing network file: %w", err)
	}

	var file networkFile
	if netRaw, ok := raw["net"]; ok {
		if err := json.Unmarshal(netRaw, &file.Net); err != nil {
			return nil, fmt.Errorf("parsing net: %w", err)
		}
	} else {
		return nil, fmt.Errorf("network file has no 'net' field")
	}
	if routesRaw, ok := raw["config_nodes_routes"]; ok {
		if err := json.Unmarshal(routesRaw, &file.ConfigNodesRoutes); err != nil {
			return nil, fmt.Errorf("parsing config_nodes_routes: %w", err)
		}
	}
	if posRaw, ok := raw["position"]; ok {
		if err := json.Unmarshal(posRaw, &file.Position); err != nil {
			util.Logger.Warnf("ignoring malformed position field: %v", err)
			file.Position = nil
		}
	}
	for key := range raw {
		switch key {
		case "net", "config_nodes_routes", "position", "specification":
		default:
			util.Logger.Warnf("ignoring unknown field '%s' in network file", key)
		}
	}

	net := NewNetwork()
	net.ManualSimulation(true)

	// create routers with their original IDs; the dense counter resumes
	// after the highest seen ID
	maxID := model.RouterID(-1)
	for _, rj := range file.Net.Routers {
		if rj.Internal {
			net.routers[rj.ID] = newRouter(rj.ID, rj.Name, rj.ASN)
		} else {
			net.externals[rj.ID] = newExternalRouter(rj.ID, rj.Name, rj.ASN)
		}
		net.igp.AddNode(rj.ID)
		if rj.ID > maxID {
			maxID = rj.ID
		}
	}
	net.nextID = maxID + 1

	for _, lj := range file.Net.Links {
		net.igp.SetWeight(lj.Src, lj.Dst, lj.Weight)
	}
	for _, lj := range file.Net.Links {
		net.igp.SetArea(lj.Src, lj.Dst, lj.Area)
	}

	// sessions: apply each undirected session exactly once, from the
	// labeled (reflector / internal) side
	applied := make(map[[2]model.RouterID]bool)
	for _, rj := range file.Net.Routers {
		for _, sj := range rj.Sessions {
			key := sessionPairKey(rj.ID, sj.Neighbor)
			if applied[key] {
				continue
			}
			switch {
			case sj.Type == model.SessionIBgpClient:
				applied[key] = true
				if err := net.SetBgpSession(rj.ID, sj.Neighbor, model.SessionIBgpClient); err != nil {
					return nil, err
				}
			case sj.Type == model.SessionEBgp && rj.Internal:
				applied[key] = true
				if err := net.SetBgpSession(rj.ID, sj.Neighbor, model.SessionEBgp); err != nil {
					return nil, err
				}
			case sj.Type == model.SessionIBgpPeer:
				// wait for the client label if the other side has one
				if hasClientLabel(&file, sj.Neighbor, rj.ID) {
					continue
				}
				applied[key] = true
				if err := net.SetBgpSession(rj.ID, sj.Neighbor, model.SessionIBgpPeer); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, rj := range file.Net.Routers {
		if !rj.Internal {
			continue
		}
		r := net.routers[rj.ID]
		for _, mj := range rj.RouteMaps {
			r.setRouteMap(mj.Neighbor, mj.Direction, mj.Map)
		}
		for _, sj := range rj.StaticRoutes {
			prefix, err := model.ParsePrefix(sj.Prefix)
			if err != nil {
				return nil, fmt.Errorf("static route on %s: %w", rj.Name, err)
			}
			r.staticRoutes[prefix] = sj.Target
		}
		r.loadBalancing = rj.LoadBalancing
	}

	for _, pj := range file.Position {
		net.positions[pj.Router] = pj.Position
	}

	for _, aj := range file.ConfigNodesRoutes {
		ext, ok := net.externals[aj.Router]
		if !ok {
			util.Logger.Warnf("ignoring advertisement for unknown router %s", aj.Router)
			continue
		}
		net.enqueue(ext.advertiseRoute(aj.Route))
	}

	net.ManualSimulation(false)
	if err := net.Simulate(); err != nil {
		return nil, err
	}
	return net, nil
}

func hasClientLabel(file *networkFile, router, neighbor model.RouterID) bool {
	for _, rj := range file.Net.Routers {
		if rj.ID != router {
			continue
		}
		for _, sj := range rj.Sessions {
			if sj.Neighbor == neighbor && sj.Type == model.SessionIBgpClient {
				return true
			}
		}
	}
	return false
}

func sessionPairKey(a, b model.RouterID) [2]model.RouterID {
	if a < b {
		return [2]model.RouterID{a, b}
	}
	return [2]model.RouterID{b, a}
}

// WeaklyEqual compares two networks by configuration: same topology,
// same sessions, policies and advertisements. Internal RIBs and queue
// contents are ignored.
func (n *Network) WeaklyEqual(other *Network) bool {
	a, errA := json.Marshal(n.exportConfig())
	b, errB := json.Marshal(other.exportConfig())
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// EqualTo compares configuration and converged BGP state: RIB-In,
// selections and RIB-Out of every router.
func (n *Network) EqualTo(other *Network) bool {
	if !n.WeaklyEqual(other) {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	other.mu.RLock()
	defer other.mu.RUnlock()

	for id, r := range n.routers {
		o, ok := other.routers[id]
		if !ok {
			return false
		}
		if len(r.ribIn) != len(o.ribIn) || len(r.rib) != len(o.rib) {
			return false
		}
		for k, e := range r.ribIn {
			oe, ok := o.ribIn[k]
			if !ok || !e.Route.EqualTo(oe.Route) || e.SessionType != oe.SessionType {
				return false
			}
		}
		for p, e := range r.rib {
			oe, ok := o.rib[p]
			if !ok || oe.Selected.From != e.Selected.From || !oe.Selected.Route.EqualTo(e.Selected.Route) {
				return false
			}
		}
		for neighbor, perPrefix := range r.ribOut {
			if len(perPrefix) != len(o.ribOut[neighbor]) {
				return false
			}
			for p, route := range perPrefix {
				if !route.EqualTo(o.ribOut[neighbor][p]) {
					return false
				}
			}
		}
		for neighbor, perPrefix := range o.ribOut {
			if len(perPrefix) != len(r.ribOut[neighbor]) {
				return false
			}
		}
	}
	return true
}

func sortedKeys(m map[model.RouterID]model.BgpSessionType) []model.RouterID {
	out := make([]model.RouterID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedMapKeys(m map[model.RouterID]map[policy.Direction]*policy.RouteMap) []model.RouterID {
	out := make([]model.RouterID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedPrefixes(m map[model.Prefix]model.StaticRouteTarget) []model.Prefix {
	out := make([]model.Prefix, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func sortedExtKeys(m map[model.RouterID]*ExternalRouter) []model.RouterID {
	out := make([]model.RouterID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedCoordKeys(m map[model.RouterID]Coord) []model.RouterID {
	out := make([]model.RouterID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
