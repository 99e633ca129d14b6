// Package scenario builds the named topologies and reconfiguration
// events accepted by the evaluate command: small hand-built networks
// plus the Abilene backbone, combined with route and session changes.
package scenario

import (
	"fmt"

	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/sim"
)

// Scenario is a prepared reconfiguration: a converged network, the
// prefix under migration, and the command to decompose.
type Scenario struct {
	Net     *sim.Network
	Prefix  model.Prefix
	Command *sim.Modifier
}

// Build constructs a scenario from a topology and an event tag.
func Build(topology, event string, queue sim.EventQueue) (*Scenario, error) {
	var net *sim.Network
	var prefix model.Prefix
	var externals []model.RouterID
	var err error

	switch topology {
	case "linear":
		net, prefix, externals, err = buildLinear(queue)
	case "clique4":
		net, prefix, externals, err = buildClique(queue)
	case "abilene":
		net, prefix, externals, err = BuildAbilene(queue)
	default:
		return nil, fmt.Errorf("unknown topology '%s' (want linear, clique4 or abilene)", topology)
	}
	if err != nil {
		return nil, err
	}
	if err := net.Simulate(); err != nil {
		return nil, err
	}

	command, err := buildEvent(net, event, prefix, externals)
	if err != nil {
		return nil, err
	}
	return &Scenario{Net: net, Prefix: prefix, Command: command}, nil
}

// buildEvent turns an event tag into a modifier. The best route is the
// one currently selected network-wide, so del-best-route forces a
// migration to the backup egress.
func buildEvent(net *sim.Network, event string, prefix model.Prefix, externals []model.RouterID) (*sim.Modifier, error) {
	if len(externals) < 2 {
		return nil, fmt.Errorf("scenario needs at least two external routers")
	}
	best := externals[0]
	ext, err := net.GetExternal(best)
	if err != nil {
		return nil, err
	}
	border := ext.Sessions()[0]

	switch event {
	case "del-best-route":
		return sim.Remove(&sim.ConfigExpr{
			Kind:   sim.ExprAdvertisement,
			Router: best,
			Route:  ext.Advertised(prefix),
		}), nil
	case "add-best-route":
		// the backup egress announces a path shorter than the current
		// best, taking over once the command applies
		backup, err := net.GetExternal(externals[1])
		if err != nil {
			return nil, err
		}
		route := model.NewBgpRoute(prefix, []model.ASN{backup.ASN()}, externals[1])
		return sim.Insert(&sim.ConfigExpr{
			Kind:   sim.ExprAdvertisement,
			Router: externals[1],
			Route:  route,
		}), nil
	case "del-session":
		return sim.Remove(&sim.ConfigExpr{
			Kind:        sim.ExprBgpSession,
			Src:         border,
			Dst:         best,
			SessionType: model.SessionEBgp,
		}), nil
	case "add-session":
		// the session is removed up front; the command restores it
		if err := net.RemoveBgpSession(border, best); err != nil {
			return nil, err
		}
		if err := net.Simulate(); err != nil {
			return nil, err
		}
		return sim.Insert(&sim.ConfigExpr{
			Kind:        sim.ExprBgpSession,
			Src:         border,
			Dst:         best,
			SessionType: model.SessionEBgp,
		}), nil
	default:
		return nil, fmt.Errorf("unknown event '%s' (want del-best-route, add-best-route, del-session or add-session)", event)
	}
}

// buildLinear is the b0 - r0 - r1 - b1 chain with one external router
// on each end and an iBGP full mesh. The external at b1 advertises the
// shorter AS path and wins.
func buildLinear(queue sim.EventQueue) (*sim.Network, model.Prefix, []model.RouterID, error) {
	net := sim.NewNetworkWithQueue(queue)
	b := sim.NewBuilder(net)
	prefix, _ := model.ParsePrefix("10.0.0.0/8")

	ids, err := b.LinearPath("b0", "r0", "r1", "b1")
	if err != nil {
		return nil, nil, nil, err
	}
	b0, b1 := ids[0], ids[3]

	e0, err := b.AttachExternal("e0", 1, b0)
	if err != nil {
		return nil, nil, nil, err
	}
	e1, err := b.AttachExternal("e1", 2, b1)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := b.IBgpFullMesh(); err != nil {
		return nil, nil, nil, err
	}
	if err := net.AdvertiseExternalRoute(e0, prefix, []model.ASN{1, 2, 3}, nil, nil); err != nil {
		return nil, nil, nil, err
	}
	if err := net.AdvertiseExternalRoute(e1, prefix, []model.ASN{2, 3}, nil, nil); err != nil {
		return nil, nil, nil, err
	}
	// e1 has the shorter path and is the current best
	return net, prefix, []model.RouterID{e1, e0}, nil
}

// buildClique is a 4-router clique with two externals and a single
// route reflector, the smallest topology with real BGP dependencies.
func buildClique(queue sim.EventQueue) (*sim.Network, model.Prefix, []model.RouterID, error) {
	net := sim.NewNetworkWithQueue(queue)
	b := sim.NewBuilder(net)
	prefix := model.Prefix(model.SimplePrefix(0))

	ids, err := b.CompleteGraph(4, 10)
	if err != nil {
		return nil, nil, nil, err
	}
	e0, err := b.AttachExternal("e0", 100, ids[0])
	if err != nil {
		return nil, nil, nil, err
	}
	e1, err := b.AttachExternal("e1", 101, ids[2])
	if err != nil {
		return nil, nil, nil, err
	}
	if err := b.IBgpRouteReflection(ids[3]); err != nil {
		return nil, nil, nil, err
	}
	if err := b.UniquePreferences(prefix, []model.RouterID{e0, e1}); err != nil {
		return nil, nil, nil, err
	}
	return net, prefix, []model.RouterID{e0, e1}, nil
}

// abileneNodes are the 11 routers of the US backbone.
var abileneNodes = []string{
	"seattle", "sunnyvale", "los-angeles", "denver", "kansas-city",
	"houston", "chicago", "indianapolis", "atlanta", "washington", "new-york",
}

var abileneLinks = [][2]string{
	{"seattle", "sunnyvale"},
	{"seattle", "denver"},
	{"sunnyvale", "los-angeles"},
	{"sunnyvale", "denver"},
	{"los-angeles", "houston"},
	{"denver", "kansas-city"},
	{"kansas-city", "houston"},
	{"kansas-city", "indianapolis"},
	{"houston", "atlanta"},
	{"chicago", "indianapolis"},
	{"chicago", "new-york"},
	{"indianapolis", "atlanta"},
	{"atlanta", "washington"},
	{"washington", "new-york"},
}

// BuildAbilene builds the Abilene backbone with route reflectors at
// Sunnyvale, Kansas City and Atlanta and external peers at Seattle, New
// York and Los Angeles advertising the same prefix with unique
// preferences.
func BuildAbilene(queue sim.EventQueue) (*sim.Network, model.Prefix, []model.RouterID, error) {
	net := sim.NewNetworkWithQueue(queue)
	b := sim.NewBuilder(net)
	prefix, _ := model.ParsePrefix("100.0.0.0/8")

	ids := make(map[string]model.RouterID, len(abileneNodes))
	for _, name := range abileneNodes {
		ids[name] = net.AddRouter(name)
	}
	for _, link := range abileneLinks {
		src, dst := ids[link[0]], ids[link[1]]
		if err := net.AddLink(src, dst); err != nil {
			return nil, nil, nil, err
		}
		if err := net.SetLinkWeight(src, dst, 10); err != nil {
			return nil, nil, nil, err
		}
		if err := net.SetLinkWeight(dst, src, 10); err != nil {
			return nil, nil, nil, err
		}
	}

	if err := b.IBgpRouteReflection(ids["sunnyvale"], ids["kansas-city"], ids["atlanta"]); err != nil {
		return nil, nil, nil, err
	}

	var externals []model.RouterID
	for i, attach := range []string{"seattle", "new-york", "los-angeles"} {
		ext, err := b.AttachExternal(fmt.Sprintf("peer-%s", attach), model.ASN(200+i), ids[attach])
		if err != nil {
			return nil, nil, nil, err
		}
		externals = append(externals, ext)
	}
	if err := b.UniquePreferences(prefix, externals); err != nil {
		return nil, nil, nil, err
	}
	return net, prefix, externals, nil
}
