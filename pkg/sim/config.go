package sim

import (
	"encoding/json"
	"fmt"

	"github.com/netshift-network/netshift/pkg/igp"
	"github.com/netshift-network/netshift/pkg/model"
	"github.com/netshift-network/netshift/pkg/policy"
	"github.com/netshift-network/netshift/pkg/util"
)

// ExprKind discriminates configuration expressions.
type ExprKind string

const (
	ExprBgpSession  ExprKind = "bgp_session"
	ExprBgpRouteMap ExprKind = "bgp_route_map"
	ExprStaticRoute ExprKind = "static_route"
	ExprLinkWeight  ExprKind = "link_weight"
	ExprOspfArea    ExprKind = "ospf_area"
	ExprLoadBalancing ExprKind = "load_balancing"
	ExprRouterName    ExprKind = "router_name"
	ExprAdvertisement ExprKind = "external_advertisement"
	// ExprRouteMapEntry manipulates a single entry of a route-map,
	// leaving the rest of the map untouched. Used by the planner's
	// atomic commands.
	ExprRouteMapEntry ExprKind = "bgp_route_map_entry"
)

// ConfigExpr is a single piece of configuration. Which fields are
// meaningful depends on Kind.
type ConfigExpr struct {
	Kind ExprKind `json:"kind"`

	// bgp_session, link_weight, ospf_area
	Src model.RouterID `json:"src,omitempty"`
	Dst model.RouterID `json:"dst,omitempty"`

	SessionType model.BgpSessionType `json:"session_type,omitempty"`
	Weight      float64              `json:"weight,omitempty"`
	Area        igp.AreaID           `json:"area,omitempty"`

	// bgp_route_map, static_route, load_balancing, router_name,
	// external_advertisement
	Router    model.RouterID           `json:"router,omitempty"`
	Neighbor  model.RouterID           `json:"neighbor,omitempty"`
	Direction policy.Direction         `json:"direction,omitempty"`
	Map       *policy.RouteMap         `json:"map,omitempty"`
	Prefix    model.Prefix             `json:"-"`
	Target    *model.StaticRouteTarget `json:"target,omitempty"`
	Enabled   bool                     `json:"enabled,omitempty"`
	Name      string                   `json:"name,omitempty"`
	Route     *model.BgpRoute          `json:"route,omitempty"`
	Entry     *policy.Entry            `json:"entry,omitempty"`
}

func (e *ConfigExpr) String() string {
	switch e.Kind {
	case ExprBgpSession:
		return fmt.Sprintf("bgp session %s <-> %s (%s)", e.Src, e.Dst, e.SessionType)
	case ExprBgpRouteMap:
		return fmt.Sprintf("route-map on %s for %s (%s)", e.Router, e.Neighbor, e.Direction)
	case ExprStaticRoute:
		return fmt.Sprintf("static route on %s for %s", e.Router, e.Prefix)
	case ExprLinkWeight:
		return fmt.Sprintf("link weight %s -> %s = %g", e.Src, e.Dst, e.Weight)
	case ExprOspfArea:
		return fmt.Sprintf("ospf area %s <-> %s = %d", e.Src, e.Dst, e.Area)
	case ExprLoadBalancing:
		return fmt.Sprintf("load balancing on %s = %t", e.Router, e.Enabled)
	case ExprRouterName:
		return fmt.Sprintf("router name %s = %s", e.Router, e.Name)
	case ExprAdvertisement:
		return fmt.Sprintf("advertisement on %s: %s", e.Router, e.Route)
	case ExprRouteMapEntry:
		return fmt.Sprintf("route-map entry %d on %s for %s (%s)", e.Entry.Order, e.Router, e.Neighbor, e.Direction)
	}
	return string(e.Kind)
}

type configExprJSON struct {
	Kind        ExprKind                 `json:"kind"`
	Src         model.RouterID           `json:"src,omitempty"`
	Dst         model.RouterID           `json:"dst,omitempty"`
	SessionType model.BgpSessionType     `json:"session_type,omitempty"`
	Weight      float64                  `json:"weight,omitempty"`
	Area        igp.AreaID               `json:"area,omitempty"`
	Router      model.RouterID           `json:"router,omitempty"`
	Neighbor    model.RouterID           `json:"neighbor,omitempty"`
	Direction   policy.Direction         `json:"direction,omitempty"`
	Map         *policy.RouteMap         `json:"map,omitempty"`
	Prefix      string                   `json:"prefix,omitempty"`
	Target      *model.StaticRouteTarget `json:"target,omitempty"`
	Enabled     bool                     `json:"enabled,omitempty"`
	Name        string                   `json:"name,omitempty"`
	Route       *model.BgpRoute          `json:"route,omitempty"`
	Entry       *policy.Entry            `json:"entry,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e *ConfigExpr) MarshalJSON() ([]byte, error) {
	w := configExprJSON{
		Kind:        e.Kind,
		Src:         e.Src,
		Dst:         e.Dst,
		SessionType: e.SessionType,
		Weight:      e.Weight,
		Area:        e.Area,
		Router:      e.Router,
		Neighbor:    e.Neighbor,
		Direction:   e.Direction,
		Map:         e.Map,
		Target:      e.Target,
		Enabled:     e.Enabled,
		Name:        e.Name,
		Route:       e.Route,
		Entry:       e.Entry,
	}
	if e.Prefix != nil {
		w.Prefix = e.Prefix.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *ConfigExpr) UnmarshalJSON(data []byte) error {
	var w configExprJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = ConfigExpr{
		Kind:        w.Kind,
		Src:         w.Src,
		Dst:         w.Dst,
		SessionType: w.SessionType,
		Weight:      w.Weight,
		Area:        w.Area,
		Router:      w.Router,
		Neighbor:    w.Neighbor,
		Direction:   w.Direction,
		Map:         w.Map,
		Target:      w.Target,
		Enabled:     w.Enabled,
		Name:        w.Name,
		Route:       w.Route,
		Entry:       w.Entry,
	}
	if w.Prefix != "" {
		prefix, err := model.ParsePrefix(w.Prefix)
		if err != nil {
			return err
		}
		e.Prefix = prefix
	}
	return nil
}

// ModifierOp discriminates modifiers.
type ModifierOp string

const (
	OpInsert ModifierOp = "insert"
	OpRemove ModifierOp = "remove"
	OpUpdate ModifierOp = "update"
	OpBatch  ModifierOp = "batch"
)

// Modifier is an atomic configuration change: insert, remove or update a
// single expression, or a batch of modifiers applied as one unit with
// respect to the event queue.
type Modifier struct {
	Op    ModifierOp  `json:"op"`
	Expr  *ConfigExpr `json:"expr,omitempty"`
	From  *ConfigExpr `json:"from,omitempty"`
	To    *ConfigExpr `json:"to,omitempty"`
	Batch []*Modifier `json:"batch,omitempty"`
}

// Insert builds an insert modifier.
func Insert(expr *ConfigExpr) *Modifier {
	return &Modifier{Op: OpInsert, Expr: expr}
}

// Remove builds a remove modifier.
func Remove(expr *ConfigExpr) *Modifier {
	return &Modifier{Op: OpRemove, Expr: expr}
}

// UpdateConfig builds an update modifier.
func UpdateConfig(from, to *ConfigExpr) *Modifier {
	return &Modifier{Op: OpUpdate, From: from, To: to}
}

// Batch builds a batch modifier.
func Batch(mods ...*Modifier) *Modifier {
	return &Modifier{Op: OpBatch, Batch: mods}
}

func (m *Modifier) String() string {
	switch m.Op {
	case OpBatch:
		return fmt.Sprintf("batch of %d modifiers", len(m.Batch))
	case OpUpdate:
		return fmt.Sprintf("update [%s] -> [%s]", m.From, m.To)
	default:
		return fmt.Sprintf("%s [%s]", m.Op, m.Expr)
	}
}

// ApplyModifier applies a configuration modifier. The modifier's
// synthetic messages enter the queue before any queue processing; with
// automatic simulation the network then converges before returning.
func (n *Network) ApplyModifier(m *Modifier) error {
	n.mu.RLock()
	wasManual := n.manual
	n.mu.RUnlock()

	n.ManualSimulation(true)
	err := n.applyModifier(m)
	n.ManualSimulation(wasManual)
	if err != nil {
		return err
	}
	return n.maybeSimulate()
}

func (n *Network) applyModifier(m *Modifier) error {
	switch m.Op {
	case OpBatch:
		for _, sub := range m.Batch {
			if err := n.applyModifier(sub); err != nil {
				return err
			}
		}
		return nil
	case OpInsert:
		return n.applyExpr(m.Expr, false)
	case OpRemove:
		return n.applyExpr(m.Expr, true)
	case OpUpdate:
		return n.applyExpr(m.To, false)
	default:
		return fmt.Errorf("unknown modifier op '%s'", m.Op)
	}
}

func (n *Network) applyExpr(e *ConfigExpr, remove bool) error {
	switch e.Kind {
	case ExprBgpSession:
		if remove {
			return n.RemoveBgpSession(e.Src, e.Dst)
		}
		return n.SetBgpSession(e.Src, e.Dst, e.SessionType)
	case ExprBgpRouteMap:
		if remove {
			return n.SetRouteMap(e.Router, e.Neighbor, e.Direction, policy.NewRouteMap())
		}
		return n.SetRouteMap(e.Router, e.Neighbor, e.Direction, e.Map)
	case ExprRouteMapEntry:
		return n.modifyRouteMapEntry(e, remove)
	case ExprStaticRoute:
		if remove {
			return n.SetStaticRoute(e.Router, e.Prefix, nil)
		}
		return n.SetStaticRoute(e.Router, e.Prefix, e.Target)
	case ExprLinkWeight:
		if remove {
			return n.RemoveLink(e.Src, e.Dst)
		}
		return n.SetLinkWeight(e.Src, e.Dst, e.Weight)
	case ExprOspfArea:
		if remove {
			return n.SetOspfArea(e.Src, e.Dst, igp.Backbone)
		}
		return n.SetOspfArea(e.Src, e.Dst, e.Area)
	case ExprLoadBalancing:
		if remove {
			return n.SetLoadBalancing(e.Router, false)
		}
		return n.SetLoadBalancing(e.Router, e.Enabled)
	case ExprRouterName:
		return n.SetRouterName(e.Router, e.Name)
	case ExprAdvertisement:
		if remove {
			return n.WithdrawExternalRoute(e.Router, e.Route.Prefix)
		}
		var med *uint32
		if e.Route.MED != nil {
			m := *e.Route.MED
			med = &m
		}
		return n.AdvertiseExternalRoute(e.Router, e.Route.Prefix, e.Route.ASPath, med, e.Route.Communities.Sorted())
	default:
		return fmt.Errorf("unknown config expression kind '%s'", e.Kind)
	}
}

// modifyRouteMapEntry adds or removes one entry of a route-map.
func (n *Network) modifyRouteMapEntry(e *ConfigExpr, remove bool) error {
	n.mu.RLock()
	r, ok := n.routers[e.Router]
	var current *policy.RouteMap
	if ok {
		current = r.RouteMap(e.Neighbor, e.Direction)
	}
	n.mu.RUnlock()
	if !ok {
		return &util.DeviceNotFoundError{Router: e.Router.String()}
	}
	next := current.Clone()
	if next == nil {
		next = policy.NewRouteMap()
	}
	if remove {
		next.RemoveEntry(e.Entry.Order)
	} else {
		next.AddEntry(*e.Entry)
	}
	return n.SetRouteMap(e.Router, e.Neighbor, e.Direction, next)
}
