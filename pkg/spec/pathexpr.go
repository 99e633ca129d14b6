package spec

import (
	"fmt"
	"strings"

	"github.com/netshift-network/netshift/pkg/model"
)

// PathExpr is a linear-time property over a forwarding path. The
// language supports waypoints, avoidance, sequencing, disjunction and
// negation.
type PathExpr interface {
	Matches(path []model.RouterID) bool
	String() string
}

// Waypoint holds if the path passes through the router.
type Waypoint struct {
	W model.RouterID
}

// Matches implements PathExpr.
func (e Waypoint) Matches(path []model.RouterID) bool {
	for _, r := range path {
		if r == e.W {
			return true
		}
	}
	return false
}

func (e Waypoint) String() string { return fmt.Sprintf("waypoint(%s)", e.W) }

// Avoid holds if the path never touches the router.
type Avoid struct {
	W model.RouterID
}

// Matches implements PathExpr.
func (e Avoid) Matches(path []model.RouterID) bool {
	return !(Waypoint{W: e.W}).Matches(path)
}

func (e Avoid) String() string { return fmt.Sprintf("avoid(%s)", e.W) }

// Seq holds if the path can be split into consecutive segments, each
// satisfying the corresponding sub-expression in order.
type Seq struct {
	Exprs []PathExpr
}

// Matches implements PathExpr.
func (e Seq) Matches(path []model.RouterID) bool {
	return matchSeq(e.Exprs, path)
}

func matchSeq(exprs []PathExpr, path []model.RouterID) bool {
	if len(exprs) == 0 {
		return len(path) == 0
	}
	if len(exprs) == 1 {
		return exprs[0].Matches(path)
	}
	for cut := 0; cut <= len(path); cut++ {
		if exprs[0].Matches(path[:cut]) && matchSeq(exprs[1:], path[cut:]) {
			return true
		}
	}
	return false
}

func (e Seq) String() string {
	parts := make([]string, len(e.Exprs))
	for i, sub := range e.Exprs {
		parts[i] = sub.String()
	}
	return "seq(" + strings.Join(parts, ", ") + ")"
}

// Or holds if any alternative holds.
type Or struct {
	Exprs []PathExpr
}

// Matches implements PathExpr.
func (e Or) Matches(path []model.RouterID) bool {
	for _, sub := range e.Exprs {
		if sub.Matches(path) {
			return true
		}
	}
	return false
}

func (e Or) String() string {
	parts := make([]string, len(e.Exprs))
	for i, sub := range e.Exprs {
		parts[i] = sub.String()
	}
	return "or(" + strings.Join(parts, ", ") + ")"
}

// Not inverts a condition.
type Not struct {
	Expr PathExpr
}

// Matches implements PathExpr.
func (e Not) Matches(path []model.RouterID) bool {
	return !e.Expr.Matches(path)
}

func (e Not) String() string { return "not(" + e.Expr.String() + ")" }
