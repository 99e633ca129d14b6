// Package sim implements the discrete-event BGP network simulator: the
// network object, per-router BGP state and decision process, the
// message-passing event loop and the configuration modifier language.
package sim

import (
	"fmt"

	"github.com/netshift-network/netshift/pkg/model"
)

// BgpEventKind distinguishes updates from withdrawals.
type BgpEventKind string

const (
	// EventUpdate announces a route.
	EventUpdate BgpEventKind = "update"
	// EventWithdraw retracts a prefix.
	EventWithdraw BgpEventKind = "withdraw"
)

// BgpEvent is the payload of a BGP message: either a route announcement
// or a prefix withdrawal.
type BgpEvent struct {
	Kind   BgpEventKind    `json:"kind"`
	Route  *model.BgpRoute `json:"route,omitempty"`
	Prefix model.Prefix    `json:"-"`
}

// Update builds an announcement payload.
func Update(route *model.BgpRoute) BgpEvent {
	return BgpEvent{Kind: EventUpdate, Route: route, Prefix: route.Prefix}
}

// Withdraw builds a withdrawal payload.
func Withdraw(prefix model.Prefix) BgpEvent {
	return BgpEvent{Kind: EventWithdraw, Prefix: prefix}
}

// Event is a BGP message in flight from one router to another. Time and
// Seq are assigned by the queue: Time is the sampled delivery time (zero
// under the basic queue) and Seq the insertion index used as a stable
// tie-breaker.
type Event struct {
	From    model.RouterID `json:"from"`
	To      model.RouterID `json:"to"`
	Payload BgpEvent       `json:"payload"`
	Time    float64        `json:"time"`
	Seq     uint64         `json:"seq"`
}

// PrefixOf returns the prefix the event talks about.
func (ev *Event) PrefixOf() model.Prefix {
	if ev.Payload.Kind == EventUpdate {
		return ev.Payload.Route.Prefix
	}
	return ev.Payload.Prefix
}

func (ev *Event) String() string {
	if ev.Payload.Kind == EventUpdate {
		return fmt.Sprintf("bgp update %s -> %s: %s", ev.From, ev.To, ev.Payload.Route)
	}
	return fmt.Sprintf("bgp withdraw %s -> %s: %s", ev.From, ev.To, ev.Payload.Prefix)
}
