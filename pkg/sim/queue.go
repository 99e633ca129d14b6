package sim

import (
	"github.com/netshift-network/netshift/pkg/igp"
	"github.com/netshift-network/netshift/pkg/model"
)

// Coord is a geographic position used by the geo timing queue.
type Coord struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// QueueInfo is the network state a queue may consult when assigning
// priorities: the IGP engine and the router positions.
type QueueInfo struct {
	Igp       *igp.Engine
	Positions map[model.RouterID]Coord
}

// EventQueue schedules BGP messages for delivery. Implementations differ
// in the priority they assign; the engine only relies on Pop order.
// Two events with identical priority are delivered in insertion order.
type EventQueue interface {
	// Push enqueues an event, assigning its priority.
	Push(ev *Event, info *QueueInfo)
	// Pop removes and returns the next event, or nil when empty.
	Pop() *Event
	// Peek returns the next event without removing it, or nil.
	Peek() *Event
	// Len returns the number of enqueued events.
	Len() int
	// IsEmpty returns true when no event is enqueued.
	IsEmpty() bool
	// Clear discards all events.
	Clear()
	// UpdateParams is called after every externally triggered change so
	// the queue can refresh its model parameters.
	UpdateParams(info *QueueInfo)
	// Time returns the current simulated time, or 0 for queues without
	// a time model.
	Time() float64
	// CloneEvents returns a deep copy of the queue including its
	// enqueued events.
	CloneEvents() EventQueue
}

// BasicQueue is a FIFO queue with trivial priority: messages are
// delivered in the exact order they were enqueued.
type BasicQueue struct {
	events []*Event
	seq    uint64
}

// NewBasicQueue creates an empty FIFO queue.
func NewBasicQueue() *BasicQueue {
	return &BasicQueue{}
}

// Push implements EventQueue.
func (q *BasicQueue) Push(ev *Event, _ *QueueInfo) {
	ev.Seq = q.seq
	q.seq++
	q.events = append(q.events, ev)
}

// Pop implements EventQueue.
func (q *BasicQueue) Pop() *Event {
	if len(q.events) == 0 {
		return nil
	}
	ev := q.events[0]
	q.events = q.events[1:]
	return ev
}

// Peek implements EventQueue.
func (q *BasicQueue) Peek() *Event {
	if len(q.events) == 0 {
		return nil
	}
	return q.events[0]
}

// Len implements EventQueue.
func (q *BasicQueue) Len() int { return len(q.events) }

// IsEmpty implements EventQueue.
func (q *BasicQueue) IsEmpty() bool { return len(q.events) == 0 }

// Clear implements EventQueue.
func (q *BasicQueue) Clear() { q.events = nil }

// UpdateParams implements EventQueue.
func (q *BasicQueue) UpdateParams(_ *QueueInfo) {}

// Time implements EventQueue.
func (q *BasicQueue) Time() float64 { return 0 }

// CloneEvents implements EventQueue.
func (q *BasicQueue) CloneEvents() EventQueue {
	c := &BasicQueue{seq: q.seq}
	for _, ev := range q.events {
		copied := *ev
		c.events = append(c.events, &copied)
	}
	return c
}
