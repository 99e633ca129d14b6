package sim

import (
	"testing"

	"github.com/netshift-network/netshift/pkg/model"
)

func testEvent(from, to model.RouterID) *Event {
	return &Event{From: from, To: to, Payload: Withdraw(model.SimplePrefix(0))}
}

// ============================================================================
// BasicQueue Tests
// ============================================================================

func TestBasicQueueFIFO(t *testing.T) {
	q := NewBasicQueue()
	for i := 0; i < 5; i++ {
		q.Push(testEvent(model.RouterID(i), 9), nil)
	}
	if q.Len() != 5 {
		t.Fatalf("Len = %d, want 5", q.Len())
	}
	for i := 0; i < 5; i++ {
		ev := q.Pop()
		if ev == nil || ev.From != model.RouterID(i) {
			t.Fatalf("pop %d = %v, want from r%d", i, ev, i)
		}
		if ev.Seq != uint64(i) {
			t.Errorf("pop %d: seq = %d, want %d", i, ev.Seq, i)
		}
	}
	if !q.IsEmpty() || q.Pop() != nil {
		t.Error("drained queue should be empty")
	}
}

func TestBasicQueuePeekAndClear(t *testing.T) {
	q := NewBasicQueue()
	q.Push(testEvent(1, 2), nil)
	q.Push(testEvent(3, 4), nil)

	if ev := q.Peek(); ev == nil || ev.From != 1 {
		t.Errorf("Peek = %v, want from r1", ev)
	}
	if q.Len() != 2 {
		t.Error("Peek must not consume")
	}
	q.Clear()
	if !q.IsEmpty() {
		t.Error("Clear should empty the queue")
	}
}

func TestBasicQueueCloneEvents(t *testing.T) {
	q := NewBasicQueue()
	q.Push(testEvent(1, 2), nil)
	c := q.CloneEvents().(*BasicQueue)

	q.Pop()
	if c.Len() != 1 {
		t.Error("popping the original should not affect the clone")
	}
	if ev := c.Pop(); ev.From != 1 {
		t.Errorf("clone pop from %s, want r1", ev.From)
	}
}

// ============================================================================
// TimingQueue Tests
// ============================================================================

func TestTimingQueueOrdersByTime(t *testing.T) {
	q := NewTimingQueue(DefaultModelParams(), 1)
	for i := 0; i < 20; i++ {
		q.Push(testEvent(model.RouterID(i), 99), nil)
	}
	last := -1.0
	for !q.IsEmpty() {
		ev := q.Pop()
		if ev.Time < last {
			t.Fatalf("events out of time order: %g after %g", ev.Time, last)
		}
		last = ev.Time
	}
	if q.Time() != last {
		t.Errorf("queue time = %g, want %g", q.Time(), last)
	}
}

func TestTimingQueuePerSessionOrder(t *testing.T) {
	q := NewTimingQueue(DefaultModelParams(), 7)
	for i := 0; i < 50; i++ {
		q.Push(testEvent(1, 2), nil)
	}
	lastSeq := uint64(0)
	first := true
	for !q.IsEmpty() {
		ev := q.Pop()
		if !first && ev.Seq < lastSeq {
			t.Fatal("messages between the same routers must stay ordered")
		}
		first = false
		lastSeq = ev.Seq
	}
}

func TestTimingQueueDeterministicSeed(t *testing.T) {
	run := func() []float64 {
		q := NewTimingQueue(DefaultModelParams(), 42)
		for i := 0; i < 10; i++ {
			q.Push(testEvent(model.RouterID(i), 99), nil)
		}
		var times []float64
		for !q.IsEmpty() {
			times = append(times, q.Pop().Time)
		}
		return times
	}
	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("same seed produced different samples at %d: %g vs %g", i, a[i], b[i])
		}
	}
}

func TestGeoTimingQueueAddsPropagation(t *testing.T) {
	info := &QueueInfo{Positions: map[model.RouterID]Coord{
		1: {Latitude: 47.6, Longitude: -122.3}, // Seattle
		2: {Latitude: 40.7, Longitude: -74.0},  // New York
	}}

	plain := NewTimingQueue(ModelParams{Scale: 0, Shape: 2, Offset: 0}, 1)
	geo := NewGeoTimingQueue(ModelParams{Scale: 0, Shape: 2, Offset: 0}, 1)

	plain.Push(testEvent(1, 2), info)
	geo.Push(testEvent(1, 2), info)

	p, g := plain.Pop(), geo.Pop()
	if g.Time <= p.Time {
		t.Errorf("geo delivery %g should exceed plain delivery %g", g.Time, p.Time)
	}
	// cross-country propagation at 200000 km/s is at least 10ms
	if g.Time-p.Time < 0.01 {
		t.Errorf("propagation delay %g too small", g.Time-p.Time)
	}
}

func TestTimingQueueCloneEvents(t *testing.T) {
	q := NewTimingQueue(DefaultModelParams(), 3)
	q.Push(testEvent(1, 2), nil)
	q.Push(testEvent(2, 3), nil)

	c := q.CloneEvents()
	q.Pop()
	if c.Len() != 2 {
		t.Error("clone must keep its own events")
	}
}
