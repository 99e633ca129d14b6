package sim

import (
	"container/heap"
	"math"
	"math/rand"

	"github.com/netshift-network/netshift/pkg/model"
)

// ModelParams configure the Pareto-distributed per-router processing
// delay of the timing queues.
type ModelParams struct {
	// Scale is the minimum processing delay (the Pareto x_m).
	Scale float64 `json:"scale"`
	// Shape is the Pareto alpha; larger values concentrate the samples
	// near Scale.
	Shape float64 `json:"shape"`
	// Offset is added to every sample.
	Offset float64 `json:"offset"`
}

// DefaultModelParams are sensible processing-delay parameters.
func DefaultModelParams() ModelParams {
	return ModelParams{Scale: 0.001, Shape: 2.0, Offset: 0.01}
}

func (p ModelParams) sample(rng *rand.Rand) float64 {
	// inverse transform sampling of a Pareto distribution
	u := rng.Float64()
	for u == 0 {
		u = rng.Float64()
	}
	return p.Offset + p.Scale*math.Pow(u, -1.0/p.Shape)
}

// timedHeap orders events by delivery time, insertion sequence as the
// stable tie-breaker.
type timedHeap []*Event

func (h timedHeap) Len() int { return len(h) }
func (h timedHeap) Less(i, j int) bool {
	if h[i].Time != h[j].Time {
		return h[i].Time < h[j].Time
	}
	return h[i].Seq < h[j].Seq
}
func (h timedHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timedHeap) Push(x interface{}) { *h = append(*h, x.(*Event)) }
func (h *timedHeap) Pop() interface{} {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

type sessionKey struct {
	from, to model.RouterID
}

// speedKmPerSec approximates signal propagation in fiber.
const speedKmPerSec = 200000.0

// earthRadiusKm is the mean earth radius.
const earthRadiusKm = 6371.0

// TimingQueue assigns each event a sampled delivery time: the current
// time plus a Pareto-distributed processing delay and, when built with
// NewGeoTimingQueue, a propagation delay derived from the great-circle
// distance between sender and receiver. Messages between the same pair
// of routers stay ordered, mirroring BGP over TCP.
type TimingQueue struct {
	params ModelParams
	rng    *rand.Rand
	seed   int64
	geo    bool

	heap     timedHeap
	now      float64
	lastSent map[sessionKey]float64
	seq      uint64
}

// NewTimingQueue creates a timing queue with a deterministic seed.
func NewTimingQueue(params ModelParams, seed int64) *TimingQueue {
	return &TimingQueue{
		params:   params,
		rng:      rand.New(rand.NewSource(seed)),
		seed:     seed,
		lastSent: make(map[sessionKey]float64),
	}
}

// NewGeoTimingQueue creates a timing queue that adds geographic
// propagation delay from the router positions in QueueInfo.
func NewGeoTimingQueue(params ModelParams, seed int64) *TimingQueue {
	q := NewTimingQueue(params, seed)
	q.geo = true
	return q
}

// Push implements EventQueue.
func (q *TimingQueue) Push(ev *Event, info *QueueInfo) {
	ev.Seq = q.seq
	q.seq++
	t := q.now + q.params.sample(q.rng) + q.propagation(ev, info)
	key := sessionKey{ev.From, ev.To}
	if last, ok := q.lastSent[key]; ok && t < last {
		t = last
	}
	q.lastSent[key] = t
	ev.Time = t
	heap.Push(&q.heap, ev)
}

func (q *TimingQueue) propagation(ev *Event, info *QueueInfo) float64 {
	if !q.geo || info == nil || info.Positions == nil {
		return 0
	}
	from, okFrom := info.Positions[ev.From]
	to, okTo := info.Positions[ev.To]
	if !okFrom || !okTo {
		return 0
	}
	return haversineKm(from, to) / speedKmPerSec
}

func haversineKm(a, b Coord) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Pop implements EventQueue.
func (q *TimingQueue) Pop() *Event {
	if q.heap.Len() == 0 {
		return nil
	}
	ev := heap.Pop(&q.heap).(*Event)
	q.now = ev.Time
	return ev
}

// Peek implements EventQueue.
func (q *TimingQueue) Peek() *Event {
	if q.heap.Len() == 0 {
		return nil
	}
	return q.heap[0]
}

// Len implements EventQueue.
func (q *TimingQueue) Len() int { return q.heap.Len() }

// IsEmpty implements EventQueue.
func (q *TimingQueue) IsEmpty() bool { return q.heap.Len() == 0 }

// Clear implements EventQueue.
func (q *TimingQueue) Clear() {
	q.heap = nil
	q.lastSent = make(map[sessionKey]float64)
}

// UpdateParams implements EventQueue.
func (q *TimingQueue) UpdateParams(_ *QueueInfo) {}

// Time implements EventQueue.
func (q *TimingQueue) Time() float64 { return q.now }

// CloneEvents implements EventQueue.
func (q *TimingQueue) CloneEvents() EventQueue {
	c := NewTimingQueue(q.params, q.seed)
	c.geo = q.geo
	c.now = q.now
	c.seq = q.seq
	for k, v := range q.lastSent {
		c.lastSent[k] = v
	}
	c.heap = make(timedHeap, 0, q.heap.Len())
	for _, ev := range q.heap {
		copied := *ev
		c.heap = append(c.heap, &copied)
	}
	heap.Init(&c.heap)
	return c
}
