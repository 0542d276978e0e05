package simulator

import "container/heap"

// EventQueue is a priority queue for simulation events, ordered by timestamp.
// Events with equal timestamps pop in push order.
type EventQueue struct {
	events eventHeap
	seq    uint64
}

// NewEventQueue creates a new event queue
func NewEventQueue() *EventQueue {
	eq := &EventQueue{}
	heap.Init(&eq.events)
	return eq
}

// Push adds an event to the queue
func (eq *EventQueue) Push(event Event) {
	eq.seq++
	heap.Push(&eq.events, queued{event: event, seq: eq.seq})
}

// Pop removes and returns the next event
func (eq *EventQueue) Pop() Event {
	if eq.IsEmpty() {
		return nil
	}
	return heap.Pop(&eq.events).(queued).event
}

// Peek returns the next event without removing it
func (eq *EventQueue) Peek() Event {
	if eq.IsEmpty() {
		return nil
	}
	return eq.events[0].event
}

// IsEmpty returns true if the queue is empty
func (eq *EventQueue) IsEmpty() bool {
	return eq.events.Len() == 0
}

// Len returns the number of events in the queue
func (eq *EventQueue) Len() int {
	return eq.events.Len()
}

// Clear removes all events from the queue
func (eq *EventQueue) Clear() {
	eq.events = eq.events[:0]
	eq.seq = 0
}

// Count returns the number of queued events of the given type
func (eq *EventQueue) Count(t EventType) int {
	count := 0
	for _, q := range eq.events {
		if q.event.Type() == t {
			count++
		}
	}
	return count
}

type queued struct {
	event Event
	seq   uint64
}

// eventHeap implements heap.Interface for queued events
type eventHeap []queued

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	ti, tj := h[i].event.Timestamp(), h[j].event.Timestamp()
	if ti != tj {
		return ti < tj
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(queued))
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
