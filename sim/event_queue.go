package sim

import "container/heap"

// EventQueue is a min-heap of events with deterministic ordering.
// Ordering: time → insertion sequence.
type EventQueue struct {
	events  []Event
	nextSeq uint64
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{events: make([]Event, 0, 64)}
	heap.Init(q)
	return q
}

// Len implements heap.Interface
func (q *EventQueue) Len() int {
	return len(q.events)
}

// Less implements heap.Interface with deterministic ordering
func (q *EventQueue) Less(i, j int) bool {
	ei, ej := q.events[i], q.events[j]
	if ei.Time != ej.Time {
		return ei.Time < ej.Time
	}
	return ei.seq < ej.seq
}

// Swap implements heap.Interface
func (q *EventQueue) Swap(i, j int) {
	q.events[i], q.events[j] = q.events[j], q.events[i]
}

// Push implements heap.Interface
func (q *EventQueue) Push(x any) {
	q.events = append(q.events, x.(Event))
}

// Pop implements heap.Interface
func (q *EventQueue) Pop() any {
	old := q.events
	n := len(old)
	item := old[n-1]
	q.events = old[0 : n-1]
	return item
}

// Schedule adds an event, stamping its insertion sequence.
func (q *EventQueue) Schedule(e Event) {
	e.seq = q.nextSeq
	q.nextSeq++
	heap.Push(q, e)
}

// PopNext removes and returns the earliest event.
func (q *EventQueue) PopNext() (Event, bool) {
	if q.Len() == 0 {
		return Event{}, false
	}
	return heap.Pop(q).(Event), true
}

// Peek returns the earliest event without removing it.
func (q *EventQueue) Peek() (Event, bool) {
	if q.Len() == 0 {
		return Event{}, false
	}
	return q.events[0], true
}

// Compact drops every event for which live returns false and restores the heap.
// Insertion sequences are kept, so ordering is unchanged.
func (q *EventQueue) Compact(live func(Event) bool) int {
	kept := q.events[:0]
	for _, e := range q.events {
		if live(e) {
			kept = append(kept, e)
		}
	}
	dropped := len(q.events) - len(kept)
	for i := len(kept); i < len(q.events); i++ {
		q.events[i] = Event{}
	}
	q.events = kept
	heap.Init(q)
	return dropped
}

// Clear removes every event.
func (q *EventQueue) Clear() {
	q.events = q.events[:0]
}
