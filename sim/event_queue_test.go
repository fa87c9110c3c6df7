package sim

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventQueue_OrdersByTimeThenInsertion(t *testing.T) {
	q := NewEventQueue()
	q.Schedule(Event{Time: 3, Particle: 1})
	q.Schedule(Event{Time: 1, Particle: 2})
	q.Schedule(Event{Time: 2, Particle: 3})
	q.Schedule(Event{Time: 1, Particle: 4})

	var got []int64
	for {
		e, ok := q.PopNext()
		if !ok {
			break
		}
		got = append(got, e.Particle)
	}
	assert.Equal(t, []int64{2, 4, 3, 1}, got)
}

func TestEventQueue_PeekDoesNotRemove(t *testing.T) {
	q := NewEventQueue()
	_, ok := q.Peek()
	assert.False(t, ok)

	q.Schedule(Event{Time: 5, Particle: 1})
	e, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, int64(1), e.Particle)
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_RandomTimesPopSorted(t *testing.T) {
	q := NewEventQueue()
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 500; i++ {
		q.Schedule(Event{Time: rng.Float64(), Particle: int64(i)})
	}
	prev := -1.0
	for q.Len() > 0 {
		e, _ := q.PopNext()
		assert.GreaterOrEqual(t, e.Time, prev)
		prev = e.Time
	}
}

func TestEventQueue_CompactKeepsOrder(t *testing.T) {
	// GIVEN a queue where odd particles are stale
	q := NewEventQueue()
	for i := 0; i < 10; i++ {
		q.Schedule(Event{Time: float64(10 - i), Particle: int64(i)})
	}

	// WHEN compacted
	dropped := q.Compact(func(e Event) bool { return e.Particle%2 == 0 })

	// THEN only live events remain, still time-ordered
	assert.Equal(t, 5, dropped)
	var got []int64
	for q.Len() > 0 {
		e, _ := q.PopNext()
		got = append(got, e.Particle)
	}
	assert.Equal(t, []int64{8, 6, 4, 2, 0}, got)
}

func TestEventQueue_Clear(t *testing.T) {
	q := NewEventQueue()
	q.Schedule(Event{Time: 1})
	q.Clear()
	assert.Equal(t, 0, q.Len())
}
