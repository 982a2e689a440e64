// Package input produces the movement deltas the controller relays
package input

import (
	"errors"
	"math"
	"sync"

	"github.com/eapache/queue"
)

// ErrExhausted is returned by a Source that has nothing more to produce
var ErrExhausted = errors.New("input source exhausted")

// Source is polled once per controller tick. A (0, 0) delta means no movement.
type Source interface {
	Poll() (dx, dy int32, err error)
}

type delta struct {
	dx, dy int32
}

// Script replays queued deltas in order and is exhausted once drained
type Script struct {
	mu sync.Mutex
	q  *queue.Queue
}

func NewScript() *Script {
	return &Script{q: queue.New()}
}

// Push queues one delta
func (s *Script) Push(dx, dy int32) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.q.Add(delta{dx, dy})
	return s
}

// Line queues n identical steps
func (s *Script) Line(dx, dy int32, n int) *Script {
	for i := 0; i < n; i++ {
		s.Push(dx, dy)
	}
	return s
}

// Circle queues the steps tracing a full circle of the given radius, one
// step per stepDegrees. Each step moves to the next rounded point on the
// circle so the path closes with no drift.
func (s *Script) Circle(radius float64, stepDegrees int) *Script {
	if stepDegrees <= 0 {
		return s
	}

	px, py := int32(math.Round(radius)), int32(0)
	for angle := stepDegrees; angle <= 360; angle += stepDegrees {
		rad := float64(angle) * math.Pi / 180
		x := int32(math.Round(radius * math.Cos(rad)))
		y := int32(math.Round(radius * math.Sin(rad)))
		s.Push(x-px, y-py)
		px, py = x, y
	}
	return s
}

// Len is the number of queued deltas
func (s *Script) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Length()
}

func (s *Script) Poll() (int32, int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.q.Length() == 0 {
		return 0, 0, ErrExhausted
	}
	d := s.q.Remove().(delta)
	return d.dx, d.dy, nil
}

// Demo is the stock movement sequence: one 100 pixel move right, a circle
// of radius 5 in 10 degree steps, then a smooth diagonal of 50 small steps.
func Demo() *Script {
	return NewScript().
		Push(100, 0).
		Circle(5, 10).
		Line(2, 2, 50)
}

// Tracker turns an absolute position into deltas against the last position
// it observed. The first poll only records the starting point.
type Tracker struct {
	position func() (x, y int32, err error)

	mu          sync.Mutex
	last        [2]int32
	initialized bool
}

func NewTracker(position func() (x, y int32, err error)) *Tracker {
	return &Tracker{position: position}
}

func (t *Tracker) Poll() (int32, int32, error) {
	x, y, err := t.position()
	if err != nil {
		return 0, 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.initialized {
		t.last = [2]int32{x, y}
		t.initialized = true
		return 0, 0, nil
	}

	dx, dy := x-t.last[0], y-t.last[1]
	t.last = [2]int32{x, y}
	return dx, dy, nil
}
