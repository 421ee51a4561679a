// Package heaptimer is the reference Timeout backend: a binary min-heap keyed by
// deadline. Schedule and Cancel are O(log n), Poll pops due entries in
// deadline order. Handles are never reused.
package heaptimer

import (
	"time"

	"github.com/fixkme/bitwheel/timeout"
)

type Heap struct {
	unit      time.Duration
	startTime int64
	deadlines []int64
	handles   []timeout.Handle
	pos       map[timeout.Handle]int // handle -> 堆下标
	nextID    timeout.Handle
}

var (
	_ timeout.Timeout = (*Heap)(nil)
	_ timeout.Limited = (*Heap)(nil)
	_ timeout.Counter = (*Heap)(nil)
)

func New(unit time.Duration, startTime int64, initialCapacity int) *Heap {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &Heap{
		unit:      unit,
		startTime: startTime,
		deadlines: make([]int64, 0, initialCapacity),
		handles:   make([]timeout.Handle, 0, initialCapacity),
		pos:       make(map[timeout.Handle]int, initialCapacity),
		nextID:    1,
	}
}

func (q *Heap) Schedule(deadline int64) timeout.Handle {
	if deadline < q.startTime {
		return timeout.Expired
	}
	h := q.nextID
	q.nextID++
	i := len(q.deadlines)
	q.deadlines = append(q.deadlines, deadline)
	q.handles = append(q.handles, h)
	q.pos[h] = i
	q.up(i)
	return h
}

func (q *Heap) Cancel(h timeout.Handle) bool {
	i, ok := q.pos[h]
	if !ok {
		return false
	}
	q.remove(i)
	return true
}

// Poll fires every entry with deadline <= now. Entries scheduled by the
// handler that are already due fire in the same call.
func (q *Heap) Poll(now int64, handler timeout.Handler) int {
	return q.PollLimit(now, 0, handler)
}

func (q *Heap) PollLimit(now int64, limit int, handler timeout.Handler) int {
	count := 0
	for len(q.deadlines) > 0 && q.deadlines[0] <= now {
		if limit > 0 && count >= limit {
			break
		}
		h := q.handles[0]
		q.remove(0)
		count++
		handler(q.unit, now, h)
	}
	return count
}

func (q *Heap) Count() int {
	return len(q.deadlines)
}

// Peek returns the earliest pending entry.
func (q *Heap) Peek() (deadline int64, h timeout.Handle, ok bool) {
	if len(q.deadlines) == 0 {
		return 0, 0, false
	}
	return q.deadlines[0], q.handles[0], true
}

func (q *Heap) Unit() time.Duration {
	return q.unit
}

func (q *Heap) StartTime() int64 {
	return q.startTime
}

func (q *Heap) remove(i int) {
	last := len(q.deadlines) - 1
	h := q.handles[i]
	if i != last {
		q.swap(i, last)
	}
	q.deadlines = q.deadlines[:last]
	q.handles = q.handles[:last]
	delete(q.pos, h)
	if i != last {
		if !q.down(i) {
			q.up(i)
		}
	}
}

func (q *Heap) less(i, j int) bool {
	return q.deadlines[i] < q.deadlines[j]
}

func (q *Heap) swap(i, j int) {
	q.deadlines[i], q.deadlines[j] = q.deadlines[j], q.deadlines[i]
	q.handles[i], q.handles[j] = q.handles[j], q.handles[i]
	q.pos[q.handles[i]] = i
	q.pos[q.handles[j]] = j
}

func (q *Heap) up(j int) {
	for j > 0 {
		i := (j - 1) / 2
		if !q.less(j, i) {
			break
		}
		q.swap(i, j)
		j = i
	}
}

// down reports whether the element at i moved.
func (q *Heap) down(i0 int) bool {
	n := len(q.deadlines)
	i := i0
	for {
		l := 2*i + 1
		if l >= n {
			break
		}
		j := l
		if r := l + 1; r < n && q.less(r, l) {
			j = r
		}
		if !q.less(j, i) {
			break
		}
		q.swap(i, j)
		i = j
	}
	return i > i0
}
