package heaptimer

import (
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/fixkme/bitwheel/timeout"
)

const startTime int64 = 1_000_000

// checkHeap verifies the heap order and the handle index.
func checkHeap(t *testing.T, q *Heap) {
	t.Helper()
	if len(q.pos) != len(q.deadlines) || len(q.handles) != len(q.deadlines) {
		t.Fatalf("sizes disagree: pos=%d handles=%d deadlines=%d", len(q.pos), len(q.handles), len(q.deadlines))
	}
	for i := range q.deadlines {
		if q.pos[q.handles[i]] != i {
			t.Fatalf("pos[%d] = %d, want %d", q.handles[i], q.pos[q.handles[i]], i)
		}
		if i > 0 && q.deadlines[(i-1)/2] > q.deadlines[i] {
			t.Fatalf("heap order broken at %d", i)
		}
	}
}

func TestScheduleOrder(t *testing.T) {
	q := New(time.Millisecond, startTime, 0)
	deadlines := []int64{50, 10, 40, 10, 30, 20, 60}
	for _, d := range deadlines {
		if h := q.Schedule(startTime + d); !h.Valid() {
			t.Fatalf("schedule %d = %v", d, h)
		}
		checkHeap(t, q)
	}
	if d, _, ok := q.Peek(); !ok || d != startTime+10 {
		t.Fatalf("Peek = %d %v", d, ok)
	}

	var got []int
	n := q.Poll(startTime+45, func(unit time.Duration, now int64, h timeout.Handle) {
		if unit != time.Millisecond || now != startTime+45 {
			t.Fatalf("handler saw unit=%v now=%d", unit, now)
		}
		got = append(got, q.Count())
	})
	if n != 5 || q.Count() != 2 {
		t.Fatalf("expired %d, %d left", n, q.Count())
	}
	// Count excludes the entry being handled
	for i, c := range got {
		if c != 6-i {
			t.Fatalf("Count inside handler %d = %d", i, c)
		}
	}
}

func TestHandlesUnique(t *testing.T) {
	q := New(time.Millisecond, startTime, 4)
	seen := make(map[timeout.Handle]bool)
	for i := 0; i < 100; i++ {
		h := q.Schedule(startTime + int64(i%7))
		if h < 1 || seen[h] {
			t.Fatalf("handle %d reused or invalid", h)
		}
		seen[h] = true
		if i%3 == 0 {
			q.Cancel(h)
		}
	}
}

func TestExpiredAndCancel(t *testing.T) {
	q := New(time.Millisecond, startTime, 8)
	if h := q.Schedule(startTime - 1); h != timeout.Expired {
		t.Fatalf("deadline before start = %v", h)
	}
	if h := q.Schedule(startTime); !h.Valid() {
		t.Fatalf("deadline at start = %v", h)
	}

	a := q.Schedule(startTime + 5)
	b := q.Schedule(startTime + 6)
	if !q.Cancel(a) || q.Cancel(a) {
		t.Fatal("cancel should succeed once")
	}
	if q.Cancel(timeout.Handle(999)) || q.Cancel(timeout.OutOfRange) {
		t.Fatal("unknown handles cannot be cancelled")
	}
	checkHeap(t, q)

	var fired []timeout.Handle
	q.Poll(startTime+10, func(unit time.Duration, now int64, h timeout.Handle) {
		fired = append(fired, h)
	})
	if len(fired) != 2 || fired[1] != b {
		t.Fatalf("fired %v", fired)
	}
	if q.Cancel(b) {
		t.Fatal("fired handle cannot be cancelled")
	}
}

func TestReentrantDue(t *testing.T) {
	q := New(time.Millisecond, startTime, 1)
	q.Schedule(startTime + 5)

	var later timeout.Handle
	n := q.Poll(startTime+10, func(unit time.Duration, now int64, h timeout.Handle) {
		if later == 0 {
			q.Schedule(now)
			later = q.Schedule(now + 1)
		}
	})
	if n != 2 || q.Count() != 1 {
		t.Fatalf("expired %d, %d left", n, q.Count())
	}
	if _, h, _ := q.Peek(); h != later {
		t.Fatalf("Peek = %d, want %d", h, later)
	}
}

func TestPollLimit(t *testing.T) {
	q := New(time.Millisecond, startTime, 1)
	for i := 0; i < 7; i++ {
		q.Schedule(startTime + int64(i))
	}
	nop := func(time.Duration, int64, timeout.Handle) {}
	if n := q.PollLimit(startTime+100, 3, nop); n != 3 {
		t.Fatalf("first batch = %d", n)
	}
	if n := q.PollLimit(startTime+100, 3, nop); n != 3 {
		t.Fatalf("second batch = %d", n)
	}
	if n := q.Poll(startTime+100, nop); n != 1 {
		t.Fatalf("rest = %d", n)
	}
}

func TestAgainstSort(t *testing.T) {
	q := New(time.Millisecond, startTime, 16)
	r := rand.New(rand.NewSource(3))
	live := make(map[timeout.Handle]int64)
	now := startTime

	for step := 0; step < 5000; step++ {
		switch r.Intn(3) {
		case 0:
			d := now + r.Int63n(500)
			live[q.Schedule(d)] = d
		case 1:
			for h := range live {
				if !q.Cancel(h) {
					t.Fatalf("cancel %d failed", h)
				}
				delete(live, h)
				break
			}
		case 2:
			now += r.Int63n(40)
			var want []int64
			for _, d := range live {
				if d <= now {
					want = append(want, d)
				}
			}
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
			var got []int64
			q.Poll(now, func(unit time.Duration, at int64, h timeout.Handle) {
				got = append(got, live[h])
				delete(live, h)
			})
			if len(got) != len(want) {
				t.Fatalf("step %d: fired %d want %d", step, len(got), len(want))
			}
			for i := range got {
				if got[i] != want[i] {
					t.Fatalf("step %d: fired out of order %v want %v", step, got, want)
				}
			}
		}
		checkHeap(t, q)
	}
}
