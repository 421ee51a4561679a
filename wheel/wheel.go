// Package wheel is a single-level hashed timing wheel whose buckets are bitsets.
//
// Time is divided into ticks of resolution units counted from startTime. Every
// tick maps to a bucket (tick & mask) holding timerPerTick slots, one bit each.
// A handle is the global bit position of its slot, so Cancel needs no lookup.
//
//	words: | bucket 0: w0 w1 | bucket 1: w2 w3 | ... | bucket n-1 |
//	handle = wordIndex*64 + bit
//
// Schedule and Cancel are O(1). Poll visits one bucket per elapsed tick, and
// skips straight to now when no timer is active.
package wheel

import (
	"math"
	"time"

	"github.com/fixkme/bitwheel/ds/bitset"
	"github.com/fixkme/bitwheel/errs"
	"github.com/fixkme/bitwheel/mlog"
	"github.com/fixkme/bitwheel/timeout"
)

const defaultHeadroom = 1

type Option func(*options)

type options struct {
	headroom int64
}

// WithHeadroom reserves ticks at the far end of the horizon. Schedules made
// from an expiry callback are measured from the tick being expired, so the
// reserved ticks keep them from landing in the bucket being drained.
func WithHeadroom(ticks int) Option {
	return func(o *options) {
		o.headroom = int64(ticks)
	}
}

type Wheel struct {
	unit           time.Duration
	startTime      int64
	resolution     int64
	tickBits       uint
	maxTimeout     int64 // 2的幂, 包含headroom
	bucketCount    int64
	mask           int64
	maxRange       int64 // 可调度的最大tick差(不含)
	timerPerTick   int
	wordsPerBucket int
	words          []uint64

	currentTick  int64
	activeTimers int
	expiring     int64  // Poll正在处理的tick, 否则-1
	scanned      uint64 // 累计扫描的bucket数
}

var (
	_ timeout.Timeout = (*Wheel)(nil)
	_ timeout.Limited = (*Wheel)(nil)
	_ timeout.Counter = (*Wheel)(nil)
)

// New builds a wheel. resolution must be a power of two and timerPerTick a
// multiple of 64. The horizon is padded by the headroom ticks plus one unit
// and rounded up to a power of two.
func New(unit time.Duration, startTime, resolution, horizon int64, timerPerTick int, opts ...Option) (*Wheel, error) {
	o := options{headroom: defaultHeadroom}
	for _, opt := range opts {
		opt(&o)
	}

	if !IsPowerOf2(resolution) {
		return nil, errs.InvalidConfig.Printf("resolution %d is not a power of 2", resolution)
	}
	if timerPerTick <= 0 || timerPerTick%bitset.WordBits != 0 {
		return nil, errs.InvalidConfig.Printf("timerPerTick %d is not a positive multiple of %d", timerPerTick, bitset.WordBits)
	}
	if horizon <= 0 {
		return nil, errs.InvalidConfig.Printf("horizon %d must be positive", horizon)
	}
	if o.headroom < 0 || o.headroom > (maxHorizon-1)/resolution {
		return nil, errs.InvalidConfig.Printf("headroom %d ticks is invalid", o.headroom)
	}
	pad := o.headroom*resolution + 1
	if horizon > maxHorizon-pad {
		return nil, errs.InvalidConfig.Printf("horizon %d is too large", horizon)
	}

	tickBits := log2(resolution)
	maxTimeout := NextPowerOf2(horizon + pad)
	bucketCount := maxTimeout >> tickBits
	if !IsPowerOf2(bucketCount) {
		return nil, errs.InvalidConfig.Printf("bucket count %d is not a power of 2", bucketCount)
	}
	wordsPerBucket := timerPerTick / bitset.WordBits
	if bucketCount > int64(math.MaxInt32)/int64(wordsPerBucket) {
		return nil, errs.InvalidConfig.Printf("%d buckets of %d slots is too large", bucketCount, timerPerTick)
	}

	w := &Wheel{
		unit:           unit,
		startTime:      startTime,
		resolution:     resolution,
		tickBits:       tickBits,
		maxTimeout:     maxTimeout,
		bucketCount:    bucketCount,
		mask:           bucketCount - 1,
		maxRange:       bucketCount - o.headroom,
		timerPerTick:   timerPerTick,
		wordsPerBucket: wordsPerBucket,
		words:          make([]uint64, bucketCount*int64(wordsPerBucket)),
		expiring:       -1,
	}
	mlog.Debugf("wheel: resolution=%d horizon=%d maxTimeout=%d buckets=%d timerPerTick=%d headroom=%d",
		resolution, horizon, maxTimeout, bucketCount, timerPerTick, o.headroom)
	return w, nil
}

// MustNew is New that panics on configuration errors.
func MustNew(unit time.Duration, startTime, resolution, horizon int64, timerPerTick int, opts ...Option) *Wheel {
	w, err := New(unit, startTime, resolution, horizon, timerPerTick, opts...)
	if err != nil {
		panic(err)
	}
	return w
}

func (w *Wheel) Schedule(deadline int64) timeout.Handle {
	if deadline <= w.startTime {
		return timeout.Expired
	}
	delta := deadline - w.startTime
	if delta < 0 { // 溢出
		return timeout.OutOfRange
	}
	tick := delta >> w.tickBits
	if tick < w.currentTick || tick <= w.expiring {
		return timeout.Expired
	}
	if tick-w.currentTick >= w.maxRange {
		return timeout.OutOfRange
	}

	base := int(tick&w.mask) * w.wordsPerBucket
	pos := bitset.Alloc(w.words[base : base+w.wordsPerBucket])
	if pos < 0 {
		return timeout.CapacityExceeded
	}
	w.activeTimers++
	return timeout.Handle(base<<bitset.WordLog + pos)
}

func (w *Wheel) Cancel(h timeout.Handle) bool {
	if h < 0 || int64(h) >= int64(len(w.words))<<bitset.WordLog {
		return false
	}
	if !bitset.Release(w.words, int(h)) {
		return false
	}
	w.activeTimers--
	return true
}

func (w *Wheel) Poll(now int64, handler timeout.Handler) int {
	return w.PollLimit(now, 0, handler)
}

// PollLimit is Poll that returns after limit expirations (limit <= 0 means no
// limit). A partially drained tick is resumed by the next call.
func (w *Wheel) PollLimit(now int64, limit int, handler timeout.Handler) int {
	if now < w.startTime {
		return 0
	}
	delta := now - w.startTime
	if delta < 0 {
		delta = math.MaxInt64
	}
	target := delta >> w.tickBits
	if target <= w.currentTick {
		return 0
	}
	if w.activeTimers == 0 {
		w.currentTick = target
		return 0
	}
	return w.expire(now, target, limit, handler)
}

func (w *Wheel) expire(now, target int64, limit int, handler timeout.Handler) (count int) {
	defer func() {
		w.expiring = -1
	}()
	for w.currentTick < target {
		t := w.currentTick
		w.expiring = t
		w.scanned++
		base := int(t&w.mask) * w.wordsPerBucket
		for i := base; i < base+w.wordsPerBucket; i++ {
			// handler可能取消同一word里的其他timer, 每次重新读取
			for w.words[i] != 0 {
				if limit > 0 && count >= limit {
					return
				}
				bit := bitset.FirstSet(w.words[i])
				w.words[i] = bitset.Clear(w.words[i], bit)
				w.activeTimers--
				count++
				handler(w.unit, now, timeout.Handle(i<<bitset.WordLog|bit))
			}
		}
		w.currentTick = t + 1
		if w.activeTimers == 0 {
			w.currentTick = target
		}
	}
	return
}

// CurrentTime is the wheel's notion of now, floored to the tick resolution.
func (w *Wheel) CurrentTime() int64 {
	return w.startTime + w.currentTick<<w.tickBits
}

func (w *Wheel) Count() int {
	return w.activeTimers
}

func (w *Wheel) Unit() time.Duration {
	return w.unit
}

func (w *Wheel) StartTime() int64 {
	return w.startTime
}

func (w *Wheel) Resolution() int64 {
	return w.resolution
}

// MaxTimeout is the effective horizon after padding and rounding.
func (w *Wheel) MaxTimeout() int64 {
	return w.maxTimeout
}

func (w *Wheel) BucketCount() int64 {
	return w.bucketCount
}

func (w *Wheel) TimerPerTick() int {
	return w.timerPerTick
}

// MaxDeadline is the largest deadline Schedule currently accepts.
func (w *Wheel) MaxDeadline() int64 {
	return w.startTime + (w.currentTick+w.maxRange)<<w.tickBits - 1
}
