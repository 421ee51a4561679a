// Package clock runs a timeout.Timeout backend on its own goroutine and turns
// expirations into Promise deliveries. All backend access happens on that
// goroutine; the public methods hand it closures through a task channel.
package clock

import (
	"sync/atomic"
	"time"

	"github.com/fixkme/bitwheel/errs"
	"github.com/fixkme/bitwheel/framework/config"
	"github.com/fixkme/bitwheel/mlog"
	"github.com/fixkme/bitwheel/timeout"
	"github.com/fixkme/bitwheel/util"
)

const defaultTaskQueue = 10240

type Option func(*Clock)

// WithTaskQueue 设置任务队列长度, 队列满时调用方得到ClockBusy
func WithTaskQueue(n int) Option {
	return func(c *Clock) {
		if n > 0 {
			c.taskch = make(chan func(), n)
		}
	}
}

// WithNowFunc 替换毫秒时间来源, 必须与后端的startTime同源
func WithNowFunc(fn func() int64) Option {
	return func(c *Clock) {
		c.nowFn = fn
	}
}

type Clock struct {
	backend    timeout.Timeout
	resolution time.Duration
	resMs      int64
	nowFn      func() int64
	genId      int64
	timers     map[int64]*_Timer          // id -> timer
	handles    map[timeout.Handle]*_Timer // 后端handle -> timer
	batchs     map[chan<- []*Promise][]*Promise
	taskch     chan func()
	stopped    chan struct{}
	closed     atomic.Bool
}

// NewClock 创建时钟, backend的时间单位必须是毫秒
func NewClock(backend timeout.Timeout, resolution time.Duration, opts ...Option) *Clock {
	if resolution < time.Millisecond {
		resolution = time.Millisecond
	}
	c := &Clock{
		backend:    backend,
		resolution: resolution,
		resMs:      resolution.Milliseconds(),
		nowFn:      util.NowMs,
		timers:     make(map[int64]*_Timer),
		handles:    make(map[timeout.Handle]*_Timer),
		batchs:     make(map[chan<- []*Promise][]*Promise),
		taskch:     make(chan func(), defaultTaskQueue),
		stopped:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWheelClock 按配置创建后端, 起始时间为当前毫秒时间戳
func NewWheelClock(conf *config.WheelConfig) (*Clock, error) {
	backend, err := conf.NewBackend("", util.NowMs())
	if err != nil {
		return nil, err
	}
	return NewClock(backend, time.Duration(conf.WheelResolution)*time.Millisecond), nil
}

func (c *Clock) Start(quit <-chan struct{}) {
	go c.run(quit)
}

func (c *Clock) NewTimer(when int64, data any, receiver chan<- *Promise, batch chan<- []*Promise) (id int64, err error) {
	if receiver == nil && batch == nil {
		return 0, errs.NoReceiver
	}
	t := &_Timer{
		when:     when,
		data:     data,
		receiver: receiver,
		batch:    batch,
	}
	perr := c.pushTask(func() {
		c.genId++
		t.id = c.genId
		if err = c.addTimer(t); err != nil {
			return
		}
		c.timers[t.id] = t
		id = t.id
	})
	if perr != nil {
		return 0, perr
	}
	return
}

// After 在delay之后到期, 溢出时截断到最大时间
func (c *Clock) After(delay time.Duration, data any, receiver chan<- *Promise, batch chan<- []*Promise) (int64, error) {
	when, _ := util.AddInt64(c.nowFn(), delay.Milliseconds())
	return c.NewTimer(when, data, receiver, batch)
}

func (c *Clock) CancelTimer(id int64) (ok bool, err error) {
	err = c.pushTask(func() {
		ok = c.delTimer(id) != nil
	})
	return
}

// UpdateTimer 修改到期时间; 新时间无法调度时定时器被删除并返回对应错误
func (c *Clock) UpdateTimer(id int64, when int64) (ok bool, err error) {
	perr := c.pushTask(func() {
		t := c.delTimer(id)
		if t == nil {
			return
		}
		t.when = when
		if err = c.addTimer(t); err != nil {
			return
		}
		c.timers[id] = t
		ok = true
	})
	if perr != nil {
		return false, perr
	}
	return
}

// Len 未到期的定时器数量
func (c *Clock) Len() (n int, err error) {
	err = c.pushTask(func() {
		n = len(c.timers)
	})
	return
}

func (c *Clock) addTimer(t *_Timer) error {
	h := c.backend.Schedule(t.when)
	if !h.Valid() {
		return h.Err()
	}
	t.handle = h
	c.handles[h] = t
	mlog.Tracef("clock add timer id=%d when=%d handle=%d", t.id, t.when, h)
	return nil
}

func (c *Clock) delTimer(id int64) *_Timer {
	t, ok := c.timers[id]
	if !ok {
		return nil
	}
	c.backend.Cancel(t.handle)
	delete(c.handles, t.handle)
	delete(c.timers, id)
	return t
}

func (c *Clock) expire(unit time.Duration, nowMs int64, h timeout.Handle) {
	t, ok := c.handles[h]
	if !ok {
		mlog.Warnf("clock expired unknown handle %d", h)
		return
	}
	delete(c.handles, h)
	mlog.Tracef("clock timer trigger id=%d when=%d now=%d", t.id, t.when, nowMs)
	if t.batch != nil {
		delete(c.timers, t.id)
		c.batchs[t.batch] = append(c.batchs[t.batch], t.promise(nowMs))
		return
	}
	select {
	case t.receiver <- t.promise(nowMs):
		delete(c.timers, t.id)
	default:
		// 接收方满了, 下一个tick重试
		t.when = nowMs + c.resMs
		if err := c.addTimer(t); err != nil {
			delete(c.timers, t.id)
			mlog.Warnf("clock drop timer id=%d, receiver full and retry failed: %v", t.id, err)
		}
	}
}

func (c *Clock) tick() {
	nowMs := c.nowFn()
	if n := c.backend.Poll(nowMs, c.expire); n > 0 {
		mlog.Tracef("clock tick now=%d expired=%d", nowMs, n)
	}
	for ch, promises := range c.batchs {
		ch <- promises
		delete(c.batchs, ch)
	}
}

func (c *Clock) run(quit <-chan struct{}) {
	defer close(c.stopped)
	tickTimer := time.NewTimer(c.resolution)
	defer tickTimer.Stop()
	for {
		select {
		case <-quit:
			c.closed.Store(true)
			return
		case <-tickTimer.C:
			c.tick()
			tickTimer.Reset(c.resolution)
		case fn := <-c.taskch:
			fn()
		}
	}
}

func (c *Clock) pushTask(f func()) error {
	if c.closed.Load() {
		return errs.ClockClosed
	}
	done := make(chan struct{})
	ff := func() {
		defer close(done)
		f()
	}
	select {
	case c.taskch <- ff:
	case <-c.stopped:
		return errs.ClockClosed
	default:
		return errs.ClockBusy
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return errs.ClockClosed
	}
}
