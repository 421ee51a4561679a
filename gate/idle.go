package gate

import (
	"sync"
	"time"

	"github.com/panjf2000/gnet/v2"
	"github.com/rs/xid"

	"github.com/fixkme/bitwheel/lock"
	"github.com/fixkme/bitwheel/mlog"
	"github.com/fixkme/bitwheel/timeout"
	"github.com/fixkme/bitwheel/wheel"
)

type Session struct {
	ID     xid.ID
	Conn   gnet.Conn
	handle timeout.Handle // 空闲超时在时间轮中的位置, 无效值表示未登记
}

func NewSession(c gnet.Conn) *Session {
	return &Session{ID: xid.New(), Conn: c, handle: timeout.Expired}
}

// IdleTracker 用时间轮记录每个会话的空闲截止时间, 时间单位毫秒
// 事件循环和tick协程并发调用, 所有时间轮操作都在锁内
type IdleTracker struct {
	mu       sync.Locker
	wheel    *wheel.Wheel
	idle     int64
	sessions map[timeout.Handle]*Session
}

type TrackerOption func(*IdleTracker)

func WithLocker(l sync.Locker) TrackerOption {
	return func(t *IdleTracker) {
		t.mu = l
	}
}

// idleResolution 取不超过idle/64的最大2的幂, 至少1ms
func idleResolution(idleMs int64) int64 {
	r := idleMs / 64
	if r < 1 {
		return 1
	}
	return wheel.NextPowerOf2(r+1) >> 1
}

func NewIdleTracker(startMs int64, idle time.Duration, slots int, opts ...TrackerOption) (*IdleTracker, error) {
	idleMs := idle.Milliseconds()
	w, err := wheel.New(time.Millisecond, startMs, idleResolution(idleMs), idleMs, slots)
	if err != nil {
		return nil, err
	}
	t := &IdleTracker{
		mu:       lock.NewSpinLock(),
		wheel:    w,
		idle:     idleMs,
		sessions: make(map[timeout.Handle]*Session),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Resolution tick间隔, 即Expire的调用周期
func (t *IdleTracker) Resolution() time.Duration {
	return time.Duration(t.wheel.Resolution()) * time.Millisecond
}

// Touch 重置会话的空闲截止时间为now+idle
func (t *IdleTracker) Touch(s *Session, nowMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forget(s)
	h := t.wheel.Schedule(nowMs + t.idle)
	if !h.Valid() {
		return h.Err()
	}
	s.handle = h
	t.sessions[h] = s
	return nil
}

func (t *IdleTracker) Forget(s *Session) {
	t.mu.Lock()
	t.forget(s)
	t.mu.Unlock()
}

func (t *IdleTracker) forget(s *Session) {
	if !s.handle.Valid() {
		return
	}
	if t.sessions[s.handle] == s {
		t.wheel.Cancel(s.handle)
		delete(t.sessions, s.handle)
	}
	s.handle = timeout.Expired
}

// Expire 取出所有空闲超时的会话, 在锁外交给fn处理
func (t *IdleTracker) Expire(nowMs int64, fn func(*Session)) int {
	var idles []*Session
	t.mu.Lock()
	t.wheel.Poll(nowMs, func(_ time.Duration, _ int64, h timeout.Handle) {
		s, ok := t.sessions[h]
		if !ok {
			return
		}
		delete(t.sessions, h)
		s.handle = timeout.Expired
		idles = append(idles, s)
	})
	t.mu.Unlock()

	for _, s := range idles {
		fn(s)
	}
	if len(idles) > 0 {
		mlog.Debugf("gate expired %d idle sessions", len(idles))
	}
	return len(idles)
}

func (t *IdleTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
