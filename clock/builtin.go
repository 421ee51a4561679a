package clock

import (
	"sync"
	"time"

	"github.com/fixkme/bitwheel/framework/config"
)

var (
	builtinClock *Clock
	once         sync.Once
	NewTimer     func(when int64, data any, receiver chan<- *Promise, batch chan<- []*Promise) (id int64, err error)
	After        func(delay time.Duration, data any, receiver chan<- *Promise, batch chan<- []*Promise) (id int64, err error)
	CancelTimer  func(id int64) (ok bool, err error)
	UpdateTimer  func(id int64, when int64) (ok bool, err error)
)

// Start 启动进程内默认时钟, 只有第一次调用生效
func Start(quit <-chan struct{}, conf *config.WheelConfig) (err error) {
	once.Do(func() {
		var c *Clock
		if c, err = NewWheelClock(conf); err != nil {
			return
		}
		builtinClock = c
		builtinClock.Start(quit)
		NewTimer = builtinClock.NewTimer
		After = builtinClock.After
		CancelTimer = builtinClock.CancelTimer
		UpdateTimer = builtinClock.UpdateTimer
	})
	return
}

func Default() *Clock {
	return builtinClock
}
