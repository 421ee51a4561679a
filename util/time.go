package util

import (
	"sync/atomic"
	"time"
)

var timeOffset atomic.Int64 // 时间偏移 ns

// SetTimeOffset 设置时间偏移量, 影响Now和NowMs
func SetTimeOffset(d time.Duration) {
	timeOffset.Store(int64(d))
}

func GetTimeOffset() time.Duration {
	return time.Duration(timeOffset.Load())
}

// Now 获取当前时间
func Now() time.Time {
	now := time.Now()
	if off := timeOffset.Load(); off != 0 {
		now = now.Add(time.Duration(off))
	}
	return now
}

// NowMs 获取当前时间的毫秒时间戳
func NowMs() int64 {
	return Now().UnixMilli()
}
