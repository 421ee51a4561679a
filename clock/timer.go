package clock

import "github.com/fixkme/bitwheel/timeout"

type Promise struct {
	TimerId int64
	NowTs   int64 // 当前时间戳 毫秒
	Data    any
}

// 定时器
// receiver和batch 两种投递方式是互斥的，选择其中一个
// 如果batch可用的话，默认优先使用batch，否则使用receiver
type _Timer struct {
	id       int64             // ID
	when     int64             // 到期时间戳 毫秒
	data     any               // 数据
	receiver chan<- *Promise   // 处理器
	batch    chan<- []*Promise // 批量处理器
	handle   timeout.Handle    // 在后端中的位置
}

func (t *_Timer) promise(nowMs int64) *Promise {
	return &Promise{TimerId: t.id, NowTs: nowMs, Data: t.data}
}
