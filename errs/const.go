package errs

const (
	ErrCode_OK      = 0
	ErrCode_Unknown = 1

	// 构造期配置错误
	ErrCode_InvalidConfig = 10
	// 调度结果, 与 timeout.Handle 的负数哨兵一一对应
	ErrCode_Expired          = 11
	ErrCode_OutOfRange       = 12
	ErrCode_CapacityExceeded = 13
	ErrCode_InvalidHandle    = 14

	// clock 驱动
	ErrCode_ClockClosed = 20
	ErrCode_ClockBusy   = 21
	ErrCode_NoReceiver  = 22
)

var (
	Unknown = CreateCodeError(ErrCode_Unknown, "UNKNOWN")

	InvalidConfig    = CreateCodeError(ErrCode_InvalidConfig, "INVALID_CONFIG")
	Expired          = CreateCodeError(ErrCode_Expired, "EXPIRED")
	OutOfRange       = CreateCodeError(ErrCode_OutOfRange, "OUT_OF_RANGE")
	CapacityExceeded = CreateCodeError(ErrCode_CapacityExceeded, "CAPACITY_EXCEEDED")
	InvalidHandle    = CreateCodeError(ErrCode_InvalidHandle, "INVALID_HANDLE")

	ClockClosed = CreateCodeError(ErrCode_ClockClosed, "CLOCK_CLOSED")
	ClockBusy   = CreateCodeError(ErrCode_ClockBusy, "CLOCK_BUSY")
	NoReceiver  = CreateCodeError(ErrCode_NoReceiver, "NO_RECEIVER")
)
