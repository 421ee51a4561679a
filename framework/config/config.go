package config

import (
	"bytes"
	"encoding/json"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"

	"github.com/fixkme/bitwheel/errs"
	"github.com/fixkme/bitwheel/heaptimer"
	"github.com/fixkme/bitwheel/mlog"
	"github.com/fixkme/bitwheel/timeout"
	"github.com/fixkme/bitwheel/wheel"
)

var Config *AppConfig

type AppConfig struct {
	AppVersion  string `json:"app_version" mapstructure:"app_version"`
	IsDebug     bool   `json:"is_debug" mapstructure:"is_debug"`
	LogConfig   `json:",inline" mapstructure:",inline"`
	WheelConfig `json:",inline" mapstructure:",inline"`
	GateConfig  `json:",inline" mapstructure:",inline"`
	BenchConfig `json:",inline" mapstructure:",inline"`
}

type LogConfig struct {
	LogPath       string `json:"log_path" mapstructure:"log_path"` // 为空时输出到标准输出
	LogName       string `json:"log_name" mapstructure:"log_name"`
	LogLevel      string `json:"log_level" mapstructure:"log_level"`
	LogStdOut     bool   `json:"log_std_out" mapstructure:"log_std_out"`
	LogMaxSizeMB  int    `json:"log_max_size_mb" mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `json:"log_max_backups" mapstructure:"log_max_backups"`
}

// WheelConfig 时间轮参数, 时间单位毫秒
type WheelConfig struct {
	WheelBackend    string `json:"wheel_backend" mapstructure:"wheel_backend"`       //wheel或heap
	WheelResolution int64  `json:"wheel_resolution" mapstructure:"wheel_resolution"` //tick长度, 2的幂
	WheelHorizon    int64  `json:"wheel_horizon" mapstructure:"wheel_horizon"`       //最大超时
	WheelSlots      int    `json:"wheel_slots" mapstructure:"wheel_slots"`           //每个tick的timer数, 64的倍数
	WheelHeadroom   int    `json:"wheel_headroom" mapstructure:"wheel_headroom"`
}

type GateConfig struct {
	GateAddr      string `json:"gate_addr" mapstructure:"gate_addr"`
	GateMulticore bool   `json:"gate_multicore" mapstructure:"gate_multicore"`
	IdleTimeoutMs int64  `json:"idle_timeout_ms" mapstructure:"idle_timeout_ms"` //连接空闲超时
	IdleSlots     int    `json:"idle_slots" mapstructure:"idle_slots"`
}

type BenchConfig struct {
	BenchSizes      []int    `json:"bench_sizes" mapstructure:"bench_sizes"`
	BenchHorizons   []int64  `json:"bench_horizons" mapstructure:"bench_horizons"`
	BenchResolution int64    `json:"bench_resolution" mapstructure:"bench_resolution"`
	BenchBackends   []string `json:"bench_backends" mapstructure:"bench_backends"`
	BenchOps        []string `json:"bench_ops" mapstructure:"bench_ops"`
	BenchParallel   int      `json:"bench_parallel" mapstructure:"bench_parallel"`
	BenchSeed       int64    `json:"bench_seed" mapstructure:"bench_seed"`
}

const (
	BackendWheel = "wheel"
	BackendHeap  = "heap"
)

func Default() *AppConfig {
	return &AppConfig{
		LogConfig: LogConfig{
			LogName:      "bitwheel",
			LogLevel:     "info",
			LogMaxSizeMB: 100,
		},
		WheelConfig: WheelConfig{
			WheelBackend:    BackendWheel,
			WheelResolution: 16,
			WheelHorizon:    4096,
			WheelSlots:      512,
			WheelHeadroom:   1,
		},
		GateConfig: GateConfig{
			GateAddr:      "tcp://127.0.0.1:2333",
			IdleTimeoutMs: 30_000,
			IdleSlots:     1024,
		},
		BenchConfig: BenchConfig{
			BenchSizes:      []int{10000, 100000, 200000},
			BenchHorizons:   []int64{1024, 4096},
			BenchResolution: 16,
			BenchBackends:   []string{BackendWheel, BackendHeap},
			BenchOps:        []string{"schedule-cancel", "schedule-poll"},
			BenchParallel:   1,
			BenchSeed:       1,
		},
	}
}

// LoadConfig 先读默认值, 再用文件和环境变量覆盖, 最后校验
func LoadConfig(configFile string, loadConfigFromEnv func(*AppConfig) error) error {
	conf := Default()
	if len(configFile) != 0 {
		if err := loadConfigFromFile(configFile, conf); err != nil {
			return err
		}
	}
	if loadConfigFromEnv != nil {
		if err := loadConfigFromEnv(conf); err != nil {
			return err
		}
	}
	if err := conf.Validate(); err != nil {
		return err
	}
	Config = conf
	return nil
}

func loadConfigFromFile(configFile string, conf *AppConfig) error {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return err
	}
	if err = sonnet.Unmarshal(data, conf); err != nil {
		return errs.InvalidConfig.Wrap(err)
	}
	return nil
}

func (conf *AppConfig) Validate() error {
	if err := conf.WheelConfig.Validate(); err != nil {
		return err
	}
	if conf.IdleTimeoutMs <= 0 {
		return errs.InvalidConfig.Printf("idle_timeout_ms %d must be positive", conf.IdleTimeoutMs)
	}
	if conf.IdleSlots <= 0 || conf.IdleSlots%64 != 0 {
		return errs.InvalidConfig.Printf("idle_slots %d is not a positive multiple of 64", conf.IdleSlots)
	}
	if !wheel.IsPowerOf2(conf.BenchResolution) {
		return errs.InvalidConfig.Printf("bench_resolution %d is not a power of 2", conf.BenchResolution)
	}
	if conf.BenchParallel < 1 {
		conf.BenchParallel = 1
	}
	return nil
}

func (c *WheelConfig) Validate() error {
	switch c.WheelBackend {
	case BackendWheel, BackendHeap:
	default:
		return errs.InvalidConfig.Printf("unknown wheel_backend %q", c.WheelBackend)
	}
	if !wheel.IsPowerOf2(c.WheelResolution) {
		return errs.InvalidConfig.Printf("wheel_resolution %d is not a power of 2", c.WheelResolution)
	}
	if c.WheelSlots <= 0 || c.WheelSlots%64 != 0 {
		return errs.InvalidConfig.Printf("wheel_slots %d is not a positive multiple of 64", c.WheelSlots)
	}
	if c.WheelHorizon <= 0 {
		return errs.InvalidConfig.Printf("wheel_horizon %d must be positive", c.WheelHorizon)
	}
	return nil
}

// NewWheel 创建毫秒时间轮
func (c *WheelConfig) NewWheel(startTime int64) (*wheel.Wheel, error) {
	return wheel.New(time.Millisecond, startTime, c.WheelResolution, c.WheelHorizon, c.WheelSlots,
		wheel.WithHeadroom(c.WheelHeadroom))
}

func (c *WheelConfig) NewHeap(startTime int64) *heaptimer.Heap {
	return heaptimer.New(time.Millisecond, startTime, c.WheelSlots)
}

// NewBackend 按名字创建超时后端, kind为空时使用WheelBackend
func (c *WheelConfig) NewBackend(kind string, startTime int64) (timeout.Timeout, error) {
	if kind == "" {
		kind = c.WheelBackend
	}
	switch kind {
	case BackendWheel:
		return c.NewWheel(startTime)
	case BackendHeap:
		return c.NewHeap(startTime), nil
	}
	return nil, errs.InvalidConfig.Printf("unknown backend %q", kind)
}

// FileOptions 转换成mlog的文件日志参数
func (c *LogConfig) FileOptions() mlog.FileOptions {
	return mlog.FileOptions{
		Path:       c.LogPath,
		Name:       c.LogName,
		Level:      mlog.ParseLevel(c.LogLevel),
		StdOut:     c.LogStdOut,
		MaxSizeMB:  c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
	}
}

// InstallLogger 没有配置路径时使用标准输出日志
func (c *LogConfig) InstallLogger() error {
	if c.LogPath == "" {
		return mlog.UseStdLogger(mlog.ParseLevel(c.LogLevel))
	}
	return mlog.UseFileLogger(c.FileOptions())
}

func (conf *AppConfig) JsonFormat() string {
	if conf == nil {
		return "{}"
	}
	data, err := sonnet.Marshal(conf)
	if err != nil {
		return ""
	}
	var out bytes.Buffer
	if err = json.Indent(&out, data, "", "  "); err != nil {
		return string(data)
	}
	return out.String()
}
