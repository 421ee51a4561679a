package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/fixkme/bitwheel/errs"
)

const EnvPrefix = "BITWHEEL_"

// LoadConfigFromEnv 用BITWHEEL_*环境变量覆盖配置, 变量名为json tag的大写形式
func LoadConfigFromEnv(conf *AppConfig) error {
	e := envReader{}
	e.getStr("APP_VERSION", &conf.AppVersion)
	e.getBool("IS_DEBUG", &conf.IsDebug)

	e.getStr("LOG_PATH", &conf.LogPath)
	e.getStr("LOG_NAME", &conf.LogName)
	e.getStr("LOG_LEVEL", &conf.LogLevel)
	e.getBool("LOG_STD_OUT", &conf.LogStdOut)
	e.getInt("LOG_MAX_SIZE_MB", &conf.LogMaxSizeMB)
	e.getInt("LOG_MAX_BACKUPS", &conf.LogMaxBackups)

	e.getStr("WHEEL_BACKEND", &conf.WheelBackend)
	e.getInt64("WHEEL_RESOLUTION", &conf.WheelResolution)
	e.getInt64("WHEEL_HORIZON", &conf.WheelHorizon)
	e.getInt("WHEEL_SLOTS", &conf.WheelSlots)
	e.getInt("WHEEL_HEADROOM", &conf.WheelHeadroom)

	e.getStr("GATE_ADDR", &conf.GateAddr)
	e.getBool("GATE_MULTICORE", &conf.GateMulticore)
	e.getInt64("IDLE_TIMEOUT_MS", &conf.IdleTimeoutMs)
	e.getInt("IDLE_SLOTS", &conf.IdleSlots)

	e.getInts("BENCH_SIZES", &conf.BenchSizes)
	e.getInt64s("BENCH_HORIZONS", &conf.BenchHorizons)
	e.getInt64("BENCH_RESOLUTION", &conf.BenchResolution)
	e.getStrs("BENCH_BACKENDS", &conf.BenchBackends)
	e.getStrs("BENCH_OPS", &conf.BenchOps)
	e.getInt("BENCH_PARALLEL", &conf.BenchParallel)
	e.getInt64("BENCH_SEED", &conf.BenchSeed)
	return e.err
}

// envReader 记录第一个解析错误, 之后的变量不再处理
type envReader struct {
	err error
}

func (e *envReader) lookup(name string) (string, bool) {
	if e.err != nil {
		return "", false
	}
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(name, v string, err error) {
	e.err = errs.InvalidConfig.Printf("%s%s=%q", EnvPrefix, name, v).Wrap(err)
}

func (e *envReader) getStr(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) getBool(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) getInt(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) getInt64(name string, dst *int64) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

// 列表用逗号分隔
func (e *envReader) getStrs(name string, dst *[]string) {
	if v, ok := e.lookup(name); ok {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*dst = out
	}
}

func (e *envReader) getInts(name string, dst *[]int) {
	var ss []string
	e.getStrs(name, &ss)
	if ss == nil {
		return
	}
	out := make([]int, 0, len(ss))
	for _, s := range ss {
		n, err := strconv.Atoi(s)
		if err != nil {
			e.fail(name, s, err)
			return
		}
		out = append(out, n)
	}
	*dst = out
}

func (e *envReader) getInt64s(name string, dst *[]int64) {
	var ss []string
	e.getStrs(name, &ss)
	if ss == nil {
		return
	}
	out := make([]int64, 0, len(ss))
	for _, s := range ss {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			e.fail(name, s, err)
			return
		}
		out = append(out, n)
	}
	*dst = out
}
