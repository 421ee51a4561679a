// Package bench compares the timeout backends on synthetic workloads. Timer
// time is simulated; only the elapsed wall time of each run is measured.
package bench

import (
	"math/rand"
	"time"

	"github.com/fixkme/bitwheel/errs"
	"github.com/fixkme/bitwheel/framework/config"
	"github.com/fixkme/bitwheel/heaptimer"
	"github.com/fixkme/bitwheel/timeout"
	"github.com/fixkme/bitwheel/wheel"
)

const (
	OpScheduleCancel = "schedule-cancel"
	OpSchedulePoll   = "schedule-poll"
)

type Scenario struct {
	Backend        string `json:"backend"`
	Op             string `json:"op"`
	Size           int    `json:"size"`
	MaxTimeout     int64  `json:"max_timeout"`
	Resolution     int64  `json:"resolution"`
	SlotsPerBucket int    `json:"slots_per_bucket"`
	Seed           int64  `json:"seed"`
}

type Result struct {
	Scenario
	Ops      int           `json:"ops"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	NsPerOp  float64       `json:"ns_per_op"`
	Rejected int           `json:"rejected"`
	Expired  int           `json:"expired"`
}

func (s *Scenario) newBackend() (timeout.Timeout, error) {
	switch s.Backend {
	case config.BackendWheel:
		return wheel.New(time.Millisecond, 0, s.Resolution, s.MaxTimeout, s.SlotsPerBucket)
	case config.BackendHeap:
		return heaptimer.New(time.Millisecond, 0, s.Size), nil
	}
	return nil, errs.InvalidConfig.Printf("unknown backend %q", s.Backend)
}

// deadlines 在[resolution, resolution+maxTimeout)内均匀分布
func (s *Scenario) deadlines() []int64 {
	r := rand.New(rand.NewSource(s.Seed))
	ds := make([]int64, s.Size)
	for i := range ds {
		ds[i] = s.Resolution + r.Int63n(s.MaxTimeout)
	}
	return ds
}

// Run 执行一个场景
func Run(s Scenario) (Result, error) {
	res := Result{Scenario: s}
	if s.Size <= 0 || s.MaxTimeout <= 0 {
		return res, errs.InvalidConfig.Printf("size %d and max timeout %d must be positive", s.Size, s.MaxTimeout)
	}
	b, err := s.newBackend()
	if err != nil {
		return res, err
	}
	ds := s.deadlines()

	begin := time.Now()
	switch s.Op {
	case OpScheduleCancel:
		res.Ops, res.Rejected = scheduleCancel(b, ds)
	case OpSchedulePoll:
		res.Ops, res.Rejected, res.Expired = schedulePoll(b, ds, s.Resolution, s.MaxTimeout)
	default:
		return res, errs.InvalidConfig.Printf("unknown op %q", s.Op)
	}
	res.Elapsed = time.Since(begin)
	if res.Ops > 0 {
		res.NsPerOp = float64(res.Elapsed.Nanoseconds()) / float64(res.Ops)
	}
	return res, nil
}

func scheduleCancel(b timeout.Timeout, ds []int64) (ops, rejected int) {
	handles := make([]timeout.Handle, 0, len(ds))
	for _, d := range ds {
		h := b.Schedule(d)
		if !h.Valid() {
			rejected++
			continue
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		b.Cancel(h)
	}
	return len(ds), rejected
}

func schedulePoll(b timeout.Timeout, ds []int64, resolution, maxTimeout int64) (ops, rejected, expired int) {
	for _, d := range ds {
		if h := b.Schedule(d); !h.Valid() {
			rejected++
		}
	}
	nop := func(time.Duration, int64, timeout.Handle) {}
	end := 2*resolution + maxTimeout
	for now := resolution; now <= end; now += resolution {
		expired += b.Poll(now, nop)
	}
	return len(ds), rejected, expired
}

// Matrix 展开配置里的 size x horizon x backend x op
func Matrix(conf *config.BenchConfig) []Scenario {
	var out []Scenario
	for _, size := range conf.BenchSizes {
		for _, horizon := range conf.BenchHorizons {
			for _, backend := range conf.BenchBackends {
				for _, op := range conf.BenchOps {
					out = append(out, Scenario{
						Backend:        backend,
						Op:             op,
						Size:           size,
						MaxTimeout:     horizon,
						Resolution:     conf.BenchResolution,
						SlotsPerBucket: SlotsFor(size, horizon, conf.BenchResolution),
						Seed:           conf.BenchSeed,
					})
				}
			}
		}
	}
	return out
}

// SlotsFor 每个tick的容量: 平均负载的两倍加64, 向上对齐到64
func SlotsFor(size int, horizon, resolution int64) int {
	ticks := horizon / resolution
	if ticks < 1 {
		ticks = 1
	}
	n := 2*size/int(ticks) + 64
	return (n + 63) &^ 63
}
