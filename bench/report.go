package bench

import (
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sugawarayuuta/sonnet"

	"github.com/fixkme/bitwheel/mlog"
)

type Report struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Results   []Result  `json:"results"`
}

// RunAll 执行所有场景, parallel>1时用协程池并发执行, 结果顺序与输入一致
func RunAll(scenarios []Scenario, parallel int) (*Report, error) {
	rep := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Results:   make([]Result, len(scenarios)),
	}
	mlog.Infof("bench run %s: %d scenarios, parallel %d", rep.RunID, len(scenarios), parallel)
	if parallel <= 1 {
		for i, s := range scenarios {
			r, err := Run(s)
			if err != nil {
				return nil, err
			}
			rep.Results[i] = r
		}
		return rep, nil
	}

	pool, err := ants.NewPool(parallel)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range scenarios {
		i := i
		wg.Add(1)
		err = pool.Submit(func() {
			defer wg.Done()
			r, err := Run(scenarios[i])
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			rep.Results[i] = r
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return rep, nil
}

func (r *Report) WriteJSON(w io.Writer) error {
	data, err := sonnet.Marshal(r)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func (r *Report) Log() {
	for _, res := range r.Results {
		mlog.Infof("%-5s %-15s size=%-7d horizon=%-5d slots=%-5d %10.1f ns/op rejected=%d expired=%d",
			res.Backend, res.Op, res.Size, res.MaxTimeout, res.SlotsPerBucket, res.NsPerOp, res.Rejected, res.Expired)
	}
}
