package stageexec

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"storydub/internal/services"
	"storydub/internal/stage"
)

// fanOutUnits dispatches units to a stage-scoped pool. Dispatch stops at the
// first failure or cancellation; units already running are waited for.
func (e *Executor) fanOutUnits(ctx context.Context, def stage.Definition, st *stage.State, units []stage.Unit, run func(context.Context, int, stage.Unit) error) error {
	if len(units) == 0 {
		return nil
	}
	size := min(e.fanOut, len(units))
	if st.Params.Workers > 0 {
		size = min(size, st.Params.Workers)
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, def.Name, "create pool", "", err)
	}
	defer pool.Release()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		failed   atomic.Bool
	)
	record := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
		failed.Store(true)
	}

	for i, u := range units {
		if failed.Load() {
			break
		}
		if st.Reporter.Cancelled() {
			record(services.Wrap(services.ErrCancelled, def.Name, "", "cancellation requested", nil))
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					record(services.Wrap(services.ErrExternalTool, def.Name, u.Label, fmt.Sprintf("panic: %v", r), nil))
				}
			}()
			if err := run(ctx, i, u); err != nil {
				record(err)
			}
		})
		if submitErr != nil {
			wg.Done()
			record(services.Wrap(services.ErrExternalTool, def.Name, "dispatch", u.Label, submitErr))
			break
		}
	}
	wg.Wait()
	return firstErr
}
