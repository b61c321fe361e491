package stageexec

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"storydub/internal/logging"
	"storydub/internal/services"
	"storydub/internal/stage"
)

// Policy bounds how adapter calls are retried.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// Timeout applies to each attempt separately.
	Timeout time.Duration
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// backoff returns the delay before the attempt following attempt (1-based).
func (p Policy) backoff(attempt int, err error) time.Duration {
	if after, ok := services.RetryAfter(err); ok {
		return min(after, p.MaxDelay)
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return delay
}

// callWithRetry runs one unit. A PerCall definition retries each adapter
// call Run makes through stage.Call; any other retries Run itself.
func (e *Executor) callWithRetry(ctx context.Context, def stage.Definition, st *stage.State, u stage.Unit) (stage.Output, error) {
	if def.PerCall {
		ctx = stage.WithCaller(ctx, func(ctx context.Context, op string, call func(context.Context) error) error {
			return e.retry(ctx, def, st, u.Label+" "+op, call)
		})
		return def.Run(ctx, st, u)
	}
	var out stage.Output
	err := e.retry(ctx, def, st, u.Label, func(ctx context.Context) error {
		var err error
		out, err = def.Run(ctx, st, u)
		return err
	})
	if err != nil {
		return stage.Output{}, err
	}
	return out, nil
}

func (e *Executor) retry(ctx context.Context, def stage.Definition, st *stage.State, label string, call func(context.Context) error) error {
	timeout := e.policy.Timeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	attempts := e.policy.Attempts
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := e.attempt(ctx, def.Name, label, timeout, call)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !services.IsRetryable(err) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		delay := e.policy.backoff(attempt, err)
		if _, fixed := services.RetryAfter(err); !fixed {
			delay += e.jitter(delay)
		}
		st.Reporter.Warnf("%s: %s attempt %d/%d failed, retrying in %s: %s",
			def.Name, label, attempt, attempts, delay.Round(time.Millisecond), services.Details(err))
		logging.WithContext(ctx, e.logger).Warn("adapter call failed; retrying",
			logging.String(logging.FieldEventType, "adapter_retry"),
			logging.String("call", label),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Duration("delay", delay),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "transient provider failure"),
			logging.String(logging.FieldImpact, "stage delayed"),
		)
		if err := e.sleep(ctx, delay); err != nil {
			return err
		}
	}
	return services.Wrap(services.ErrExternalTool, "", label,
		fmt.Sprintf("failed after %d attempts: %s", attempts, services.Details(lastErr)), nil)
}

func (e *Executor) attempt(ctx context.Context, stageName, label string, timeout time.Duration, call func(context.Context) error) error {
	callCtx := ctx
	cancel := func() {}
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	err := call(callCtx)
	if err == nil {
		return nil
	}
	if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, services.ErrTimeout) {
		err = services.Wrap(services.ErrTimeout, stageName, label, fmt.Sprintf("no result within %s", timeout), err)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// defaultJitter adds up to a fifth of d.
func defaultJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(d)/5 + 1))
}
