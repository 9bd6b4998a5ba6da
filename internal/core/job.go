package core

import (
	"context"
	"errors"
	"time"
)

// ErrNoResult is returned when an async job closes its result channel
// without sending a value.
var ErrNoResult = errors.New("core: async job completed without a result")

// Job is a named unit of recurring work. Execute performs one run and
// reports how long to wait before the next one. A Job is never executed
// concurrently with itself; distinct jobs run concurrently.
type Job interface {
	// Name returns a unique identifier for this job (used for logging and dedup).
	Name() string

	// Execute runs the job once. The returned delay is authoritative for the
	// next run and may change from call to call.
	Execute(ctx context.Context, app *AppContext) (time.Duration, error)
}

// Result is the completion of an asynchronous run.
type Result struct {
	Delay time.Duration
	Err   error
}

// AsyncJob is implemented by jobs whose run completes after ExecuteAsync
// returns. Exactly one Result is expected on the channel.
type AsyncJob interface {
	Name() string
	ExecuteAsync(ctx context.Context, app *AppContext) <-chan Result
}

// FromAsync adapts an AsyncJob to Job. Execute blocks until the result
// arrives or ctx is done.
func FromAsync(j AsyncJob) Job {
	return asyncJob{inner: j}
}

type asyncJob struct {
	inner AsyncJob
}

func (a asyncJob) Name() string { return a.inner.Name() }

// Unwrap returns the adapted job so lifecycle hooks reach it.
func (a asyncJob) Unwrap() AsyncJob { return a.inner }

func (a asyncJob) Execute(ctx context.Context, app *AppContext) (time.Duration, error) {
	ch := a.inner.ExecuteAsync(ctx, app)
	select {
	case r, ok := <-ch:
		if !ok {
			return 0, ErrNoResult
		}
		return r.Delay, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
