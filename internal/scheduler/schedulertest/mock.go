// Package schedulertest provides test doubles for the scheduler package.
package schedulertest

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/flemzord/taskd/internal/core"
)

// MockJob is a configurable test double for core.Job.
type MockJob struct {
	NameVal string
	Delay   time.Duration
	// ExecuteFunc overrides Delay. call is 1 for the first run.
	ExecuteFunc func(ctx context.Context, call int) (time.Duration, error)
	// Clock timestamps each run. Nil uses the real clock.
	Clock clockwork.Clock

	mu            sync.Mutex
	calls         int
	starts        []time.Time
	concurrent    int
	maxConcurrent int
	lastApp       *core.AppContext
}

// Compile-time interface check.
var _ core.Job = (*MockJob)(nil)

// Name implements core.Job.
func (m *MockJob) Name() string { return m.NameVal }

// Execute implements core.Job and records the call.
func (m *MockJob) Execute(ctx context.Context, app *core.AppContext) (time.Duration, error) {
	now := time.Now()
	if m.Clock != nil {
		now = m.Clock.Now()
	}

	m.mu.Lock()
	m.calls++
	call := m.calls
	m.starts = append(m.starts, now)
	m.lastApp = app
	m.concurrent++
	m.maxConcurrent = max(m.maxConcurrent, m.concurrent)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.concurrent--
		m.mu.Unlock()
	}()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, call)
	}
	return m.Delay, nil
}

// CallCount returns the number of times Execute was called.
func (m *MockJob) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Starts returns the start time of every call.
func (m *MockJob) Starts() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.starts))
	copy(out, m.starts)
	return out
}

// MaxConcurrent returns the highest number of overlapping calls observed.
func (m *MockJob) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxConcurrent
}

// LastApp returns the shared context passed to the most recent call.
func (m *MockJob) LastApp() *core.AppContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastApp
}
