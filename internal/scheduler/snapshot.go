package scheduler

import (
	"cmp"
	"slices"
	"time"
)

// JobStatus is the last known state of one job.
type JobStatus struct {
	Name         string        `json:"name"`
	Runs         uint64        `json:"runs"`
	Failures     uint64        `json:"failures"`
	Running      bool          `json:"running"`
	LastStart    time.Time     `json:"last_start,omitzero"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastDelay    time.Duration `json:"last_delay_ns"`
	LastError    string        `json:"last_error,omitempty"`
	NextRun      time.Time     `json:"next_run,omitzero"`
}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	Started  bool        `json:"started"`
	Stopping bool        `json:"stopping"`
	Jobs     []JobStatus `json:"jobs"`
}

// Snapshot returns the current state of every registered job, sorted by name.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Started:  s.started,
		Stopping: s.shutdown.Load(),
		Jobs:     make([]JobStatus, 0, len(s.slots)),
	}
	for _, sl := range s.slots {
		snap.Jobs = append(snap.Jobs, sl.stats)
	}
	slices.SortFunc(snap.Jobs, func(a, b JobStatus) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return snap
}
