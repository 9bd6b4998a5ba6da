package core

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// JobType describes a kind of job that can be instantiated from config.
type JobType struct {
	// Kind is the value of the "kind" key in a job's config entry.
	Kind string

	// New returns a fresh, unconfigured job with the given name.
	New func(name string) Job
}

var (
	jobTypes   = make(map[string]JobType)
	jobTypesMu sync.RWMutex
)

// RegisterJobType registers a job kind. It panics if the kind is already
// registered or if the type is invalid. Intended to be called from init()
// functions.
func RegisterJobType(jt JobType) {
	if jt.Kind == "" {
		panic("job kind must not be empty")
	}
	if jt.New == nil {
		panic(fmt.Sprintf("job kind %s: New function must not be nil", jt.Kind))
	}

	jobTypesMu.Lock()
	defer jobTypesMu.Unlock()

	if _, exists := jobTypes[jt.Kind]; exists {
		panic(fmt.Sprintf("job kind already registered: %s", jt.Kind))
	}
	jobTypes[jt.Kind] = jt
}

// GetJobType returns the JobType for kind, or false if not found.
func GetJobType(kind string) (JobType, bool) {
	jobTypesMu.RLock()
	defer jobTypesMu.RUnlock()
	jt, ok := jobTypes[kind]
	return jt, ok
}

// GetJobTypes returns all registered job kinds sorted by Kind.
func GetJobTypes() []JobType {
	jobTypesMu.RLock()
	defer jobTypesMu.RUnlock()

	result := make([]JobType, 0, len(jobTypes))
	for _, jt := range jobTypes {
		result = append(result, jt)
	}
	slices.SortFunc(result, func(a, b JobType) int {
		return cmp.Compare(a.Kind, b.Kind)
	})
	return result
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	jobTypesMu.Lock()
	defer jobTypesMu.Unlock()
	jobTypes = make(map[string]JobType)
}
