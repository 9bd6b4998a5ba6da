package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/taskd/internal/core"
	"github.com/flemzord/taskd/internal/events"
)

func init() {
	core.RegisterJobType(core.JobType{
		Kind: KindCacheStats,
		New:  func(name string) core.Job { return &CacheStats{name: name} },
	})
	core.RegisterJobType(core.JobType{
		Kind: KindCachePurge,
		New:  func(name string) core.Job { return &CachePurge{name: name} },
	})
}

// Cache maintenance kinds.
const (
	KindCacheStats = "cache_stats"
	KindCachePurge = "cache_purge"
)

const (
	defaultStatsInterval = 10 * time.Second
	defaultPurgeInterval = 5 * time.Minute
)

var errNoCache = errors.New("cache is not configured")

// CacheStats logs hit and miss counters of the shared cache.
type CacheStats struct {
	name   string
	config Cadence
}

// Compile-time interface checks.
var (
	_ core.Job          = (*CacheStats)(nil)
	_ core.Configurable = (*CacheStats)(nil)
	_ core.Provisioner  = (*CacheStats)(nil)
	_ core.Validator    = (*CacheStats)(nil)
)

// Name implements core.Job.
func (j *CacheStats) Name() string { return j.name }

// Configure implements core.Configurable.
func (j *CacheStats) Configure(node *yaml.Node) error {
	if err := node.Decode(&j.config); err != nil {
		return err
	}
	j.config.defaults(defaultStatsInterval)
	return j.config.parse()
}

// Provision implements core.Provisioner.
func (j *CacheStats) Provision(app *core.AppContext) error {
	if app.Cache() == nil {
		return fmt.Errorf("cache_stats: %w", errNoCache)
	}
	return nil
}

// Validate implements core.Validator.
func (j *CacheStats) Validate() error {
	if err := j.config.validate(); err != nil {
		return fmt.Errorf("cache_stats: %w", err)
	}
	return nil
}

// Execute implements core.Job.
func (j *CacheStats) Execute(ctx context.Context, app *core.AppContext) (time.Duration, error) {
	stats, err := app.Cache().Stat(ctx)
	if err != nil {
		return 0, fmt.Errorf("cache_stats: %w", err)
	}
	app.Logger().Info("cache stats",
		"job", j.name,
		"hits", stats.Hits,
		"misses", stats.Misses,
		"sets", stats.Sets,
		"entries", stats.Entries,
		"hit_ratio", fmt.Sprintf("%.2f", stats.HitRatio()),
	)
	return j.config.Next(app.Clock().Now()), nil
}

// CachePurge drops expired cache entries by publishing cache.purge.
type CachePurge struct {
	name   string
	config Cadence
}

// Compile-time interface checks.
var (
	_ core.Job          = (*CachePurge)(nil)
	_ core.Configurable = (*CachePurge)(nil)
	_ core.Validator    = (*CachePurge)(nil)
)

// Name implements core.Job.
func (j *CachePurge) Name() string { return j.name }

// Configure implements core.Configurable.
func (j *CachePurge) Configure(node *yaml.Node) error {
	if err := node.Decode(&j.config); err != nil {
		return err
	}
	j.config.defaults(defaultPurgeInterval)
	return j.config.parse()
}

// Validate implements core.Validator.
func (j *CachePurge) Validate() error {
	if err := j.config.validate(); err != nil {
		return fmt.Errorf("cache_purge: %w", err)
	}
	return nil
}

// Execute implements core.Job.
func (j *CachePurge) Execute(ctx context.Context, app *core.AppContext) (time.Duration, error) {
	if err := app.Dispatcher().Publish(ctx, events.TopicCachePurge, nil); err != nil {
		return 0, fmt.Errorf("cache_purge: %w", err)
	}
	return j.config.Next(app.Clock().Now()), nil
}
