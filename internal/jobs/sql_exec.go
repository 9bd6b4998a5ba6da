package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/taskd/internal/core"
	"github.com/flemzord/taskd/internal/events"
)

func init() {
	core.RegisterJobType(core.JobType{
		Kind: KindSQLExec,
		New:  func(name string) core.Job { return &SQLExec{name: name} },
	})
}

// KindSQLExec runs SQL statements in one transaction per run.
const KindSQLExec = "sql_exec"

const (
	defaultSQLInterval   = time.Minute
	defaultBackoffFactor = 2.0
)

// SQLExecConfig is the YAML shape of a sql_exec job.
type SQLExecConfig struct {
	Cadence `yaml:",inline"`

	Statements []string `yaml:"statements"`

	// Invalidate lists cache keys dropped after a successful commit.
	Invalidate []string `yaml:"invalidate"`

	// A run slower than SlowThreshold multiplies the next delay by
	// BackoffFactor, capped at MaxInterval. A fast run resets it.
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	MaxInterval   time.Duration `yaml:"max_interval"`
}

// SQLExec executes the configured statements against the shared pool.
type SQLExec struct {
	name   string
	config SQLExecConfig

	// factor is only touched by Execute, which never overlaps itself.
	factor float64
}

// Compile-time interface checks.
var (
	_ core.Job          = (*SQLExec)(nil)
	_ core.Configurable = (*SQLExec)(nil)
	_ core.Provisioner  = (*SQLExec)(nil)
	_ core.Validator    = (*SQLExec)(nil)
)

// Name implements core.Job.
func (j *SQLExec) Name() string { return j.name }

// Configure implements core.Configurable.
func (j *SQLExec) Configure(node *yaml.Node) error {
	if err := node.Decode(&j.config); err != nil {
		return err
	}
	j.config.defaults(defaultSQLInterval)
	if j.config.BackoffFactor == 0 {
		j.config.BackoffFactor = defaultBackoffFactor
	}
	j.factor = 1
	return j.config.parse()
}

// Provision implements core.Provisioner.
func (j *SQLExec) Provision(app *core.AppContext) error {
	if app.DB() == nil {
		return errors.New("sql_exec: database is not configured")
	}
	return nil
}

// Validate implements core.Validator.
func (j *SQLExec) Validate() error {
	var errs []error
	if err := j.config.validate(); err != nil {
		errs = append(errs, fmt.Errorf("sql_exec: %w", err))
	}
	if len(j.config.Statements) == 0 {
		errs = append(errs, errors.New("sql_exec: at least one statement is required"))
	}
	if j.config.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("sql_exec: backoff_factor must be >= 1, got %g", j.config.BackoffFactor))
	}
	if j.config.MaxInterval < 0 {
		errs = append(errs, errors.New("sql_exec: max_interval must not be negative"))
	}
	return errors.Join(errs...)
}

// Execute implements core.Job.
func (j *SQLExec) Execute(ctx context.Context, app *core.AppContext) (time.Duration, error) {
	clock := app.Clock()
	start := clock.Now()

	var affected int64
	err := app.DB().WithTx(ctx, func(tx *sql.Tx) error {
		for i, stmt := range j.config.Statements {
			res, err := tx.ExecContext(ctx, stmt)
			if err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
			if n, err := res.RowsAffected(); err == nil {
				affected += n
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sql_exec: %w", err)
	}
	elapsed := clock.Since(start)

	if len(j.config.Invalidate) > 0 {
		app.Dispatcher().PublishAsync(ctx, events.TopicCacheInvalidate, j.config.Invalidate)
	}

	delay := j.nextDelay(j.config.Next(clock.Now()), elapsed)
	app.Logger().Debug("sql_exec done",
		"job", j.name,
		"rows", affected,
		"duration", elapsed,
		"next_in", delay,
	)
	return delay, nil
}

// nextDelay applies the slow-run backoff to base.
func (j *SQLExec) nextDelay(base, elapsed time.Duration) time.Duration {
	if j.config.SlowThreshold <= 0 {
		return base
	}
	if elapsed > j.config.SlowThreshold {
		j.factor *= j.config.BackoffFactor
	} else {
		j.factor = 1
	}

	delay := time.Duration(float64(base) * j.factor)
	if j.config.MaxInterval > 0 && delay > j.config.MaxInterval {
		delay = j.config.MaxInterval
		// Hold the factor at the cap.
		j.factor = float64(j.config.MaxInterval) / float64(max(base, 1))
	}
	return delay
}
