// Package core holds the shared context handed to every job, the Job
// contract, the registry of job kinds, and the component lifecycle.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/taskd/internal/cache"
	"github.com/flemzord/taskd/internal/database"
	"github.com/flemzord/taskd/internal/dispatch"
	"github.com/flemzord/taskd/internal/events"
)

const closeTimeout = 5 * time.Second

// Options configures NewAppContext.
type Options struct {
	Logger   *slog.Logger
	DataDir  string
	Database database.Config
	Cache    cache.Config
	Clock    clockwork.Clock
}

// AppContext carries the process-wide handles shared by every job. It is
// built once at startup and never mutated afterwards; jobs only read the
// handles through the getters.
type AppContext struct {
	logger     *slog.Logger
	dataDir    string
	clock      clockwork.Clock
	db         *database.SessionFactory
	cache      cache.Cache
	dispatcher *dispatch.Dispatcher

	closers []func() error
}

// Handles groups pre-built collaborators for NewAppContextFromHandles.
type Handles struct {
	Logger     *slog.Logger
	DataDir    string
	Clock      clockwork.Clock
	DB         *database.SessionFactory
	Cache      cache.Cache
	Dispatcher *dispatch.Dispatcher
}

// NewAppContext opens the database pool and the cache, then registers the
// process-wide event subscribers built from them. Any failure releases what
// was already opened.
func NewAppContext(ctx context.Context, opts Options) (*AppContext, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	db, err := database.Open(ctx, opts.Database)
	if err != nil {
		return nil, fmt.Errorf("core: shared context: %w", err)
	}

	opts.Cache.Defaults(opts.DataDir)
	store, err := cache.Open(ctx, opts.Cache, opts.Clock)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("core: shared context: %w", err)
	}

	dispatcher := dispatch.New(opts.Logger.With("component", "dispatch"))
	dispatcher.Register(events.NewStoreEvents(db, store, opts.Logger.With("component", "events")))

	app := NewAppContextFromHandles(Handles{
		Logger:     opts.Logger,
		DataDir:    opts.DataDir,
		Clock:      opts.Clock,
		DB:         db,
		Cache:      store,
		Dispatcher: dispatcher,
	})
	app.closers = append(app.closers, store.Close, db.Close)

	opts.Logger.Info("shared context ready",
		"driver", db.Driver(),
		"cache", opts.Cache.Path,
	)
	return app, nil
}

// NewAppContextFromHandles assembles a context from collaborators the caller
// already owns. Close does not release them.
func NewAppContextFromHandles(h Handles) *AppContext {
	if h.Logger == nil {
		h.Logger = slog.Default()
	}
	if h.Clock == nil {
		h.Clock = clockwork.NewRealClock()
	}
	if h.Dispatcher == nil {
		h.Dispatcher = dispatch.New(h.Logger)
	}
	return &AppContext{
		logger:     h.Logger,
		dataDir:    h.DataDir,
		clock:      h.Clock,
		db:         h.DB,
		cache:      h.Cache,
		dispatcher: h.Dispatcher,
	}
}

// Logger returns the base logger.
func (a *AppContext) Logger() *slog.Logger { return a.logger }

// DataDir returns the root directory for persistent data.
func (a *AppContext) DataDir() string { return a.dataDir }

// Clock returns the clock shared by the daemon.
func (a *AppContext) Clock() clockwork.Clock { return a.clock }

// DB returns the session factory.
func (a *AppContext) DB() *database.SessionFactory { return a.db }

// Cache returns the cache handle.
func (a *AppContext) Cache() cache.Cache { return a.cache }

// Dispatcher returns the event dispatcher.
func (a *AppContext) Dispatcher() *dispatch.Dispatcher { return a.dispatcher }

// Close waits for pending async events and releases the handles opened by
// NewAppContext, in reverse order of opening.
func (a *AppContext) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	var errs []error
	if err := a.dispatcher.Wait(ctx); err != nil {
		errs = append(errs, fmt.Errorf("core: waiting for events: %w", err))
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// jobHeader is decoded first to pick the job kind.
type jobHeader struct {
	Kind string `yaml:"kind"`
}

// LoadJob instantiates and provisions a job from its config entry.
// It calls Configure, Provision and Validate if the job implements
// those interfaces. The lifecycle order is:
//
//	New() → Configure() → Provision() → Validate()
func (a *AppContext) LoadJob(name string, node *yaml.Node) (Job, error) {
	var hdr jobHeader
	if err := node.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", name, err)
	}
	if hdr.Kind == "" {
		return nil, fmt.Errorf("job %s: kind is required", name)
	}

	jt, ok := GetJobType(hdr.Kind)
	if !ok {
		return nil, fmt.Errorf("job %s: unknown kind %q", name, hdr.Kind)
	}

	job := jt.New(name)

	// Lifecycle hooks live on the adapted job, not on the FromAsync wrapper.
	var target any = job
	if u, ok := job.(interface{ Unwrap() AsyncJob }); ok {
		target = u.Unwrap()
	}

	if c, ok := target.(Configurable); ok {
		if err := c.Configure(node); err != nil {
			return nil, fmt.Errorf("configuring job %s: %w", name, err)
		}
	}

	if p, ok := target.(Provisioner); ok {
		if err := p.Provision(a); err != nil {
			return nil, fmt.Errorf("provisioning job %s: %w", name, err)
		}
	}

	if v, ok := target.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("validating job %s: %w", name, err)
		}
	}

	return job, nil
}
