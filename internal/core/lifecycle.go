package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Optional hooks a job kind may implement. LoadJob calls them in order:
// Configure, Provision, Validate.

// Configurable receives the job's YAML entry, including its kind key.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner prepares a configured job against the shared context, e.g.
// creating tables or warming the cache.
type Provisioner interface {
	Provision(app *AppContext) error
}

// Validator checks the final job configuration. It must not have side
// effects.
type Validator interface {
	Validate() error
}

// Starter and Stopper are implemented by long-running components managed by
// App: the scheduler and the admin gateway.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is called in reverse start order during shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
}
