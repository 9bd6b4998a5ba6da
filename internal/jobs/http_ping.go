package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/taskd/internal/core"
)

func init() {
	core.RegisterJobType(core.JobType{
		Kind: KindHTTPPing,
		New: func(name string) core.Job {
			return core.FromAsync(&HTTPPing{name: name})
		},
	})
}

// KindHTTPPing calls an HTTP endpoint on a cadence, e.g. a dynamic DNS
// update URL.
const KindHTTPPing = "http_ping"

const (
	defaultPingInterval = 5 * time.Minute
	defaultPingTimeout  = 10 * time.Second
	maxCachedBody       = 64 << 10
)

// HTTPPingConfig is the YAML shape of an http_ping job.
type HTTPPingConfig struct {
	Cadence `yaml:",inline"`

	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Body    string            `yaml:"body"`
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout"`

	// CacheKey stores the last response body in the shared cache for twice
	// the interval.
	CacheKey string `yaml:"cache_key"`
}

// HTTPPing completes asynchronously: the request runs on its own goroutine
// and the result is delivered on a channel.
type HTTPPing struct {
	name   string
	config HTTPPingConfig
	client *http.Client
}

// Compile-time interface checks.
var (
	_ core.AsyncJob     = (*HTTPPing)(nil)
	_ core.Configurable = (*HTTPPing)(nil)
	_ core.Validator    = (*HTTPPing)(nil)
)

// Name implements core.AsyncJob.
func (j *HTTPPing) Name() string { return j.name }

// Configure implements core.Configurable.
func (j *HTTPPing) Configure(node *yaml.Node) error {
	if err := node.Decode(&j.config); err != nil {
		return err
	}
	j.config.defaults(defaultPingInterval)
	if j.config.Method == "" {
		j.config.Method = http.MethodGet
	}
	if j.config.Timeout <= 0 {
		j.config.Timeout = defaultPingTimeout
	}
	j.client = &http.Client{Timeout: j.config.Timeout}
	return j.config.parse()
}

// Validate implements core.Validator.
func (j *HTTPPing) Validate() error {
	var errs []error
	if err := j.config.validate(); err != nil {
		errs = append(errs, fmt.Errorf("http_ping: %w", err))
	}
	u, err := url.Parse(j.config.URL)
	switch {
	case j.config.URL == "":
		errs = append(errs, errors.New("http_ping: url is required"))
	case err != nil:
		errs = append(errs, fmt.Errorf("http_ping: invalid url: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("http_ping: unsupported scheme %q", u.Scheme))
	}
	return errors.Join(errs...)
}

// ExecuteAsync implements core.AsyncJob.
func (j *HTTPPing) ExecuteAsync(ctx context.Context, app *core.AppContext) <-chan core.Result {
	ch := make(chan core.Result, 1)
	go func() {
		defer close(ch)
		if err := j.ping(ctx, app); err != nil {
			ch <- core.Result{Err: err}
			return
		}
		ch <- core.Result{Delay: j.config.Next(app.Clock().Now())}
	}()
	return ch
}

func (j *HTTPPing) ping(ctx context.Context, app *core.AppContext) error {
	var body io.Reader
	if j.config.Body != "" {
		body = strings.NewReader(j.config.Body)
	}
	req, err := http.NewRequestWithContext(ctx, j.config.Method, j.config.URL, body)
	if err != nil {
		return fmt.Errorf("http_ping: building request: %w", err)
	}
	for k, v := range j.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("http_ping: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxCachedBody))
	if err != nil {
		return fmt.Errorf("http_ping: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("http_ping: %s %s: unexpected status %d", j.config.Method, j.config.URL, resp.StatusCode)
	}

	if j.config.CacheKey != "" && app.Cache() != nil {
		ttl := 2 * j.config.Next(app.Clock().Now())
		if err := app.Cache().Set(ctx, j.config.CacheKey, data, ttl); err != nil {
			app.Logger().Warn("http_ping: caching response failed", "job", j.name, "error", err)
		}
	}

	app.Logger().Debug("http_ping done", "job", j.name, "status", resp.StatusCode)
	return nil
}
