package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// trackingJob is a test helper that tracks lifecycle calls.
type trackingJob struct {
	name         string
	key          string
	provisioned  bool
	validated    bool
	configErr    error
	provisionErr error
	validateErr  error
}

func (j *trackingJob) Name() string { return j.name }

func (j *trackingJob) Execute(context.Context, *AppContext) (time.Duration, error) {
	return time.Second, nil
}

func (j *trackingJob) Configure(node *yaml.Node) error {
	if j.configErr != nil {
		return j.configErr
	}
	var parsed struct {
		Key string `yaml:"key"`
	}
	if err := node.Decode(&parsed); err != nil {
		return err
	}
	j.key = parsed.Key
	return nil
}

func (j *trackingJob) Provision(*AppContext) error {
	j.provisioned = true
	return j.provisionErr
}

func (j *trackingJob) Validate() error {
	j.validated = true
	return j.validateErr
}

func mustNode(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatal(err)
	}
	return doc.Content[0]
}

func TestRegisterJobType_Panics(t *testing.T) {
	t.Cleanup(resetRegistry)

	cases := map[string]JobType{
		"empty kind": {New: func(string) Job { return nil }},
		"nil New":    {Kind: "x"},
	}
	for name, jt := range cases {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			RegisterJobType(jt)
		})
	}

	RegisterJobType(JobType{Kind: "dup", New: func(string) Job { return nil }})
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate kind")
		}
	}()
	RegisterJobType(JobType{Kind: "dup", New: func(string) Job { return nil }})
}

func TestGetJobTypes_Sorted(t *testing.T) {
	t.Cleanup(resetRegistry)

	for _, k := range []string{"zeta", "alpha", "mid"} {
		RegisterJobType(JobType{Kind: k, New: func(string) Job { return nil }})
	}
	got := GetJobTypes()
	if len(got) != 3 || got[0].Kind != "alpha" || got[2].Kind != "zeta" {
		t.Errorf("GetJobTypes = %+v", got)
	}
}

func TestAppContext_LoadJob(t *testing.T) {
	t.Cleanup(resetRegistry)

	var created *trackingJob
	RegisterJobType(JobType{Kind: "tracking", New: func(name string) Job {
		created = &trackingJob{name: name}
		return created
	}})

	app := NewAppContextFromHandles(Handles{})
	job, err := app.LoadJob("nightly", mustNode(t, "kind: tracking\nkey: hello"))
	if err != nil {
		t.Fatalf("LoadJob: %v", err)
	}
	if job.Name() != "nightly" {
		t.Errorf("Name = %q", job.Name())
	}
	if created.key != "hello" {
		t.Errorf("key = %q, want hello", created.key)
	}
	if !created.provisioned || !created.validated {
		t.Error("Provision/Validate not called")
	}
}

func TestAppContext_LoadJob_Errors(t *testing.T) {
	t.Cleanup(resetRegistry)

	boom := errors.New("boom")
	RegisterJobType(JobType{Kind: "cfgfail", New: func(n string) Job { return &trackingJob{name: n, configErr: boom} }})
	RegisterJobType(JobType{Kind: "provfail", New: func(n string) Job { return &trackingJob{name: n, provisionErr: boom} }})
	RegisterJobType(JobType{Kind: "valfail", New: func(n string) Job { return &trackingJob{name: n, validateErr: boom} }})

	app := NewAppContextFromHandles(Handles{})

	tests := []struct {
		src  string
		want string
	}{
		{"key: x", "kind is required"},
		{"kind: nope", "unknown kind"},
		{"kind: cfgfail", "configuring job"},
		{"kind: provfail", "provisioning job"},
		{"kind: valfail", "validating job"},
	}
	for _, tt := range tests {
		_, err := app.LoadJob("j", mustNode(t, tt.src))
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%q: err = %v, want containing %q", tt.src, err, tt.want)
		}
	}
}

type configurableAsync struct {
	name string
	key  string
}

func (j *configurableAsync) Name() string { return j.name }

func (j *configurableAsync) ExecuteAsync(context.Context, *AppContext) <-chan Result {
	ch := make(chan Result, 1)
	ch <- Result{Delay: time.Minute}
	return ch
}

func (j *configurableAsync) Configure(node *yaml.Node) error {
	var parsed struct {
		Key string `yaml:"key"`
	}
	if err := node.Decode(&parsed); err != nil {
		return err
	}
	j.key = parsed.Key
	return nil
}

func TestAppContext_LoadJob_Async(t *testing.T) {
	t.Cleanup(resetRegistry)

	var created *configurableAsync
	RegisterJobType(JobType{Kind: "async", New: func(name string) Job {
		created = &configurableAsync{name: name}
		return FromAsync(created)
	}})

	app := NewAppContextFromHandles(Handles{})
	job, err := app.LoadJob("ddns", mustNode(t, "kind: async\nkey: wrapped"))
	if err != nil {
		t.Fatalf("LoadJob: %v", err)
	}
	if created.key != "wrapped" {
		t.Errorf("Configure not forwarded through FromAsync, key = %q", created.key)
	}
	if d, err := job.Execute(context.Background(), app); err != nil || d != time.Minute {
		t.Errorf("Execute = %v, %v", d, err)
	}
}
