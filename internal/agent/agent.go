package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parley/internal/config"
	"parley/internal/message"
	"parley/internal/telemetry"
)

var ErrUnknownModel = errors.New("unknown model type")

// Agent is a participant of a world.
type Agent interface {
	// ID names the agent in displays and stored transcripts.
	ID() string
	// Observe hands the agent the latest act of its partner.
	Observe(msg message.Message)
	// Act produces the agent's next message.
	Act(ctx context.Context) (message.Message, error)
	// Reset clears per-episode state.
	Reset()
	// Shutdown releases processes and connections held by the agent.
	Shutdown() error
}

// Deps are the shared services agents are built with. Zero values are
// replaced with defaults.
type Deps struct {
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Meter       metric.Meter
	HTTPClient  *http.Client
	Credentials config.Credentials
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Tracer == nil || d.Meter == nil {
		tracer, meter := telemetry.Noop()
		if d.Tracer == nil {
			d.Tracer = tracer
		}
		if d.Meter == nil {
			d.Meter = meter
		}
	}
	if d.HTTPClient == nil {
		d.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if d.Credentials == (config.Credentials{}) {
		d.Credentials = config.CredentialsFromEnv()
	}
	return d
}

// Factory builds an agent from the effective options and the model file.
type Factory func(ctx context.Context, opts config.Options, mf config.ModelFile, deps Deps) (Agent, error)

var registry = map[string]Factory{
	config.ModelRepeatQuery:     newRepeatQuery,
	config.ModelRandomCandidate: newRandomCandidate,
	config.ModelOpenAI:          newLLMAgent,
	config.ModelOllama:          newLLMAgent,
	config.ModelAnthropic:       newLLMAgent,
	config.ModelGrok:            newLLMAgent,
	config.ModelRemote:          newRemoteAgent,
}

// Register makes an agent type available to Create. It panics when name is
// already registered or f is nil.
func Register(name string, f Factory) {
	if f == nil {
		panic("agent: Register factory is nil")
	}
	if _, dup := registry[name]; dup {
		panic("agent: Register called twice for " + name)
	}
	registry[name] = f
}

// Models lists the registered agent types.
func Models() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the agent described by opts and its model file. It returns
// the agent together with the options it actually runs with, which include
// the model file's overrides.
//
// With requireModelExists a missing model file is an error; otherwise it is
// logged and the agent is created from opts alone.
func Create(ctx context.Context, opts config.Options, requireModelExists bool, deps Deps) (Agent, config.Options, error) {
	deps = deps.withDefaults()

	var mf config.ModelFile
	if path := config.ResolveModelFile(opts); path != "" {
		loaded, err := config.LoadModelFile(path)
		switch {
		case err == nil:
			mf = loaded
			opts.ModelFile = path
		case errors.Is(err, config.ErrModelNotFound) && !requireModelExists:
			deps.Logger.Warn("model file not found, continuing without it", "path", path)
		default:
			return nil, opts, err
		}
	}

	effective, err := config.ApplyOverrides(opts, mf)
	if err != nil {
		return nil, opts, err
	}
	if effective.Model == "" {
		return nil, effective, config.ErrNoModel
	}

	build, ok := registry[effective.Model]
	if !ok {
		return nil, effective, fmt.Errorf("%w: %s (known: %v)", ErrUnknownModel, effective.Model, Models())
	}
	a, err := build(ctx, effective, mf, deps)
	if err != nil {
		return nil, effective, fmt.Errorf("create %s agent: %w", effective.Model, err)
	}

	deps.Logger.Info("created agent", "model", effective.Model, "id", a.ID(), "model_file", mf.Path)
	return a, effective, nil
}
