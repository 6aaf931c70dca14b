// Package world runs the turn-taking between a human and a model agent.
package world

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"parley/internal/agent"
	"parley/internal/config"
	"parley/internal/store"
	"parley/internal/telemetry"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrAgentCount  = errors.New("a dialog world needs exactly two agents")
)

// World advances a conversation one exchange at a time.
type World interface {
	// Parley runs one exchange: the first agent acts, the second observes
	// and answers, and the first observes the answer.
	Parley(ctx context.Context) error
	// ParleyScript feeds the next scripted utterance to the model agent.
	ParleyScript(ctx context.Context, req ScriptRequest) error
	// Display renders the acts of the last exchange.
	Display() string
	EpochDone() bool
	EpisodeDone() bool
	Shutdown() error
}

// ScriptRequest describes a scripted evaluation run.
type ScriptRequest struct {
	InputPath  string
	OutputPath string
	ModelFile  string
	Multi      bool
	MultiNum   int
}

// Recorder persists transcripts. *store.Store satisfies it.
type Recorder interface {
	CreateSession(ctx context.Context, sess store.Session) error
	AppendMessages(ctx context.Context, sessionID string, records []store.Record) error
}

// Finisher is implemented by agents that can end the epoch, such as the
// local human.
type Finisher interface {
	Finished() bool
}

// Deps are the services a world writes to.
type Deps struct {
	Out      io.Writer
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Recorder Recorder
}

type taskFactory func(opts config.Options, agents []agent.Agent, deps Deps) World

var tasks = map[string]taskFactory{
	config.TaskInteractive: func(opts config.Options, agents []agent.Agent, deps Deps) World {
		w := newDialogPartnerWorld(opts, agents, deps)
		if opts.InteractiveTask {
			return &InteractiveWorld{DialogPartnerWorld: w}
		}
		return w
	},
}

// Tasks lists the registered task names.
func Tasks() []string {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Create builds the world for opts.Task around agents.
func Create(opts config.Options, agents []agent.Agent, deps Deps) (World, error) {
	build, ok := tasks[opts.Task]
	if !ok {
		return nil, fmt.Errorf("%w: %s (known: %v)", ErrUnknownTask, opts.Task, Tasks())
	}
	if len(agents) != 2 {
		return nil, fmt.Errorf("%w: got %d", ErrAgentCount, len(agents))
	}

	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Tracer == nil {
		deps.Tracer, _ = telemetry.Noop()
	}
	return build(opts, agents, deps), nil
}
