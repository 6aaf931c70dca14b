// Package interactive wires a model agent, the local human and a world into
// the chat loop.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parley/internal/agent"
	"parley/internal/config"
	"parley/internal/human"
	"parley/internal/store"
	"parley/internal/world"
)

// Deps are the process-level services a run uses. Store may be nil.
type Deps struct {
	In          io.Reader
	Out         io.Writer
	Logger      *slog.Logger
	Tracer      trace.Tracer
	Meter       metric.Meter
	Store       *store.Store
	HTTPClient  *http.Client
	Credentials config.Credentials
}

// Run creates the agents and the world for opts and advances the world until
// its epoch is done. Cancelling ctx ends the chat without an error.
func Run(ctx context.Context, opts config.Options, deps Deps) (err error) {
	if deps.In == nil {
		deps.In = os.Stdin
	}
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	opts, err = config.Normalize(opts)
	if err != nil {
		return err
	}

	model, opts, err := agent.Create(ctx, opts, true, agent.Deps{
		Logger:      deps.Logger,
		Tracer:      deps.Tracer,
		Meter:       deps.Meter,
		HTTPClient:  deps.HTTPClient,
		Credentials: deps.Credentials,
	})
	if err != nil {
		return err
	}
	if opts.PrintArgs {
		config.PrintArgs(deps.Out, opts)
	}

	person, err := human.New(opts, deps.In, deps.Out)
	if err != nil {
		return errors.Join(err, model.Shutdown())
	}

	worldDeps := world.Deps{Out: deps.Out, Logger: deps.Logger, Tracer: deps.Tracer}
	if deps.Store != nil {
		worldDeps.Recorder = deps.Store
	}
	w, err := world.Create(opts, []agent.Agent{person, model}, worldDeps)
	if err != nil {
		return errors.Join(err, model.Shutdown())
	}
	defer func() {
		if shutdownErr := w.Shutdown(); shutdownErr != nil {
			deps.Logger.Error("failed to shut down world", "error", shutdownErr)
			if err == nil {
				err = shutdownErr
			}
		}
	}()

	deps.Logger.Info("starting chat", "task", opts.Task, "model", opts.Model, "script", opts.ChatScript)

	step := func(ctx context.Context) error { return w.Parley(ctx) }
	if opts.ChatScript {
		req := world.ScriptRequest{
			InputPath:  opts.ScriptInputPath,
			OutputPath: opts.ScriptOutputPath,
			ModelFile:  opts.ModelFile,
			Multi:      opts.ChatevalMulti,
			MultiNum:   opts.ChatevalMultiNum,
		}
		step = func(ctx context.Context) error { return w.ParleyScript(ctx, req) }
	} else {
		person.Banner()
	}

	for !w.EpochDone() {
		if err := step(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				deps.Logger.Info("chat interrupted")
				return nil
			}
			return err
		}
		if opts.DisplayExamples {
			fmt.Fprintln(deps.Out, "---")
			fmt.Fprintln(deps.Out, w.Display())
		}
	}
	if ctx.Err() != nil {
		deps.Logger.Info("chat interrupted")
		return nil
	}
	deps.Logger.Info("chat finished")
	return nil
}
