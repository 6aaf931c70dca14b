package world

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"parley/internal/agent"
	"parley/internal/config"
	"parley/internal/message"
	"parley/internal/store"
)

// DialogPartnerWorld alternates between two agents. The first one speaks
// first and the second one answers.
type DialogPartnerWorld struct {
	opts   config.Options
	agents []agent.Agent
	acts   [2]message.Message
	turns  int

	out      io.Writer
	logger   *slog.Logger
	tracer   trace.Tracer
	recorder Recorder
	session  *store.Session

	script *scriptState
}

func newDialogPartnerWorld(opts config.Options, agents []agent.Agent, deps Deps) *DialogPartnerWorld {
	return &DialogPartnerWorld{
		opts:     opts,
		agents:   agents,
		out:      deps.Out,
		logger:   deps.Logger,
		tracer:   deps.Tracer,
		recorder: deps.Recorder,
	}
}

func (w *DialogPartnerWorld) Parley(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := w.tracer.Start(ctx, "world.parley",
		trace.WithAttributes(attribute.Int("world.turn", w.turns)))
	defer span.End()

	first, second := w.agents[0], w.agents[1]

	act, err := first.Act(ctx)
	if err != nil {
		return w.fail(span, fmt.Errorf("%s act: %w", first.ID(), err))
	}
	w.acts = [2]message.Message{act}
	if w.EpochDone() {
		w.logger.Info("epoch finished", "agent", first.ID(), "turns", w.turns)
		return nil
	}

	second.Observe(act)
	reply, err := second.Act(ctx)
	if err != nil {
		return w.fail(span, fmt.Errorf("%s act: %w", second.ID(), err))
	}
	w.acts[1] = reply
	first.Observe(reply)

	w.record(ctx, w.acts[:]...)
	w.turns++
	return nil
}

func (w *DialogPartnerWorld) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Display renders the acts of the last exchange.
func (w *DialogPartnerWorld) Display() string {
	return message.Display(w.acts[:], message.DisplayOptions{
		IgnoreFields: w.opts.IgnoreFields,
		Prettify:     w.opts.DisplayPrettify,
	})
}

// EpisodeDone reports whether either act of the last exchange ended the episode.
func (w *DialogPartnerWorld) EpisodeDone() bool {
	return w.acts[0].EpisodeDone || w.acts[1].EpisodeDone
}

// EpochDone is true once the script is exhausted or, in interactive use,
// once the first agent has finished.
func (w *DialogPartnerWorld) EpochDone() bool {
	if w.script != nil {
		return w.script.done
	}
	if f, ok := w.agents[0].(Finisher); ok {
		return f.Finished()
	}
	return false
}

// Reset resets both agents and starts a new stored session.
func (w *DialogPartnerWorld) Reset() {
	for _, a := range w.agents {
		a.Reset()
	}
	w.turns = 0
	w.session = nil
}

// Shutdown shuts the agents down concurrently and closes script output.
func (w *DialogPartnerWorld) Shutdown() error {
	var g errgroup.Group
	for _, a := range w.agents {
		g.Go(a.Shutdown)
	}
	if w.script != nil {
		g.Go(w.script.close)
	}
	return g.Wait()
}

// record stores the non-empty acts of one exchange. Storage failures are
// logged and never stop the conversation.
func (w *DialogPartnerWorld) record(ctx context.Context, acts ...message.Message) {
	if w.recorder == nil {
		return
	}
	if w.session == nil {
		sess := store.NewSession(w.opts.Task, w.agents[1].ID())
		if err := w.recorder.CreateSession(ctx, sess); err != nil {
			w.logger.Warn("failed to save session", "error", err)
			return
		}
		w.session = &sess
		w.logger.Info("created new session", "session_id", sess.ID, "model", sess.Model)
	}

	records := make([]store.Record, 0, len(acts))
	for _, act := range acts {
		if act.IsEmpty() {
			continue
		}
		records = append(records, store.Record{
			Turn:        w.turns,
			Speaker:     act.ID,
			Content:     act.Text,
			EpisodeDone: act.EpisodeDone,
		})
	}
	if err := w.recorder.AppendMessages(ctx, w.session.ID, records); err != nil {
		w.logger.Warn("failed to save messages", "session_id", w.session.ID, "error", err)
	}
}

// InteractiveWorld is a DialogPartnerWorld that starts a new chat whenever
// an episode ends.
type InteractiveWorld struct {
	*DialogPartnerWorld
	episodes int
}

func (w *InteractiveWorld) Parley(ctx context.Context) error {
	if err := w.DialogPartnerWorld.Parley(ctx); err != nil {
		return err
	}
	if !w.EpisodeDone() {
		return nil
	}

	fmt.Fprint(w.out, "\nCHAT DONE\n\n")
	if !w.EpochDone() {
		fmt.Fprint(w.out, "\n... preparing new chat ...\n\n")
	}
	w.episodes++
	w.logger.Info("episode finished", "episode", w.episodes, "turns", w.turns)
	w.Reset()
	return nil
}

// Episodes returns how many chats have ended.
func (w *InteractiveWorld) Episodes() int { return w.episodes }
