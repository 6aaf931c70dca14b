package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parley/internal/backend"
	"parley/internal/cache"
	"parley/internal/config"
	"parley/internal/message"
)

// llmAgent talks to a chat completion backend and keeps the conversation
// history of the current episode.
type llmAgent struct {
	id          string
	client      backend.Client
	model       string
	system      string
	maxTokens   int
	temperature float64
	historySize int

	history     []backend.Turn
	observation *message.Message

	cache    *cache.Cache
	logger   *slog.Logger
	tracer   trace.Tracer
	meter    metric.Meter
	counters map[string]metric.Int64Counter
}

func newLLMAgent(_ context.Context, opts config.Options, mf config.ModelFile, deps Deps) (Agent, error) {
	client, err := backend.New(backend.Settings{
		Kind:        opts.Model,
		Endpoint:    mf.Endpoint,
		Credentials: deps.Credentials,
		HTTPClient:  deps.HTTPClient,
		Tracer:      deps.Tracer,
		Meter:       deps.Meter,
	})
	if err != nil {
		return nil, err
	}
	return newLLMAgentWithClient(client, mf, deps), nil
}

func newLLMAgentWithClient(client backend.Client, mf config.ModelFile, deps Deps) *llmAgent {
	return &llmAgent{
		id:          client.Name(),
		client:      client,
		model:       mf.ModelName,
		system:      mf.SystemPrompt,
		maxTokens:   mf.MaxTokens,
		temperature: mf.Temperature,
		historySize: mf.HistorySize,
		cache:       &cache.Cache{},
		logger:      deps.Logger,
		tracer:      deps.Tracer,
		meter:       deps.Meter,
		counters:    make(map[string]metric.Int64Counter),
	}
}

func (a *llmAgent) ID() string { return a.id }

func (a *llmAgent) Observe(msg message.Message) {
	a.observation = &msg
	if strings.TrimSpace(msg.Text) != "" {
		a.history = append(a.history, backend.Turn{Role: backend.RoleUser, Content: msg.Text})
	}
}

func (a *llmAgent) Act(ctx context.Context) (message.Message, error) {
	obs := a.observation
	a.observation = nil
	if obs == nil || strings.TrimSpace(obs.Text) == "" {
		done := obs != nil && obs.EpisodeDone
		if done {
			a.history = nil
		}
		return message.Message{ID: a.id, EpisodeDone: done}, nil
	}

	ctx, span := a.tracer.Start(ctx, "agent.act",
		trace.WithAttributes(attribute.String("agent.id", a.id)))
	defer span.End()

	req := backend.Request{
		Model:       a.model,
		System:      a.system,
		Turns:       a.window(),
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}

	key := cache.Key(req)
	text, hit := a.cache.Get(key)
	if hit {
		a.logger.Info("cache hit", "key", key[:16])
	} else {
		reply, err := a.client.Complete(ctx, req)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return message.Message{}, fmt.Errorf("%s: %w", a.id, err)
		}
		a.recordUsage(ctx, reply.Usage)
		text = reply.Text
		a.cache.Put(key, text)
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))

	a.history = append(a.history, backend.Turn{Role: backend.RoleAssistant, Content: text})
	if obs.EpisodeDone {
		a.history = nil
	}
	return message.Message{ID: a.id, Text: text}, nil
}

// window returns the last historySize turns, starting on a user turn.
func (a *llmAgent) window() []backend.Turn {
	turns := a.history
	if a.historySize > 0 && len(turns) > a.historySize {
		turns = turns[len(turns)-a.historySize:]
	}
	for len(turns) > 1 && turns[0].Role != backend.RoleUser {
		turns = turns[1:]
	}
	return append([]backend.Turn(nil), turns...)
}

// recordUsage adds token usage to llm.usage.<key> counters.
func (a *llmAgent) recordUsage(ctx context.Context, usage map[string]int64) {
	for key, value := range usage {
		counter, ok := a.counters[key]
		if !ok {
			var err error
			counter, err = a.meter.Int64Counter(
				fmt.Sprintf("llm.usage.%s", key),
				metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
			)
			if err != nil {
				a.logger.Warn("failed to create counter", "key", key, "error", err)
				continue
			}
			a.counters[key] = counter
		}
		counter.Add(ctx, value, metric.WithAttributes(attribute.String("backend", a.id)))
	}
}

func (a *llmAgent) Reset() {
	a.history = nil
	a.observation = nil
}

func (a *llmAgent) Shutdown() error { return nil }
