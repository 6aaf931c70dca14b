package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"parley/internal/config"
)

// Role is the speaker of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation sent to a backend.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-agnostic chat completion request.
type Request struct {
	Model       string
	System      string
	Turns       []Turn
	MaxTokens   int
	Temperature float64
}

// Reply is the backend's answer plus token usage by name.
type Reply struct {
	Text  string
	Usage map[string]int64
}

// Client completes conversations against one LLM provider.
type Client interface {
	Name() string
	Complete(ctx context.Context, req Request) (Reply, error)
}

// Settings configures a backend client.
type Settings struct {
	Kind        string
	Endpoint    string
	Credentials config.Credentials
	HTTPClient  *http.Client
	Tracer      trace.Tracer
	Meter       metric.Meter
}

// New builds the client for settings.Kind.
func New(s Settings) (Client, error) {
	if s.HTTPClient == nil {
		s.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	switch s.Kind {
	case config.ModelOpenAI:
		return newOpenAI(s)
	case config.ModelOllama:
		return newOllama(s), nil
	case config.ModelAnthropic:
		return newAnthropic(s)
	case config.ModelGrok:
		return newGrok(s)
	default:
		return nil, fmt.Errorf("unknown backend: %s", s.Kind)
	}
}

// instruments holds the span and latency histogram shared by all backends.
type instruments struct {
	tracer   trace.Tracer
	duration metric.Float64Histogram
}

func newInstruments(s Settings) instruments {
	inst := instruments{tracer: s.Tracer}
	if s.Meter != nil {
		h, err := s.Meter.Float64Histogram(
			"http.client.request.duration",
			metric.WithDescription("HTTP request duration in milliseconds"),
		)
		if err == nil {
			inst.duration = h
		}
	}
	return inst
}

func (i instruments) start(ctx context.Context, name string) (context.Context, trace.Span, time.Time) {
	if i.tracer == nil {
		return ctx, trace.SpanFromContext(ctx), time.Now()
	}
	ctx, span := i.tracer.Start(ctx, name+"_api_call")
	return ctx, span, time.Now()
}

func (i instruments) finish(ctx context.Context, span trace.Span, start time.Time, backend string, err error) {
	if i.duration != nil {
		i.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
			metric.WithAttributes(attribute.String("backend", backend)))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// postJSON sends body as JSON and decodes a 200 response into out.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("content-type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error: %s - %s", resp.Status, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// chatMessages flattens the system prompt and turns into role/content maps.
func chatMessages(req Request, withSystem bool) []map[string]string {
	msgs := make([]map[string]string, 0, len(req.Turns)+1)
	if withSystem && req.System != "" {
		msgs = append(msgs, map[string]string{"role": string(RoleSystem), "content": req.System})
	}
	for _, t := range req.Turns {
		msgs = append(msgs, map[string]string{"role": string(t.Role), "content": t.Content})
	}
	return msgs
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
