package backend

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultAnthropicURL   = "https://api.anthropic.com"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
	anthropicVersion      = "2023-06-01"
)

// anthropicRequest represents the request body for the Anthropic messages API
type anthropicRequest struct {
	Model       string              `json:"model"`
	MaxTokens   int                 `json:"max_tokens"`
	System      string              `json:"system,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
	Messages    []map[string]string `json:"messages"`
}

// anthropicResponse represents the response from the Anthropic messages API
type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      map[string]any `json:"usage"`
}

type anthropicClient struct {
	s    Settings
	base string
	inst instruments
}

func newAnthropic(s Settings) (*anthropicClient, error) {
	if s.Credentials.AnthropicAPIKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not set")
	}
	return &anthropicClient{
		s:    s,
		base: strings.TrimRight(orDefault(s.Endpoint, defaultAnthropicURL), "/"),
		inst: newInstruments(s),
	}, nil
}

func (c *anthropicClient) Name() string { return "anthropic" }

func (c *anthropicClient) Complete(ctx context.Context, req Request) (reply Reply, err error) {
	ctx, span, start := c.inst.start(ctx, "anthropic")
	defer func() { c.inst.finish(ctx, span, start, "anthropic", err) }()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	body := anthropicRequest{
		Model:       orDefault(req.Model, defaultAnthropicModel),
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages:    chatMessages(req, false),
	}
	headers := map[string]string{
		"x-api-key":         c.s.Credentials.AnthropicAPIKey,
		"anthropic-version": anthropicVersion,
	}

	var resp anthropicResponse
	if err := postJSON(ctx, c.s.HTTPClient, c.base+"/v1/messages", headers, body, &resp); err != nil {
		return Reply{}, err
	}
	for _, content := range resp.Content {
		if content.Type == "text" {
			return Reply{Text: content.Text, Usage: usageCounts(resp.Usage)}, nil
		}
	}
	return Reply{}, errors.New("empty response from Anthropic")
}

// usageCounts keeps the numeric entries of a decoded usage object.
func usageCounts(usage map[string]any) map[string]int64 {
	out := make(map[string]int64, len(usage))
	for k, v := range usage {
		if n, ok := v.(float64); ok {
			out[k] = int64(n)
		}
	}
	return out
}
