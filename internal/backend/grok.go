package backend

import (
	"context"
	"errors"
	"strings"
)

const (
	defaultGrokURL   = "https://api.x.ai/v1"
	defaultGrokModel = "grok-1"
)

// chatCompletionRequest is the OpenAI-compatible request body Grok accepts.
type chatCompletionRequest struct {
	Model       string              `json:"model"`
	Messages    []map[string]string `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}

// chatCompletionResponse is the OpenAI-compatible response body.
type chatCompletionResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

type grokClient struct {
	s    Settings
	base string
	inst instruments
}

func newGrok(s Settings) (*grokClient, error) {
	if s.Credentials.GrokAPIKey == "" {
		return nil, errors.New("GROK_API_KEY not set")
	}
	return &grokClient{
		s:    s,
		base: strings.TrimRight(orDefault(s.Endpoint, defaultGrokURL), "/"),
		inst: newInstruments(s),
	}, nil
}

func (c *grokClient) Name() string { return "grok" }

func (c *grokClient) Complete(ctx context.Context, req Request) (reply Reply, err error) {
	ctx, span, start := c.inst.start(ctx, "grok")
	defer func() { c.inst.finish(ctx, span, start, "grok", err) }()

	body := chatCompletionRequest{
		Model:       orDefault(req.Model, defaultGrokModel),
		Messages:    chatMessages(req, true),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	headers := map[string]string{"Authorization": "Bearer " + c.s.Credentials.GrokAPIKey}

	var resp chatCompletionResponse
	if err := postJSON(ctx, c.s.HTTPClient, c.base+"/chat/completions", headers, body, &resp); err != nil {
		return Reply{}, err
	}
	if len(resp.Choices) == 0 {
		return Reply{}, errors.New("empty response from Grok")
	}
	return Reply{Text: resp.Choices[0].Message.Content, Usage: usageCounts(resp.Usage)}, nil
}
