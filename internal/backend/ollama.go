package backend

import (
	"context"
	"strings"
)

const defaultOllamaModel = "llama3:latest"

// ollamaRequest represents the request body for the Ollama chat API
type ollamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

// ollamaResponse represents the response from the Ollama chat API
type ollamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool  `json:"done"`
	PromptEvalCount int64 `json:"prompt_eval_count"`
	EvalCount       int64 `json:"eval_count"`
}

type ollamaClient struct {
	s    Settings
	host string
	inst instruments
}

func newOllama(s Settings) *ollamaClient {
	return &ollamaClient{
		s:    s,
		host: strings.TrimRight(orDefault(s.Endpoint, s.Credentials.OllamaHost), "/"),
		inst: newInstruments(s),
	}
}

func (c *ollamaClient) Name() string { return "ollama" }

func (c *ollamaClient) Complete(ctx context.Context, req Request) (reply Reply, err error) {
	ctx, span, start := c.inst.start(ctx, "ollama")
	defer func() { c.inst.finish(ctx, span, start, "ollama", err) }()

	body := ollamaRequest{
		Model:    orDefault(req.Model, defaultOllamaModel),
		Messages: chatMessages(req, true),
		Stream:   false,
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		body.Options = map[string]any{}
		if req.Temperature > 0 {
			body.Options["temperature"] = req.Temperature
		}
		if req.MaxTokens > 0 {
			body.Options["num_predict"] = req.MaxTokens
		}
	}

	var resp ollamaResponse
	if err := postJSON(ctx, c.s.HTTPClient, c.host+"/api/chat", nil, body, &resp); err != nil {
		return Reply{}, err
	}
	return Reply{
		Text: resp.Message.Content,
		Usage: map[string]int64{
			"prompt_eval_count": resp.PromptEvalCount,
			"eval_count":        resp.EvalCount,
		},
	}, nil
}
