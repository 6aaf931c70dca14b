package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const defaultOpenAIModel = "gpt-4o-mini"

type openAIClient struct {
	client openai.Client
	inst   instruments
}

func newOpenAI(s Settings) (*openAIClient, error) {
	if s.Credentials.OpenAIAPIKey == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(s.Credentials.OpenAIAPIKey),
		option.WithHTTPClient(s.HTTPClient),
	}
	if base := orDefault(s.Endpoint, s.Credentials.OpenAIBaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	return &openAIClient{
		client: openai.NewClient(opts...),
		inst:   newInstruments(s),
	}, nil
}

func (c *openAIClient) Name() string { return "openai" }

func (c *openAIClient) Complete(ctx context.Context, req Request) (reply Reply, err error) {
	ctx, span, start := c.inst.start(ctx, "openai")
	defer func() { c.inst.finish(ctx, span, start, "openai", err) }()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, t := range req.Turns {
		switch t.Role {
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(t.Content))
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(t.Content))
		default:
			messages = append(messages, openai.UserMessage(t.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(orDefault(req.Model, defaultOpenAIModel)),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Reply{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Reply{}, errors.New("empty response from OpenAI")
	}
	return Reply{
		Text: completion.Choices[0].Message.Content,
		Usage: map[string]int64{
			"prompt_tokens":     completion.Usage.PromptTokens,
			"completion_tokens": completion.Usage.CompletionTokens,
			"total_tokens":      completion.Usage.TotalTokens,
		},
	}, nil
}
