package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"voice3d-server/internal/domain/llm"
	"voice3d-server/internal/platform/openaiclient"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Optimizer rewrites prompts with a chat completion.
type Optimizer struct {
	client      *openai.Client
	cfg         Config
	instruction llm.InstructionFunc
}

func New(cfg Config, instruction llm.InstructionFunc) (*Optimizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai LLM: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if instruction == nil {
		instruction = llm.Static("")
	}
	return &Optimizer{
		client:      openaiclient.New(cfg.APIKey, cfg.BaseURL, nil),
		cfg:         cfg,
		instruction: instruction,
	}, nil
}

func (o *Optimizer) ProviderName() string { return "openai-chat" }

func (o *Optimizer) OptimizePrompt(ctx context.Context, prompt, style string) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if sys := o.instruction(); sys != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: sys})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: llm.UserContent(prompt, style),
	})

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Messages:    messages,
		Temperature: float32(o.cfg.Temperature),
		MaxTokens:   o.cfg.MaxTokens,
	})
	if err != nil {
		return "", errors.New(openaiclient.Message(err))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response choices")
	}

	text := llm.CleanResponse(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}
