package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"voice3d-server/internal/domain/llm"
)

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// Optimizer rewrites prompts with the Gemini API.
type Optimizer struct {
	client      *genai.Client
	cfg         Config
	instruction llm.InstructionFunc
}

func New(ctx context.Context, cfg Config, instruction llm.InstructionFunc) (*Optimizer, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini LLM: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	if instruction == nil {
		instruction = llm.Static("")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Optimizer{client: client, cfg: cfg, instruction: instruction}, nil
}

func (o *Optimizer) ProviderName() string { return "gemini" }

func (o *Optimizer) OptimizePrompt(ctx context.Context, prompt, style string) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(o.cfg.Temperature)),
	}
	if o.cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(o.cfg.MaxTokens)
	}
	if sys := o.instruction(); sys != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(sys, genai.RoleUser)
	}

	resp, err := o.client.Models.GenerateContent(ctx, o.cfg.Model, genai.Text(llm.UserContent(prompt, style)), genCfg)
	if err != nil {
		return "", errors.New(message(err))
	}

	text := llm.CleanResponse(resp.Text())
	if text == "" {
		return "", errors.New("empty completion")
	}
	return text, nil
}

func message(err error) string {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("%s (status %d)", apiErr.Message, apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return fmt.Sprintf("%s (status %d)", apiErrPtr.Message, apiErrPtr.Code)
	}
	return err.Error()
}
