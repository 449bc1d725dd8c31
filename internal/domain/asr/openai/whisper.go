package openai

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"

	"voice3d-server/internal/platform/openaiclient"
)

// Config selects the Whisper endpoint and model.
type Config struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
}

// Whisper transcribes WAV files through the OpenAI audio API.
type Whisper struct {
	client   *openai.Client
	model    string
	language string
}

func New(cfg Config) (*Whisper, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai ASR: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.Whisper1
	}
	return &Whisper{
		client:   openaiclient.New(cfg.APIKey, cfg.BaseURL, nil),
		model:    cfg.Model,
		language: cfg.Language,
	}, nil
}

func (w *Whisper) ProviderName() string { return "openai-whisper" }

// Transcribe uploads the file and returns the service's text. The error
// carries the service message verbatim.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.model,
		FilePath: audioPath,
		Language: w.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", errors.New(openaiclient.Message(err))
	}
	return resp.Text, nil
}
