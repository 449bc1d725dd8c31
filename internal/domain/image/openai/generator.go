package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"voice3d-server/internal/domain/image"
	"voice3d-server/internal/platform/openaiclient"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Size    string
	Quality string
}

// Generator requests base64 images from the OpenAI images API.
type Generator struct {
	client   *openai.Client
	cfg      Config
	pipeline *image.Pipeline
}

func New(cfg Config, pipeline *image.Pipeline) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai image: api key is required")
	}
	if pipeline == nil {
		return nil, errors.New("openai image: pipeline is required")
	}
	if cfg.Model == "" {
		cfg.Model = openai.CreateImageModelDallE3
	}
	if cfg.Size == "" {
		cfg.Size = openai.CreateImageSize1024x1024
	}
	return &Generator{
		client:   openaiclient.New(cfg.APIKey, cfg.BaseURL, nil),
		cfg:      cfg,
		pipeline: pipeline,
	}, nil
}

func (g *Generator) ProviderName() string { return "openai-images" }

// GenerateImage returns decoded, validated image bytes.
func (g *Generator) GenerateImage(ctx context.Context, prompt string) ([]byte, error) {
	req := openai.ImageRequest{
		Prompt:         prompt,
		Model:          g.cfg.Model,
		N:              1,
		Size:           g.cfg.Size,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}
	if g.cfg.Quality != "" {
		req.Quality = g.cfg.Quality
	}

	resp, err := g.client.CreateImage(ctx, req)
	if err != nil {
		return nil, errors.New(openaiclient.Message(err))
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("response contains no image data")
	}

	out, err := g.pipeline.DecodeBase64(ctx, resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("malformed image payload: %w", err)
	}
	return out.Bytes, nil
}
