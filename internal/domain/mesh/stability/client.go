package stability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL           = "https://api.stability.ai"
	fastModelPath            = "/v2beta/3d/stable-fast-3d"
	DefaultTextureResolution = 1024
	DefaultForegroundRatio   = 0.85
)

type Config struct {
	APIKey            string
	BaseURL           string
	TextureResolution int
	ForegroundRatio   float64
	Timeout           time.Duration
}

// Client calls Stable Fast 3D and returns GLB bytes.
type Client struct {
	http *resty.Client
	cfg  Config
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("stability: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TextureResolution <= 0 {
		cfg.TextureResolution = DefaultTextureResolution
	}
	if cfg.ForegroundRatio <= 0 {
		cfg.ForegroundRatio = DefaultForegroundRatio
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Accept", "model/gltf-binary, application/json")

	return &Client{http: httpClient, cfg: cfg}, nil
}

func (c *Client) ProviderName() string { return "stability-fast-3d" }

// GenerateModel uploads the image with the fixed texture resolution and
// foreground ratio.
func (c *Client) GenerateModel(ctx context.Context, image []byte, filename string) ([]byte, error) {
	if len(image) == 0 {
		return nil, errors.New("image is empty")
	}
	if filename == "" {
		filename = "image.png"
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("image", filename, bytes.NewReader(image)).
		SetFormData(map[string]string{
			"texture_resolution": strconv.Itoa(c.cfg.TextureResolution),
			"foreground_ratio":   strconv.FormatFloat(c.cfg.ForegroundRatio, 'f', -1, 64),
		}).
		Post(fastModelPath)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s (status %d)", errorMessage(resp.Body()), resp.StatusCode())
	}

	body := resp.Body()
	if len(body) == 0 {
		return nil, errors.New("empty model response")
	}
	if !bytes.HasPrefix(body, []byte("glTF")) {
		return nil, fmt.Errorf("response is not a GLB file (content-type %q)", resp.Header().Get("Content-Type"))
	}
	return body, nil
}

type apiError struct {
	Name    string   `json:"name"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

func errorMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err == nil {
		switch {
		case len(e.Errors) > 0:
			return strings.Join(e.Errors, "; ")
		case e.Message != "":
			return e.Message
		case e.Name != "":
			return e.Name
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty error response"
	}
	if len(text) > 300 {
		text = text[:300]
	}
	return text
}
