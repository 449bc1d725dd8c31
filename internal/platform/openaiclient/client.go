package openaiclient

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// New builds a client for apiKey, pointing at baseURL when set.
// httpClient may be nil.
func New(apiKey, baseURL string, httpClient *http.Client) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return openai.NewClientWithConfig(config)
}

// Message extracts the service's own error text from a go-openai error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode > 0 {
			return fmt.Sprintf("%s (status %d)", apiErr.Message, apiErr.HTTPStatusCode)
		}
		return apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("request failed with status %d: %v", reqErr.HTTPStatusCode, reqErr.Err)
	}
	return err.Error()
}
