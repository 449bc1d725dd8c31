package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultBaseURL = "https://api.github.com"

type Config struct {
	Token         string
	Owner         string
	Repo          string
	Branch        string
	CommitMessage string
	BaseURL       string
	Timeout       time.Duration
}

// Store publishes files through the repository contents API. The blob sha
// is the version identifier.
type Store struct {
	http *resty.Client
	cfg  Config
}

func New(cfg Config) (*Store, error) {
	if cfg.Token == "" {
		return nil, errors.New("github: token is required")
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("github: owner and repo are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.CommitMessage == "" {
		cfg.CommitMessage = "Update generated model"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.Token).
		SetHeader("Accept", "application/vnd.github+json").
		SetHeader("X-GitHub-Api-Version", "2022-11-28")

	return &Store{http: client, cfg: cfg}, nil
}

func (s *Store) ProviderName() string { return "github-contents" }

func (s *Store) contentsPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s", url.PathEscape(s.cfg.Owner), url.PathEscape(s.cfg.Repo), strings.Join(segments, "/"))
}

type contentInfo struct {
	SHA string `json:"sha"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Lookup returns the blob sha at path. A 404 means the file does not exist yet.
func (s *Store) Lookup(ctx context.Context, path string) (string, bool, error) {
	var info contentInfo
	var apiErr errorBody
	resp, err := s.http.R().
		SetContext(ctx).
		SetQueryParam("ref", s.cfg.Branch).
		SetResult(&info).
		SetError(&apiErr).
		Get(s.contentsPath(path))
	if err != nil {
		return "", false, fmt.Errorf("lookup %s: %w", path, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", false, nil
	}
	if resp.IsError() {
		return "", false, fmt.Errorf("lookup %s: %s (status %d)", path, message(apiErr, resp), resp.StatusCode())
	}
	if info.SHA == "" {
		return "", false, fmt.Errorf("lookup %s: response has no sha", path)
	}
	return info.SHA, true, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type putResponse struct {
	Content contentInfo `json:"content"`
}

// Put creates or replaces path. priorVersion must be the current sha when
// the file exists.
func (s *Store) Put(ctx context.Context, path string, content []byte, priorVersion string) (string, error) {
	body := putRequest{
		Message: s.cfg.CommitMessage,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     priorVersion,
		Branch:  s.cfg.Branch,
	}

	var out putResponse
	var apiErr errorBody
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&apiErr).
		Put(s.contentsPath(path))
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("upload %s: %s (status %d)", path, message(apiErr, resp), resp.StatusCode())
	}
	return out.Content.SHA, nil
}

func message(apiErr errorBody, resp *resty.Response) string {
	if apiErr.Message != "" {
		return apiErr.Message
	}
	if text := strings.TrimSpace(resp.String()); text != "" {
		return text
	}
	return resp.Status()
}
