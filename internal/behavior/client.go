// Package behavior classifies the side effects of a function by asking an
// external chat-completion service.
package behavior

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jward/codegraph/internal/model"
)

// ErrMissingAPIKey is returned by NewClient when no credential is configured.
var ErrMissingAPIKey = errors.New("behavior: missing API key")

// ErrStatus is wrapped by StatusError.
var ErrStatus = errors.New("behavior: unexpected status")

// StatusError reports a non-2xx response from the completion endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("behavior: endpoint returned %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Defaults applied by NewClient to zero Config fields.
const (
	DefaultEndpoint       = "https://api.openai.com/v1/chat/completions"
	DefaultModel          = "gpt-4o-mini"
	DefaultMaxTokens      = 300
	DefaultTimeout        = 30 * time.Second
	DefaultMaxSourceChars = 6000
)

// Config configures a Client.
type Config struct {
	Endpoint       string
	APIKey         string
	Model          string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
	MaxSourceChars int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client calls the completion endpoint for one function at a time. It is
// safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// FunctionInput is what the analyzer needs to know about a function.
type FunctionInput struct {
	ID       string
	Name     string
	FilePath string
	Source   string
}

// NewClient validates cfg and fills defaults.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxSourceChars <= 0 {
		cfg.MaxSourceChars = DefaultMaxSourceChars
	}
	c := &Client{cfg: cfg, http: cfg.HTTPClient, logger: cfg.Logger}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	return c, nil
}

// Model returns the model name requests are made with.
func (c *Client) Model() string { return c.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Analyze classifies fn. Transport failures and non-2xx statuses are
// returned as errors. A response that cannot be parsed yields the fallback
// result and a nil error.
func (c *Client) Analyze(ctx context.Context, fn FunctionInput) (model.BehaviorResult, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt},
			{Role: "user", Content: UserPrompt(fn, c.cfg.MaxSourceChars)},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return model.BehaviorResult{}, fmt.Errorf("behavior: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return model.BehaviorResult{}, fmt.Errorf("behavior: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return model.BehaviorResult{}, fmt.Errorf("behavior: %s: %w", fn.ID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.BehaviorResult{}, fmt.Errorf("behavior: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.BehaviorResult{}, &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 200)}
	}

	var chat chatResponse
	content := ""
	if err := json.Unmarshal(raw, &chat); err == nil && len(chat.Choices) > 0 {
		content = chat.Choices[0].Message.Content
	}

	out := ParseResponse(content)
	if out.Fallback {
		c.logger.Warn("analyze.fallback", "function", fn.ID, "reason", out.Reason)
	}
	return out.Result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
