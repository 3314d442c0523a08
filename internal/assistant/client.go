package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/inquiro/backend/pkg/apperr"
)

var (
	ErrNotConfigured = apperr.New(apperr.KindUnavailable, "ai_not_configured", "AI service is not configured")
	ErrQuotaExceeded = apperr.New(apperr.KindTooManyRequests, "ai_quota_exceeded", "AI service quota exceeded. Please try again later.")
	ErrTimeout       = apperr.New(apperr.KindTimeout, "ai_timeout", "AI service timeout. Please try again.")
	ErrUpstream      = apperr.New(apperr.KindUnavailable, "ai_failed", "Failed to generate survey. Please try again later.")
)

// HTTPClient is the subset of *http.Client the completion client uses.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig points the client at an OpenAI-compatible API.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the chat completions endpoint and returns the assistant message content.
type Client struct {
	cfg  ClientConfig
	http HTTPClient
}

// NewClient creates a completion client. httpClient may be nil.
func NewClient(cfg ClientConfig, httpClient HTTPClient) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.cfg.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete sends system and user messages and returns the JSON content of the first choice.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}
	payload, err := json.Marshal(chatRequest{
		Model:          c.cfg.Model,
		Messages:       []chatMessage{{Role: "system", Content: system}, {Role: "user", Content: user}},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsURL(c.cfg.BaseURL), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: read body: %v", ErrUpstream, err)
	}

	var out chatResponse
	_ = json.Unmarshal(body, &out)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", ErrQuotaExceeded
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return "", ErrTimeout
	case resp.StatusCode >= 300:
		if out.Error != nil && out.Error.Code == "insufficient_quota" {
			return "", ErrQuotaExceeded
		}
		return "", fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty completion", ErrUpstream)
	}
	return out.Choices[0].Message.Content, nil
}

// completionsURL accepts a bare host, a /v1 base or the full endpoint.
func completionsURL(base string) string {
	endpoint := strings.TrimRight(strings.TrimSpace(base), "/")
	if endpoint == "" {
		endpoint = "https://api.openai.com"
	}
	switch {
	case strings.HasSuffix(endpoint, "/chat/completions"):
		return endpoint
	case strings.HasSuffix(endpoint, "/v1"):
		return endpoint + "/chat/completions"
	default:
		return endpoint + "/v1/chat/completions"
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
