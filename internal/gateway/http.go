package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"plenum/internal/logging"
)

// HTTPConfig configures an OpenAI-compatible chat-completions backend.
type HTTPConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration // per-call timeout
	MaxRetries  int           // transport retries beyond the first attempt
	BackoffBase time.Duration // doubled per retry
}

// DefaultHTTPConfig fills zero values with safe defaults.
func DefaultHTTPConfig(cfg HTTPConfig) HTTPConfig {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	return cfg
}

// HTTPGateway talks to an OpenAI-compatible /v1/chat/completions endpoint.
type HTTPGateway struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTPGateway builds a gateway for the given backend config.
func NewHTTPGateway(cfg HTTPConfig) (*HTTPGateway, error) {
	cfg = DefaultHTTPConfig(cfg)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gateway: API key is missing")
	}
	return &HTTPGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (g *HTTPGateway) Name() string { return "http:" + g.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate sends the prompt and returns the raw completion text. Transport
// failures (network errors, 5xx, 429) are retried with doubling backoff up
// to MaxRetries; any other HTTP error is terminal.
func (g *HTTPGateway) Generate(ctx context.Context, req Request) (string, error) {
	prompt := req.Prompt
	if req.SchemaHint != "" {
		prompt = prompt + "\n\n" + req.SchemaHint
	}

	body := chatRequest{
		Model:       g.cfg.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: prompt})

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("gateway: marshal request: %w", err)
	}

	url := strings.TrimRight(g.cfg.BaseURL, "/") + "/v1/chat/completions"
	logger := logging.New("gateway")

	var lastErr error
	backoff := g.cfg.BackoffBase
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("retrying generation call",
				"phase", req.Phase, "role", req.Role, "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", &TransportError{Err: ctx.Err()}
			}
			backoff *= 2
		}

		text, retryable, err := g.attempt(ctx, url, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", &TransportError{Err: fmt.Errorf("after %d retries: %w", g.cfg.MaxRetries, lastErr)}
}

// attempt performs one HTTP round trip. The second return reports whether
// the failure is worth retrying.
func (g *HTTPGateway) attempt(ctx context.Context, url string, payload []byte) (string, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", true, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return "", true, &TransportError{Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return "", true, &TransportError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(data), 200))}
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("gateway: status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", false, fmt.Errorf("gateway: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("gateway: response has no choices")
	}
	return parsed.Choices[0].Message.Content, false, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
