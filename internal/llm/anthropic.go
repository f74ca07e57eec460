package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL = "https://api.anthropic.com/v1/messages"
	apiVersion     = "2023-06-01"
	clientTimeout  = 120 * time.Second

	maxAttempts    = 3
	retryBaseDelay = 500 * time.Millisecond
	maxBlockSize   = 200000 // ~200KB guard per text block
)

// AnthropicClient talks to the Anthropic Messages API over plain HTTP.
type AnthropicClient struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewAnthropic builds a client for the given model. The logger may be
// zerolog.Nop().
func NewAnthropic(apiKey, model string, logger zerolog.Logger) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropic api key missing")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("anthropic model missing")
	}
	return &AnthropicClient{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: clientTimeout},
		logger:  logger,
	}, nil
}

func (c *AnthropicClient) Name() string { return c.model }

// Chat sends the conversation and returns the model's content blocks. Rate
// limits and server errors are retried with exponential backoff; other API
// errors return immediately.
func (c *AnthropicClient) Chat(ctx context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("no messages")
	}
	clampTextBlocks(req.Messages)

	payload := anthropicPayload{
		Model:       c.model,
		System:      req.System,
		Messages:    req.Messages,
		Tools:       req.Tools,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = 1024
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("retrying model call")
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, retryable, err := c.send(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, fmt.Errorf("model call failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *AnthropicClient) send(ctx context.Context, body []byte) (*Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	c.logger.Debug().Str("model", c.model).Int("payload_size", len(body)).Msg("model request")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("http request: %w", err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr anthropicError
		msg := string(data)
		if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		if len(msg) > 500 {
			msg = cutOnRune(msg, 500) + "..."
		}
		c.logger.Error().Int("status", resp.StatusCode).Str("error", msg).Msg("model api error")
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("anthropic %d: %s", resp.StatusCode, msg)
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("parse response: %w", err)
	}
	c.logger.Debug().
		Str("stop_reason", out.StopReason).
		Int("blocks", len(out.Content)).
		Int("input_tokens", out.Usage.InputTokens).
		Int("output_tokens", out.Usage.OutputTokens).
		Msg("model response")
	return &out, false, nil
}

// clampTextBlocks truncates oversized text blocks in place so one runaway
// page dump cannot blow the request.
func clampTextBlocks(messages []Message) {
	for mi := range messages {
		for bi := range messages[mi].Content {
			b := &messages[mi].Content[bi]
			if b.Type == BlockText && len(b.Text) > maxBlockSize {
				b.Text = cutOnRune(b.Text, maxBlockSize) + "... [truncated]"
			}
			if b.Type == BlockToolResult {
				for ci := range b.Content {
					inner := &b.Content[ci]
					if inner.Type == BlockText && len(inner.Text) > maxBlockSize {
						inner.Text = cutOnRune(inner.Text, maxBlockSize) + "... [truncated]"
					}
				}
			}
		}
	}
}

// cutOnRune cuts s at max bytes, backing off so a multi-byte rune is never
// split.
func cutOnRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

type anthropicPayload struct {
	Model       string    `json:"model"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
