// Package ai implements the generative-text fallback client for free-form
// questions. Uses the OpenAI-compatible chat completions format, which works
// with OpenAI, Gemini's compatibility endpoint, and any compatible proxy.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HandoffMarker is the sentinel the model emits when the customer should be
// transferred to a human attendant.
const HandoffMarker = "[CHAMAR_ATENDENTE]"

// userMessagePlaceholder is the substitution point inside the prompt template.
const userMessagePlaceholder = "${userMessage}"

// Failure classes surfaced to the conversation layer. Wrapped errors are
// matched with errors.Is.
var (
	ErrRateLimited     = errors.New("ai: rate limited")
	ErrContentFiltered = errors.New("ai: content filtered")
	ErrUnavailable     = errors.New("ai: service unavailable")
)

// Config holds the generative client configuration.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint root.
	BaseURL string `yaml:"base_url"`

	// APIKey authenticates requests. Usually resolved from the OS keyring or
	// environment rather than stored here.
	APIKey string `yaml:"api_key"`

	// Model is the model identifier (e.g. "gemini-2.0-flash").
	Model string `yaml:"model"`

	// SystemPrompt is the prompt template. It must contain ${userMessage};
	// when missing, the user text is appended.
	SystemPrompt string `yaml:"system_prompt"`

	// RequestTimeout bounds a single generation call.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://generativelanguage.googleapis.com/v1beta/openai",
		Model:          "gemini-2.0-flash",
		SystemPrompt:   "Você é um assistente útil da Chácara da Paz. Responda: ${userMessage}",
		RequestTimeout: 45 * time.Second,
	}
}

// Client talks to the generative provider.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger

	// promptMu guards the template, which is hot-reloadable from config.
	promptMu sync.RWMutex
	prompt   string
}

// NewClient creates a Client from config.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = strings.TrimRight(DefaultConfig().BaseURL, "/")
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		timeout: timeout,
		prompt:  cfg.SystemPrompt,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        5,
				IdleConnTimeout:     120 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		logger: logger.With("component", "ai"),
	}
}

// UpdatePrompt swaps the prompt template. Called by the config watcher.
func (c *Client) UpdatePrompt(template string) {
	c.promptMu.Lock()
	c.prompt = template
	c.promptMu.Unlock()
}

// composePrompt substitutes the user's text into the template.
func (c *Client) composePrompt(userMessage string) string {
	c.promptMu.RLock()
	template := c.prompt
	c.promptMu.RUnlock()

	if template == "" {
		return userMessage
	}
	if strings.Contains(template, userMessagePlaceholder) {
		return strings.ReplaceAll(template, userMessagePlaceholder, userMessage)
	}
	return template + "\n\n" + userMessage
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// GenerateReply sends the user's message through the prompt template and
// returns the model's text. Errors are classified into the package's failure
// classes where the provider exposes one.
func (c *Client) GenerateReply(ctx context.Context, userMessage string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: c.composePrompt(userMessage)},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling provider: %w", ErrUnavailable)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", ErrUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, body)
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("provider returned no choices")
	}

	choice := decoded.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("generation blocked: %w", ErrContentFiltered)
	}

	return strings.TrimSpace(choice.Message.Content), nil
}

// classifyStatus maps an HTTP failure to a failure class.
func classifyStatus(status int, body []byte) error {
	summary := strings.TrimSpace(string(body))
	if len(summary) > 200 {
		summary = summary[:200]
	}

	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("provider status %d: %s: %w", status, summary, ErrRateLimited)
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return fmt.Errorf("provider status %d: %s: %w", status, summary, ErrContentFiltered)
	case status >= 500:
		return fmt.Errorf("provider status %d: %s: %w", status, summary, ErrUnavailable)
	default:
		return fmt.Errorf("provider status %d: %s", status, summary)
	}
}
