// Package llm is a client for OpenAI-compatible chat completion services.
// Calls are single-shot: failures are returned to the caller, never retried.
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

	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 240 * time.Second
)

// ErrMissingAPIKey is returned by New when no API key is configured.
var ErrMissingAPIKey = errors.New("llm: API key is required (set llm.api_key or CHUNKDIM_LLM_API_KEY)")

// APIError is a non-200 reply from the model service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("model service returned status %d: %s", e.StatusCode, e.Message)
}

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	// Timeout bounds a single HTTP exchange. Callers may set a tighter
	// deadline through the context.
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls; 0 disables throttling.
	RequestsPerSecond float64
	Burst             int
	Referer           string
	Title             string
}

// Client talks to the chat completion endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	referer    string
	title      string
}

// New creates a client. It fails fast when the API key is missing.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Referer == "" {
		cfg.Referer = "https://github.com/kalambet/chunkdim"
	}
	if cfg.Title == "" {
		cfg.Title = "chunkdim"
	}

	c := &Client{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		referer:    cfg.Referer,
		title:      cfg.Title,
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c, nil
}

// Complete sends req as a single user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Completion{}, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return Completion{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Completion{}, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("reading response: %w", err)
	}

	var cr chatResponse
	decodeErr := json.Unmarshal(raw, &cr)

	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && cr.Error != nil {
			msg = cr.Error.Message
		}
		return Completion{}, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return Completion{}, fmt.Errorf("decoding response: %w", decodeErr)
	}
	if cr.Error != nil {
		return Completion{}, &APIError{StatusCode: resp.StatusCode, Message: cr.Error.Message}
	}
	if len(cr.Choices) == 0 {
		return Completion{}, errors.New("model service returned no choices")
	}

	model := cr.Model
	if model == "" {
		model = req.Model
	}
	return Completion{
		Text:         cr.Choices[0].Message.Content,
		Model:        model,
		InputTokens:  cr.Usage.PromptTokens,
		OutputTokens: cr.Usage.CompletionTokens,
		FinishReason: cr.Choices[0].FinishReason,
	}, nil
}

// ListModels returns the models the service offers.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var list ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding models: %w", err)
	}

	if list.Data == nil {
		return []Model{}, nil
	}
	return list.Data, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)
}
