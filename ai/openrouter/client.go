// Package openrouter sends assembled contexts to the OpenRouter chat
// completions endpoint.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/ctxeng/ai/tracker"
	"github.com/teranos/ctxeng/db"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/internal/httpclient"
	"github.com/teranos/ctxeng/logger"
)

const (
	// DefaultBaseURL is OpenRouter's public API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultModel should match catalog.DefaultModelID and am/defaults.go.
	DefaultModel = "anthropic/claude-3.5-sonnet"
	// DefaultTitle is sent as X-Title for the OpenRouter dashboard.
	DefaultTitle = "Context Engineer"
	// DefaultTimeout bounds one send end to end.
	DefaultTimeout = 120 * time.Second

	// FallbackErrorMessage is shown when a failure carries no usable message.
	FallbackErrorMessage = "Failed to get response from model"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 8 << 20
)

// Config holds client configuration. Zero fields take defaults.
type Config struct {
	BaseURL string
	Model   string
	Referer string
	Title   string
	Timeout *time.Duration // nil = DefaultTimeout
	Logger  *zap.SugaredLogger
	// Tracker records every send when set.
	Tracker *tracker.UsageTracker
}

// Client talks to OpenRouter. The credential travels with each request
// because it belongs to the caller's session, not to the process.
type Client struct {
	baseURL    string
	httpClient *httpclient.SaferClient
	config     Config
	logger     *zap.SugaredLogger
}

// NewClient creates a client, filling defaults.
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Title == "" {
		config.Title = DefaultTitle
	}
	timeout := DefaultTimeout
	if config.Timeout != nil {
		timeout = *config.Timeout
	}
	config.Timeout = &timeout

	hc, err := httpclient.ForBaseURL(timeout, config.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "configure openrouter client")
	}

	return &Client{
		baseURL:    config.BaseURL,
		httpClient: hc,
		config:     config,
		logger:     logger.OrNop(config.Logger).Named("openrouter"),
	}, nil
}

// DefaultModel returns the model used when a request names none.
func (c *Client) DefaultModel() string { return c.config.Model }

// Timeout returns the configured per-send timeout.
func (c *Client) Timeout() time.Duration { return *c.config.Timeout }

// SetHTTPClient replaces the transport. Only for tests against httptest servers.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// ChatCompletionRequest is the wire body for /chat/completions.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse is the wire response from /chat/completions.
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is one completion choice.
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage is token accounting as reported by OpenRouter.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// APIError is any failed send. Message is safe to show to the user verbatim.
type APIError struct {
	Status  int // 0 when the request never produced a response
	Message string
	Err     error
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error { return e.Err }

// ChatRequest is one send.
type ChatRequest struct {
	APIKey  string
	Model   string // empty = client default
	Prompt  string
	Referer string // empty = configured referer
	// EntityID labels the usage row, typically the session id.
	EntityID string
	Origin   string
}

// ChatResponse keeps every choice so callers can show and copy each one.
type ChatResponse struct {
	ID      string       `json:"id,omitempty"`
	Model   string       `json:"model"`
	Choices []ChoiceText `json:"choices"`
	Usage   *Usage       `json:"usage,omitempty"`
}

// ChoiceText is a flattened choice.
type ChoiceText struct {
	Index        int    `json:"index"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// FullText joins every choice's content, separated by blank lines.
func (r *ChatResponse) FullText() string {
	parts := make([]string, 0, len(r.Choices))
	for _, ch := range r.Choices {
		parts = append(parts, ch.Content)
	}
	return strings.Join(parts, "\n\n")
}

// CreateChatCompletion performs exactly one POST. Failures come back as
// *APIError marked with errors.ErrUpstream.
func (c *Client) CreateChatCompletion(ctx context.Context, apiKey, referer string, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("X-Title", c.config.Title)
	if referer == "" {
		referer = c.config.Referer
	}
	if referer != "" {
		httpReq.Header.Set("HTTP-Referer", referer)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, upstream(0, "", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, upstream(resp.StatusCode, "", errors.Wrap(err, "failed to read response"))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, upstream(resp.StatusCode, ExtractErrorMessage(respBody),
			errors.Newf("openrouter returned status %d", resp.StatusCode))
	}

	var out ChatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, upstream(resp.StatusCode, "", errors.Wrap(err, "failed to unmarshal response"))
	}
	return &out, nil
}

// Chat sends req.Prompt as a single user message and records the outcome.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	log := logger.FromContext(ctx, c.logger)

	log.Debugw("Sending context",
		logger.FieldModel, model,
		logger.FieldSize, len(req.Prompt),
	)

	started := time.Now()
	wire, err := c.CreateChatCompletion(ctx, req.APIKey, req.Referer, ChatCompletionRequest{
		Model:    model,
		Messages: []Message{{Role: "user", Content: req.Prompt}},
	})
	finished := time.Now()

	if err != nil {
		log.Warnw("OpenRouter send failed",
			logger.FieldModel, model,
			logger.FieldError, err,
			logger.FieldDurationMS, finished.Sub(started).Milliseconds(),
		)
		c.track(req, model, started, finished, nil, err)
		return nil, err
	}

	out := &ChatResponse{
		ID:      wire.ID,
		Model:   model,
		Choices: make([]ChoiceText, 0, len(wire.Choices)),
		Usage:   wire.Usage,
	}
	if wire.Model != "" {
		out.Model = wire.Model
	}
	for _, ch := range wire.Choices {
		out.Choices = append(out.Choices, ChoiceText{
			Index:        ch.Index,
			Content:      ch.Message.Content,
			FinishReason: ch.FinishReason,
		})
	}

	log.Infow("OpenRouter send complete",
		logger.FieldModel, out.Model,
		logger.FieldCount, len(out.Choices),
		logger.FieldDurationMS, finished.Sub(started).Milliseconds(),
	)
	c.track(req, model, started, finished, out, nil)
	return out, nil
}

func (c *Client) track(req ChatRequest, model string, started, finished time.Time, resp *ChatResponse, sendErr error) {
	if c.config.Tracker == nil {
		return
	}

	meta := tracker.SendMetadata{Origin: req.Origin, ContextLength: len(req.Prompt)}
	usage := &tracker.ModelUsage{
		OperationType:     tracker.OperationSend,
		EntityType:        tracker.EntityContext,
		EntityID:          req.EntityID,
		ModelName:         model,
		ModelProvider:     "openrouter",
		RequestTimestamp:  started,
		ResponseTimestamp: &finished,
		Success:           sendErr == nil,
	}

	if sendErr != nil {
		msg := sendErr.Error()
		usage.ErrorMessage = &msg
		var apiErr *APIError
		if errors.As(sendErr, &apiErr) {
			meta.HTTPStatus = apiErr.Status
		}
	} else {
		meta.Choices = len(resp.Choices)
		if resp.Usage != nil {
			tokens := resp.Usage.TotalTokens
			cost := CalculateCost(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			usage.TokensUsed = &tokens
			usage.Cost = &cost
		}
	}
	usage.Metadata = meta.Encode()

	if err := c.config.Tracker.TrackUsage(usage); err != nil {
		if db.IsDatabaseClosed(err) {
			// A send outlived shutdown
			c.logger.Debugw("Usage not recorded, database closed", logger.FieldModel, model)
			return
		}
		c.logger.Warnw("Failed to track usage", logger.FieldError, err, logger.FieldModel, model)
	}
}

// upstream builds the marked *APIError for a failed send.
func upstream(status int, message string, cause error) error {
	if message == "" {
		message = FallbackErrorMessage
	}
	return errors.Mark(&APIError{Status: status, Message: message, Err: cause}, errors.ErrUpstream)
}

// ExtractErrorMessage pulls the user-facing message out of an error body,
// preferring error.message, then error when it is a plain string. It returns
// "" when neither is present.
func ExtractErrorMessage(body []byte) string {
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Error) == 0 {
		return ""
	}

	var detailed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(envelope.Error, &detailed); err == nil && detailed.Message != "" {
		return detailed.Message
	}

	var plain string
	if err := json.Unmarshal(envelope.Error, &plain); err == nil {
		return plain
	}
	return ""
}
