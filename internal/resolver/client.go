// Package resolver fetches messages from the upstream message API and
// extracts the download location referenced in their bodies.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotConfigured indicates the message API credential is missing.
	ErrNotConfigured = errors.New("message api not configured")
	// ErrUpstreamUnavailable indicates the message API errored or timed out.
	ErrUpstreamUnavailable = errors.New("message api unavailable")
)

// Message is the upstream representation of a message: the raw body text and
// the conversation it belongs to.
type Message struct {
	ID             string
	Body           string
	ConversationID string
}

// Config controls the resolver client.
type Config struct {
	APIBase string
	Token   string
	Timeout time.Duration
}

// Client issues authenticated reads against the message API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient builds a Client with its own timeout-bounded HTTP client.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type messagePayload struct {
	ID   string `json:"id"`
	Body struct {
		ContentType string `json:"contentType"`
		Content     string `json:"content"`
	} `json:"body"`
	ChatID string `json:"chatId"`
}

// Resolve fetches a single message by id. A missing credential is fatal and
// never retried; upstream failures surface as ErrUpstreamUnavailable for the
// caller to decide on.
func (c *Client) Resolve(ctx context.Context, messageID string) (Message, error) {
	if c.cfg.Token == "" {
		return Message{}, fmt.Errorf("%w: no bearer token", ErrNotConfigured)
	}
	if messageID == "" {
		return Message{}, fmt.Errorf("%w: empty message id", ErrUpstreamUnavailable)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	url := fmt.Sprintf("%s/messages/%s", c.cfg.APIBase, messageID)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return Message{}, fmt.Errorf("build message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("close message response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Message{}, fmt.Errorf("%w: status %d", ErrUpstreamUnavailable, resp.StatusCode)
	}

	var payload messagePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Message{}, fmt.Errorf("%w: decode response: %v", ErrUpstreamUnavailable, err)
	}

	return Message{
		ID:             payload.ID,
		Body:           payload.Body.Content,
		ConversationID: payload.ChatID,
	}, nil
}
