package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/report-relay/internal/clock"
	"github.com/relaycore/report-relay/internal/metrics"
)

// Upload carries the artifact bytes and the metadata fields sent alongside.
type Upload struct {
	FileName       string
	Data           []byte
	ConversationID string
	MessageID      string
	Checksum       string
}

// Config controls upload retry behavior.
type Config struct {
	MaxRetries int
	Backoff    time.Duration
	Timeout    time.Duration
}

// Dispatcher posts multipart uploads to routed targets.
type Dispatcher struct {
	cfg    Config
	http   *http.Client
	clock  clock.Clock
	logger *zap.Logger
}

// NewDispatcher constructs a Dispatcher with its own timeout-bounded client.
func NewDispatcher(cfg Config, clk clock.Clock, logger *zap.Logger) *Dispatcher {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Dispatcher{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		clock:  clk,
		logger: logger,
	}
}

// Send uploads the artifact to target, retrying up to MaxRetries additional
// attempts with fixed backoff. The multipart body is rebuilt per attempt.
// Success returns the upstream status code.
func (d *Dispatcher) Send(ctx context.Context, target Target, up Upload) (int, error) {
	attempts := d.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := d.clock.Sleep(ctx, d.cfg.Backoff); err != nil {
				return 0, fmt.Errorf("%w after %d attempts: %v", ErrRelayFailed, attempt-1, err)
			}
		}

		status, err := d.post(ctx, target, up)
		if err == nil {
			metrics.RecordUploadAttempt(target.Label, "success")
			d.logger.Info("artifact relayed",
				zap.String("target", target.Label),
				zap.String("file", up.FileName),
				zap.Int("status", status),
				zap.Int("attempt", attempt))
			return status, nil
		}

		lastErr = err
		metrics.RecordUploadAttempt(target.Label, "failure")
		d.logger.Warn("relay attempt failed",
			zap.String("target", target.Label),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
	}

	return 0, fmt.Errorf("%w after %d attempts: %v", ErrRelayFailed, attempts, lastErr)
}

func (d *Dispatcher) post(ctx context.Context, target Target, up Upload) (int, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.FileName))
	header.Set("Content-Type", "application/pdf")
	part, err := writer.CreatePart(header)
	if err != nil {
		return 0, fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(up.Data); err != nil {
		return 0, fmt.Errorf("write file part: %w", err)
	}
	if err := writer.WriteField("type", target.Label); err != nil {
		return 0, fmt.Errorf("write type field: %w", err)
	}
	if up.ConversationID != "" {
		if err := writer.WriteField("conversationId", up.ConversationID); err != nil {
			return 0, fmt.Errorf("write conversationId field: %w", err)
		}
	}
	if err := writer.WriteField("messageId", up.MessageID); err != nil {
		return 0, fmt.Errorf("write messageId field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("finalize multipart body: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, target.URL, body)
	if err != nil {
		return 0, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if up.Checksum != "" {
		req.Header.Set("X-Content-Sha256", up.Checksum)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("relay post: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			d.logger.Warn("close relay response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("relay post: status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
