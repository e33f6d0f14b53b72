// Package download drives an isolated browsing context to capture one file,
// with bounded sequential retry.
package download

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/relaycore/report-relay/internal/clock"
	"github.com/relaycore/report-relay/internal/engine"
	"github.com/relaycore/report-relay/internal/metrics"
)

// ErrDownloadFailed indicates the retry budget was exhausted.
var ErrDownloadFailed = errors.New("download failed")

// Session is the slice of a browsing context the controller needs. A download
// is a flaky, session-bound operation: retries reuse the same session so the
// isolated cookie/cache state survives across attempts.
type Session interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	AwaitDownload(ctx context.Context) (engine.Artifact, error)
}

// Config controls retry behavior for the download leg.
type Config struct {
	MaxRetries  int
	Backoff     time.Duration
	WaitTimeout time.Duration
}

// Controller performs browser-driven downloads with fixed-backoff retry.
type Controller struct {
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger
}

// New constructs a Controller.
func New(cfg Config, clk clock.Clock, logger *zap.Logger) *Controller {
	if cfg.Backoff <= 0 {
		cfg.Backoff = 2 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	return &Controller{cfg: cfg, clock: clk, logger: logger}
}

// Download navigates the session to url and waits for the captured artifact.
// Attempts are strictly sequential: 1 + MaxRetries total, fixed backoff in
// between, a page reload (failure tolerated) before each retry. Navigation
// errors are advisory only; direct downloads abort navigation.
func (c *Controller) Download(ctx context.Context, session Session, url string) (engine.Artifact, error) {
	attempts := c.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := c.clock.Sleep(ctx, c.cfg.Backoff); err != nil {
				return engine.Artifact{}, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
			}
			if err := session.Reload(ctx); err != nil {
				// Reload resets transient page state; losing it is tolerable.
				c.logger.Debug("page reload before retry failed", zap.Error(err))
			}
		}

		if err := session.Navigate(ctx, url); err != nil {
			c.logger.Debug("navigation did not complete, waiting for download anyway",
				zap.String("url", url), zap.Error(err))
		}

		waitCtx, cancel := context.WithTimeout(ctx, c.cfg.WaitTimeout)
		artifact, err := session.AwaitDownload(waitCtx)
		cancel()
		if err == nil {
			metrics.RecordDownloadAttempt("success")
			c.logger.Info("download captured",
				zap.String("url", url),
				zap.String("file", artifact.SuggestedName),
				zap.Int("attempt", attempt))
			return artifact, nil
		}

		lastErr = err
		metrics.RecordDownloadAttempt("failure")
		c.logger.Warn("download attempt failed",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err))
	}

	return engine.Artifact{}, fmt.Errorf("%w after %d attempts: %v", ErrDownloadFailed, attempts, lastErr)
}
