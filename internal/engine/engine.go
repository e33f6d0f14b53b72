// Package engine owns the shared browser automation engine and the
// per-request browsing contexts carved from it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrEngineUnavailable indicates the automation engine could not be reached
// or could not produce a browsing context.
var ErrEngineUnavailable = errors.New("automation engine unavailable")

// Config controls engine startup and context behavior.
type Config struct {
	Headless      bool
	UserAgent     string
	DownloadRoot  string
	NavTimeout    time.Duration
	ReloadTimeout time.Duration
}

// Engine wraps a running headless Chrome instance. There is at most one live
// Engine per process; the Manager enforces that.
type Engine struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// Close tears down the browser and its allocator.
func (e *Engine) Close() {
	e.browserCancel()
	e.allocCancel()
}

func (e *Engine) alive() bool {
	return e.browserCtx.Err() == nil
}

// launchEngine starts a browser process and warms it up so the first request
// does not pay the startup cost.
func launchEngine(cfg Config) (*Engine, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("chromedp warmup: %w", err)
	}
	return &Engine{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}
