package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Artifact is a captured download: bytes on disk inside a working area plus
// the name the site suggested for them.
type Artifact struct {
	Path          string
	SuggestedName string
}

// Context is an isolated browsing session scoped to one working area.
// Cookies, cache, and downloads never leak across contexts.
type Context struct {
	tab           context.Context
	tabCancel     context.CancelFunc
	workdir       string
	navTimeout    time.Duration
	reloadTimeout time.Duration
	logger        *zap.Logger

	closeOnce sync.Once

	mu    sync.Mutex
	names map[string]string
	done  chan Artifact
}

// Navigate drives the tab to url. Callers should treat a navigation error as
// advisory: targets that begin a direct download abort navigation by design
// of the protocol, not as a failure of the download.
func (c *Context) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(c.tab, c.navTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Reload refreshes the current page to reset transient page state between
// download attempts.
func (c *Context) Reload(ctx context.Context) error {
	reloadCtx, cancel := context.WithTimeout(c.tab, c.reloadTimeout)
	defer cancel()
	stop := forwardCancel(ctx, cancel)
	defer stop()

	if err := chromedp.Run(reloadCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload page: %w", err)
	}
	return nil
}

// AwaitDownload blocks until a download completes in this context, the
// deadline passes, or the underlying browser goes away.
func (c *Context) AwaitDownload(ctx context.Context) (Artifact, error) {
	select {
	case art := <-c.done:
		return art, nil
	case <-c.tab.Done():
		return Artifact{}, fmt.Errorf("%w: browsing context closed", ErrEngineUnavailable)
	case <-ctx.Done():
		return Artifact{}, fmt.Errorf("wait for download: %w", ctx.Err())
	}
}

// Close cancels the tab. Idempotent.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.tabCancel()
	})
}

func (c *Context) captureEvent(ev any) {
	switch e := ev.(type) {
	case *browser.EventDownloadWillBegin:
		c.mu.Lock()
		c.names[e.GUID] = e.SuggestedFilename
		c.mu.Unlock()
	case *browser.EventDownloadProgress:
		switch e.State {
		case browser.DownloadProgressStateCompleted:
			c.mu.Lock()
			name := c.names[e.GUID]
			c.mu.Unlock()
			if name == "" {
				name = e.GUID
			}
			// AllowAndName stores the file under its GUID in workdir.
			art := Artifact{
				Path:          filepath.Join(c.workdir, e.GUID),
				SuggestedName: name,
			}
			select {
			case c.done <- art:
			default:
				c.logger.Warn("download completion dropped, channel full", zap.String("guid", e.GUID))
			}
		case browser.DownloadProgressStateCanceled:
			c.logger.Warn("download canceled by browser", zap.String("guid", e.GUID))
		}
	}
}

// forwardCancel propagates cancellation from the caller's context into a
// chromedp task context without tying their lifetimes together.
func forwardCancel(ctx context.Context, cancel context.CancelFunc) func() {
	stopCh := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stopCh:
		}
	}()
	return func() { close(stopCh) }
}
