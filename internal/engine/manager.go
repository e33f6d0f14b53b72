package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Manager guards the process-wide Engine singleton and hands out isolated
// browsing contexts scoped to per-run working areas.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.Mutex
	engine *Engine
	launch func(Config) (*Engine, error)
}

// Status reports engine liveness for the operational surface.
type Status struct {
	Running bool `json:"running"`
}

// NewManager creates a Manager. The engine itself is started lazily on first
// Acquire.
func NewManager(cfg Config, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		logger: logger,
		launch: launchEngine,
	}
}

// Acquire returns the shared engine, creating it if absent. Creation is
// serialized; concurrent first callers observe a single instance. A dead
// engine is returned as-is: recreation happens only via Recreate.
func (m *Manager) Acquire(ctx context.Context) (*Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine != nil {
		return m.engine, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("acquire engine: %w", err)
	}
	eng, err := m.launch(m.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	m.engine = eng
	m.logger.Info("automation engine started", zap.Bool("headless", m.cfg.Headless))
	return eng, nil
}

// Recreate closes the current engine if present and starts a fresh one.
// Operator-triggered only; runs holding contexts from the replaced engine
// fail their in-flight attempts and clean up normally.
func (m *Manager) Recreate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("recreate engine: %w", err)
	}
	if m.engine != nil {
		m.engine.Close()
		m.engine = nil
		m.logger.Info("automation engine closed for recreation")
	}
	eng, err := m.launch(m.cfg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	m.engine = eng
	m.logger.Info("automation engine recreated")
	return nil
}

// Close shuts the engine down if running. Called once at process exit.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine != nil {
		m.engine.Close()
		m.engine = nil
		m.logger.Info("automation engine closed")
	}
}

// Status reports whether a live engine exists.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Running: m.engine != nil && m.engine.alive()}
}

// CreateWorkingArea makes the per-run scoped directory under the configured
// download root.
func (m *Manager) CreateWorkingArea(runID string) (string, error) {
	dir := filepath.Join(m.cfg.DownloadRoot, runID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create working area %s: %w", dir, err)
	}
	return dir, nil
}

// OpenContext carves an isolated browsing context out of eng with download
// capture directed into workdir. The capture listener is armed here, before
// any navigation, so a download event can never be lost.
func (m *Manager) OpenContext(eng *Engine, workdir string) (*Context, error) {
	if eng == nil || !eng.alive() {
		return nil, fmt.Errorf("%w: no live browser", ErrEngineUnavailable)
	}
	tab, tabCancel := chromedp.NewContext(eng.browserCtx)
	c := &Context{
		tab:           tab,
		tabCancel:     tabCancel,
		workdir:       workdir,
		navTimeout:    m.cfg.NavTimeout,
		reloadTimeout: m.cfg.ReloadTimeout,
		logger:        m.logger,
		names:         make(map[string]string),
		done:          make(chan Artifact, 8),
	}
	chromedp.ListenTarget(tab, c.captureEvent)
	err := chromedp.Run(tab,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(workdir).
			WithEventsEnabled(true),
	)
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("%w: enable download capture: %v", ErrEngineUnavailable, err)
	}
	return c, nil
}

// Release closes the context and removes the working area. Safe on nil and
// partially created resources, and safe to call more than once.
func (m *Manager) Release(c *Context, workdir string) {
	if c != nil {
		c.Close()
	}
	if workdir == "" {
		return
	}
	if entries, err := os.ReadDir(workdir); err == nil {
		for _, entry := range entries {
			path := filepath.Join(workdir, entry.Name())
			if rmErr := os.Remove(path); rmErr != nil {
				m.logger.Warn("remove artifact failed", zap.String("path", path), zap.Error(rmErr))
			}
		}
	}
	if err := os.RemoveAll(workdir); err != nil {
		m.logger.Warn("remove working area failed", zap.String("dir", workdir), zap.Error(err))
	}
}
