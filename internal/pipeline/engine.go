package pipeline

import (
	"context"

	"github.com/relaycore/report-relay/internal/download"
	"github.com/relaycore/report-relay/internal/engine"
)

// EngineLifecycle adapts the shared engine manager to the Lifecycle interface.
type EngineLifecycle struct {
	manager *engine.Manager
}

// NewEngineLifecycle wraps an engine manager.
func NewEngineLifecycle(manager *engine.Manager) *EngineLifecycle {
	return &EngineLifecycle{manager: manager}
}

// CreateWorkingArea makes the run's download directory.
func (l *EngineLifecycle) CreateWorkingArea(runID string) (string, error) {
	return l.manager.CreateWorkingArea(runID)
}

// OpenSession acquires the shared engine and opens an isolated tab bound to
// the working area.
func (l *EngineLifecycle) OpenSession(ctx context.Context, workdir string) (download.Session, error) {
	eng, err := l.manager.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return l.manager.OpenContext(eng, workdir)
}

// Release closes the tab and removes the working area.
func (l *EngineLifecycle) Release(session download.Session, workdir string) {
	tab, _ := session.(*engine.Context)
	l.manager.Release(tab, workdir)
}
