// Package store records pipeline run history for the operational surface.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the run id is unknown.
var ErrNotFound = errors.New("run not found")

// Run is one pipeline run's record, updated at each state transition.
type Run struct {
	ID             string    `json:"id"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	State          string    `json:"state"`
	Error          string    `json:"error,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	TargetLabel    string    `json:"target_label,omitempty"`
	UploadStatus   int       `json:"upload_status,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at,omitzero"`
}

// Store persists run records. Implementations must tolerate UpdateRun for a
// run they have never seen (upsert semantics) so a storage hiccup during
// creation cannot wedge a run.
type Store interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, id string) (Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}
