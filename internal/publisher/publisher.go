// Package publisher emits run lifecycle events for downstream consumers.
package publisher

import (
	"context"
	"time"
)

// RunEvent describes one pipeline run reaching a terminal state.
type RunEvent struct {
	RunID          string    `json:"run_id"`
	MessageID      string    `json:"message_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	State          string    `json:"state"`
	Error          string    `json:"error,omitempty"`
	FileName       string    `json:"file_name,omitempty"`
	TargetLabel    string    `json:"target_label,omitempty"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Publisher delivers run events. Publish failures are logged by callers, not
// escalated: event delivery never fails a run.
type Publisher interface {
	Publish(ctx context.Context, event RunEvent) (string, error)
}
