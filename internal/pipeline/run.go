// Package pipeline orchestrates a run from inbound hook to relayed upload.
package pipeline

// Run states, in the order a healthy run moves through them. Failures jump
// straight to cleanup and then to StateFailed.
const (
	StateReceived    = "received"
	StateResolving   = "resolving"
	StateDownloading = "downloading"
	StateRelaying    = "relaying"
	StateCleaningUp  = "cleaning_up"
	StateSucceeded   = "succeeded"
	StateFailed      = "failed"
)

// Event is the trigger extracted from an inbound webhook.
type Event struct {
	MessageID      string
	ConversationID string
}
