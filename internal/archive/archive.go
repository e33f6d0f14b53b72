// Package archive keeps optional copies of relayed artifacts. Archiving is
// best-effort: a failure here never fails the run that produced the artifact.
package archive

import "context"

// Store persists one artifact under a key and returns its final location.
type Store interface {
	Save(ctx context.Context, key string, data []byte, metadata map[string]string) (string, error)
}

// Noop discards artifacts; the default when archiving is disabled.
type Noop struct{}

// Save does nothing.
func (Noop) Save(context.Context, string, []byte, map[string]string) (string, error) {
	return "", nil
}
