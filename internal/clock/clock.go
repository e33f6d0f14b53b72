// Package clock defines the time source used by retry loops and run records.
package clock

import (
	"context"
	"time"
)

// Clock supplies current time and interruptible sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}
