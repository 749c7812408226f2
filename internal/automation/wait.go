// internal/automation/wait.go
package automation

import (
	"context"
	"time"
)

// Wait blocks for d or until ctx is done, whichever comes first. It reports
// whether the full duration elapsed. Non-positive durations only check the
// context.
func Wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
