package helpers

import (
	"context"
	"time"

	"github.com/Rican7/retry/strategy"
)

// ContextWait waits interval between attempts like strategy.Wait, but stops
// retrying as soon as ctx is done, including mid-wait.
func ContextWait(ctx context.Context, interval time.Duration) strategy.Strategy {
	return func(attempt uint) bool {
		if ctx.Err() != nil {
			return false
		}
		if attempt == 0 || interval <= 0 {
			return true
		}

		timer := time.NewTimer(interval)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		}
	}
}
