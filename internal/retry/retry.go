// Package retry provides a bounded fixed-interval retry helper. The bound
// and interval are explicit so timing-sensitive callers (and their tests)
// stay reproducible.
package retry

import (
	"context"
	"time"
)

// Until calls fn up to attempts times, sleeping interval between calls,
// and returns true as soon as fn does. It returns false when the attempts
// are exhausted or ctx is cancelled.
func Until(ctx context.Context, attempts int, interval time.Duration, fn func() bool) bool {
	for i := 1; i <= attempts; i++ {
		if interval > 0 {
			select {
			case <-ctx.Done():
				return false
			case <-time.After(interval):
			}
		}
		if fn() {
			return true
		}
	}
	return false
}
