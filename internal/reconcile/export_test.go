package reconcile

import (
	"context"
	"time"
)

// SetSleep replaces the backoff wait.
func SetSleep(r *Reconciler, f func(ctx context.Context, d time.Duration) error) {
	r.sleep = f
}
