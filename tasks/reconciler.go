package tasks

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

type CounterStore interface {
	ReconcileUnreadCounters(ctx context.Context) (int, error)
}

// ReconcileUnreadCounters periodically recomputes the stored unread counters
// from the notifications themselves. It returns when ctx is done. A
// non-positive interval disables the task.
func ReconcileUnreadCounters(ctx context.Context, store CounterStore, interval time.Duration) {
	if interval <= 0 {
		log.Info("Unread counter reconciliation disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ReconcileOnce(ctx, store)
		}
	}
}

func ReconcileOnce(ctx context.Context, store CounterStore) int {
	start := time.Now()
	fixed, err := store.ReconcileUnreadCounters(ctx)
	if err != nil {
		log.Errorf("Error reconciling unread counters: %v", err)
		return 0
	}
	entry := log.WithFields(log.Fields{"fixed": fixed, "elapsed": time.Since(start)})
	if fixed > 0 {
		entry.Warn("Unread counters drifted and were repaired")
	} else {
		entry.Debug("Unread counters consistent")
	}
	return fixed
}
