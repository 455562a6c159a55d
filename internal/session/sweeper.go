package session

import (
	"context"
	"log/slog"
	"time"
)

const DefaultSweepInterval = time.Minute

// Sweep evicts expired records periodically until ctx is cancelled. It runs
// out-of-band of request handling; per-key locking inside EvictExpired keeps
// it from racing in-flight updates.
func Sweep(ctx context.Context, store Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := store.EvictExpired(now); n > 0 && logger != nil {
				logger.Debug("evicted expired flow sessions", "count", n)
			}
		}
	}
}
