package session

import (
	"context"
	"log/slog"
	"time"
)

// StartSweeper runs a background goroutine that periodically drops idle
// sessions until ctx is cancelled.
func StartSweeper(ctx context.Context, m *Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Session sweeper started", "interval", interval, "ttl", m.ttl)

		for {
			select {
			case <-ticker.C:
				if removed := m.CleanupExpired(); removed > 0 {
					slog.Info("Session sweeper removed expired sessions", "count", removed, "remaining", m.Len())
				}
			case <-ctx.Done():
				slog.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
