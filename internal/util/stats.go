package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling counter.
var Stats = &stats{}

type stats struct {
	SessionsOpened atomic.Int64 // cumulative count of sessions created since process start
	SessionsClosed atomic.Int64 // cumulative count of sessions destroyed since process start
	MsgsRouted     atomic.Int64 // cumulative signaling messages delivered to a recipient
	MsgsDropped    atomic.Int64 // cumulative signaling messages dropped (absent recipient / no host)
}

func (s *stats) AddSession()    { s.SessionsOpened.Add(1) }
func (s *stats) RemoveSession() { s.SessionsClosed.Add(1) }
func (s *stats) AddRouted()     { s.MsgsRouted.Add(1) }
func (s *stats) AddDropped()    { s.MsgsDropped.Add(1) }

// ActiveSessions returns the number of sessions currently alive.
func (s *stats) ActiveSessions() int64 {
	return s.SessionsOpened.Load() - s.SessionsClosed.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs relay statistics
// every 30 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		var prevRouted, prevDropped int64
		for {
			select {
			case <-ticker.C:
				routed := Stats.MsgsRouted.Load()
				dropped := Stats.MsgsDropped.Load()

				dR := routed - prevRouted
				dD := dropped - prevDropped

				if dR > 0 || dD > 0 {
					pterm.DefaultLogger.Info(formatStats(Stats.ActiveSessions(), dR, dD))
				}

				prevRouted = routed
				prevDropped = dropped

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(sessions, routed, dropped int64) string {
	return fmt.Sprintf("Sessions: %2d | Routed: %4d | Dropped: %3d", sessions, routed, dropped)
}
