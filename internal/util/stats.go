package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Mesh counters
// ──────────────────────────────────────────────────────────────────────────────

// Stats holds cumulative mesh counters. A single instance is shared by the
// orchestrator that updates it and the reporter that prints it; a nil *Stats
// is valid and records nothing.
type Stats struct {
	PeersCreated atomic.Int64 // connection entries created since process start
	PeersRemoved atomic.Int64 // connection entries removed since process start
	MessagesSent atomic.Int64 // application messages written to data channels
	MessagesRecv atomic.Int64 // application messages read from data channels
	BytesSent    atomic.Int64 // cumulative bytes written to data channels
	BytesRecv    atomic.Int64 // cumulative bytes read from data channels
}

// NewStats returns a zeroed counter set.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) AddPeer() {
	if s != nil {
		s.PeersCreated.Add(1)
	}
}

func (s *Stats) RemovePeer() {
	if s != nil {
		s.PeersRemoved.Add(1)
	}
}

func (s *Stats) AddSent(n int) {
	if s != nil {
		s.MessagesSent.Add(1)
		s.BytesSent.Add(int64(n))
	}
}

func (s *Stats) AddRecv(n int) {
	if s != nil {
		s.MessagesRecv.Add(1)
		s.BytesRecv.Add(int64(n))
	}
}

// Live returns the number of entries currently alive.
func (s *Stats) Live() int64 {
	if s == nil {
		return 0
	}
	return s.PeersCreated.Load() - s.PeersRemoved.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs mesh statistics every
// interval. Quiet intervals (no peer churn, negligible traffic) are skipped.
// It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, s *Stats, interval time.Duration) {
	if s == nil || interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		seconds := interval.Seconds()
		var prevSent, prevRecv, prevCreated, prevRemoved int64
		for {
			select {
			case <-ticker.C:
				created := s.PeersCreated.Load()
				removed := s.PeersRemoved.Load()
				sent := s.BytesSent.Load()
				recv := s.BytesRecv.Load()

				outS := float64(sent-prevSent) / seconds
				inS := float64(recv-prevRecv) / seconds
				upC := created - prevCreated
				downC := removed - prevRemoved

				if upC > 0 || downC > 0 || inS > 10 || outS > 10 {
					logger.Info(formatStats(inS, outS, created-removed, upC, downC))
				}

				prevSent = sent
				prevRecv = recv
				prevCreated = created
				prevRemoved = removed

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, live, upC, downC int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Peers: %2d (%2d↑ %2d↓)",
		formatBytes(inS),
		formatBytes(outS),
		live,
		upC,
		downC,
	)
}
