// Package worker runs the periodic background jobs of the server.
package worker

import (
	"context"
	"log/slog"
	"time"
)

// Snapshotter stores one occupancy sample per running event.
type Snapshotter interface {
	SnapshotAll(ctx context.Context) (int, error)
}

// SnapshotWorker calls Snapshotter every Interval until its context ends.
type SnapshotWorker struct {
	Snapshotter Snapshotter
	Interval    time.Duration
	Logger      *slog.Logger
}

// NewSnapshotWorker returns a worker; a non-positive interval disables it.
func NewSnapshotWorker(s Snapshotter, interval time.Duration, logger *slog.Logger) *SnapshotWorker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWorker{Snapshotter: s, Interval: interval, Logger: logger.With("component", "snapshot-worker")}
}

// Run blocks until ctx is cancelled.  A failed tick is logged and the
// next tick runs as scheduled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	if w.Interval <= 0 {
		w.Logger.Info("occupancy snapshots disabled")
		return
	}
	w.Logger.Info("started", "interval", w.Interval.String())
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *SnapshotWorker) tick(ctx context.Context) {
	start := time.Now()
	n, err := w.Snapshotter.SnapshotAll(ctx)
	if err != nil && ctx.Err() == nil {
		w.Logger.Warn("snapshot incomplete", "events", n, "error", err) // n events were still stored
		return
	}
	w.Logger.Debug("snapshot stored", "events", n, "took", time.Since(start).String())
}
