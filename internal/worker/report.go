package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/snapshot"
)

// SnapshotGenerator defines the interface for generating snapshots.
type SnapshotGenerator interface {
	Generate(ctx context.Context, date domain.Date) (snapshot.Snapshot, error)
}

// AfterSnapshotHook is called after each successful snapshot generation.
type AfterSnapshotHook interface {
	ExportSnapshot(ctx context.Context, snap snapshot.Snapshot) error
}

// ReportWorker periodically generates valuation snapshots.
type ReportWorker struct {
	generator SnapshotGenerator
	interval  time.Duration
	today     func() domain.Date
	hook      AfterSnapshotHook // optional
}

// NewReportWorker creates a new ReportWorker with an optional post-generation hook.
// today supplies the snapshot date in the reference time zone.
func NewReportWorker(generator SnapshotGenerator, interval time.Duration, today func() domain.Date, hook AfterSnapshotHook) *ReportWorker {
	return &ReportWorker{
		generator: generator,
		interval:  interval,
		today:     today,
		hook:      hook,
	}
}

// runHook calls the post-generation hook if one is configured.
func (w *ReportWorker) runHook(ctx context.Context, snap snapshot.Snapshot) {
	if w.hook == nil {
		return
	}
	if err := w.hook.ExportSnapshot(ctx, snap); err != nil {
		slog.Error("ReportWorker: export hook failed", "error", err)
	} else {
		slog.Info("ReportWorker: export hook completed")
	}
}

func (w *ReportWorker) generate(ctx context.Context, phase string) {
	snap, err := w.generator.Generate(ctx, w.today())
	if err != nil {
		slog.Error("ReportWorker: "+phase+" generation failed", "error", err)
		return
	}
	slog.Info("ReportWorker: "+phase+" generation completed", "date", snap.Date, "total", snap.TotalValue)
	w.runHook(ctx, snap)
}

// Run starts the report worker loop. It blocks until the context is cancelled.
func (w *ReportWorker) Run(ctx context.Context) {
	slog.Info("ReportWorker: starting")

	// Generate immediately on startup
	w.generate(ctx, "initial")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("ReportWorker: shutting down")
			return
		case <-ticker.C:
			w.generate(ctx, "periodic")
		}
	}
}
