package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/holdings/internal/price"
)

// QuoteRefresher refreshes today's prices of held assets and backfills the current month.
type QuoteRefresher interface {
	RefreshQuotes(ctx context.Context) ([]price.Outcome, error)
}

// QuoteWorker periodically refreshes price quotes.
type QuoteWorker struct {
	refresher QuoteRefresher
	interval  time.Duration
}

// NewQuoteWorker creates a new QuoteWorker.
func NewQuoteWorker(refresher QuoteRefresher, interval time.Duration) *QuoteWorker {
	return &QuoteWorker{
		refresher: refresher,
		interval:  interval,
	}
}

func (w *QuoteWorker) refresh(ctx context.Context, phase string) {
	outcomes, err := w.refresher.RefreshQuotes(ctx)
	if err != nil {
		slog.Error("QuoteWorker: "+phase+" refresh failed", "error", err)
		return
	}
	slog.Info("QuoteWorker: "+phase+" refresh completed",
		"resolved", len(outcomes)-len(price.Failed(outcomes)),
		"failed", len(price.Failed(outcomes)))
}

// Run starts the quote worker loop. It blocks until the context is cancelled.
func (w *QuoteWorker) Run(ctx context.Context) {
	slog.Info("QuoteWorker: starting")

	// Refresh immediately on startup
	w.refresh(ctx, "initial")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("QuoteWorker: shutting down")
			return
		case <-ticker.C:
			w.refresh(ctx, "periodic")
		}
	}
}
