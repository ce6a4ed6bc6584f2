package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// Valuer values the holdings on a date.
type Valuer interface {
	Refresh(ctx context.Context, date domain.Date) (domain.DayChange, error)
	TotalValue(date domain.Date) decimal.Decimal
	GroupTotals(date domain.Date, mode domain.GroupMode) []domain.GroupTotal
}

// Service manages snapshot generation and retrieval.
type Service struct {
	valuer Valuer
	repo   Repository
}

// NewService creates a new snapshot service.
func NewService(valuer Valuer, repo Repository) *Service {
	return &Service{valuer: valuer, repo: repo}
}

// Generate resolves prices for date, values the holdings and stores the snapshot.
// A failed price refresh is logged and the snapshot is taken from cached prices.
func (s *Service) Generate(ctx context.Context, date domain.Date) (Snapshot, error) {
	if _, err := s.valuer.Refresh(ctx, date); err != nil {
		slog.Warn("failed to refresh prices before snapshot", "date", date, "error", err)
	}

	snap := Snapshot{
		Date:       date,
		TotalValue: s.valuer.TotalValue(date),
		ByHolder:   s.valuer.GroupTotals(date, domain.GroupByHolder),
		ByTicker:   s.valuer.GroupTotals(date, domain.GroupByTicker),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, snap); err != nil {
		return Snapshot{}, fmt.Errorf("saving snapshot: %w", err)
	}
	return snap, nil
}

// GetLatest retrieves the most recent snapshot.
func (s *Service) GetLatest(ctx context.Context) (*Snapshot, error) {
	return s.repo.GetLatest(ctx)
}

// GetByDate retrieves the snapshot of a specific date.
func (s *Service) GetByDate(ctx context.Context, date domain.Date) (*Snapshot, error) {
	return s.repo.GetByDate(ctx, date)
}

// List retrieves recent snapshots, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.List(ctx, limit)
}
