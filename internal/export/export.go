package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/price"
	"github.com/mtlprog/holdings/internal/snapshot"
)

// Sheet names of the monthly report.
const (
	DailySheet  = "DAILY"
	GroupsSheet = "GROUPS"
)

// DayRow is one day of the monthly report.
type DayRow struct {
	Date    domain.Date
	Total   decimal.Decimal
	Diff    decimal.Decimal
	Percent *decimal.Decimal
}

// Report is the monthly calendar: one row per elapsed day plus the group totals on the last one.
type Report struct {
	Month    domain.MonthKey
	AsOf     domain.Date
	Days     []DayRow
	ByHolder []domain.GroupTotal
	ByTicker []domain.GroupTotal
}

// SheetWriter writes a report to a spreadsheet destination.
type SheetWriter interface {
	Write(ctx context.Context, report Report) error
}

// Source provides the valuations the report is built from.
type Source interface {
	Today() domain.Date
	PrefetchMonth(ctx context.Context, month domain.MonthKey) ([]price.Outcome, error)
	Month(month domain.MonthKey) []domain.DayCell
	GroupTotals(date domain.Date, mode domain.GroupMode) []domain.GroupTotal
}

// Service builds monthly reports and delegates writing to a SheetWriter.
type Service struct {
	source Source
	writer SheetWriter
}

// NewService creates a new export Service.
func NewService(source Source, writer SheetWriter) *Service {
	return &Service{source: source, writer: writer}
}

// Build backfills month and returns its report. Days after today are left out.
func (s *Service) Build(ctx context.Context, month domain.MonthKey) (Report, error) {
	if _, err := s.source.PrefetchMonth(ctx, month); err != nil {
		return Report{}, fmt.Errorf("prefetching %s: %w", month, err)
	}

	cells := lo.Filter(s.source.Month(month), func(c domain.DayCell, _ int) bool { return !c.Future })
	report := Report{
		Month: month,
		Days:  lo.Map(cells, func(c domain.DayCell, _ int) DayRow { return dayRow(c) }),
	}
	if len(cells) == 0 {
		return report, nil
	}

	report.AsOf = cells[len(cells)-1].Date
	report.ByHolder = s.source.GroupTotals(report.AsOf, domain.GroupByHolder)
	report.ByTicker = s.source.GroupTotals(report.AsOf, domain.GroupByTicker)
	return report, nil
}

func dayRow(c domain.DayCell) DayRow {
	row := DayRow{Date: c.Date, Total: c.Total, Diff: c.Diff}
	if previous := c.Total.Sub(c.Diff); previous.IsPositive() {
		pct := domain.PercentChange(c.Diff, previous)
		row.Percent = &pct
	}
	return row
}

// Export builds the report of month and writes it.
func (s *Service) Export(ctx context.Context, month domain.MonthKey) error {
	report, err := s.Build(ctx, month)
	if err != nil {
		return err
	}
	if err := s.writer.Write(ctx, report); err != nil {
		return fmt.Errorf("writing %s report: %w", month, err)
	}
	slog.Info("monthly report exported", "month", month.String(), "days", len(report.Days))
	return nil
}

// ExportSnapshot rewrites the report of the snapshot's month.
// Implements worker.AfterSnapshotHook.
func (s *Service) ExportSnapshot(ctx context.Context, snap snapshot.Snapshot) error {
	return s.Export(ctx, domain.MonthOf(snap.Date))
}

// dailyRows builds the DAILY sheet.
// Columns: Date | Total | Diff | Change %
func dailyRows(r Report) [][]any {
	rows := make([][]any, 0, len(r.Days)+1)
	rows = append(rows, []any{"Date", "Total", "Diff", "Change %"})
	for _, d := range r.Days {
		rows = append(rows, []any{d.Date.String(), toFloat(d.Total), toFloat(d.Diff), ptrFloat(d.Percent)})
	}
	return rows
}

// groupRows builds the GROUPS sheet: holder totals and ticker totals side by side.
// Columns: Holder | Value | | Ticker | Value
func groupRows(r Report) [][]any {
	n := max(len(r.ByHolder), len(r.ByTicker))
	rows := make([][]any, 0, n+2)
	rows = append(rows, []any{"As of", r.AsOf.String()})
	rows = append(rows, []any{"Holder", "Value", "", "Ticker", "Value"})
	for i := range n {
		row := []any{"", nil, "", "", nil}
		if i < len(r.ByHolder) {
			row[0], row[1] = r.ByHolder[i].Key, toFloat(r.ByHolder[i].Total)
		}
		if i < len(r.ByTicker) {
			row[3], row[4] = r.ByTicker[i].Key, toFloat(r.ByTicker[i].Total)
		}
		rows = append(rows, row)
	}
	return rows
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func ptrFloat(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	f, _ := d.Float64()
	return f
}
