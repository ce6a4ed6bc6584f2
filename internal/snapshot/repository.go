package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

// ErrNotFound indicates that the requested snapshot was not found.
var ErrNotFound = errors.New("snapshot not found")

// Snapshot is the stored valuation of the holdings on one day.
type Snapshot struct {
	Date       domain.Date         `json:"date"`
	TotalValue decimal.Decimal     `json:"totalValue"`
	ByHolder   []domain.GroupTotal `json:"byHolder"`
	ByTicker   []domain.GroupTotal `json:"byTicker"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Repository defines persistent storage for snapshots.
type Repository interface {
	Save(ctx context.Context, s Snapshot) error
	GetLatest(ctx context.Context) (*Snapshot, error)
	GetByDate(ctx context.Context, date domain.Date) (*Snapshot, error)
	List(ctx context.Context, limit int) ([]Snapshot, error)
}

// PgRepository implements Repository with PostgreSQL.
// The pool must have the decimal codec registered (see database.Connect).
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewPgRepository creates a new PostgreSQL snapshot repository.
func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const selectSnapshot = `SELECT snapshot_date, total_value, by_holder, by_ticker, created_at FROM valuation_snapshots`

func (r *PgRepository) Save(ctx context.Context, s Snapshot) error {
	byHolder, err := json.Marshal(s.ByHolder)
	if err != nil {
		return fmt.Errorf("marshaling holder totals: %w", err)
	}
	byTicker, err := json.Marshal(s.ByTicker)
	if err != nil {
		return fmt.Errorf("marshaling ticker totals: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO valuation_snapshots (snapshot_date, total_value, by_holder, by_ticker)
		 VALUES ($1, $2, $3::jsonb, $4::jsonb)
		 ON CONFLICT (snapshot_date)
		 DO UPDATE SET total_value = $2, by_holder = $3::jsonb, by_ticker = $4::jsonb, created_at = NOW()`,
		s.Date.Start(time.UTC), s.TotalValue, byHolder, byTicker)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (r *PgRepository) GetLatest(ctx context.Context) (*Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx, selectSnapshot+` ORDER BY snapshot_date DESC LIMIT 1`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) GetByDate(ctx context.Context, date domain.Date) (*Snapshot, error) {
	s, err := scanSnapshot(r.pool.QueryRow(ctx, selectSnapshot+` WHERE snapshot_date = $1`, date.Start(time.UTC)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting snapshot by date: %w", err)
	}
	return &s, nil
}

func (r *PgRepository) List(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := r.pool.Query(ctx, selectSnapshot+` ORDER BY snapshot_date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}
	return snapshots, nil
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var (
		s                  Snapshot
		day                time.Time
		byHolder, byTicker []byte
	)
	if err := row.Scan(&day, &s.TotalValue, &byHolder, &byTicker, &s.CreatedAt); err != nil {
		return Snapshot{}, err
	}
	s.Date = domain.DateOf(day, time.UTC)
	if err := json.Unmarshal(byHolder, &s.ByHolder); err != nil {
		return Snapshot{}, fmt.Errorf("decoding holder totals: %w", err)
	}
	if err := json.Unmarshal(byTicker, &s.ByTicker); err != nil {
		return Snapshot{}, fmt.Errorf("decoding ticker totals: %w", err)
	}
	return s, nil
}
