package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/price"
)

// ErrInvalidImport is returned for import payloads that cannot be decoded. No state changes.
var ErrInvalidImport = errors.New("invalid import payload")

// Scope selects what an export contains.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeLedger Scope = "ledger"
)

// ParseScope parses an export scope; empty means ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeLedger:
		return ScopeLedger, nil
	default:
		return "", fmt.Errorf("unknown export scope %q", s)
	}
}

// Payload is the export document. Import accepts the same shape.
type Payload struct {
	ExportedAt    time.Time            `json:"exportedAt"`
	Ledger        []domain.LedgerEntry `json:"assets"`
	PriceHistory  price.History        `json:"priceHist,omitempty"`
	FetchedMonths price.FetchedMonths  `json:"priceMonthFetched,omitempty"`
}

// Export returns the current state limited to scope.
func (s *Session) Export(scope Scope) Payload {
	p := Payload{
		ExportedAt: time.Now().UTC(),
		Ledger:     s.ledger.Entries(),
	}
	if scope == ScopeAll {
		p.PriceHistory = s.cache.History()
		p.FetchedMonths = s.cache.Months()
	}
	return p
}

// importedEntry accepts entries written by older exports: numeric amounts and ids,
// and creation times in epoch milliseconds.
type importedEntry struct {
	ID         json.RawMessage `json:"id"`
	Date       string          `json:"date"`
	Holder     string          `json:"name"`
	AssetID    string          `json:"assetId"`
	Ticker     string          `json:"ticker"`
	Amount     decimal.Decimal `json:"amount"`
	Memo       string          `json:"memo"`
	SubAccount string          `json:"sub"`
	CreatedAt  json.RawMessage `json:"createdAt"`
}

type importedPayload struct {
	Ledger        []importedEntry     `json:"assets"`
	PriceHistory  price.History       `json:"priceHist"`
	FetchedMonths price.FetchedMonths `json:"priceMonthFetched"`
}

// Import replaces the ledger, the price history and the fetch ledger with data.
// data is either an export payload or a bare array of entries.
func (s *Session) Import(ctx context.Context, data []byte) error {
	payload, err := decodeImport(data)
	if err != nil {
		return err
	}

	entries := make([]domain.LedgerEntry, 0, len(payload.Ledger))
	for i, raw := range payload.Ledger {
		e, err := raw.toEntry()
		if err != nil {
			return fmt.Errorf("%w: entry %d: %v", ErrInvalidImport, i, err)
		}
		entries = append(entries, e)
	}

	s.ledger.Replace(entries)
	s.cache.Restore(payload.PriceHistory, payload.FetchedMonths)
	slog.Info("state imported", "entries", len(entries), "assets", len(payload.PriceHistory))

	if err := s.saveLedger(ctx); err != nil {
		return err
	}
	return s.saveCache(ctx)
}

func decodeImport(data []byte) (importedPayload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return importedPayload{}, fmt.Errorf("%w: empty document", ErrInvalidImport)
	}

	var p importedPayload
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &p.Ledger); err != nil {
			return importedPayload{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
	case '{':
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return importedPayload{}, fmt.Errorf("%w: %v", ErrInvalidImport, err)
		}
	default:
		return importedPayload{}, fmt.Errorf("%w: expected an object or an array", ErrInvalidImport)
	}
	return p, nil
}

func (r importedEntry) toEntry() (domain.LedgerEntry, error) {
	date, err := domain.ParseDate(r.Date)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	in := domain.EntryInput{
		Date:       date,
		Holder:     r.Holder,
		AssetID:    r.AssetID,
		Ticker:     r.Ticker,
		Amount:     r.Amount,
		Memo:       r.Memo,
		SubAccount: r.SubAccount,
	}
	if err := in.Validate(); err != nil {
		return domain.LedgerEntry{}, err
	}
	in = in.Normalize()

	id := rawString(r.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return domain.LedgerEntry{
		ID:         id,
		Date:       in.Date,
		Holder:     in.Holder,
		AssetID:    in.AssetID,
		Ticker:     in.Ticker,
		Amount:     in.Amount,
		Memo:       in.Memo,
		SubAccount: in.SubAccount,
		CreatedAt:  parseCreatedAt(r.CreatedAt, in.Date),
	}, nil
}

// rawString returns a JSON string or number as text.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// parseCreatedAt reads RFC 3339 text or epoch milliseconds, falling back to the entry date.
func parseCreatedAt(raw json.RawMessage, date domain.Date) time.Time {
	v := rawString(raw)
	if v == "" {
		return date.Start(time.UTC)
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return date.Start(time.UTC)
}
