package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInvalidEntry indicates rejected ledger input. Nothing is mutated when it is returned.
var ErrInvalidEntry = errors.New("invalid ledger entry")

// DefaultHolder is used when an entry is submitted without a holder name.
const DefaultHolder = "Unknown"

// UnmarkedLabel is the display label of entries without a sub-account.
const UnmarkedLabel = "unmarked"

// LedgerEntry is one signed quantity delta for a holder and asset on a date.
type LedgerEntry struct {
	ID         string          `json:"id"`
	Date       Date            `json:"date"`
	Holder     string          `json:"name"`
	AssetID    string          `json:"assetId"`
	Ticker     string          `json:"ticker"`
	Amount     decimal.Decimal `json:"amount"`
	Memo       string          `json:"memo"`
	SubAccount string          `json:"sub"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// DisplayTicker returns the entry ticker, deriving it from the asset id when empty.
func (e LedgerEntry) DisplayTicker() string { return DisplayTicker(e.Ticker, e.AssetID) }

// Sub returns the effective sub-account of the entry.
func (e LedgerEntry) Sub() SubAccount {
	if s := strings.TrimSpace(e.SubAccount); s != "" {
		return SomeSubAccount(s)
	}
	return ParseSubAccountTag(e.Memo)
}

// SubAccount is an optional sub-account label.
type SubAccount struct {
	label string
	set   bool
}

// SomeSubAccount returns a sub-account with the given label. An empty label is unmarked.
func SomeSubAccount(label string) SubAccount {
	label = strings.TrimSpace(label)
	if label == "" || label == UnmarkedLabel {
		return SubAccount{}
	}
	return SubAccount{label: label, set: true}
}

// Unmarked returns the absent sub-account.
func Unmarked() SubAccount { return SubAccount{} }

// Get returns the label and whether one is set.
func (s SubAccount) Get() (string, bool) { return s.label, s.set }

// IsSet reports whether a label is present.
func (s SubAccount) IsSet() bool { return s.set }

// Label returns the display label, UnmarkedLabel when absent.
func (s SubAccount) Label() string {
	if !s.set {
		return UnmarkedLabel
	}
	return s.label
}

// Value returns the label to persist on an entry; empty when absent.
func (s SubAccount) Value() string { return s.label }

var subTagPattern = regexp.MustCompile(`#([^\s#]+)`)

// ParseSubAccountTag extracts the first #tag from a memo.
func ParseSubAccountTag(memo string) SubAccount {
	m := subTagPattern.FindStringSubmatch(memo)
	if m == nil {
		return Unmarked()
	}
	return SomeSubAccount(m[1])
}

// EntryInput is the user-supplied part of a ledger entry.
type EntryInput struct {
	Date       Date            `json:"date"`
	Holder     string          `json:"name"`
	AssetID    string          `json:"assetId"`
	Ticker     string          `json:"ticker"`
	Amount     decimal.Decimal `json:"amount"`
	Memo       string          `json:"memo"`
	SubAccount string          `json:"sub"`
}

// Validate checks required fields.
func (in EntryInput) Validate() error {
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidEntry)
	}
	if NormalizeAssetID(in.AssetID) == "" {
		return fmt.Errorf("%w: asset is required", ErrInvalidEntry)
	}
	return nil
}

// Normalize applies the canonical casing and defaults.
func (in EntryInput) Normalize() EntryInput {
	out := in
	out.Holder = strings.TrimSpace(in.Holder)
	if out.Holder == "" {
		out.Holder = DefaultHolder
	}
	out.AssetID = NormalizeAssetID(in.AssetID)
	out.Ticker = strings.ToUpper(strings.TrimSpace(in.Ticker))
	if out.Ticker == "" {
		out.Ticker = strings.ToUpper(out.AssetID)
	}
	out.Memo = strings.TrimSpace(in.Memo)
	sub := strings.TrimSpace(in.SubAccount)
	if sub == "" {
		sub = ParseSubAccountTag(out.Memo).Value()
	}
	out.SubAccount = sub
	return out
}

// EntryPatch is a partial update of a ledger entry. Nil fields are left unchanged.
type EntryPatch struct {
	Date       *Date            `json:"date,omitempty"`
	Holder     *string          `json:"name,omitempty"`
	AssetID    *string          `json:"assetId,omitempty"`
	Ticker     *string          `json:"ticker,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Memo       *string          `json:"memo,omitempty"`
	SubAccount *string          `json:"sub,omitempty"`
}

// Apply returns e with the patch applied.
func (p EntryPatch) Apply(e LedgerEntry) (LedgerEntry, error) {
	if p.Date != nil {
		if p.Date.IsZero() {
			return LedgerEntry{}, fmt.Errorf("%w: date is required", ErrInvalidEntry)
		}
		e.Date = *p.Date
	}
	if p.Holder != nil {
		e.Holder = strings.TrimSpace(*p.Holder)
		if e.Holder == "" {
			e.Holder = DefaultHolder
		}
	}
	if p.AssetID != nil {
		id := NormalizeAssetID(*p.AssetID)
		if id == "" {
			return LedgerEntry{}, fmt.Errorf("%w: asset is required", ErrInvalidEntry)
		}
		e.AssetID = id
	}
	if p.Ticker != nil {
		e.Ticker = strings.ToUpper(strings.TrimSpace(*p.Ticker))
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Memo != nil {
		e.Memo = *p.Memo
	}
	if p.SubAccount != nil {
		e.SubAccount = strings.TrimSpace(*p.SubAccount)
	}
	return e, nil
}
