package position

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
)

func entry(date, holder, asset, ticker, amount string) domain.LedgerEntry {
	return domain.LedgerEntry{
		Date:    domain.MustParseDate(date),
		Holder:  holder,
		AssetID: asset,
		Ticker:  ticker,
		Amount:  decimal.RequireFromString(amount),
	}
}

func TestBuildPartialWithdrawal(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry("2024-01-01", "A", "bitcoin", "BTC", "1"),
		entry("2024-01-02", "A", "bitcoin", "BTC", "-0.5"),
	}

	got := Build(entries, domain.MustParseDate("2024-01-02"))
	if len(got) != 1 {
		t.Fatalf("got %d positions, want 1", len(got))
	}
	if !got[0].Amount.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("amount = %s, want 0.5", got[0].Amount)
	}

	if before := Build(entries, domain.MustParseDate("2023-12-31")); len(before) != 0 {
		t.Errorf("got %d positions before first entry, want 0", len(before))
	}
}

func TestBuildDropsNonPositive(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry("2024-01-01", "A", "bitcoin", "BTC", "1"),
		entry("2024-01-02", "A", "bitcoin", "BTC", "-1"),
		entry("2024-01-02", "B", "ethereum", "ETH", "-3"),
	}
	if got := Build(entries, domain.MustParseDate("2024-01-05")); len(got) != 0 {
		t.Errorf("got %+v, want no positions", got)
	}
}

func TestBuildKeyCasing(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry("2024-01-01", "Wallet", "Bitcoin", "BTC", "1"),
		entry("2024-01-01", "Wallet", "bitcoin", "BTC", "2"),
		entry("2024-01-01", "wallet", "bitcoin", "BTC", "4"),
	}
	got := Build(entries, domain.MustParseDate("2024-01-01"))
	if len(got) != 2 {
		t.Fatalf("got %d positions, want 2 (holder is case-sensitive)", len(got))
	}
	if got[0].Holder != "Wallet" || !got[0].Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("first position = %+v, want Wallet/3", got[0])
	}
	if got[0].AssetID != "bitcoin" {
		t.Errorf("asset id = %q, want lower-cased", got[0].AssetID)
	}
}

func TestBuildTickerFromEarliestEntry(t *testing.T) {
	later := entry("2024-01-05", "A", "solana", "SOLANA", "1")
	earlier := entry("2024-01-01", "A", "solana", "SOL", "1")
	got := Build([]domain.LedgerEntry{later, earlier}, domain.MustParseDate("2024-01-31"))
	if len(got) != 1 || got[0].Ticker != "SOL" {
		t.Errorf("got %+v, want ticker SOL from earliest entry", got)
	}
}

func TestBuildMonotonicAccumulation(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry("2024-01-01", "A", "bitcoin", "BTC", "1"),
		entry("2024-01-03", "A", "bitcoin", "BTC", "2"),
		entry("2024-01-02", "B", "usdt", "USDT", "50"),
		entry("2024-01-04", "B", "usdt", "USDT", "25"),
	}
	d1 := domain.MustParseDate("2024-01-02")
	d2 := domain.MustParseDate("2024-01-04")

	var upToD1 []domain.LedgerEntry
	for _, e := range entries {
		if !e.Date.After(d1) {
			upToD1 = append(upToD1, e)
		}
	}
	early := Build(entries, d1)
	restricted := Build(upToD1, d2)
	if fmt.Sprint(early) != fmt.Sprint(restricted) {
		t.Errorf("positions at d1 %v differ from d2 restricted to entries <= d1 %v", early, restricted)
	}

	late := Build(entries, d2)
	for _, p := range early {
		for _, q := range late {
			if p.Holder == q.Holder && p.AssetID == q.AssetID && p.Amount.GreaterThan(q.Amount) {
				t.Errorf("deposit-only ledger shrank %s/%s: %s -> %s", p.Holder, p.AssetID, p.Amount, q.Amount)
			}
		}
	}
}

func TestBuildOrderIndependent(t *testing.T) {
	a := entry("2024-01-01", "A", "bitcoin", "BTC", "1")
	b := entry("2024-01-01", "A", "bitcoin", "BTC", "0.25")
	c := entry("2024-01-01", "B", "ethereum", "ETH", "3")
	a.CreatedAt = time.Unix(1, 0)
	b.CreatedAt = time.Unix(2, 0)

	d := domain.MustParseDate("2024-01-01")
	x := Build([]domain.LedgerEntry{a, b, c}, d)
	y := Build([]domain.LedgerEntry{c, b, a}, d)
	if fmt.Sprint(x) != fmt.Sprint(y) {
		t.Errorf("reordered ledger changed positions: %v vs %v", x, y)
	}
}

type fakeSource []domain.LedgerEntry

func (f fakeSource) EntriesUpTo(cutoff domain.Date) []domain.LedgerEntry {
	var out []domain.LedgerEntry
	for _, e := range f {
		if !e.Date.After(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

func TestHeldAssetsSkipsStablecoinsAndClosedPositions(t *testing.T) {
	agg := NewAggregator(fakeSource{
		entry("2024-01-01", "A", "bitcoin", "BTC", "1"),
		entry("2024-01-01", "B", "bitcoin", "BTC", "1"),
		entry("2024-01-01", "A", "usdt", "USDT", "100"),
		entry("2024-01-01", "A", "other", "OTHER", "5"),
		entry("2024-01-01", "A", "ethereum", "ETH", "1"),
		entry("2024-01-02", "A", "ethereum", "ETH", "-1"),
	})

	got := agg.HeldAssets(domain.MustParseDate("2024-01-02"))
	if fmt.Sprint(got) != "[bitcoin]" {
		t.Errorf("HeldAssets = %v, want [bitcoin]", got)
	}
	got = agg.HeldAssets(domain.MustParseDate("2024-01-01"))
	if fmt.Sprint(got) != "[bitcoin ethereum]" {
		t.Errorf("HeldAssets = %v, want [bitcoin ethereum]", got)
	}
}
