package breakdown

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/ledger"
	"github.com/mtlprog/holdings/internal/position"
	"github.com/mtlprog/holdings/internal/price"
	"github.com/mtlprog/holdings/internal/valuation"
)

func d(s string) domain.Date { return domain.MustParseDate(s) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	ledger *ledger.Store
	cache  *price.Cache
	values *valuation.Engine
	engine *Engine
}

func newFixture(t *testing.T, inputs ...domain.EntryInput) fixture {
	t.Helper()
	store := ledger.NewStore(nil)
	for _, in := range inputs {
		if _, err := store.Add(in); err != nil {
			t.Fatalf("Add(%+v): %v", in, err)
		}
	}
	cache := price.NewCache()
	values := valuation.NewEngine(position.NewAggregator(store), cache)
	return fixture{ledger: store, cache: cache, values: values, engine: NewEngine(values, store)}
}

func in(date, holder, asset, ticker, amount, memo string) domain.EntryInput {
	return domain.EntryInput{
		Date:    d(date),
		Holder:  holder,
		AssetID: asset,
		Ticker:  ticker,
		Amount:  dec(amount),
		Memo:    memo,
	}
}

func sumTotals(groups []domain.GroupTotal) decimal.Decimal {
	total := decimal.Zero
	for _, g := range groups {
		total = total.Add(g.Total)
	}
	return total
}

func TestGroupTotalsByHolderAndTickerAgree(t *testing.T) {
	f := newFixture(t,
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "1", ""),
		in("2024-01-01", "Exchange", "bitcoin", "BTC", "0.5", ""),
		in("2024-01-01", "Exchange", "ethereum", "ETH", "10", ""),
		in("2024-01-01", "Bank", "usdt", "USDT", "1000", ""),
	)
	f.cache.Record("bitcoin", d("2024-01-01"), dec("40000"))
	f.cache.Record("ethereum", d("2024-01-01"), dec("2000"))

	byHolder := f.engine.GroupTotals(d("2024-01-01"), domain.GroupByHolder)
	byTicker := f.engine.GroupTotals(d("2024-01-01"), domain.GroupByTicker)
	total := f.values.TotalValue(d("2024-01-01"))

	if !sumTotals(byHolder).Equal(total) || !sumTotals(byTicker).Equal(total) {
		t.Errorf("by holder %s, by ticker %s, total %s should all agree",
			sumTotals(byHolder), sumTotals(byTicker), total)
	}
	if byHolder[0].Key != "Wallet" && byHolder[0].Key != "Exchange" {
		t.Errorf("largest holder = %q", byHolder[0].Key)
	}
	if byTicker[0].Key != "BTC" || !byTicker[0].Total.Equal(dec("60000")) {
		t.Errorf("largest ticker = %+v, want BTC 60000", byTicker[0])
	}
}

func TestGroupKeyFallsBackToKnownSymbol(t *testing.T) {
	f := newFixture(t)
	f.ledger.Replace([]domain.LedgerEntry{
		{ID: "1", Date: d("2024-01-01"), Holder: "A", AssetID: "bitcoin", Amount: dec("1")},
	})
	f.cache.Record("bitcoin", d("2024-01-01"), dec("100"))

	groups := f.engine.GroupTotals(d("2024-01-01"), domain.GroupByTicker)
	if len(groups) != 1 || groups[0].Key != "BTC" {
		t.Errorf("groups = %+v, want key BTC from the reverse ticker map", groups)
	}
}

func TestRowsMergeSameTitle(t *testing.T) {
	f := newFixture(t,
		in("2024-01-01", "Wallet", "usdt", "USDT", "100", ""),
		in("2024-01-01", "Wallet", "other", "USDT", "50", ""),
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "1", ""),
	)
	f.cache.Record("bitcoin", d("2024-01-01"), dec("10"))

	rows := f.engine.Rows(d("2024-01-01"), domain.GroupByHolder, "Wallet")
	if len(rows) != 2 {
		t.Fatalf("rows = %+v, want 2 after merge", rows)
	}
	if rows[0].Title != "USDT" || !rows[0].Amount.Equal(dec("150")) || !rows[0].Value.Equal(dec("150")) {
		t.Errorf("merged row = %+v, want USDT 150/150", rows[0])
	}
	if rows[1].Title != "BTC" {
		t.Errorf("second row = %+v, want BTC", rows[1])
	}
}

func TestGroupsDayOverDay(t *testing.T) {
	f := newFixture(t,
		in("2024-01-01", "A", "usdt", "USDT", "100", ""),
		in("2024-01-02", "A", "usdt", "USDT", "50", ""),
		in("2024-01-02", "B", "usdt", "USDT", "10", ""),
	)

	comp := f.engine.Groups(d("2024-01-02"), domain.GroupByHolder)
	if !comp.Total.Equal(dec("160")) {
		t.Errorf("Total = %s, want 160", comp.Total)
	}
	if len(comp.Groups) != 2 {
		t.Fatalf("groups = %+v", comp.Groups)
	}
	a := comp.Groups[0]
	if a.Key != "A" || !a.Diff.Equal(dec("50")) || a.Percent == nil || !a.Percent.Equal(dec("50")) {
		t.Errorf("group A = %+v, want diff 50 percent 50", a)
	}
	b := comp.Groups[1]
	if b.Key != "B" || b.Percent != nil || !b.Diff.Equal(dec("10")) {
		t.Errorf("group B = %+v, want diff 10 and no percent", b)
	}
	if len(a.Rows) != 1 || a.Rows[0].Title != "USDT" {
		t.Errorf("rows of A = %+v", a.Rows)
	}
}

func TestSubBreakdownRatiosSumToOne(t *testing.T) {
	f := newFixture(t,
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "1", "#cold"),
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "3", "#hot"),
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "0.5", ""),
		in("2024-01-02", "Wallet", "bitcoin", "BTC", "-1", "#hot"),
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "2", "#gone"),
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "-2", "#gone"),
	)
	f.cache.Record("bitcoin", d("2024-01-02"), dec("100"))

	subs := f.engine.SubBreakdown(d("2024-01-02"), domain.GroupByHolder, "Wallet", "BTC")
	if len(subs) != 3 {
		t.Fatalf("subs = %+v, want hot, cold, unmarked", subs)
	}
	if subs[0].Label != "hot" || !subs[0].Amount.Equal(dec("2")) || !subs[0].Value.Equal(dec("200")) {
		t.Errorf("first sub = %+v, want hot 2/200", subs[0])
	}
	if subs[2].Label != domain.UnmarkedLabel || subs[2].Marked {
		t.Errorf("last sub = %+v, want unmarked", subs[2])
	}

	sum := decimal.Zero
	for _, s := range subs {
		sum = sum.Add(s.Ratio)
	}
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(dec("0.000001")) {
		t.Errorf("ratios sum to %s, want 1", sum)
	}
}

func TestSubBreakdownValueUsesNetAmount(t *testing.T) {
	f := newFixture(t,
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "1", "#cold"),
		in("2024-01-02", "Wallet", "bitcoin", "BTC", "-0.5", "#cold"),
	)
	f.cache.Record("bitcoin", d("2024-01-02"), dec("100"))

	subs := f.engine.SubBreakdown(d("2024-01-02"), domain.GroupByHolder, "Wallet", "BTC")
	if len(subs) != 1 || !subs[0].Amount.Equal(dec("0.5")) || !subs[0].Value.Equal(dec("50")) {
		t.Errorf("subs = %+v, want cold 0.5/50 from the net amount", subs)
	}
}

func TestSubBreakdownZeroValueRatiosSumToZero(t *testing.T) {
	f := newFixture(t,
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "1", "#a"),
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "2", "#b"),
	)

	subs := f.engine.SubBreakdown(d("2024-01-01"), domain.GroupByTicker, "BTC", "Wallet")
	if len(subs) != 2 {
		t.Fatalf("subs = %+v", subs)
	}
	for _, s := range subs {
		if !s.Ratio.IsZero() {
			t.Errorf("ratio of %s = %s, want 0 without prices", s.Label, s.Ratio)
		}
	}
}

func TestAdjustAppendsDelta(t *testing.T) {
	f := newFixture(t,
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "1", "#cold"),
		in("2024-01-01", "Wallet", "bitcoin", "BTC", "2", ""),
	)
	before := f.ledger.Len()

	added, err := f.engine.Adjust(d("2024-01-03"), domain.GroupByTicker, "BTC", "Wallet", domain.SomeSubAccount("cold"), dec("0.25"))
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if added == nil {
		t.Fatal("Adjust returned no entry")
	}
	if !added.Amount.Equal(dec("-0.75")) {
		t.Errorf("delta = %s, want -0.75", added.Amount)
	}
	if added.Holder != "Wallet" || added.AssetID != "bitcoin" || added.Ticker != "BTC" {
		t.Errorf("entry = %+v", added)
	}
	if added.Memo != AdjustMemo || added.SubAccount != "cold" {
		t.Errorf("memo/sub = %q/%q", added.Memo, added.SubAccount)
	}
	if f.ledger.Len() != before+1 {
		t.Errorf("ledger grew by %d, want 1", f.ledger.Len()-before)
	}

	subs := f.engine.SubBreakdown(d("2024-01-03"), domain.GroupByHolder, "Wallet", "BTC")
	for _, s := range subs {
		if s.Label == "cold" && !s.Amount.Equal(dec("0.25")) {
			t.Errorf("cold after adjust = %s, want 0.25", s.Amount)
		}
	}
}

func TestAdjustUnmarkedAndNoop(t *testing.T) {
	f := newFixture(t, in("2024-01-01", "Wallet", "usdt", "USDT", "100", ""))

	added, err := f.engine.Adjust(d("2024-01-01"), domain.GroupByHolder, "Wallet", "USDT", domain.Unmarked(), dec("100"))
	if err != nil || added != nil {
		t.Errorf("Adjust to current amount = %+v, %v; want nil, nil", added, err)
	}

	added, err = f.engine.Adjust(d("2024-01-01"), domain.GroupByHolder, "Wallet", "USDT", domain.Unmarked(), dec("120"))
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if !added.Amount.Equal(dec("20")) || added.SubAccount != "" {
		t.Errorf("entry = %+v, want +20 unmarked", added)
	}
}

func TestAdjustNewRowUsesTickerMap(t *testing.T) {
	f := newFixture(t)

	added, err := f.engine.Adjust(d("2024-01-01"), domain.GroupByHolder, "Vault", "ETH", domain.SomeSubAccount("x"), dec("2"))
	if err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if added.AssetID != "ethereum" || added.Ticker != "ETH" || !added.Amount.Equal(dec("2")) {
		t.Errorf("entry = %+v, want ethereum/ETH +2", added)
	}
}
