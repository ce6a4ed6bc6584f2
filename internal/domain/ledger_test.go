package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestEntrySubAccount(t *testing.T) {
	tests := []struct {
		name  string
		entry LedgerEntry
		want  string
		isSet bool
	}{
		{"explicit wins", LedgerEntry{SubAccount: "cold", Memo: "#hot"}, "cold", true},
		{"memo tag", LedgerEntry{Memo: "moved to #staking today"}, "staking", true},
		{"first tag only", LedgerEntry{Memo: "#a #b"}, "a", true},
		{"no tag", LedgerEntry{Memo: "plain memo"}, UnmarkedLabel, false},
		{"bare hash", LedgerEntry{Memo: "# nothing"}, UnmarkedLabel, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := tt.entry.Sub()
			if sub.Label() != tt.want || sub.IsSet() != tt.isSet {
				t.Errorf("Sub() = (%q, %v), want (%q, %v)", sub.Label(), sub.IsSet(), tt.want, tt.isSet)
			}
		})
	}
}

func TestSomeSubAccountUnmarkedLabelIsAbsent(t *testing.T) {
	if SomeSubAccount(UnmarkedLabel).IsSet() {
		t.Error("the unmarked label must not produce a set sub-account")
	}
	if SomeSubAccount("  ").IsSet() {
		t.Error("blank label must not produce a set sub-account")
	}
}

func TestEntryInputValidate(t *testing.T) {
	valid := EntryInput{Date: MustParseDate("2024-01-01"), AssetID: "bitcoin", Amount: decimal.NewFromInt(1)}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	noDate := valid
	noDate.Date = Date{}
	if err := noDate.Validate(); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("missing date error = %v, want ErrInvalidEntry", err)
	}

	noAsset := valid
	noAsset.AssetID = " "
	if err := noAsset.Validate(); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("missing asset error = %v, want ErrInvalidEntry", err)
	}
}

func TestEntryInputNormalize(t *testing.T) {
	in := EntryInput{AssetID: " Bitcoin ", Memo: "bought #ledger", Holder: ""}.Normalize()

	if in.AssetID != "bitcoin" {
		t.Errorf("AssetID = %q, want bitcoin", in.AssetID)
	}
	if in.Ticker != "BITCOIN" {
		t.Errorf("Ticker = %q, want BITCOIN", in.Ticker)
	}
	if in.Holder != DefaultHolder {
		t.Errorf("Holder = %q, want %q", in.Holder, DefaultHolder)
	}
	if in.SubAccount != "ledger" {
		t.Errorf("SubAccount = %q, want ledger", in.SubAccount)
	}
}

func TestEntryPatchApply(t *testing.T) {
	e := LedgerEntry{ID: "x", Holder: "A", AssetID: "bitcoin", Ticker: "BTC", Amount: decimal.NewFromInt(1)}
	asset := "ETHEREUM"
	amount := decimal.NewFromInt(3)

	got, err := EntryPatch{AssetID: &asset, Amount: &amount}.Apply(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.AssetID != "ethereum" || !got.Amount.Equal(amount) || got.Holder != "A" || got.ID != "x" {
		t.Errorf("Apply = %+v", got)
	}

	empty := ""
	if _, err := (EntryPatch{AssetID: &empty}).Apply(e); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("empty asset patch error = %v, want ErrInvalidEntry", err)
	}
}
