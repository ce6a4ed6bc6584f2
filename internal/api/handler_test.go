package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/export"
	"github.com/mtlprog/holdings/internal/external"
	"github.com/mtlprog/holdings/internal/price"
	"github.com/mtlprog/holdings/internal/session"
	"github.com/mtlprog/holdings/internal/snapshot"
	"github.com/mtlprog/holdings/internal/state"
)

var cst = time.FixedZone("CST", 8*3600)

type stubProvider struct{}

func (stubProvider) MarketChartRange(_ context.Context, _ string, _, _ time.Time) ([]external.TimedPrice, error) {
	return nil, nil
}

func (stubProvider) SimplePrices(_ context.Context, ids []string) (map[string]decimal.Decimal, error) {
	return map[string]decimal.Decimal{}, nil
}

func (stubProvider) History(_ context.Context, _ string, _ domain.Date) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type mockSnapshotRepo struct {
	snapshots     []snapshot.Snapshot
	lastListLimit int
}

func (m *mockSnapshotRepo) Save(_ context.Context, s snapshot.Snapshot) error {
	m.snapshots = append([]snapshot.Snapshot{s}, m.snapshots...)
	return nil
}

func (m *mockSnapshotRepo) GetLatest(_ context.Context) (*snapshot.Snapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, snapshot.ErrNotFound
	}
	return &m.snapshots[0], nil
}

func (m *mockSnapshotRepo) GetByDate(_ context.Context, date domain.Date) (*snapshot.Snapshot, error) {
	for _, s := range m.snapshots {
		if s.Date == date {
			return &s, nil
		}
	}
	return nil, snapshot.ErrNotFound
}

func (m *mockSnapshotRepo) List(_ context.Context, limit int) ([]snapshot.Snapshot, error) {
	m.lastListLimit = limit
	if limit > len(m.snapshots) {
		limit = len(m.snapshots)
	}
	return m.snapshots[:limit], nil
}

type testEnv struct {
	mux   *http.ServeMux
	sess  *session.Session
	repo  *mockSnapshotRepo
	store *state.MemoryStore
}

func newTestEnv(t *testing.T, apiKey string) testEnv {
	t.Helper()
	store := state.NewMemoryStore()
	sess, err := session.New(context.Background(), store, stubProvider{},
		session.WithResolverOptions(
			price.WithNow(func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, cst) }),
			price.WithLocation(cst),
		))
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	repo := &mockSnapshotRepo{}
	snapshots := snapshot.NewService(sess, repo)
	reports := export.NewService(sess, nil)
	return testEnv{
		mux:   NewMux(sess, snapshots, reports, apiKey),
		sess:  sess,
		repo:  repo,
		store: store,
	}
}

func (e testEnv) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	w := httptest.NewRecorder()
	e.mux.ServeHTTP(w, req)
	return w
}

func decodeJSON[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return v
}

func (e testEnv) addEntry(t *testing.T, date, holder, asset, amount string) domain.LedgerEntry {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/entries", map[string]string{
		"date": date, "name": holder, "assetId": asset, "amount": amount,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add entry status = %d, body %s", w.Code, w.Body.String())
	}
	return decodeJSON[domain.LedgerEntry](t, w)
}

func TestAddAndListEntries(t *testing.T) {
	env := newTestEnv(t, "")
	added := env.addEntry(t, "2024-03-10", "Alice", "USDT", "100")
	if added.ID == "" {
		t.Error("expected generated id")
	}
	if added.AssetID != "usdt" || added.Ticker != "USDT" {
		t.Errorf("asset = %q/%q, want usdt/USDT", added.AssetID, added.Ticker)
	}

	w := env.do(t, http.MethodGet, "/api/v1/entries", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	entries := decodeJSON[[]domain.LedgerEntry](t, w)
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}

	if !slices.Contains(env.store.Keys(), state.KeyLedger) {
		t.Error("expected ledger to be persisted")
	}
}

func TestAddEntryInvalid(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/v1/entries", map[string]string{"date": "2024-03-10", "amount": "1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing asset status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/entries", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", w.Code)
	}

	if n := len(env.sess.Entries()); n != 0 {
		t.Errorf("entries = %d, want 0", n)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(t, http.MethodGet, "/api/v1/entries/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateAndDeleteEntry(t *testing.T) {
	env := newTestEnv(t, "")
	added := env.addEntry(t, "2024-03-10", "Alice", "usdt", "100")

	w := env.do(t, http.MethodPatch, "/api/v1/entries/"+added.ID, map[string]string{"amount": "250"})
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", w.Code, w.Body.String())
	}
	updated := decodeJSON[domain.LedgerEntry](t, w)
	if !updated.Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("amount = %s, want 250", updated.Amount)
	}

	w = env.do(t, http.MethodDelete, "/api/v1/entries/"+added.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}
	w = env.do(t, http.MethodDelete, "/api/v1/entries/"+added.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestGetTotal(t *testing.T) {
	env := newTestEnv(t, "")
	env.addEntry(t, "2024-03-10", "Alice", "usdt", "100")
	env.addEntry(t, "2024-03-12", "Bob", "other", "50")

	tests := []struct {
		date string
		want int64
	}{
		{"2024-03-09", 0},
		{"2024-03-10", 100},
		{"2024-03-12", 150},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodGet, "/api/v1/total?date="+tt.date, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		got := decodeJSON[totalResponse](t, w)
		if !got.Total.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("total on %s = %s, want %d", tt.date, got.Total, tt.want)
		}
	}
}

func TestTotalDefaultsToToday(t *testing.T) {
	env := newTestEnv(t, "")
	w := env.do(t, http.MethodGet, "/api/v1/total", nil)
	got := decodeJSON[totalResponse](t, w)
	if got.Date.String() != "2024-03-15" {
		t.Errorf("date = %s, want 2024-03-15", got.Date)
	}
}

func TestInvalidQueryParams(t *testing.T) {
	env := newTestEnv(t, "")
	targets := []string{
		"/api/v1/total?date=2024-13-01",
		"/api/v1/positions?date=yesterday",
		"/api/v1/groups?mode=wallet",
		"/api/v1/breakdown?group=Alice",
		"/api/v1/calendar?month=2024-3x",
		"/api/v1/export?scope=prices",
	}
	for _, target := range targets {
		w := env.do(t, http.MethodGet, target, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("GET %s status = %d, want 400", target, w.Code)
		}
	}
}

func TestGroupTotalsByMode(t *testing.T) {
	env := newTestEnv(t, "")
	env.addEntry(t, "2024-03-10", "Alice", "usdt", "100")
	env.addEntry(t, "2024-03-10", "Bob", "usdt", "40")

	w := env.do(t, http.MethodGet, "/api/v1/groups?date=2024-03-10&mode=holder", nil)
	groups := decodeJSON[[]domain.GroupTotal](t, w)
	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}

	w = env.do(t, http.MethodGet, "/api/v1/groups?date=2024-03-10&mode=ticker", nil)
	groups = decodeJSON[[]domain.GroupTotal](t, w)
	if len(groups) != 1 || groups[0].Key != "USDT" || !groups[0].Total.Equal(decimal.NewFromInt(140)) {
		t.Errorf("ticker groups = %+v, want one USDT group of 140", groups)
	}
}

func TestAdjust(t *testing.T) {
	env := newTestEnv(t, "")
	env.addEntry(t, "2024-03-10", "Alice", "usdt", "100")

	req := map[string]string{
		"date": "2024-03-12", "mode": "source", "group": "Alice", "row": "USDT", "target": "150",
	}
	w := env.do(t, http.MethodPost, "/api/v1/adjust", req)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	added := decodeJSON[domain.LedgerEntry](t, w)
	if !added.Amount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("delta = %s, want 50", added.Amount)
	}

	w = env.do(t, http.MethodPost, "/api/v1/adjust", req)
	if w.Code != http.StatusNoContent {
		t.Errorf("repeat adjust status = %d, want 204", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/adjust", map[string]string{"mode": "source", "target": "1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing group status = %d, want 400", w.Code)
	}
}

func TestOpenComposition(t *testing.T) {
	env := newTestEnv(t, "")
	env.addEntry(t, "2024-03-10", "Alice", "usdt", "100")

	w := env.do(t, http.MethodPost, "/api/v1/days/2024-03-10/open", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	view := decodeJSON[session.DayView](t, w)
	if len(view.Operations) != 1 {
		t.Errorf("operations = %d, want 1", len(view.Operations))
	}
	if len(view.Groups) != 1 || view.Groups[0].Key != "Alice" {
		t.Errorf("groups = %+v, want Alice", view.Groups)
	}

	w = env.do(t, http.MethodPost, "/api/v1/days/10-03-2024/open", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", w.Code)
	}
}

func TestNavigateCalendar(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/v1/calendar/prev", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	view := decodeJSON[session.CalendarView](t, w)
	if view.Month != "2024-02" || len(view.Cells) != 29 {
		t.Errorf("view = %s with %d cells, want 2024-02 with 29", view.Month, len(view.Cells))
	}

	w = env.do(t, http.MethodPost, "/api/v1/calendar/2023-11", nil)
	view = decodeJSON[session.CalendarView](t, w)
	if view.Month != "2023-11" {
		t.Errorf("month = %s, want 2023-11", view.Month)
	}

	w = env.do(t, http.MethodGet, "/api/v1/calendar", nil)
	view = decodeJSON[session.CalendarView](t, w)
	if view.Month != "2023-11" {
		t.Errorf("remembered month = %s, want 2023-11", view.Month)
	}

	w = env.do(t, http.MethodPost, "/api/v1/calendar/sideways", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown action status = %d, want 400", w.Code)
	}
}

func TestPrefs(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPut, "/api/v1/prefs/group-mode", map[string]string{"mode": "ticker"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	prefs := decodeJSON[session.Prefs](t, w)
	if prefs.GroupMode != domain.GroupByTicker {
		t.Errorf("group mode = %s, want ticker", prefs.GroupMode)
	}

	w = env.do(t, http.MethodPut, "/api/v1/prefs/group-mode", map[string]string{"mode": "nope"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad mode status = %d, want 400", w.Code)
	}

	w = env.do(t, http.MethodPut, "/api/v1/prefs/open-groups",
		map[string]any{"date": "2024-03-10", "group": "Alice", "mode": "source", "open": true})
	if w.Code != http.StatusNoContent {
		t.Fatalf("open group status = %d, want 204", w.Code)
	}
	if !env.sess.IsGroupOpen(domain.MustParseDate("2024-03-10"), "Alice", domain.GroupByHolder) {
		t.Error("expected group to be open")
	}
}

func TestHoldersAndSubAccounts(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/v1/holders", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty holders body = %s, want []", w.Body.String())
	}

	env.addEntry(t, "2024-03-10", "Bob", "usdt", "1")
	env.addEntry(t, "2024-03-10", "Alice", "usdt", "1")
	holders := decodeJSON[[]string](t, env.do(t, http.MethodGet, "/api/v1/holders", nil))
	sort.Strings(holders)
	if len(holders) != 2 || holders[0] != "Alice" || holders[1] != "Bob" {
		t.Errorf("holders = %v, want [Alice Bob]", holders)
	}
}

func TestSelectCandidate(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodPost, "/api/v1/search/select", map[string]string{"id": "bitcoin", "symbol": "btc"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	got := decodeJSON[selectResponse](t, w)
	if got.AssetID != "bitcoin" || got.Ticker != "BTC" {
		t.Errorf("got %+v, want bitcoin/BTC", got)
	}

	w = env.do(t, http.MethodPost, "/api/v1/search/select", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty candidate status = %d, want 400", w.Code)
	}
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t, "")
	env.addEntry(t, "2024-03-10", "Alice", "usdt", "100")

	w := env.do(t, http.MethodGet, "/api/v1/export?scope=ledger", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "holdings_ledger_") {
		t.Errorf("Content-Disposition = %q", cd)
	}
	exported := w.Body.String()

	if w := env.do(t, http.MethodPost, "/api/v1/clear", nil); w.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d, want 204", w.Code)
	}
	if n := len(env.sess.Entries()); n != 0 {
		t.Fatalf("entries after clear = %d, want 0", n)
	}

	w = env.do(t, http.MethodPost, "/api/v1/import", exported)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d, body %s", w.Code, w.Body.String())
	}
	if n := len(env.sess.Entries()); n != 1 {
		t.Errorf("entries after import = %d, want 1", n)
	}

	w = env.do(t, http.MethodPost, "/api/v1/import", `"just a string"`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid import status = %d, want 400", w.Code)
	}
	if n := len(env.sess.Entries()); n != 1 {
		t.Errorf("entries after invalid import = %d, want 1", n)
	}
}

func TestSnapshotRoutes(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.do(t, http.MethodGet, "/api/v1/snapshots/latest", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("latest status = %d, want 404", w.Code)
	}

	env.addEntry(t, "2024-03-10", "Alice", "usdt", "100")
	w = env.do(t, http.MethodPost, "/api/v1/snapshots/generate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("generate status = %d, body %s", w.Code, w.Body.String())
	}
	snap := decodeJSON[snapshot.Snapshot](t, w)
	if snap.Date.String() != "2024-03-15" || !snap.TotalValue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("snapshot = %s %s, want 2024-03-15 100", snap.Date, snap.TotalValue)
	}

	w = env.do(t, http.MethodGet, "/api/v1/snapshots/2024-03-15", nil)
	if w.Code != http.StatusOK {
		t.Errorf("by date status = %d, want 200", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/snapshots/2024-03-14", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing date status = %d, want 404", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/snapshots/not-a-date", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad date status = %d, want 400", w.Code)
	}
}

func TestListSnapshotsLimit(t *testing.T) {
	tests := []struct {
		query     string
		wantLimit int
	}{
		{"", 30},
		{"?limit=10", 10},
		{"?limit=1000", 365},
		{"?limit=-5", 30},
		{"?limit=abc", 30},
	}
	for _, tt := range tests {
		env := newTestEnv(t, "")
		w := env.do(t, http.MethodGet, "/api/v1/snapshots"+tt.query, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%q: status = %d, want 200", tt.query, w.Code)
		}
		if env.repo.lastListLimit != tt.wantLimit {
			t.Errorf("%q: limit = %d, want %d", tt.query, env.repo.lastListLimit, tt.wantLimit)
		}
	}
}

func TestGetReport(t *testing.T) {
	env := newTestEnv(t, "")
	env.addEntry(t, "2024-03-10", "Alice", "usdt", "100")

	w := env.do(t, http.MethodGet, "/api/v1/reports/2024-03", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Errorf("Content-Type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("expected a zip-based workbook")
	}

	w = env.do(t, http.MethodGet, "/api/v1/reports/March", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad month status = %d, want 400", w.Code)
	}
}
