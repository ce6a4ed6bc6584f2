package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/mtlprog/holdings/internal/domain"
	"github.com/mtlprog/holdings/internal/export"
	"github.com/mtlprog/holdings/internal/ledger"
	"github.com/mtlprog/holdings/internal/session"
)

// maxImportSize caps the import request body.
const maxImportSize = 32 << 20

// Handler provides HTTP endpoints for the holdings ledger.
type Handler struct {
	sess    *session.Session
	reports *export.Service
}

// NewHandler creates a new API handler. reports may be nil.
func NewHandler(sess *session.Session, reports *export.Service) *Handler {
	return &Handler{sess: sess, reports: reports}
}

// ListEntries handles GET /api/v1/entries.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Entries())
}

// GetEntry handles GET /api/v1/entries/{id}.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.sess.Entry(r.PathValue("id"))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// AddEntry handles POST /api/v1/entries.
func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	var in domain.EntryInput
	if !decodeBody(w, r, &in) {
		return
	}
	e, err := h.sess.AddEntry(r.Context(), in)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateEntry handles PATCH /api/v1/entries/{id}.
func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var patch domain.EntryPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	e, err := h.sess.UpdateEntry(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteEntry handles DELETE /api/v1/entries/{id}.
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.DeleteEntry(r.Context(), r.PathValue("id")); err != nil {
		writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListPositions handles GET /api/v1/positions?date=.
func (h *Handler) ListPositions(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sess.ListPositions(date))
}

type totalResponse struct {
	Date  domain.Date     `json:"date"`
	Total decimal.Decimal `json:"total"`
}

// GetTotal handles GET /api/v1/total?date=.
func (h *Handler) GetTotal(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, totalResponse{Date: date, Total: h.sess.TotalValue(date)})
}

// GetDayChange handles GET /api/v1/change?date=. Only cached prices are used.
func (h *Handler) GetDayChange(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sess.DayChange(date))
}

// Refresh handles POST /api/v1/refresh?date=.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	change, err := h.sess.Refresh(r.Context(), date)
	if err != nil {
		slog.Error("failed to refresh prices", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to refresh prices")
		return
	}
	writeJSON(w, http.StatusOK, change)
}

// GetGroupTotals handles GET /api/v1/groups?date=&mode=.
func (h *Handler) GetGroupTotals(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	mode, ok := h.modeParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sess.GroupTotals(date, mode))
}

// GetComposition handles GET /api/v1/composition?date=&mode=. Only cached prices are used.
func (h *Handler) GetComposition(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	mode, ok := h.modeParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Composition(date, mode))
}

// OpenComposition handles POST /api/v1/days/{date}/open.
func (h *Handler) OpenComposition(w http.ResponseWriter, r *http.Request) {
	date, err := domain.ParseDate(r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return
	}
	view, err := h.sess.OpenComposition(r.Context(), date)
	if err != nil {
		slog.Error("failed to open composition", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetSubBreakdown handles GET /api/v1/breakdown?date=&mode=&group=&row=.
func (h *Handler) GetSubBreakdown(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}
	mode, ok := h.modeParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	group, row := q.Get("group"), q.Get("row")
	if group == "" || row == "" {
		writeError(w, http.StatusBadRequest, "group and row are required")
		return
	}
	writeJSON(w, http.StatusOK, h.sess.SubBreakdown(date, mode, group, row))
}

type adjustRequest struct {
	Date   domain.Date      `json:"date"`
	Mode   domain.GroupMode `json:"mode"`
	Group  string           `json:"group"`
	Row    string           `json:"row"`
	Sub    string           `json:"sub"`
	Target decimal.Decimal  `json:"target"`
}

// Adjust handles POST /api/v1/adjust. It answers 204 when the sub-account already holds the target.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := domain.ParseGroupMode(string(req.Mode))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Date.IsZero() {
		req.Date = h.sess.Today()
	}
	if req.Group == "" || req.Row == "" {
		writeError(w, http.StatusBadRequest, "group and row are required")
		return
	}

	added, err := h.sess.Adjust(r.Context(), req.Date, mode, req.Group, req.Row, domain.SomeSubAccount(req.Sub), req.Target)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	if added == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

// GetCalendar handles GET /api/v1/calendar?month=. Without month the remembered month is shown.
func (h *Handler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	m := r.URL.Query().Get("month")
	if m == "" {
		writeJSON(w, http.StatusOK, h.sess.Calendar())
		return
	}
	month, err := domain.ParseMonth(m)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month format, expected YYYY-MM")
		return
	}
	writeJSON(w, http.StatusOK, session.CalendarView{Month: month.String(), Cells: h.sess.Month(month)})
}

// NavigateCalendar handles POST /api/v1/calendar/{action} with action prev, next, today,
// earliest or a YYYY-MM month.
func (h *Handler) NavigateCalendar(w http.ResponseWriter, r *http.Request) {
	var (
		view session.CalendarView
		err  error
	)
	switch action := r.PathValue("action"); action {
	case "prev":
		view, err = h.sess.CalendarPrev(r.Context())
	case "next":
		view, err = h.sess.CalendarNext(r.Context())
	case "today":
		view, err = h.sess.CalendarToday(r.Context())
	case "earliest":
		view, err = h.sess.CalendarEarliest(r.Context())
	default:
		month, perr := domain.ParseMonth(action)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "unknown calendar action")
			return
		}
		view, err = h.sess.CalendarGoTo(r.Context(), month)
	}
	if err != nil {
		slog.Error("failed to navigate calendar", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetPrefs handles GET /api/v1/prefs.
func (h *Handler) GetPrefs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Prefs())
}

type groupModeRequest struct {
	Mode string `json:"mode"`
}

// SetGroupMode handles PUT /api/v1/prefs/group-mode.
func (h *Handler) SetGroupMode(w http.ResponseWriter, r *http.Request) {
	var req groupModeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := domain.ParseGroupMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.sess.SetGroupMode(r.Context(), mode); err != nil {
		slog.Error("failed to save group mode", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Prefs())
}

type openGroupRequest struct {
	Date  domain.Date `json:"date"`
	Group string      `json:"group"`
	Mode  string      `json:"mode"`
	Open  bool        `json:"open"`
}

// SetGroupOpen handles PUT /api/v1/prefs/open-groups.
func (h *Handler) SetGroupOpen(w http.ResponseWriter, r *http.Request) {
	var req openGroupRequest
	if !decodeBody(w, r, &req) {
		return
	}
	mode, err := domain.ParseGroupMode(req.Mode)
	if err != nil || req.Date.IsZero() || req.Group == "" {
		writeError(w, http.StatusBadRequest, "date, group and a valid mode are required")
		return
	}
	if err := h.sess.SetGroupOpen(r.Context(), req.Date, req.Group, mode, req.Open); err != nil {
		slog.Error("failed to save open group", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHolders handles GET /api/v1/holders.
func (h *Handler) ListHolders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.sess.Holders()))
}

// ListSubAccounts handles GET /api/v1/subaccounts.
func (h *Handler) ListSubAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.sess.SubAccounts()))
}

// Search handles GET /api/v1/search?q=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.sess.Search(r.Context(), r.URL.Query().Get("q"))))
}

// Suggestions handles GET /api/v1/suggestions.
func (h *Handler) Suggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Suggestions(r.Context()))
}

type selectResponse struct {
	AssetID string `json:"assetId"`
	Ticker  string `json:"ticker"`
}

// SelectCandidate handles POST /api/v1/search/select.
func (h *Handler) SelectCandidate(w http.ResponseWriter, r *http.Request) {
	var c domain.Candidate
	if !decodeBody(w, r, &c) {
		return
	}
	if c.ID == "" && c.Symbol == "" {
		writeError(w, http.StatusBadRequest, "candidate id or symbol is required")
		return
	}
	id, ticker, err := h.sess.SelectCandidate(r.Context(), c)
	if err != nil {
		slog.Warn("failed to record candidate price", "asset", id, "error", err)
	}
	writeJSON(w, http.StatusOK, selectResponse{AssetID: id, Ticker: ticker})
}

// Export handles GET /api/v1/export?scope=all|ledger.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	scope, err := session.ParseScope(r.URL.Query().Get("scope"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	payload := h.sess.Export(scope)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="holdings_%s_%d.json"`, scope, payload.ExportedAt.UnixMilli()))
	writeJSON(w, http.StatusOK, payload)
}

// Import handles POST /api/v1/import. The body is an export payload or a bare array of entries.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if err := h.sess.Import(r.Context(), data); err != nil {
		if errors.Is(err, session.ErrInvalidImport) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("failed to import state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"entries": len(h.sess.Entries())})
}

// Clear handles POST /api/v1/clear.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.sess.Clear(r.Context()); err != nil {
		slog.Error("failed to clear state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetReport handles GET /api/v1/reports/{month} and returns the monthly workbook.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	month, err := domain.ParseMonth(r.PathValue("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month format, expected YYYY-MM")
		return
	}
	report, err := h.reports.Build(r.Context(), month)
	if err != nil {
		slog.Error("failed to build report", "month", month.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build report")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="holdings_%s.xlsx"`, month))
	if err := export.WriteWorkbook(w, report); err != nil {
		slog.Warn("failed to write report", "month", month.String(), "error", err)
	}
}

// dateParam reads the optional date query parameter, defaulting to today.
func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request) (domain.Date, bool) {
	s := r.URL.Query().Get("date")
	if s == "" {
		return h.sess.Today(), true
	}
	date, err := domain.ParseDate(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format, expected YYYY-MM-DD")
		return domain.Date{}, false
	}
	return date, true
}

// modeParam reads the optional mode query parameter, defaulting to the preferred mode.
func (h *Handler) modeParam(w http.ResponseWriter, r *http.Request) (domain.GroupMode, bool) {
	s := r.URL.Query().Get("mode")
	if s == "" {
		return h.sess.Prefs().GroupMode, true
	}
	mode, err := domain.ParseGroupMode(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return mode, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "entry not found")
	default:
		slog.Error("ledger operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.Warn("failed to write HTTP response body", "error", err)
		return
	}
	_, _ = w.Write([]byte("\n"))
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
