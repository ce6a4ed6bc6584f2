package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/mtlprog/holdings/internal/export"
	"github.com/mtlprog/holdings/internal/session"
	"github.com/mtlprog/holdings/internal/snapshot"
)

// NewServer creates an HTTP server with all routes configured.
// snapshots and reports may be nil; their routes are then not registered.
func NewServer(port string, sess *session.Session, snapshots *snapshot.Service, reports *export.Service, adminAPIKey string) *http.Server {
	return &http.Server{
		Addr:         ":" + port,
		Handler:      NewMux(sess, snapshots, reports, adminAPIKey),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewMux registers the API routes. Mutating routes require the admin key when one is set.
func NewMux(sess *session.Session, snapshots *snapshot.Service, reports *export.Service, adminAPIKey string) *http.ServeMux {
	handler := NewHandler(sess, reports)

	protect := func(h http.HandlerFunc) http.Handler {
		if adminAPIKey == "" {
			return h
		}
		return requireAuth(adminAPIKey, h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/entries", handler.ListEntries)
	mux.Handle("POST /api/v1/entries", protect(handler.AddEntry))
	mux.HandleFunc("GET /api/v1/entries/{id}", handler.GetEntry)
	mux.Handle("PATCH /api/v1/entries/{id}", protect(handler.UpdateEntry))
	mux.Handle("DELETE /api/v1/entries/{id}", protect(handler.DeleteEntry))

	mux.HandleFunc("GET /api/v1/positions", handler.ListPositions)
	mux.HandleFunc("GET /api/v1/total", handler.GetTotal)
	mux.HandleFunc("GET /api/v1/change", handler.GetDayChange)
	mux.Handle("POST /api/v1/refresh", protect(handler.Refresh))
	mux.HandleFunc("GET /api/v1/groups", handler.GetGroupTotals)
	mux.HandleFunc("GET /api/v1/composition", handler.GetComposition)
	mux.Handle("POST /api/v1/days/{date}/open", protect(handler.OpenComposition))
	mux.HandleFunc("GET /api/v1/breakdown", handler.GetSubBreakdown)
	mux.Handle("POST /api/v1/adjust", protect(handler.Adjust))

	mux.HandleFunc("GET /api/v1/calendar", handler.GetCalendar)
	mux.Handle("POST /api/v1/calendar/{action}", protect(handler.NavigateCalendar))
	mux.HandleFunc("GET /api/v1/prefs", handler.GetPrefs)
	mux.Handle("PUT /api/v1/prefs/group-mode", protect(handler.SetGroupMode))
	mux.Handle("PUT /api/v1/prefs/open-groups", protect(handler.SetGroupOpen))

	mux.HandleFunc("GET /api/v1/holders", handler.ListHolders)
	mux.HandleFunc("GET /api/v1/subaccounts", handler.ListSubAccounts)
	mux.HandleFunc("GET /api/v1/search", handler.Search)
	mux.HandleFunc("GET /api/v1/suggestions", handler.Suggestions)
	mux.Handle("POST /api/v1/search/select", protect(handler.SelectCandidate))

	mux.HandleFunc("GET /api/v1/export", handler.Export)
	mux.Handle("POST /api/v1/import", protect(handler.Import))
	mux.Handle("POST /api/v1/clear", protect(handler.Clear))

	if reports != nil {
		mux.HandleFunc("GET /api/v1/reports/{month}", handler.GetReport)
	}

	if snapshots != nil {
		snapHandler := NewSnapshotHandler(snapshots, sess.Today)
		mux.HandleFunc("GET /api/v1/snapshots/latest", snapHandler.GetLatestSnapshot)
		mux.HandleFunc("GET /api/v1/snapshots/{date}", snapHandler.GetSnapshotByDate)
		mux.HandleFunc("GET /api/v1/snapshots", snapHandler.ListSnapshots)
		mux.Handle("POST /api/v1/snapshots/generate", protect(snapHandler.GenerateSnapshot))
	}

	return mux
}

func requireAuth(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		token := strings.TrimPrefix(auth, "Bearer ")
		if !strings.HasPrefix(auth, "Bearer ") || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
