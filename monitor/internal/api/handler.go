// Package api serves the alert inbox and the monitor's health over REST.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/prisminsights/prism/monitor/internal/inbox"
	"github.com/prisminsights/prism/monitor/internal/monitor"
	"github.com/prisminsights/prism/monitor/internal/security"
	"github.com/prisminsights/prism/pkg/types"
)

// Monitor is the part of monitor.Monitor the API reads and triggers.
type Monitor interface {
	Status() monitor.Status
	Poll(ctx context.Context) monitor.CycleReport
}

// CertChecker returns the data API certificate state, or nil for plain HTTP.
type CertChecker interface {
	Get(ctx context.Context) *security.CertStatus
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	inbox *inbox.Store
	mon   Monitor
	certs CertChecker
	mux   *http.ServeMux
}

// New creates a Handler and registers all routes. certs may be nil.
func New(st *inbox.Store, mon Monitor, certs CertChecker) http.Handler {
	h := &Handler{inbox: st, mon: mon, certs: certs, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/alerts/", h.alertAction) // subtree: {id}/read, read-all, unread-count
	h.mux.HandleFunc("/api/v1/monitor/poll", h.poll)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	st := h.mon.Status()
	resp := HealthResponse{
		Running:      st.Running,
		PollInterval: st.Interval.String(),
		Cycles:       st.Cycles,
		LastDuration: float64(st.LastDuration) / float64(time.Millisecond),
		Collections:  make([]CollectionHealth, 0, len(types.Collections)),
		AlertCount:   h.inbox.Count(),
		UnreadCount:  h.inbox.UnreadCount(),
	}
	if !st.LastCycle.IsZero() {
		resp.LastCycle = st.LastCycle.UTC().Format(time.RFC3339)
	}

	degraded := false
	for _, c := range types.Collections {
		cs, ok := st.Collections[c]
		if !ok {
			continue
		}
		ch := CollectionHealth{Collection: c, Records: cs.Records, LastError: cs.LastError}
		if !cs.LastSuccess.IsZero() {
			ch.LastSuccess = cs.LastSuccess.UTC().Format(time.RFC3339)
		}
		if cs.LastError != "" {
			degraded = true
		}
		resp.Collections = append(resp.Collections, ch)
	}

	var cert *security.CertStatus
	if h.certs != nil {
		cert = h.certs.Get(r.Context())
	}
	if cert != nil {
		resp.Cert = &CertResponse{
			Endpoint: cert.Endpoint,
			AuthType: cert.AuthType,
			Status:   cert.Status,
			DaysLeft: cert.DaysLeft,
			Issuer:   cert.Issuer,
			NotAfter: cert.NotAfter,
		}
		if cert.Status != "valid" {
			degraded = true
		}
	}

	switch {
	case !st.Running:
		resp.State = "stopped"
	case degraded:
		resp.State = "degraded"
	default:
		resp.State = "ok"
	}
	resp.Diagnostics = computeDiagnostics(st, resp.AlertCount, h.inbox.Max(), cert)

	jsonResp(w, http.StatusOK, resp)
}

// alerts serves GET /api/v1/alerts (optionally ?unread=true) and
// DELETE /api/v1/alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		unreadOnly := r.URL.Query().Get("unread") == "true"
		jsonResp(w, http.StatusOK, BuildInbox(h.inbox, unreadOnly))
	case http.MethodDelete:
		h.inbox.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// alertAction dispatches the /api/v1/alerts/ subtree.
func (h *Handler) alertAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/alerts/"), "/")

	switch {
	case rest == "":
		h.alerts(w, r)

	case rest == "unread-count":
		if r.Method != http.MethodGet {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		jsonResp(w, http.StatusOK, UnreadCountResponse{UnreadCount: h.inbox.UnreadCount()})

	case rest == "read-all":
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		jsonResp(w, http.StatusOK, MarkAllResponse{Marked: h.inbox.MarkAllAsRead()})

	case strings.HasSuffix(rest, "/read"):
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		id := strings.TrimSuffix(rest, "/read")
		if id == "" || strings.Contains(id, "/") {
			jsonErr(w, http.StatusNotFound, "alert not found")
			return
		}
		if !h.inbox.MarkAsRead(id) {
			jsonErr(w, http.StatusNotFound, "alert not found")
			return
		}
		a, _ := h.inbox.Get(id)
		jsonResp(w, http.StatusOK, a)

	default:
		if r.Method != http.MethodGet {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		a, ok := h.inbox.Get(rest)
		if !ok {
			jsonErr(w, http.StatusNotFound, "alert not found")
			return
		}
		jsonResp(w, http.StatusOK, a)
	}
}

// poll runs POST /api/v1/monitor/poll: one cycle, synchronously.
func (h *Handler) poll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// A stopped monitor has discarded its snapshot; polling it would seed a
	// baseline the next Start does not expect.
	if !h.mon.Status().Running {
		jsonErr(w, http.StatusConflict, "monitor is stopped")
		return
	}

	rep := h.mon.Poll(r.Context())
	resp := CycleResponse{
		StartedAt:   rep.StartedAt.UTC().Format(time.RFC3339),
		DurationMs:  float64(rep.Duration) / float64(time.Millisecond),
		Skipped:     rep.Skipped,
		Alerts:      rep.Alerts(),
		Collections: make([]CycleOutcome, 0, len(rep.Collections)),
	}
	for _, c := range rep.Collections {
		o := CycleOutcome{Collection: c.Collection, Records: c.Records, Alerts: c.Alerts, Skipped: c.Skipped}
		if c.Err != nil {
			o.Error = c.Err.Error()
		}
		resp.Collections = append(resp.Collections, o)
	}

	code := http.StatusOK
	if rep.Skipped {
		code = http.StatusConflict
	}
	jsonResp(w, code, resp)
}

// BuildInbox returns the inbox contents, newest first. Shared with the
// WebSocket hub so both surfaces serve the same shape.
func BuildInbox(st *inbox.Store, unreadOnly bool) InboxResponse {
	all := st.List()
	resp := InboxResponse{
		Alerts:      make([]types.Alert, 0, len(all)),
		Total:       len(all),
		Max:         st.Max(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	for _, a := range all {
		if !a.Read {
			resp.UnreadCount++
		}
		if unreadOnly && a.Read {
			continue
		}
		resp.Alerts = append(resp.Alerts, a)
	}
	return resp
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
