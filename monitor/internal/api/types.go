package api

import "github.com/prisminsights/prism/pkg/types"

// InboxResponse is the payload for GET /api/v1/alerts and the data of every
// WebSocket "alerts" message.
type InboxResponse struct {
	Alerts      []types.Alert `json:"alerts"`
	UnreadCount int           `json:"unread_count"`
	Total       int           `json:"total"`
	Max         int           `json:"max"`
	GeneratedAt string        `json:"generated_at"` // RFC3339
}

// UnreadCountResponse is the payload for GET /api/v1/alerts/unread-count.
type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// MarkAllResponse is the payload for POST /api/v1/alerts/read-all.
type MarkAllResponse struct {
	Marked int `json:"marked"`
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is "ok" | "degraded" | "stopped".
	State        string             `json:"state"`
	Running      bool               `json:"running"`
	PollInterval string             `json:"poll_interval"`
	Cycles       int                `json:"cycles"`
	LastCycle    string             `json:"last_cycle,omitempty"` // RFC3339
	LastDuration float64            `json:"last_duration_ms"`
	Collections  []CollectionHealth `json:"collections"`
	AlertCount   int                `json:"alert_count"`
	UnreadCount  int                `json:"unread_count"`
	Cert         *CertResponse      `json:"data_source_cert,omitempty"`
	Diagnostics  []DiagnosticHint   `json:"diagnostics"`
}

// CollectionHealth is one collection's fetch state.
type CollectionHealth struct {
	Collection  types.Collection `json:"collection"`
	Records     int              `json:"records"`
	LastSuccess string           `json:"last_success,omitempty"` // RFC3339
	LastError   string           `json:"last_error,omitempty"`
}

// CertResponse is the TLS certificate state of the data API.
type CertResponse struct {
	Endpoint string `json:"endpoint"`
	AuthType string `json:"auth_type"`
	Status   string `json:"status"`
	DaysLeft int    `json:"days_left"`
	Issuer   string `json:"issuer,omitempty"`
	NotAfter string `json:"not_after,omitempty"`
}

// CycleResponse is the payload for POST /api/v1/monitor/poll.
type CycleResponse struct {
	StartedAt   string         `json:"started_at"` // RFC3339
	DurationMs  float64        `json:"duration_ms"`
	Skipped     bool           `json:"skipped"`
	Alerts      int            `json:"alerts"`
	Collections []CycleOutcome `json:"collections"`
}

// CycleOutcome is one collection's result within a cycle.
type CycleOutcome struct {
	Collection types.Collection `json:"collection"`
	Records    int              `json:"records"`
	Alerts     int              `json:"alerts"`
	Skipped    bool             `json:"skipped,omitempty"`
	Error      string           `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
