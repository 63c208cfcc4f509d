package types

import "time"

// Severity ranks an alert for display and webhook filtering.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Level returns an ordinal for comparisons: info < warning < critical.
// Unknown severities rank below info.
func (s Severity) Level() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Kind classifies the transition that produced an alert.
type Kind string

const (
	KindClientStatus Kind = "client-status"
	KindChurnRisk    Kind = "churn-risk"
	KindLicenseUsage Kind = "license-usage"
	KindLeadProgress Kind = "lead-progress"
)

// Collection names a monitored entity type.
type Collection string

const (
	CollectionClients  Collection = "clients"
	CollectionLicenses Collection = "licenses"
	CollectionLeads    Collection = "leads"
)

// Collections is the fixed processing order of a poll cycle.
var Collections = []Collection{CollectionClients, CollectionLicenses, CollectionLeads}

// Draft is an alert as produced by a transition rule, before the inbox has
// stamped it with an ID and timestamp.
type Draft struct {
	Kind       Kind       `json:"type"`
	Severity   Severity   `json:"severity"`
	Title      string     `json:"title"`
	Message    string     `json:"message"`
	Collection Collection `json:"collection"`
	EntityID   string     `json:"entity_id"`
}

// Alert is a stamped notification. Everything except Read is fixed at
// creation.
type Alert struct {
	Draft
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}
