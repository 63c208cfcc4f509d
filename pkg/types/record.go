package types

import "strings"

// ClientStatus is the canonical lifecycle state of a managed client.
type ClientStatus string

const (
	ClientActive  ClientStatus = "active"
	ClientAtRisk  ClientStatus = "at-risk"
	ClientChurned ClientStatus = "churned"
)

// ChurnRisk is the canonical churn classification of a client.
type ChurnRisk string

const (
	ChurnLow    ChurnRisk = "low"
	ChurnMedium ChurnRisk = "medium"
	ChurnHigh   ChurnRisk = "high"
)

// LeadStage is a position in the sales pipeline.
type LeadStage string

const (
	StageProspecting   LeadStage = "prospecting"
	StageQualification LeadStage = "qualification"
	StageProposal      LeadStage = "proposal"
	StageNegotiation   LeadStage = "negotiation"
	StageClosedWon     LeadStage = "closed-won"
	StageClosedLost    LeadStage = "closed-lost"
)

// stageRank orders the open pipeline. closed-lost shares the top rank with
// closed-won: both are terminal.
var stageRank = map[LeadStage]int{
	StageProspecting:   1,
	StageQualification: 2,
	StageProposal:      3,
	StageNegotiation:   4,
	StageClosedWon:     5,
	StageClosedLost:    5,
}

// Rank returns the pipeline position of s, or 0 for an unknown stage.
func (s LeadStage) Rank() int { return stageRank[s] }

// normalize lowercases v and folds spaces and underscores into hyphens so
// "At Risk", "at_risk" and "AT-RISK" all compare equal.
func normalize(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.NewReplacer(" ", "-", "_", "-").Replace(v)
	return v
}

// ParseClientStatus maps any spelling the data API uses to a ClientStatus.
func ParseClientStatus(v string) ClientStatus { return ClientStatus(normalize(v)) }

// ParseChurnRisk maps any spelling the data API uses to a ChurnRisk.
func ParseChurnRisk(v string) ChurnRisk { return ChurnRisk(normalize(v)) }

// ParseLeadStage maps any spelling the data API uses to a LeadStage.
func ParseLeadStage(v string) LeadStage { return LeadStage(normalize(v)) }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ClientStatus) UnmarshalText(b []byte) error {
	*s = ParseClientStatus(string(b))
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *ChurnRisk) UnmarshalText(b []byte) error {
	*r = ParseChurnRisk(string(b))
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *LeadStage) UnmarshalText(b []byte) error {
	*s = ParseLeadStage(string(b))
	return nil
}

// Client is one managed client as served by /clients.
type Client struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Industry         string       `json:"industry,omitempty"`
	Status           ClientStatus `json:"status,omitempty"`
	ChurnRisk        ChurnRisk    `json:"churnRisk,omitempty"`
	ContractValue    float64      `json:"contractValue,omitempty"`
	MonthlyRecurring float64      `json:"monthlyRecurring,omitempty"`
	LastUpdated      string       `json:"lastUpdated,omitempty"`
}

// License is one software license pool as served by /licenses.
// Rule inputs are pointers so that an absent field is not read as zero.
type License struct {
	ID              string   `json:"id"`
	Vendor          string   `json:"vendor"`
	Product         string   `json:"product"`
	LicenseType     string   `json:"licenseType,omitempty"`
	UtilizationRate *float64 `json:"utilizationRate,omitempty"`
	UsedLicenses    *int     `json:"usedLicenses,omitempty"`
	TotalLicenses   *int     `json:"totalLicenses,omitempty"`
	RenewalDate     string   `json:"renewalDate,omitempty"`
	LastUpdated     string   `json:"lastUpdated,omitempty"`
}

// Lead is one sales opportunity as served by /leads.
type Lead struct {
	ID                string    `json:"id"`
	CompanyName       string    `json:"companyName"`
	Stage             LeadStage `json:"stage,omitempty"`
	Value             *float64  `json:"value,omitempty"`
	Probability       int       `json:"probability,omitempty"`
	ExpectedCloseDate string    `json:"expectedCloseDate,omitempty"`
	LastUpdated       string    `json:"lastUpdated,omitempty"`
}

// RecordID returns the stable identifier of the record.
func (c Client) RecordID() string  { return c.ID }
func (l License) RecordID() string { return l.ID }
func (l Lead) RecordID() string    { return l.ID }

// Label is the human-readable name used in alert titles.
func (c Client) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Label is the human-readable name used in alert titles.
func (l License) Label() string {
	name := strings.TrimSpace(l.Vendor + " " + l.Product)
	if name == "" {
		return l.ID
	}
	return name
}

// Label is the human-readable name used in alert titles.
func (l Lead) Label() string {
	if l.CompanyName != "" {
		return l.CompanyName
	}
	return l.ID
}
