package monitor

import (
	"strings"
	"testing"

	"github.com/prisminsights/prism/pkg/types"
)

func f64(v float64) *float64 { return &v }
func intp(v int) *int        { return &v }

// --- Client rules ---

func TestClientRules_StatusToAtRisk_IsCritical(t *testing.T) {
	prev := types.Client{ID: "c1", Name: "Acme", Status: types.ClientActive, ChurnRisk: types.ChurnLow}
	cur := types.Client{ID: "c1", Name: "Acme", Status: types.ClientAtRisk, ChurnRisk: types.ChurnLow}

	got := clientRules(prev, cur)
	if len(got) != 1 {
		t.Fatalf("drafts = %d, want 1", len(got))
	}
	d := got[0]
	if d.Kind != types.KindClientStatus || d.Severity != types.SeverityCritical {
		t.Errorf("draft = %s/%s, want client-status/critical", d.Kind, d.Severity)
	}
	if d.Title != "Client Status Changed: Acme" {
		t.Errorf("Title = %q", d.Title)
	}
	if d.Message != `Status changed from "active" to "at-risk"` {
		t.Errorf("Message = %q", d.Message)
	}
	if d.EntityID != "c1" {
		t.Errorf("EntityID = %q, want c1", d.EntityID)
	}
}

func TestClientRules_StatusOtherChange_IsWarning(t *testing.T) {
	cases := []struct {
		from, to types.ClientStatus
	}{
		{types.ClientAtRisk, types.ClientActive},
		{types.ClientActive, types.ClientChurned},
		{types.ClientAtRisk, types.ClientChurned},
	}
	for _, tc := range cases {
		got := clientRules(
			types.Client{ID: "c1", Status: tc.from},
			types.Client{ID: "c1", Status: tc.to},
		)
		if len(got) != 1 || got[0].Severity != types.SeverityWarning {
			t.Errorf("%s -> %s: drafts = %+v, want one warning", tc.from, tc.to, got)
		}
	}
}

func TestClientRules_ChurnOnlyOnTransitionToHigh(t *testing.T) {
	cases := []struct {
		from, to types.ChurnRisk
		want     int
	}{
		{types.ChurnLow, types.ChurnHigh, 1},
		{types.ChurnMedium, types.ChurnHigh, 1},
		{types.ChurnHigh, types.ChurnHigh, 0},
		{types.ChurnHigh, types.ChurnMedium, 0},
		{types.ChurnLow, types.ChurnMedium, 0},
	}
	for _, tc := range cases {
		got := clientRules(
			types.Client{ID: "c1", Status: types.ClientActive, ChurnRisk: tc.from},
			types.Client{ID: "c1", Status: types.ClientActive, ChurnRisk: tc.to},
		)
		if len(got) != tc.want {
			t.Errorf("%s -> %s: drafts = %d, want %d", tc.from, tc.to, len(got), tc.want)
			continue
		}
		if tc.want == 1 && (got[0].Kind != types.KindChurnRisk || got[0].Severity != types.SeverityCritical) {
			t.Errorf("%s -> %s: draft = %s/%s, want churn-risk/critical", tc.from, tc.to, got[0].Kind, got[0].Severity)
		}
	}
}

func TestClientRules_BothTransitions_StatusFirst(t *testing.T) {
	got := clientRules(
		types.Client{ID: "c1", Name: "Acme", Status: types.ClientActive, ChurnRisk: types.ChurnMedium},
		types.Client{ID: "c1", Name: "Acme", Status: types.ClientAtRisk, ChurnRisk: types.ChurnHigh},
	)
	if len(got) != 2 {
		t.Fatalf("drafts = %d, want 2", len(got))
	}
	if got[0].Kind != types.KindClientStatus || got[1].Kind != types.KindChurnRisk {
		t.Errorf("order = %s, %s; want client-status, churn-risk", got[0].Kind, got[1].Kind)
	}
	for _, d := range got {
		if d.Severity != types.SeverityCritical {
			t.Errorf("%s severity = %s, want critical", d.Kind, d.Severity)
		}
	}
}

func TestClientRules_MissingFields_NoTransition(t *testing.T) {
	got := clientRules(
		types.Client{ID: "c1"},
		types.Client{ID: "c1", Status: types.ClientAtRisk, ChurnRisk: types.ChurnHigh},
	)
	if len(got) != 0 {
		t.Errorf("drafts = %+v, want none when prior fields are missing", got)
	}
	got = clientRules(
		types.Client{ID: "c1", Status: types.ClientActive, ChurnRisk: types.ChurnLow},
		types.Client{ID: "c1"},
	)
	if len(got) != 0 {
		t.Errorf("drafts = %+v, want none when current fields are missing", got)
	}
}

// --- License rules ---

func TestLicenseRules_UtilizationDrop(t *testing.T) {
	cases := []struct {
		name        string
		before, now float64
		want        int
	}{
		{"large drop", 80, 60, 1},
		{"exactly threshold", 50, 35, 0},
		{"just over threshold", 50, 34.99, 1},
		{"exact decimal threshold", 45.7, 30.7, 0},
		{"exact decimal over threshold", 45.7, 30.69, 1},
		{"small drop", 70, 60, 0},
		{"rise", 40, 90, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := licenseRules(
				types.License{ID: "l1", Vendor: "Adobe", Product: "CC", UtilizationRate: f64(tc.before)},
				types.License{ID: "l1", Vendor: "Adobe", Product: "CC", UtilizationRate: f64(tc.now)},
			)
			if len(got) != tc.want {
				t.Fatalf("drafts = %d, want %d", len(got), tc.want)
			}
			if tc.want == 0 {
				return
			}
			if got[0].Severity != types.SeverityWarning || got[0].Kind != types.KindLicenseUsage {
				t.Errorf("draft = %s/%s, want license-usage/warning", got[0].Kind, got[0].Severity)
			}
			if got[0].Title != "License Usage Drop: Adobe CC" {
				t.Errorf("Title = %q", got[0].Title)
			}
		})
	}
}

func TestLicenseRules_DropMessage(t *testing.T) {
	got := licenseRules(
		types.License{ID: "l1", UtilizationRate: f64(80)},
		types.License{ID: "l1", UtilizationRate: f64(60)},
	)
	if len(got) != 1 {
		t.Fatalf("drafts = %d, want 1", len(got))
	}
	if got[0].Message != "Utilization dropped from 80.0% to 60.0%" {
		t.Errorf("Message = %q", got[0].Message)
	}
}

func TestLicenseRules_OverAllocation_IndependentOfDrop(t *testing.T) {
	// Utilization unchanged: only the over-allocation fires.
	got := licenseRules(
		types.License{ID: "l1", UtilizationRate: f64(100), UsedLicenses: intp(10), TotalLicenses: intp(10)},
		types.License{ID: "l1", UtilizationRate: f64(100), UsedLicenses: intp(11), TotalLicenses: intp(10)},
	)
	if len(got) != 1 || got[0].Severity != types.SeverityCritical {
		t.Fatalf("drafts = %+v, want one critical", got)
	}
	if got[0].Message != "Using 11 licenses but only have 10" {
		t.Errorf("Message = %q", got[0].Message)
	}

	// Both conditions hold: two alerts, drop first.
	got = licenseRules(
		types.License{ID: "l1", UtilizationRate: f64(95), UsedLicenses: intp(1200), TotalLicenses: intp(1000)},
		types.License{ID: "l1", UtilizationRate: f64(70), UsedLicenses: intp(1200), TotalLicenses: intp(1000)},
	)
	if len(got) != 2 {
		t.Fatalf("drafts = %d, want 2", len(got))
	}
	if got[0].Severity != types.SeverityWarning || got[1].Severity != types.SeverityCritical {
		t.Errorf("severities = %s, %s; want warning, critical", got[0].Severity, got[1].Severity)
	}
	if got[1].Message != "Using 1,200 licenses but only have 1,000" {
		t.Errorf("Message = %q", got[1].Message)
	}
}

func TestLicenseRules_UsedEqualsTotal_NoAlert(t *testing.T) {
	got := licenseRules(
		types.License{ID: "l1", UsedLicenses: intp(10), TotalLicenses: intp(10)},
		types.License{ID: "l1", UsedLicenses: intp(10), TotalLicenses: intp(10)},
	)
	if len(got) != 0 {
		t.Errorf("drafts = %+v, want none", got)
	}
}

func TestLicenseRules_MissingNumbers_NoPanic(t *testing.T) {
	cases := []struct {
		name      string
		prev, cur types.License
	}{
		{"no prior utilization", types.License{ID: "l1"}, types.License{ID: "l1", UtilizationRate: f64(10)}},
		{"no current utilization", types.License{ID: "l1", UtilizationRate: f64(90)}, types.License{ID: "l1"}},
		{"no total", types.License{ID: "l1"}, types.License{ID: "l1", UsedLicenses: intp(50)}},
		{"no used", types.License{ID: "l1"}, types.License{ID: "l1", TotalLicenses: intp(5)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := licenseRules(tc.prev, tc.cur); len(got) != 0 {
				t.Errorf("drafts = %+v, want none", got)
			}
		})
	}
}

// --- Lead rules ---

func TestLeadRules_StageChange_IsInfo(t *testing.T) {
	got := leadRules(
		types.Lead{ID: "d1", CompanyName: "Globex", Stage: types.StageProposal, Value: f64(45000)},
		types.Lead{ID: "d1", CompanyName: "Globex", Stage: types.StageNegotiation, Value: f64(45000)},
	)
	if len(got) != 1 {
		t.Fatalf("drafts = %d, want 1", len(got))
	}
	d := got[0]
	if d.Kind != types.KindLeadProgress || d.Severity != types.SeverityInfo {
		t.Errorf("draft = %s/%s, want lead-progress/info", d.Kind, d.Severity)
	}
	if d.Title != "Lead Progressed: Globex" {
		t.Errorf("Title = %q", d.Title)
	}
	if d.Message != `Moved from "proposal" to "negotiation" ($45,000)` {
		t.Errorf("Message = %q", d.Message)
	}
}

func TestLeadRules_Regression_SaysStageChanged(t *testing.T) {
	for _, to := range []types.LeadStage{types.StageQualification, types.StageClosedLost} {
		got := leadRules(
			types.Lead{ID: "d1", CompanyName: "Globex", Stage: types.StageNegotiation},
			types.Lead{ID: "d1", CompanyName: "Globex", Stage: to},
		)
		if len(got) != 1 {
			t.Fatalf("-> %s: drafts = %d, want 1", to, len(got))
		}
		if got[0].Title != "Lead Stage Changed: Globex" {
			t.Errorf("-> %s: Title = %q", to, got[0].Title)
		}
		if got[0].Severity != types.SeverityInfo {
			t.Errorf("-> %s: Severity = %s, want info", to, got[0].Severity)
		}
	}
}

func TestLeadRules_NoValue_OmitsAmount(t *testing.T) {
	got := leadRules(
		types.Lead{ID: "d1", Stage: types.StageProspecting},
		types.Lead{ID: "d1", Stage: types.StageQualification},
	)
	if len(got) != 1 {
		t.Fatalf("drafts = %d, want 1", len(got))
	}
	if strings.Contains(got[0].Message, "$") {
		t.Errorf("Message = %q, want no amount", got[0].Message)
	}
	if got[0].Title != "Lead Progressed: d1" {
		t.Errorf("Title = %q, want ID fallback", got[0].Title)
	}
}

func TestLeadRules_SameOrMissingStage_NoAlert(t *testing.T) {
	cases := []struct{ prev, cur types.Lead }{
		{types.Lead{ID: "d1", Stage: types.StageProposal}, types.Lead{ID: "d1", Stage: types.StageProposal}},
		{types.Lead{ID: "d1"}, types.Lead{ID: "d1", Stage: types.StageProposal}},
		{types.Lead{ID: "d1", Stage: types.StageProposal}, types.Lead{ID: "d1"}},
	}
	for _, tc := range cases {
		if got := leadRules(tc.prev, tc.cur); len(got) != 0 {
			t.Errorf("%q -> %q: drafts = %+v, want none", tc.prev.Stage, tc.cur.Stage, got)
		}
	}
}

func TestFormatMoney(t *testing.T) {
	cases := map[float64]string{
		0:         "$0",
		999:       "$999",
		12345:     "$12,345",
		1234567.6: "$1,234,568",
		-2500:     "-$2,500",
	}
	for in, want := range cases {
		if got := formatMoney(in); got != want {
			t.Errorf("formatMoney(%v) = %q, want %q", in, got, want)
		}
	}
}

// --- diff ---

func TestDiff_SkipsFirstSightingsAndEmptyIDs(t *testing.T) {
	prior := []types.Client{
		{ID: "c1", Status: types.ClientActive},
		{ID: "", Status: types.ClientActive},
	}
	current := []types.Client{
		{ID: "c1", Status: types.ClientChurned},
		{ID: "c2", Status: types.ClientAtRisk},
		{ID: "", Status: types.ClientAtRisk},
	}
	got := diff(prior, current, clientRules)
	if len(got) != 1 || got[0].EntityID != "c1" {
		t.Errorf("drafts = %+v, want only c1", got)
	}
}

func TestDiff_FollowsCurrentOrder(t *testing.T) {
	prior := []types.Lead{
		{ID: "b", Stage: types.StageProspecting},
		{ID: "a", Stage: types.StageProspecting},
	}
	current := []types.Lead{
		{ID: "a", Stage: types.StageProposal},
		{ID: "b", Stage: types.StageProposal},
	}
	got := diff(prior, current, leadRules)
	if len(got) != 2 || got[0].EntityID != "a" || got[1].EntityID != "b" {
		t.Errorf("drafts = %+v, want a then b", got)
	}
}
