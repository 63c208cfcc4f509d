package monitor

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/prisminsights/prism/pkg/types"
)

// UtilizationDropThreshold is the number of percentage points utilization
// must fall by, strictly, within one cycle to raise a license-usage warning.
const UtilizationDropThreshold = 15.0

// dropExceeds reports whether before-after is strictly greater than limit,
// compared in hundredths of a point so that float noise on an exact decimal
// drop (45.7 to 30.7) does not cross the limit.
func dropExceeds(before, after, limit float64) bool {
	return math.Round((before-after)*100) > math.Round(limit*100)
}

// record is anything the diff can key by ID.
type record interface {
	RecordID() string
}

// diff returns the drafts produced by rules for every record in current that
// also appears in prior. Records seen for the first time, and records without
// an ID, only become part of the next baseline.
func diff[T record](prior, current []T, rules func(prev, cur T) []types.Draft) []types.Draft {
	var out []types.Draft
	for _, cur := range current {
		id := cur.RecordID()
		if id == "" {
			continue
		}
		prev, ok := find(prior, id)
		if !ok {
			continue
		}
		out = append(out, rules(prev, cur)...)
	}
	return out
}

// find is a linear search; collections are tens to low hundreds of records.
func find[T record](records []T, id string) (T, bool) {
	for _, r := range records {
		if r.RecordID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

func clientRules(prev, cur types.Client) []types.Draft {
	var out []types.Draft

	if prev.Status != "" && cur.Status != "" && prev.Status != cur.Status {
		sev := types.SeverityWarning
		if cur.Status == types.ClientAtRisk {
			sev = types.SeverityCritical
		}
		out = append(out, types.Draft{
			Kind:     types.KindClientStatus,
			Severity: sev,
			Title:    "Client Status Changed: " + cur.Label(),
			Message:  fmt.Sprintf("Status changed from %q to %q", prev.Status, cur.Status),
			EntityID: cur.ID,
		})
	}

	if prev.ChurnRisk != "" && cur.ChurnRisk == types.ChurnHigh && prev.ChurnRisk != types.ChurnHigh {
		out = append(out, types.Draft{
			Kind:     types.KindChurnRisk,
			Severity: types.SeverityCritical,
			Title:    "High Churn Risk: " + cur.Label(),
			Message:  fmt.Sprintf("Churn risk increased from %q to %q", prev.ChurnRisk, cur.ChurnRisk),
			EntityID: cur.ID,
		})
	}

	return out
}

func licenseRules(prev, cur types.License) []types.Draft {
	var out []types.Draft

	if prev.UtilizationRate != nil && cur.UtilizationRate != nil {
		before, after := *prev.UtilizationRate, *cur.UtilizationRate
		if dropExceeds(before, after, UtilizationDropThreshold) {
			out = append(out, types.Draft{
				Kind:     types.KindLicenseUsage,
				Severity: types.SeverityWarning,
				Title:    "License Usage Drop: " + cur.Label(),
				Message:  fmt.Sprintf("Utilization dropped from %.1f%% to %.1f%%", before, after),
				EntityID: cur.ID,
			})
		}
	}

	// Evaluated on the current record alone, so it repeats every cycle the
	// pool stays over-allocated.
	if cur.UsedLicenses != nil && cur.TotalLicenses != nil && *cur.UsedLicenses > *cur.TotalLicenses {
		out = append(out, types.Draft{
			Kind:     types.KindLicenseUsage,
			Severity: types.SeverityCritical,
			Title:    "License Over-Allocated: " + cur.Label(),
			Message: fmt.Sprintf("Using %s licenses but only have %s",
				humanize.Comma(int64(*cur.UsedLicenses)), humanize.Comma(int64(*cur.TotalLicenses))),
			EntityID: cur.ID,
		})
	}

	return out
}

func leadRules(prev, cur types.Lead) []types.Draft {
	if prev.Stage == "" || cur.Stage == "" || prev.Stage == cur.Stage {
		return nil
	}

	title := "Lead Progressed: " + cur.Label()
	if cur.Stage.Rank() < prev.Stage.Rank() || cur.Stage == types.StageClosedLost {
		title = "Lead Stage Changed: " + cur.Label()
	}

	msg := fmt.Sprintf("Moved from %q to %q", prev.Stage, cur.Stage)
	if cur.Value != nil {
		msg += " (" + formatMoney(*cur.Value) + ")"
	}

	return []types.Draft{{
		Kind:     types.KindLeadProgress,
		Severity: types.SeverityInfo,
		Title:    title,
		Message:  msg,
		EntityID: cur.ID,
	}}
}

// formatMoney renders whole dollars with thousands separators: $12,345.
func formatMoney(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "$?"
	}
	n := int64(math.Round(v))
	if n < 0 {
		return "-$" + humanize.Comma(-n)
	}
	return "$" + humanize.Comma(n)
}
