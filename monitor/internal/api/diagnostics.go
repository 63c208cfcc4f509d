package api

import (
	"fmt"
	"sort"

	"github.com/prisminsights/prism/monitor/internal/monitor"
	"github.com/prisminsights/prism/monitor/internal/security"
	"github.com/prisminsights/prism/pkg/types"
)

// DiagnosticHint is one human-readable insight about the monitor's state,
// shown on the dashboard's status panel.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "info" | "warning" | "critical".
	Level  string `json:"level"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

var levelOrder = map[string]int{"critical": 0, "warning": 1, "info": 2}

// computeDiagnostics derives hints from the monitor status, inbox fill and
// certificate state. Critical hints come first.
func computeDiagnostics(st monitor.Status, alerts, max int, cert *security.CertStatus) []DiagnosticHint {
	hints := []DiagnosticHint{}

	if !st.Running {
		hints = append(hints, DiagnosticHint{
			Key:   "stopped",
			Level: "critical",
			Title: "Monitor stopped",
			Detail: "The poll loop is not running, so no new alerts will be raised. " +
				"Existing alerts in the inbox are still served.",
		})
		return hints
	}

	if st.Cycles <= 1 {
		hints = append(hints, DiagnosticHint{
			Key:   "warming_up",
			Level: "info",
			Title: "Warming up",
			Detail: "Alerts are raised from the difference between two consecutive polls. " +
				"The first poll only records a baseline, so changes show up from the next cycle on.",
		})
	}

	for _, c := range types.Collections {
		cs, ok := st.Collections[c]
		if !ok || cs.LastError == "" {
			continue
		}
		detail := fmt.Sprintf("The last fetch of %s failed with: %q. ", c, cs.LastError)
		if cs.LastSuccess.IsZero() {
			detail += "It has never been fetched successfully, so no alerts can be raised for it yet."
		} else {
			detail += "Its previous records are kept as the baseline until a fetch succeeds."
		}
		hints = append(hints, DiagnosticHint{
			Key:    "fetch_failed_" + string(c),
			Level:  "critical",
			Title:  fmt.Sprintf("Can't fetch %s", c),
			Detail: detail,
		})
	}

	if cert != nil {
		switch cert.Status {
		case "expired":
			hints = append(hints, DiagnosticHint{
				Key:    "cert_expired",
				Level:  "critical",
				Title:  "Data API certificate expired",
				Detail: fmt.Sprintf("The certificate of %s expired on %s.", cert.Endpoint, cert.NotAfter),
			})
		case "expiring":
			hints = append(hints, DiagnosticHint{
				Key:    "cert_expiring",
				Level:  "warning",
				Title:  "Data API certificate expiring",
				Detail: fmt.Sprintf("The certificate of %s expires in %d days.", cert.Endpoint, cert.DaysLeft),
			})
		case "unreachable":
			hints = append(hints, DiagnosticHint{
				Key:    "cert_unreachable",
				Level:  "warning",
				Title:  "Data API TLS unreachable",
				Detail: fmt.Sprintf("A TLS connection to %s could not be established.", cert.Endpoint),
			})
		}
	}

	if max > 0 && alerts >= max {
		hints = append(hints, DiagnosticHint{
			Key:   "inbox_full",
			Level: "info",
			Title: "Inbox full",
			Detail: fmt.Sprintf("The inbox holds its maximum of %d alerts. "+
				"Each new alert evicts the oldest one.", max),
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelOrder[hints[i].Level] < levelOrder[hints[j].Level]
	})
	return hints
}
