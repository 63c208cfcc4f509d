package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prisminsights/prism/monitor/internal/config"
	"github.com/prisminsights/prism/pkg/types"
)

// recorder is an httptest handler that keeps every request body.
type recorder struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	b, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.bodies = append(r.bodies, string(b))
	status := r.status
	r.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.bodies...)
}

func testAlert(sev types.Severity) types.Alert {
	return types.Alert{
		Draft: types.Draft{
			Kind:       types.KindClientStatus,
			Severity:   sev,
			Title:      "Client Status Changed: Acme",
			Message:    `Status changed from "active" to "at-risk"`,
			Collection: types.CollectionClients,
			EntityID:   "c1",
		},
		ID:        "alert-1",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestDeliverer_Slack(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	t.Setenv("TEST_SLACK_URL", srv.URL)

	d := New([]config.WebhookConfig{{Type: "slack", URLEnv: "TEST_SLACK_URL"}})
	d.Notify(testAlert(types.SeverityCritical))
	d.Wait()

	bodies := rec.got()
	if len(bodies) != 1 {
		t.Fatalf("requests = %d, want 1", len(bodies))
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(bodies[0]), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(payload["text"], "*[CRITICAL]* Client Status Changed: Acme") {
		t.Errorf("text = %q", payload["text"])
	}
}

func TestDeliverer_TeamsAndHTTP(t *testing.T) {
	teams, generic := &recorder{}, &recorder{}
	ts, gs := httptest.NewServer(teams), httptest.NewServer(generic)
	defer ts.Close()
	defer gs.Close()
	t.Setenv("TEST_TEAMS_URL", ts.URL)
	t.Setenv("TEST_HTTP_URL", gs.URL)

	d := New([]config.WebhookConfig{
		{Type: "teams", URLEnv: "TEST_TEAMS_URL"},
		{Type: "http", URLEnv: "TEST_HTTP_URL"},
	})
	d.Notify(testAlert(types.SeverityWarning))
	d.Wait()

	tb := teams.got()
	if len(tb) != 1 || !strings.Contains(tb[0], `"@type":"MessageCard"`) {
		t.Errorf("teams bodies = %v", tb)
	}

	gb := generic.got()
	if len(gb) != 1 {
		t.Fatalf("http bodies = %d, want 1", len(gb))
	}
	var payload struct {
		Alert types.Alert `json:"alert"`
	}
	if err := json.Unmarshal([]byte(gb[0]), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Alert.ID != "alert-1" || payload.Alert.Kind != types.KindClientStatus {
		t.Errorf("alert = %+v", payload.Alert)
	}
}

func TestDeliverer_MinSeverityFilters(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	t.Setenv("TEST_HOOK_URL", srv.URL)

	d := New([]config.WebhookConfig{{Type: "http", URLEnv: "TEST_HOOK_URL", MinSeverity: "warning"}})
	d.Notify(testAlert(types.SeverityInfo))
	d.Notify(testAlert(types.SeverityWarning))
	d.Notify(testAlert(types.SeverityCritical))
	d.Wait()

	if n := len(rec.got()); n != 2 {
		t.Errorf("requests = %d, want 2 (info filtered)", n)
	}
}

func TestDeliverer_FailuresAndMissingURL_DoNotPanic(t *testing.T) {
	rec := &recorder{status: http.StatusInternalServerError}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	t.Setenv("TEST_FAIL_URL", srv.URL)

	d := New([]config.WebhookConfig{
		{Type: "http", URLEnv: "TEST_FAIL_URL"},
		{Type: "slack", URLEnv: "TEST_UNSET_URL_XYZ"},
	})
	d.Notify(testAlert(types.SeverityCritical))
	d.Wait()

	if n := len(rec.got()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestDeliverer_SetTargets(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec)
	defer srv.Close()
	t.Setenv("TEST_HOOK_URL", srv.URL)

	d := New(nil)
	d.Notify(testAlert(types.SeverityCritical))
	d.Wait()
	if n := len(rec.got()); n != 0 {
		t.Fatalf("requests with no targets = %d, want 0", n)
	}

	d.SetTargets([]config.WebhookConfig{{Type: "http", URLEnv: "TEST_HOOK_URL"}})
	if d.Targets() != 1 {
		t.Errorf("Targets = %d, want 1", d.Targets())
	}
	d.Notify(testAlert(types.SeverityCritical))
	d.Wait()
	if n := len(rec.got()); n != 1 {
		t.Errorf("requests after SetTargets = %d, want 1", n)
	}
}
