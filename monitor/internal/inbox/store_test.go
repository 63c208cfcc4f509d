package inbox

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prisminsights/prism/pkg/types"
)

func draft(title string) types.Draft {
	return types.Draft{
		Kind:     types.KindClientStatus,
		Severity: types.SeverityWarning,
		Title:    title,
		Message:  "Status changed",
	}
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestAddAlert_Stamps(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st := New(10)
	st.now = fixedClock(base)

	a := st.AddAlert(draft("one"))
	if a.ID == "" {
		t.Error("ID: expected generated id, got empty")
	}
	if !a.Timestamp.Equal(base) {
		t.Errorf("Timestamp: got %v, want %v", a.Timestamp, base)
	}
	if a.Read {
		t.Error("Read: new alert should be unread")
	}
	if a.Title != "one" || a.Kind != types.KindClientStatus {
		t.Errorf("content not preserved: %+v", a)
	}
}

func TestAddAlert_UniqueIDs(t *testing.T) {
	st := New(100)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		a := st.AddAlert(draft("x"))
		if seen[a.ID] {
			t.Fatalf("duplicate id %q", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestList_NewestFirst(t *testing.T) {
	st := New(10)
	st.AddAlert(draft("first"))
	st.AddAlert(draft("second"))
	st.AddAlert(draft("third"))

	got := st.List()
	if len(got) != 3 {
		t.Fatalf("List: got %d, want 3", len(got))
	}
	if got[0].Title != "third" || got[2].Title != "first" {
		t.Errorf("order: got %q..%q, want third..first", got[0].Title, got[2].Title)
	}
}

func TestAddAlert_EvictsOldestAtCap(t *testing.T) {
	st := New(DefaultMaxAlerts)
	for i := 0; i < DefaultMaxAlerts+5; i++ {
		st.AddAlert(draft(fmt.Sprintf("a%02d", i)))
	}

	if n := st.Count(); n != DefaultMaxAlerts {
		t.Fatalf("Count: got %d, want %d", n, DefaultMaxAlerts)
	}
	got := st.List()
	if got[0].Title != "a54" {
		t.Errorf("newest: got %q, want a54", got[0].Title)
	}
	if got[len(got)-1].Title != "a05" {
		t.Errorf("oldest retained: got %q, want a05", got[len(got)-1].Title)
	}
}

func TestNew_InvalidCapUsesDefault(t *testing.T) {
	if got := New(0).Max(); got != DefaultMaxAlerts {
		t.Errorf("Max: got %d, want %d", got, DefaultMaxAlerts)
	}
}

func TestMarkAsRead(t *testing.T) {
	st := New(10)
	a := st.AddAlert(draft("one"))
	st.AddAlert(draft("two"))

	if !st.MarkAsRead(a.ID) {
		t.Fatal("MarkAsRead: expected true for known id")
	}
	if st.MarkAsRead("alert-missing") {
		t.Error("MarkAsRead: expected false for unknown id")
	}
	if n := st.UnreadCount(); n != 1 {
		t.Errorf("UnreadCount: got %d, want 1", n)
	}
	got, ok := st.Get(a.ID)
	if !ok || !got.Read {
		t.Errorf("Get after MarkAsRead: got %+v, ok=%v", got, ok)
	}
}

func TestMarkAllAsRead(t *testing.T) {
	st := New(10)
	a := st.AddAlert(draft("one"))
	st.AddAlert(draft("two"))
	st.AddAlert(draft("three"))
	st.MarkAsRead(a.ID)

	if n := st.MarkAllAsRead(); n != 2 {
		t.Errorf("MarkAllAsRead: got %d newly read, want 2", n)
	}
	if n := st.UnreadCount(); n != 0 {
		t.Errorf("UnreadCount: got %d, want 0", n)
	}
}

func TestList_ReturnsCopies(t *testing.T) {
	st := New(10)
	a := st.AddAlert(draft("one"))

	list := st.List()
	list[0].Title = "mutated"
	list[0].Read = true

	got, _ := st.Get(a.ID)
	if got.Title != "one" || got.Read {
		t.Errorf("store mutated through List copy: %+v", got)
	}
}

func TestClear(t *testing.T) {
	st := New(10)
	st.AddAlert(draft("one"))
	st.Clear()
	if st.Count() != 0 || st.UnreadCount() != 0 {
		t.Errorf("after Clear: count=%d unread=%d", st.Count(), st.UnreadCount())
	}
}

func TestSubscribe_ReceivesStampedAlert(t *testing.T) {
	st := New(10)
	var got []types.Alert
	st.Subscribe(func(a types.Alert) { got = append(got, a) })

	added := st.AddAlert(draft("one"))
	if len(got) != 1 || got[0].ID != added.ID {
		t.Fatalf("listener got %+v, want alert %q", got, added.ID)
	}
}

func TestSubscribe_ListenerMayReadStore(t *testing.T) {
	st := New(10)
	var unread int
	st.Subscribe(func(types.Alert) { unread = st.UnreadCount() })

	st.AddAlert(draft("one"))
	if unread != 1 {
		t.Errorf("listener saw unread=%d, want 1", unread)
	}
}

func TestConcurrentAddAndRead(t *testing.T) {
	st := New(DefaultMaxAlerts)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a := st.AddAlert(draft("c"))
				st.MarkAsRead(a.ID)
				_ = st.List()
			}
		}()
	}
	wg.Wait()
	if st.Count() != DefaultMaxAlerts {
		t.Errorf("Count: got %d, want %d", st.Count(), DefaultMaxAlerts)
	}
}
