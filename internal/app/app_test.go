package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"remindsync/internal/api"
	"remindsync/internal/reminder"
	"remindsync/internal/remindersync"
	logx "remindsync/pkg/logx"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func reminderDoc(ids ...string) map[string]any {
	var rs []map[string]any
	for i, id := range ids {
		rs = append(rs, map[string]any{
			"id":          id,
			"title":       "title " + id,
			"body":        "body " + id,
			"triggerDate": time.Now().Add(time.Duration(i+1) * time.Hour).UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{"reminders": rs}
}

type fixture struct {
	dir       string
	cfgPath   string
	remPath   string
	cfg       map[string]any
	webhookCh chan []byte
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hooks := make(chan []byte, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		hooks <- b
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	f := &fixture{
		dir:       dir,
		cfgPath:   filepath.Join(dir, "config.json"),
		remPath:   filepath.Join(dir, "reminders.json"),
		webhookCh: hooks,
	}
	f.cfg = map[string]any{
		"logging":       map[string]any{"level": "error", "console": true},
		"notifications": map[string]any{"platform": "local"},
		"webhook":       map[string]any{"url": srv.URL},
		"reminders":     map[string]any{"path": f.remPath},
		"storage":       map[string]any{"driver": "file", "path": filepath.Join(dir, "state", "remindsync.db")},
		"http":          map[string]any{"enabled": false},
	}
	writeJSON(t, f.cfgPath, f.cfg)
	return f
}

func startApp(t *testing.T, path string) *App {
	t.Helper()
	a, err := NewApp(path)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(ctx, StopAppStop)
	})
	return a
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAppSyncsReminderFileAndFollowsChanges(t *testing.T) {
	f := newFixture(t)
	writeJSON(t, f.remPath, reminderDoc("a", "b"))

	a := startApp(t, f.cfgPath)
	if got := a.PendingWebhooks(); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("pending after start = %v", got)
	}
	if got := a.Scheduled(context.Background()); len(got) != 2 {
		t.Fatalf("scheduled after start = %+v", got)
	}

	writeJSON(t, f.remPath, reminderDoc("b", "c", "d"))
	eventually(t, "file resync", func() bool {
		return slices.Equal(a.PendingWebhooks(), []string{"b", "c", "d"})
	})
	if got := a.Scheduled(context.Background()); len(got) != 3 {
		t.Fatalf("scheduled after change = %d", len(got))
	}

	a.CancelReminder(context.Background(), "c")
	if got := a.PendingWebhooks(); !slices.Equal(got, []string{"b", "d"}) {
		t.Fatalf("pending after cancel = %v", got)
	}
	a.Resync("test")
	if got := a.PendingWebhooks(); !slices.Equal(got, []string{"b", "d"}) {
		t.Fatalf("cancelled reminder came back on resync: %v", got)
	}
}

func TestAppKeepsScheduleWhenFileInvalid(t *testing.T) {
	f := newFixture(t)
	writeJSON(t, f.remPath, reminderDoc("a"))
	a := startApp(t, f.cfgPath)

	if err := os.WriteFile(f.remPath, []byte(`{"reminders": [`), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)
	if got := a.PendingWebhooks(); !slices.Equal(got, []string{"a"}) {
		t.Fatalf("pending = %v", got)
	}
}

func TestAppConfigReloadDisablesWebhooks(t *testing.T) {
	f := newFixture(t)
	writeJSON(t, f.remPath, reminderDoc("a", "b"))
	a := startApp(t, f.cfgPath)

	f.cfg["notifications"] = map[string]any{"platform": "local", "webhook_enabled": false}
	writeJSON(t, f.cfgPath, f.cfg)

	eventually(t, "webhooks cleared by config reload", func() bool {
		return len(a.PendingWebhooks()) == 0
	})
	if got := a.Scheduled(context.Background()); len(got) != 2 {
		t.Fatalf("notifications should stay scheduled, got %d", len(got))
	}
}

func TestAppRequestOptionsOverrideConfig(t *testing.T) {
	f := newFixture(t)
	delete(f.cfg, "reminders")
	writeJSON(t, f.cfgPath, f.cfg)
	a := startApp(t, f.cfgPath)

	rs := mustReminders(t, reminderDoc("x", "y"))
	off := false
	res := a.Synchronize(context.Background(), rs, remindersync.Options{PushEnabled: &off})
	if res.Notifications != 0 || res.Webhooks != 2 {
		t.Fatalf("result = %+v", res)
	}
	if len(a.Scheduled(context.Background())) != 0 {
		t.Fatal("push disabled but notifications scheduled")
	}
}

func TestAppWebhookFires(t *testing.T) {
	f := newFixture(t)
	delete(f.cfg, "reminders")
	writeJSON(t, f.cfgPath, f.cfg)
	a := startApp(t, f.cfgPath)

	rs := mustReminders(t, reminderDoc("soon"))
	rs[0].TriggerDate = time.Now().Add(1500 * time.Millisecond)
	a.Synchronize(context.Background(), rs, remindersync.Options{})

	select {
	case body := <-f.webhookCh:
		var p map[string]any
		if err := json.Unmarshal(body, &p); err != nil || p["reminderId"] != "soon" {
			t.Fatalf("payload = %s (%v)", body, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("webhook did not fire")
	}
}

func TestNewAppRejectsBadResync(t *testing.T) {
	f := newFixture(t)
	f.cfg["reminders"] = map[string]any{"resync": "every now and then"}
	writeJSON(t, f.cfgPath, f.cfg)
	if _, err := NewApp(f.cfgPath); err == nil {
		t.Fatal("expected invalid resync spec to be rejected")
	}
}

func mustReminders(t *testing.T, doc map[string]any) []reminder.Reminder {
	t.Helper()
	b, err := json.Marshal(doc["reminders"])
	if err != nil {
		t.Fatal(err)
	}
	var rs []reminder.Reminder
	if err := json.Unmarshal(b, &rs); err != nil {
		t.Fatal(fmt.Errorf("decode reminders: %w", err))
	}
	return rs
}

func TestSetupRouteAfterStartReportsConflict(t *testing.T) {
	f := newFixture(t)
	delete(f.cfg, "reminders")
	writeJSON(t, f.cfgPath, f.cfg)
	a := startApp(t, f.cfgPath)

	req := httptest.NewRequest(http.MethodPost, "/api/notifications/setup", strings.NewReader(`{"showAlert":false}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	api.NewRouter(a, logx.Nop()).ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("setup after start: code=%d body=%s", w.Code, w.Body.String())
	}
}
