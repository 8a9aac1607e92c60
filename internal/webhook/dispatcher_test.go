package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"remindsync/internal/eventbus"
	"remindsync/internal/reminder"
	logx "remindsync/pkg/logx"
)

func rem(id string) reminder.Reminder {
	return reminder.Reminder{
		ID:             id,
		Title:          "Title " + id,
		Body:           "Body " + id,
		TriggerDate:    time.Date(2030, 4, 5, 6, 7, 8, 9_000_000, time.UTC),
		RawTitle:       "raw " + id,
		RawDescription: "desc " + id,
		ScheduledDate:  "2030-04-05",
		ScheduledTime:  "06:07",
	}
}

func TestFireDeliversPayload(t *testing.T) {
	got := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got <- r
		bodies <- b
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	d := New(Config{URL: srv.URL}, WithBus(bus))
	defer d.Close()

	r := rem("1")
	phone := "+15550100"
	r.PhoneNumber = &phone
	if !d.ScheduleCall(r, 10*time.Millisecond) {
		t.Fatal("ScheduleCall returned false")
	}

	var req *http.Request
	select {
	case req = <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never called")
	}
	if req.Method != http.MethodPost || req.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("method=%s content-type=%s", req.Method, req.Header.Get("Content-Type"))
	}

	var p map[string]any
	if err := json.Unmarshal(<-bodies, &p); err != nil {
		t.Fatalf("body: %v", err)
	}
	want := map[string]any{
		"reminderId":    "1",
		"title":         "raw 1",
		"description":   "desc 1",
		"message":       "Body 1",
		"scheduledDate": "2030-04-05",
		"scheduledTime": "06:07",
		"triggerAt":     "2030-04-05T06:07:08.009Z",
		"phoneNumber":   "+15550100",
	}
	for k, v := range want {
		if p[k] != v {
			t.Fatalf("payload[%s] = %v, want %v", k, p[k], v)
		}
	}

	waitEvent(t, events, eventbus.WebhookSent)
	if pending := d.Pending(); len(pending) != 0 {
		t.Fatalf("fired call still pending: %v", pending)
	}
}

func TestPayloadNullPhoneAndTitleFallback(t *testing.T) {
	r := rem("x")
	r.RawTitle = ""
	b, err := json.Marshal(NewPayload(r))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(b, []byte(`"phoneNumber":null`)) {
		t.Fatalf("phoneNumber not null: %s", b)
	}
	if !bytes.Contains(b, []byte(`"title":"Title x"`)) {
		t.Fatalf("title fallback missing: %s", b)
	}
}

func TestScheduleCallOverLimitArmsNothing(t *testing.T) {
	var buf bytes.Buffer
	d := New(Config{URL: "http://127.0.0.1:1"}, WithLogger(logx.NewWriter(&buf, "debug")))
	defer d.Close()

	d.ScheduleCall(rem("big"), time.Hour)
	if d.ScheduleCall(rem("big"), MaxDelay+time.Millisecond) {
		t.Fatal("over-limit delay should not be armed")
	}
	if pending := d.Pending(); len(pending) != 0 {
		t.Fatalf("pending = %v, want none (old timer also cancelled)", pending)
	}
	if !strings.Contains(buf.String(), "exceeds timer limit") || !strings.Contains(buf.String(), `"level":"warn"`) {
		t.Fatalf("missing warning log: %s", buf.String())
	}

	if !d.ScheduleCall(rem("edge"), MaxDelay) {
		t.Fatal("delay equal to the limit should be armed")
	}
}

func TestRepeatedScheduleKeepsOneTimer(t *testing.T) {
	d := New(Config{})
	defer d.Close()

	for i := 0; i < 3; i++ {
		d.ScheduleCall(rem("a"), time.Hour)
		d.ScheduleCall(rem("b"), time.Hour)
	}
	if got := d.Pending(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("pending = %v", got)
	}
}

func TestCancelCallAndResetAll(t *testing.T) {
	d := New(Config{})
	defer d.Close()

	d.ScheduleCall(rem("a"), time.Hour)
	d.ScheduleCall(rem("b"), time.Hour)
	if !d.CancelCall("a") {
		t.Fatal("CancelCall(a) = false")
	}
	if d.CancelCall("a") {
		t.Fatal("second CancelCall(a) = true")
	}
	if got := d.Pending(); len(got) != 1 || got[0] != "b" {
		t.Fatalf("pending = %v", got)
	}
	d.ResetAll()
	if got := d.Pending(); len(got) != 0 {
		t.Fatalf("pending after ResetAll = %v", got)
	}
}

func TestReplacedTimerDoesNotFire(t *testing.T) {
	calls := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		calls <- p.Message
	}))
	defer srv.Close()

	d := New(Config{URL: srv.URL})
	defer d.Close()

	first := rem("a")
	first.Body = "first"
	second := rem("a")
	second.Body = "second"
	d.ScheduleCall(first, 20*time.Millisecond)
	d.ScheduleCall(second, 40*time.Millisecond)

	select {
	case msg := <-calls:
		if msg != "second" {
			t.Fatalf("fired %q, want second", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no call")
	}
	select {
	case msg := <-calls:
		t.Fatalf("unexpected extra call %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNon2xxIsLoggedNotRetried(t *testing.T) {
	hits := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	d := New(Config{URL: srv.URL, Timeout: time.Second}, WithBus(bus))
	defer d.Close()
	d.ScheduleCall(rem("a"), 0)

	ev := waitEvent(t, events, eventbus.WebhookFailed)
	if del, ok := ev.Data.(Delivery); !ok || del.StatusCode != http.StatusBadGateway {
		t.Fatalf("failed event = %+v", ev.Data)
	}
	time.Sleep(50 * time.Millisecond)
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
}

func TestCloseRefusesScheduling(t *testing.T) {
	d := New(Config{})
	d.ScheduleCall(rem("a"), time.Hour)
	d.Close()
	if len(d.Pending()) != 0 {
		t.Fatal("Close left timers pending")
	}
	if d.ScheduleCall(rem("b"), time.Hour) {
		t.Fatal("ScheduleCall after Close armed a timer")
	}
	d.Close()
}

func TestResetAllLeavesNoPerIDState(t *testing.T) {
	d := New(Config{})
	defer d.Close()

	for i := 0; i < 1000; i++ {
		d.ScheduleCall(rem(fmt.Sprintf("r-%d", i)), time.Hour)
		d.ResetAll()
	}
	d.ScheduleCall(rem("kept"), time.Hour)
	d.ScheduleCall(rem("dropped"), time.Hour)
	d.CancelCall("dropped")
	d.ScheduleCall(rem("far"), MaxDelay+time.Second)

	d.mu.Lock()
	n := len(d.calls)
	d.mu.Unlock()
	if n != 1 {
		t.Fatalf("per-id entries = %d, want 1", n)
	}
}

func TestStaleTimerAfterResetDoesNotFire(t *testing.T) {
	calls := make(chan string, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		calls <- p.Message
	}))
	defer srv.Close()

	d := New(Config{URL: srv.URL})
	defer d.Close()

	first := rem("a")
	first.Body = "first"
	d.ScheduleCall(first, 20*time.Millisecond)
	d.ResetAll()
	second := rem("a")
	second.Body = "second"
	d.ScheduleCall(second, time.Hour)

	select {
	case msg := <-calls:
		t.Fatalf("reset call fired with %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
	if got := d.Pending(); len(got) != 1 || got[0] != "a" {
		t.Fatalf("pending = %v", got)
	}
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) eventbus.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-deadline:
			t.Fatalf("event %s not published", typ)
			return eventbus.Event{}
		}
	}
}
