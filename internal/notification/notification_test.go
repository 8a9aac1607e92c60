package notification

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"remindsync/internal/eventbus"
	"remindsync/internal/storage"
	logx "remindsync/pkg/logx"
)

type recordingPresenter struct {
	mu        sync.Mutex
	grant     bool
	asks      int
	presented []Scheduled
	policies  []Policy
	fired     chan string
}

func newRecordingPresenter(grant bool) *recordingPresenter {
	return &recordingPresenter{grant: grant, fired: make(chan string, 16)}
}

func (p *recordingPresenter) Authorize(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.asks++
	return p.grant, nil
}

func (p *recordingPresenter) Present(ctx context.Context, n Scheduled, pol Policy) error {
	p.mu.Lock()
	p.presented = append(p.presented, n)
	p.policies = append(p.policies, pol)
	p.mu.Unlock()
	p.fired <- n.ReminderID()
	return nil
}

func req(reminderID string, at time.Time) Request {
	return Request{Title: "t-" + reminderID, Body: "b", Sound: "default", At: at, Data: map[string]string{DataReminderID: reminderID}}
}

func TestCenterFiresAndPresentsWithPolicy(t *testing.T) {
	p := newRecordingPresenter(true)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	c := NewCenter(WithPresenter(p), WithBus(bus))
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Stop(context.Background())

	c.SetPolicy(Policy{ShowAlert: true, SetBadge: true})
	if _, err := c.Add(context.Background(), req("r1", time.Now().Add(20*time.Millisecond))); err != nil {
		t.Fatalf("Add: %v", err)
	}

	select {
	case id := <-p.fired:
		if id != "r1" {
			t.Fatalf("fired %q, want r1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never fired")
	}

	p.mu.Lock()
	pol := p.policies[0]
	p.mu.Unlock()
	if !pol.ShowAlert || pol.PlaySound || !pol.SetBadge {
		t.Fatalf("policy = %+v", pol)
	}
	list, _ := c.List(context.Background())
	if len(list) != 0 {
		t.Fatalf("fired entry still listed: %+v", list)
	}

	var types []string
	deadline := time.After(time.Second)
	for len(types) < 2 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-deadline:
			t.Fatalf("events = %v", types)
		}
	}
	if types[0] != eventbus.NotificationScheduled || types[1] != eventbus.NotificationDelivered {
		t.Fatalf("events = %v", types)
	}
}

func TestCenterRemoveAndRemoveAll(t *testing.T) {
	p := newRecordingPresenter(true)
	c := NewCenter(WithPresenter(p))
	ctx := context.Background()
	defer c.Stop(ctx)

	at := time.Now().Add(time.Hour)
	id1, _ := c.Add(ctx, req("r1", at))
	_, _ = c.Add(ctx, req("r2", at.Add(time.Minute)))

	if err := c.Remove(ctx, id1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := c.Remove(ctx, id1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Remove = %v, want ErrNotFound", err)
	}
	list, _ := c.List(ctx)
	if len(list) != 1 || list[0].ReminderID() != "r2" {
		t.Fatalf("list = %+v", list)
	}

	if err := c.RemoveAll(ctx); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	list, _ = c.List(ctx)
	if len(list) != 0 {
		t.Fatalf("list after RemoveAll = %+v", list)
	}
}

func TestCenterRejectsZeroTimeAndClosed(t *testing.T) {
	c := NewCenter()
	ctx := context.Background()
	if _, err := c.Add(ctx, Request{Title: "x"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Add zero time = %v, want ErrInvalid", err)
	}
	_ = c.Stop(ctx)
	if _, err := c.Add(ctx, req("r", time.Now().Add(time.Hour))); !errors.Is(err, ErrClosed) {
		t.Fatalf("Add after Stop = %v, want ErrClosed", err)
	}
}

func TestCenterAuthorizePromptsOnce(t *testing.T) {
	p := newRecordingPresenter(false)
	c := NewCenter(WithPresenter(p))
	for i := 0; i < 3; i++ {
		ok, err := c.Authorize(context.Background())
		if err != nil || ok {
			t.Fatalf("Authorize = %v, %v", ok, err)
		}
	}
	if p.asks != 1 {
		t.Fatalf("presenter asked %d times, want 1", p.asks)
	}
}

func TestCenterRestoresFromStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	first := NewCenter(WithStore(st), WithClock(clock))
	_, _ = first.Add(ctx, req("future", now.Add(time.Hour)))
	_, _ = first.Add(ctx, req("past", now.Add(time.Minute)))
	if err := first.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Two minutes later the "past" entry is stale.
	later := now.Add(2 * time.Minute)
	second := NewCenter(WithStore(st), WithClock(func() time.Time { return later }))
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer second.Stop(ctx)

	list, _ := second.List(ctx)
	if len(list) != 1 || list[0].ReminderID() != "future" {
		t.Fatalf("restored = %+v", list)
	}
	recs, _ := st.ListNotifications(ctx)
	if len(recs) != 1 {
		t.Fatalf("stale record not dropped from store: %+v", recs)
	}
}

type fakeHost struct {
	list    []Scheduled
	removed []string
	all     int
	addErr  error
	policy  Policy
}

func (h *fakeHost) Add(ctx context.Context, r Request) (string, error) {
	if h.addErr != nil {
		return "", h.addErr
	}
	id := "h" + r.ReminderID()
	h.list = append(h.list, Scheduled{ID: id, Request: r})
	return id, nil
}

func (h *fakeHost) Remove(ctx context.Context, id string) error {
	h.removed = append(h.removed, id)
	return nil
}

func (h *fakeHost) RemoveAll(ctx context.Context) error { h.all++; return nil }

func (h *fakeHost) List(ctx context.Context) ([]Scheduled, error) { return h.list, nil }

func (h *fakeHost) Authorize(ctx context.Context) (bool, error) { return true, nil }

func (h *fakeHost) SetPolicy(p Policy) { h.policy = p }

func TestLocalCancelOneScansByReminderID(t *testing.T) {
	h := &fakeHost{}
	l := NewLocal(h, logx.Nop())
	ctx := context.Background()
	at := time.Now().Add(time.Hour)
	if !l.Schedule(ctx, req("a", at)) || !l.Schedule(ctx, req("b", at)) {
		t.Fatal("host accepted the requests but Schedule reported false")
	}

	l.CancelOne(ctx, "b")
	if len(h.removed) != 1 || h.removed[0] != "hb" {
		t.Fatalf("removed = %v", h.removed)
	}
	l.CancelOne(ctx, "missing")
	if len(h.removed) != 1 {
		t.Fatalf("missing id removed something: %v", h.removed)
	}

	l.CancelAll(ctx)
	if h.all != 1 {
		t.Fatalf("RemoveAll calls = %d", h.all)
	}
	l.SetForegroundPolicy(Policy{SetBadge: true})
	if !h.policy.SetBadge {
		t.Fatal("policy not forwarded")
	}
	if !l.RequestPermission(ctx) {
		t.Fatal("permission should be granted")
	}
}

func TestLocalScheduleSwallowsHostError(t *testing.T) {
	h := &fakeHost{addErr: errors.New("host down")}
	l := NewLocal(h, logx.Nop())
	if l.Schedule(context.Background(), req("a", time.Now().Add(time.Hour))) {
		t.Fatal("Schedule reported success for a host error")
	}
	if len(l.ListScheduled(context.Background())) != 0 {
		t.Fatal("failed schedule should not be listed")
	}
}

func TestStub(t *testing.T) {
	s := NewStub(logx.Nop())
	ctx := context.Background()
	if s.RequestPermission(ctx) {
		t.Fatal("stub must deny permission")
	}
	if s.Schedule(ctx, req("a", time.Now().Add(time.Hour))) {
		t.Fatal("stub reported a scheduled notification")
	}
	if got := s.ListScheduled(ctx); got != nil {
		t.Fatalf("stub listed %v", got)
	}
}

func TestSelect(t *testing.T) {
	orig := goos
	t.Cleanup(func() { goos = orig })

	h := &fakeHost{}
	cases := []struct {
		name     string
		goos     string
		platform string
		host     Host
		local    bool
	}{
		{"auto linux", "linux", "auto", h, true},
		{"empty means auto", "darwin", "", h, true},
		{"auto wasm", "js", "auto", h, false},
		{"auto wasip1", "wasip1", "", h, false},
		{"local forced on wasm", "js", "local", h, true},
		{"none", "linux", "none", h, false},
		{"local without host", "linux", "local", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			goos = tc.goos
			a := Select(tc.platform, tc.host, logx.Nop())
			_, isLocal := a.(*Local)
			if isLocal != tc.local {
				t.Fatalf("Select(%q) on %s = %T", tc.platform, tc.goos, a)
			}
		})
	}
}
