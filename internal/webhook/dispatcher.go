// Package webhook arms deferred HTTP callbacks for reminders.
//
// Each reminder ID has at most one pending timer. When it fires, the
// reminder is POSTed as JSON to the configured URL. Failures are logged and
// never retried.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"remindsync/internal/eventbus"
	"remindsync/internal/reminder"
	logx "remindsync/pkg/logx"
)

// MaxDelay is the longest single-shot delay the dispatcher accepts (2^31-1 ms).
const MaxDelay = 2147483647 * time.Millisecond

type Config struct {
	URL     string
	Timeout time.Duration // 0 = no deadline
}

// Delivery is published on the bus for webhook.sent and webhook.failed.
type Delivery struct {
	ReminderID string        `json:"reminderId"`
	StatusCode int           `json:"statusCode,omitempty"`
	Took       time.Duration `json:"took"`
	Err        string        `json:"error,omitempty"`
}

type Option func(*Dispatcher)

func WithLogger(l logx.Logger) Option      { return func(d *Dispatcher) { d.log = l } }
func WithBus(b eventbus.Bus) Option        { return func(d *Dispatcher) { d.bus = b } }
func WithHTTPClient(c *http.Client) Option { return func(d *Dispatcher) { d.client = c } }

// call is one armed timer. ver identifies it so a callback from a replaced
// or cancelled timer is ignored.
type call struct {
	t   *time.Timer
	ver uint64
}

// Dispatcher owns the pending-timer map. Build one per process and Close it on shutdown.
type Dispatcher struct {
	log    logx.Logger
	bus    eventbus.Bus
	client *http.Client

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	cfg    Config
	calls  map[string]*call
	seq    uint64
	closed bool

	inflight sync.WaitGroup
}

func New(cfg Config, opts ...Option) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		cfg:     cfg,
		calls:   map[string]*call{},
		baseCtx: ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(d)
	}
	if d.log.IsZero() {
		d.log = logx.Nop()
	}
	d.log = d.log.With(logx.String("comp", "webhook"))
	if d.client == nil {
		d.client = &http.Client{}
	}
	return d
}

// Apply swaps URL and timeout. Pending timers post to the new URL when they fire.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.cfg = cfg
	d.mu.Unlock()
}

// ScheduleCall replaces any pending call for r.ID with one that fires after delay.
// It returns false when nothing was armed.
func (d *Dispatcher) ScheduleCall(r reminder.Reminder, delay time.Duration) bool {
	id := r.ID

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	if c, ok := d.calls[id]; ok {
		c.t.Stop()
		delete(d.calls, id)
	}

	if delay > MaxDelay {
		d.log.Warn("webhook delay exceeds timer limit; not scheduled",
			logx.String("reminder_id", id),
			logx.Duration("delay", delay),
			logx.Duration("max", MaxDelay),
		)
		eventbus.Publish(d.bus, eventbus.WebhookDropped, id)
		return false
	}
	if delay < 0 {
		delay = 0
	}

	d.seq++
	ver := d.seq
	payload := NewPayload(r)
	d.calls[id] = &call{ver: ver, t: time.AfterFunc(delay, func() { d.fire(id, ver, payload) })}
	d.log.Debug("webhook armed", logx.String("reminder_id", id), logx.Duration("delay", delay))
	eventbus.Publish(d.bus, eventbus.WebhookArmed, id)
	return true
}

// CancelCall disarms the pending call for id. It reports whether one existed.
func (d *Dispatcher) CancelCall(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.calls[id]
	if !ok {
		return false
	}
	c.t.Stop()
	delete(d.calls, id)
	return true
}

// ResetAll disarms every pending call.
func (d *Dispatcher) ResetAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *Dispatcher) resetLocked() {
	for _, c := range d.calls {
		c.t.Stop()
	}
	d.calls = map[string]*call{}
}

// Pending returns the reminder IDs with an armed call, sorted.
func (d *Dispatcher) Pending() []string {
	d.mu.Lock()
	out := make([]string, 0, len(d.calls))
	for id := range d.calls {
		out = append(out, id)
	}
	d.mu.Unlock()
	sort.Strings(out)
	return out
}

// Close disarms everything, aborts in-flight requests and refuses further scheduling.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.resetLocked()
	d.mu.Unlock()

	d.cancel()
	d.inflight.Wait()
}

func (d *Dispatcher) fire(id string, ver uint64, p Payload) {
	d.mu.Lock()
	c, ok := d.calls[id]
	if d.closed || !ok || c.ver != ver {
		d.mu.Unlock()
		return
	}
	delete(d.calls, id)
	cfg := d.cfg
	d.inflight.Add(1)
	d.mu.Unlock()
	defer d.inflight.Done()

	start := time.Now()
	status, err := d.post(cfg, p)
	del := Delivery{ReminderID: id, StatusCode: status, Took: time.Since(start)}
	if err != nil {
		del.Err = err.Error()
		d.log.Warn("webhook call failed",
			logx.String("reminder_id", id),
			logx.Int("status", status),
			logx.Duration("took", del.Took),
			logx.Err(err),
		)
		eventbus.Publish(d.bus, eventbus.WebhookFailed, del)
		return
	}
	d.log.Info("webhook sent", logx.String("reminder_id", id), logx.Int("status", status), logx.Duration("took", del.Took))
	eventbus.Publish(d.bus, eventbus.WebhookSent, del)
}

func (d *Dispatcher) post(cfg Config, p Payload) (int, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return 0, fmt.Errorf("webhook url not configured")
	}
	body, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}

	ctx := d.baseCtx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode/100 != 2 {
		return resp.StatusCode, fmt.Errorf("webhook returned http %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
