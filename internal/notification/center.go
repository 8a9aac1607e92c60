package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"remindsync/internal/eventbus"
	"remindsync/internal/storage"
	logx "remindsync/pkg/logx"
)

// Center is the in-process notification host. It owns every scheduled
// notification, arms a one-shot timer per entry and hands fired entries to
// its Presenter. With a store configured, entries survive a restart.
type Center struct {
	log       logx.Logger
	store     storage.Store
	bus       eventbus.Bus
	presenter Presenter
	now       func() time.Time

	mu         sync.Mutex
	entries    map[string]*entry
	seq        uint64
	policy     Policy
	authorized *bool
	baseCtx    context.Context
	closed     bool

	inflight sync.WaitGroup
}

type entry struct {
	sched Scheduled
	timer *time.Timer
	ver   uint64
}

type CenterOption func(*Center)

func WithStore(st storage.Store) CenterOption { return func(c *Center) { c.store = st } }
func WithBus(b eventbus.Bus) CenterOption     { return func(c *Center) { c.bus = b } }
func WithPresenter(p Presenter) CenterOption  { return func(c *Center) { c.presenter = p } }
func WithLogger(l logx.Logger) CenterOption   { return func(c *Center) { c.log = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CenterOption { return func(c *Center) { c.now = now } }

func NewCenter(opts ...CenterOption) *Center {
	c := &Center{
		entries: map[string]*entry{},
		policy:  DefaultPolicy(),
		now:     time.Now,
		baseCtx: context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	c.log = c.log.With(logx.String("comp", "notification-host"))
	if c.presenter == nil {
		c.presenter = NewLogPresenter(c.log)
	}
	return c
}

// Start restores persisted entries. Entries whose time has passed are
// dropped, the rest are re-armed. ctx bounds presentations started later.
func (c *Center) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.baseCtx = ctx
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	recs, err := c.store.ListNotifications(ctx)
	if err != nil {
		return fmt.Errorf("restore notifications: %w", err)
	}

	now := c.now()
	restored, dropped := 0, 0
	for _, rec := range recs {
		if !rec.At.After(now) {
			if err := c.store.DeleteNotification(ctx, rec.ID); err != nil {
				c.log.Warn("drop stale notification failed", logx.String("id", rec.ID), logx.Err(err))
			}
			dropped++
			continue
		}
		s := Scheduled{ID: rec.ID, Request: Request{
			Title: rec.Title, Body: rec.Body, Sound: rec.Sound, At: rec.At, Data: rec.Data,
		}}
		c.mu.Lock()
		c.armLocked(s)
		c.mu.Unlock()
		restored++
	}
	if restored > 0 || dropped > 0 {
		c.log.Info("notifications restored", logx.Int("restored", restored), logx.Int("dropped", dropped))
	}
	return nil
}

// Stop disarms every timer and waits for in-flight presentations.
// Persisted entries are kept for the next Start.
func (c *Center) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	for _, e := range c.entries {
		e.timer.Stop()
	}
	c.entries = map[string]*entry{}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Authorize asks the presenter for permission once and caches a definite answer.
func (c *Center) Authorize(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.authorized != nil {
		ok := *c.authorized
		c.mu.Unlock()
		return ok, nil
	}
	c.mu.Unlock()

	ok, err := c.presenter.Authorize(ctx)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if c.authorized == nil {
		c.authorized = &ok
	}
	ok = *c.authorized
	c.mu.Unlock()
	c.log.Info("notification permission", logx.Bool("granted", ok))
	return ok, nil
}

func (c *Center) SetPolicy(p Policy) {
	c.mu.Lock()
	c.policy = p
	c.mu.Unlock()
}

// Add schedules req and returns its host-assigned ID.
func (c *Center) Add(ctx context.Context, req Request) (string, error) {
	if req.At.IsZero() {
		return "", fmt.Errorf("%w: time required", ErrInvalid)
	}
	s := Scheduled{ID: uuid.NewString(), Request: req}
	s.Data = copyData(req.Data)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	c.armLocked(s)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.PutNotification(ctx, toRecord(s)); err != nil {
			// Still armed for this process lifetime.
			c.log.Warn("persist notification failed", logx.String("id", s.ID), logx.Err(err))
		}
	}
	eventbus.Publish(c.bus, eventbus.NotificationScheduled, s)
	return s.ID, nil
}

// Remove cancels one entry.
func (c *Center) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	e, ok := c.entries[id]
	if ok {
		e.timer.Stop()
		delete(c.entries, id)
	}
	c.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if c.store != nil {
		if err := c.store.DeleteNotification(ctx, id); err != nil {
			return fmt.Errorf("remove %s: %w", id, err)
		}
	}
	return nil
}

// RemoveAll cancels every entry regardless of who scheduled it.
func (c *Center) RemoveAll(ctx context.Context) error {
	c.mu.Lock()
	for _, e := range c.entries {
		e.timer.Stop()
	}
	c.entries = map[string]*entry{}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.DeleteAllNotifications(ctx); err != nil {
			return fmt.Errorf("remove all: %w", err)
		}
	}
	return nil
}

// List returns the scheduled entries ordered by time, then ID.
func (c *Center) List(ctx context.Context) ([]Scheduled, error) {
	c.mu.Lock()
	out := make([]Scheduled, 0, len(c.entries))
	for _, e := range c.entries {
		s := e.sched
		s.Data = copyData(s.Data)
		out = append(out, s)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.Before(out[j].At)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Center) armLocked(s Scheduled) {
	if old, ok := c.entries[s.ID]; ok {
		old.timer.Stop()
	}
	c.seq++
	ver := c.seq
	delay := s.At.Sub(c.now())
	if delay < 0 {
		delay = 0
	}
	e := &entry{sched: s, ver: ver}
	id := s.ID
	e.timer = time.AfterFunc(delay, func() { c.fire(id, ver) })
	c.entries[id] = e
}

func (c *Center) fire(id string, ver uint64) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.ver != ver || c.closed {
		// Removed or replaced after the timer was armed.
		c.mu.Unlock()
		return
	}
	delete(c.entries, id)
	pol := c.policy
	ctx := c.baseCtx
	c.inflight.Add(1)
	c.mu.Unlock()
	defer c.inflight.Done()

	if c.store != nil {
		if err := c.store.DeleteNotification(ctx, id); err != nil && !errors.Is(err, storage.ErrClosed) {
			c.log.Warn("unpersist fired notification failed", logx.String("id", id), logx.Err(err))
		}
	}

	if err := c.presenter.Present(ctx, e.sched, pol); err != nil {
		c.log.Warn("present notification failed",
			logx.String("id", id),
			logx.String("reminder_id", e.sched.ReminderID()),
			logx.Err(err),
		)
		eventbus.Publish(c.bus, eventbus.NotificationFailed, e.sched)
		return
	}
	eventbus.Publish(c.bus, eventbus.NotificationDelivered, e.sched)
}

func toRecord(s Scheduled) storage.Record {
	return storage.Record{
		ID:    s.ID,
		Title: s.Title,
		Body:  s.Body,
		Sound: s.Sound,
		At:    s.At,
		Data:  copyData(s.Data),
	}
}

func copyData(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
