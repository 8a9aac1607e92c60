package app

import (
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindsync/pkg/logx"
)

// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func validateResync(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	_, err := cronParser.Parse(spec)
	return err
}

// resyncTrigger runs fn on a cron spec. Apply swaps the spec live.
type resyncTrigger struct {
	log logx.Logger
	loc *time.Location
	fn  func()

	mu    sync.Mutex
	c     *cron.Cron
	spec  string
	entry cron.EntryID
}

func newResyncTrigger(loc *time.Location, log logx.Logger, fn func()) *resyncTrigger {
	if loc == nil {
		loc = time.Local
	}
	return &resyncTrigger{log: log, loc: loc, fn: fn}
}

func (r *resyncTrigger) Start(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return nil
	}
	r.c = cron.New(cron.WithParser(cronParser), cron.WithLocation(r.loc))
	if err := r.setLocked(spec); err != nil {
		return err
	}
	r.c.Start()
	return nil
}

func (r *resyncTrigger) Apply(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil || strings.TrimSpace(spec) == r.spec {
		return nil
	}
	return r.setLocked(spec)
}

func (r *resyncTrigger) setLocked(spec string) error {
	spec = strings.TrimSpace(spec)
	if r.entry != 0 {
		r.c.Remove(r.entry)
		r.entry = 0
	}
	r.spec = spec
	if spec == "" {
		r.log.Debug("periodic resync disabled")
		return nil
	}
	id, err := r.c.AddFunc(spec, r.fn)
	if err != nil {
		return err
	}
	r.entry = id
	r.log.Info("periodic resync scheduled", logx.String("spec", spec))
	return nil
}

// Stop halts triggering and waits for a running resync to finish.
func (r *resyncTrigger) Stop() {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}
