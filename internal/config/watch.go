package config

import (
	"context"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "remindsync/pkg/logx"
)

const (
	watchDebounce      = 250 * time.Millisecond
	watchBackoffBase   = 250 * time.Millisecond
	watchBackoffMax    = 5 * time.Second
	watchedChangeFlags = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove | fsnotify.Chmod
)

// ArmWatch registers an fsnotify watch for path before returning. The returned
// run func calls onChange (debounced) whenever path is written, created, renamed
// or removed, including changes made between ArmWatch and run. run blocks until
// ctx is done and always returns nil.
//
// It watches the parent directory so editors that replace the file are handled,
// and recreates the watcher with jittered backoff when fsnotify breaks.
func ArmWatch(path string, log logx.Logger, onChange func(ctx context.Context)) (run func(ctx context.Context) error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	dir := filepath.Dir(path)
	armed, err := newDirWatcher(dir)
	if err != nil {
		log.Warn("watch init failed", logx.Err(err), logx.String("dir", dir))
	}
	return func(ctx context.Context) error {
		return runWatch(ctx, path, armed, log, onChange)
	}
}

func newDirWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, err
	}
	return w, nil
}

func runWatch(ctx context.Context, path string, armed *fsnotify.Watcher, log logx.Logger, onChange func(context.Context)) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if ctx.Err() != nil {
		if armed != nil {
			_ = armed.Close()
		}
		return nil
	}

	backoff := watchBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff *= 2
		if backoff > watchBackoffMax {
			backoff = watchBackoffMax
		}
		return wait
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			onChange(ctx)
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		w := armed
		armed = nil
		var err error
		if w == nil {
			w, err = newDirWatcher(dir)
		}
		if err != nil {
			log.Warn("watch init failed", logx.Err(err), logx.String("dir", dir))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(nextWait()):
				continue
			}
		}

		backoff = watchBackoffBase
		log.Debug("watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) && ev.Op&watchedChangeFlags != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				msg := strings.ToLower(err.Error())
				if strings.Contains(msg, "overflow") {
					// Events may have been missed.
					log.Warn("watch overflow; forcing reload", logx.Err(err), logx.String("dir", dir))
					debounce()
					continue
				}
				log.Warn("watch error", logx.Err(err), logx.String("dir", dir))
				if strings.Contains(msg, "closed") {
					broken = true
				}
			}
		}

		_ = w.Close()
		if ctx.Err() != nil {
			return nil
		}
		wait := nextWait()
		log.Warn("watcher stopped; restarting", logx.String("file", file), logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}
