package sched

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"ticksched/internal/logx"
)

const configDebounce = 150 * time.Millisecond

// WatchConfig re-reads path whenever it changes and hands valid configs to
// apply. The parent directory is watched so editors that replace the file on
// save are handled. apply runs on the watcher goroutine; hand it to the owner
// with Scheduler.RunOnOwner when it touches scheduler state.
//
// WatchConfig blocks until ctx is done.
func WatchConfig(ctx context.Context, path string, log logx.Logger, apply func(Config)) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}
	log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	reload := func() {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("config reload failed", logx.Err(err), logx.String("path", path))
			return
		}
		cfg, err := Parse(data)
		if err != nil {
			log.Warn("config reload rejected", logx.Err(err), logx.String("path", path))
			return
		}
		log.Info("config reloaded", logx.String("path", path))
		apply(cfg)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// collapse the burst of events a single save produces
			if timer == nil {
				timer = time.NewTimer(configDebounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(configDebounce)
			}
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			reload()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
		}
	}
}
