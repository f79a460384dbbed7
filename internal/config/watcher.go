package config

import (
	"path/filepath"
	"sync"
	"time"

	"tradeforge/internal/logger"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the config file on change and hands the parsed result to
// the callback. Only reload-safe settings (tradable pairs, staleness) should
// be consumed from it; structural settings need a restart.
type Watcher struct {
	path     string
	onReload func(*Config)
	fsw      *fsnotify.Watcher

	closeOnce sync.Once
	done      chan struct{}
}

func Watch(path string, onReload func(*Config)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory: editors replace files instead of writing in place
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	w := &Watcher{path: abs, onReload: onReload, fsw: fsw, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
	})
}

func (w *Watcher) loop() {
	var timer *time.Timer
	fire := make(chan struct{}, 1)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warnf("config watcher: %v", err)
		case <-fire:
			cfg, err := Load(w.path)
			if err != nil {
				logger.Warnf("config reload skipped: %v", err)
				continue
			}
			logger.Infof("config reloaded from %s", w.path)
			if w.onReload != nil {
				w.onReload(cfg)
			}
		}
	}
}
