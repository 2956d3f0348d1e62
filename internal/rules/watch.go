package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

// Watcher reloads a rule directory whenever a .rule file changes. Each reload
// resets the pattern cache first, which is the only event that invalidates it.
type Watcher struct {
	dir    string
	cache  *Cache
	log    *zap.SugaredLogger
	onLoad func([]Rule, []Diagnostic)
}

// NewWatcher builds a watcher over dir. onLoad receives every successful
// reload result, including the initial load.
func NewWatcher(dir string, cache *Cache, log *zap.SugaredLogger, onLoad func([]Rule, []Diagnostic)) *Watcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Watcher{dir: dir, cache: cache, log: log, onLoad: onLoad}
}

// Run loads the rule set once, then blocks reloading on changes until the
// context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.reload(); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init: %w", err)
	}
	defer fw.Close()
	if err := addDirsRecursive(fw, w.dir); err != nil {
		return fmt.Errorf("watch rules dir: %w", err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	reloads := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevantEvent(ev) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reloads <- struct{}{}:
				default:
				}
			})
		case <-reloads:
			if err := w.reload(); err != nil {
				w.log.Warnw("rule reload failed", "dir", w.dir, "error", err)
			}
		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warnw("rule watch error", "error", watchErr)
		}
	}
}

func (w *Watcher) reload() error {
	w.cache.Reset()
	loaded, diags, err := LoadDir(w.dir, w.cache)
	if err != nil {
		return err
	}
	for _, d := range diags {
		w.log.Warnw("rule diagnostic", "detail", d.String())
	}
	w.log.Infow("rule set loaded", "dir", w.dir, "rules", len(loaded), "diagnostics", len(diags), "cache_version", w.cache.Version())
	if w.onLoad != nil {
		w.onLoad(loaded, diags)
	}
	return nil
}

func relevantEvent(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return strings.EqualFold(filepath.Ext(ev.Name), ".rule")
}

func addDirsRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
