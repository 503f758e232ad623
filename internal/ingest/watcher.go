package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing files
	SkipHidden  bool          // ignore dot files and dot directories
	Debounce    time.Duration // coalesce rapid create/write/rename bursts
	Logger      *slog.Logger
}

// StartWatcher emits paths of new or changed SDS files under cfg.Roots until ctx ends.
// Both channels are closed when the watcher stops.
func StartWatcher(ctx context.Context, cfg WatchConfig) (<-chan string, <-chan error, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	wanted := func(path string) bool {
		if cfg.SkipHidden && IsHidden(path) {
			return false
		}
		return AllowedExt(filepath.Ext(path))
	}

	// addDir watches root and its subdirectories and returns the wanted files already in it.
	addDir := func(root string) ([]string, error) {
		var found []string
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if cfg.SkipHidden && path != root && IsHidden(path) {
					return filepath.SkipDir
				}
				return w.Add(path)
			}
			if wanted(path) {
				found = append(found, path)
			}
			return nil
		})
		return found, err
	}
	var initial []string
	for _, r := range cfg.Roots {
		found, err := addDir(r)
		if err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
		if cfg.InitialScan {
			initial = append(initial, found...)
		}
	}

	go func() {
		var (
			mu      sync.Mutex
			timer   *time.Timer
			pending = map[string]struct{}{}
			done    = make(chan struct{})
		)
		defer close(errCh)
		defer close(evCh)
		defer func() {
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			close(done)
			mu.Unlock()
		}()
		defer func() {
			if err := w.Close(); err != nil {
				logger.Warn("watcher close error", "error", err)
			}
		}()

		sendPending := func() {
			mu.Lock()
			defer mu.Unlock()
			select {
			case <-done:
				return
			default:
			}
			for p := range pending {
				select {
				case evCh <- p:
				default:
					logger.Warn("watcher queue full, dropping event", "path", p)
				}
				delete(pending, p)
			}
		}

		for _, p := range initial {
			select {
			case evCh <- p:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create == fsnotify.Create {
					if st, err := os.Stat(e.Name); err == nil && st.IsDir() {
						found, err := addDir(e.Name)
						if err != nil {
							logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
						}
						mu.Lock()
						for _, p := range found {
							pending[p] = struct{}{}
						}
						mu.Unlock()
						if len(found) > 0 {
							sendPending()
						}
						continue
					}
				}
				if !wanted(e.Name) || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				pending[e.Name] = struct{}{}
				if cfg.Debounce > 0 {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(cfg.Debounce, sendPending)
				}
				mu.Unlock()
				if cfg.Debounce <= 0 {
					sendPending()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}
