// Package watch emits paths of new or modified engineering files under
// a set of directory roots, for hands-off drop-folder ingestion.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/beerberidie/cutflow/constants"
)

type Config struct {
	Roots       []string // directories to watch, recursive
	InitialScan bool     // emit files already present at startup
	Debounce    time.Duration
}

// Start watches the roots and sends supported file paths on the
// returned channel until ctx is cancelled. Rapid write bursts to the
// same file are coalesced by the debounce window.
func Start(ctx context.Context, cfg Config, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Roots) == 0 {
		return nil, nil, errors.New("no watch roots provided")
	}

	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, err
	}

	addRoot := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && supported(path) {
				select {
				case evCh <- path:
				default:
					logger.Warn("watch channel full during initial scan, dropping", "path", path)
				}
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addRoot(r); err != nil {
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer w.Close()

		// Debounce state lives entirely in this goroutine: the timer
		// only signals through its channel, so pending is never touched
		// concurrently and nothing can send on evCh after it closes.
		var timer *time.Timer
		var timerCh <-chan time.Time
		pending := map[string]struct{}{}

		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		flush := func() {
			for p := range pending {
				select {
				case evCh <- p:
				default:
					logger.Warn("watch channel full, dropping", "path", p)
				}
				delete(pending, p)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-timerCh:
				timerCh = nil
				flush()
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op.Has(fsnotify.Create) {
					// New subdirectories need their own watch. Adding a
					// plain file fails harmlessly on some platforms, so
					// the error is ignored either way.
					_ = w.Add(e.Name)
				}
				if supported(e.Name) && e.Op.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
					pending[e.Name] = struct{}{}
					if cfg.Debounce > 0 {
						if timer == nil {
							timer = time.NewTimer(cfg.Debounce)
							timerCh = timer.C
						} else {
							if !timer.Stop() && timerCh != nil {
								select {
								case <-timerCh:
								default:
								}
							}
							timer.Reset(cfg.Debounce)
							timerCh = timer.C
						}
					} else {
						flush()
					}
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

func supported(path string) bool {
	return constants.DetectFileType(filepath.Base(path), constants.ModeAuto) != constants.UNKNOWN
}
