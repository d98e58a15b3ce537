package config

import (
	"context"
	"log/slog"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file whenever it changes on disk and notifies
// subscribers with the freshly parsed value.
type Watcher struct {
	path   string
	logger *slog.Logger
	watch  *fsnotify.Watcher
	ch     chan *Config
}

// NewWatcher returns a Watcher for the config file at path. Run adds the
// watch on the directory containing path (fsnotify watches directories,
// not bare files, so edits that replace the file via rename-over still
// fire) and delivers reloads.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{path: path, logger: logger, watch: w, ch: make(chan *Config, 1)}, nil
}

// Changes returns the channel new configs are delivered on.
func (w *Watcher) Changes() <-chan *Config { return w.ch }

// Run watches for changes to the config file until ctx is cancelled. It is
// intended to be run in its own goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watch.Close()

	dir, file := dirAndFile(w.path)
	if err := w.watch.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watch.Events:
			if !ok {
				return nil
			}
			if dirAndFileMatch(event.Name, file) && (event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)) {
				cfg, err := LoadFile(w.path)
				if err != nil {
					if w.logger != nil {
						w.logger.Warn("config reload failed", "path", w.path, "error", err)
					}
					continue
				}
				if cfg != nil {
					select {
					case w.ch <- cfg:
					default:
						// drop the stale pending reload, the newest always wins
						select {
						case <-w.ch:
						default:
						}
						w.ch <- cfg
					}
				}
			}
		case err, ok := <-w.watch.Errors:
			if !ok {
				return nil
			}
			if w.logger != nil {
				w.logger.Warn("config watcher error", "error", err)
			}
		}
	}
}

func dirAndFile(path string) (dir, file string) {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return ".", path
}

func dirAndFileMatch(eventName, file string) bool {
	_, f := dirAndFile(eventName)
	return f == file
}
