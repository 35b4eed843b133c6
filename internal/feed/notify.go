package feed

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Notifier signals when the feed file is written or recreated. Signals are
// coalesced: a pending signal absorbs later ones until it is received.
type Notifier struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
	ch      chan struct{}
}

// NewNotifier watches the directory holding path, so the feed may be created
// after the notifier starts.
func NewNotifier(path string, logger *slog.Logger) (*Notifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Notifier{
		path:    filepath.Clean(path),
		watcher: watcher,
		logger:  logger.With("component", "feed_notifier", "path", path),
		ch:      make(chan struct{}, 1),
	}, nil
}

// C returns the signal channel.
func (n *Notifier) C() <-chan struct{} {
	return n.ch
}

// Run forwards feed events until ctx is cancelled, then closes the watcher.
func (n *Notifier) Run(ctx context.Context) {
	defer n.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-n.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != n.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			select {
			case n.ch <- struct{}{}:
			default:
			}

		case err, ok := <-n.watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warn("feed watcher error", "error", err)
		}
	}
}
