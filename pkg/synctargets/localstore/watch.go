package localstore

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a local store's underlying database file for writes made
// by sibling processes sharing the same file, so they can be surfaced on
// the cross-tab channel even without a live WS connection to the writer.
type Watcher struct {
	fsw *fsnotify.Watcher
	// onWrite is invoked (possibly from the watcher's own goroutine) on
	// every write/create event observed for the watched path. The
	// local store has no notion of "which stream changed" from a raw file
	// write, so callers should treat this as "something changed, resync
	// everything" rather than a single-stream signal.
	onWrite func()
	done    chan struct{}
}

// WatchFile starts watching dbPath for writes by other processes and
// invokes onWrite (best-effort, possibly coalesced) whenever one is
// observed. Callers must call Close to stop watching.
func WatchFile(dbPath string, onWrite func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(dbPath)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, onWrite: onWrite, done: make(chan struct{})}
	go w.loop(dbPath)
	return w, nil
}

func (w *Watcher) loop(dbPath string) {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Name != dbPath && event.Name != dbPath+"-wal" {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				log.Debugf("local store file changed: %s (%s)", event.Name, event.Op)
				w.onWrite()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warnf("local store watcher error: %v", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
