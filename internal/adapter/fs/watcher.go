package fs

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type ChangeKind int

const (
	// ChangeUpsert means the file was created or written.
	ChangeUpsert ChangeKind = iota + 1
	// ChangeRemove means the file was removed or renamed away.
	ChangeRemove
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeUpsert:
		return "upsert"
	case ChangeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Change is a settled file event.
type Change struct {
	Path string
	Kind ChangeKind
}

// Watcher turns fsnotify events under root into debounced Changes for files
// the walker would select. New subdirectories are watched as they appear.
type Watcher struct {
	root     string
	walker   *Walker
	debounce time.Duration
	logger   *slog.Logger
	notify   *fsnotify.Watcher
	pending  *debouncer
}

func NewWatcher(root string, walker *Walker, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	notify, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		root:     root,
		walker:   walker,
		debounce: debounce,
		logger:   logger,
		notify:   notify,
		pending:  newDebouncer(debounce, time.Now),
	}
	if err := w.addTree(root); err != nil {
		notify.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) Close() error {
	return w.notify.Close()
}

// addTree watches dir and every non-excluded directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.walker.Excluded(w.root, path) {
			return filepath.SkipDir
		}
		return w.notify.Add(path)
	})
}

// Run delivers settled changes to handle until ctx is done. handle runs on
// the watcher goroutine, so changes are processed one at a time.
func (w *Watcher) Run(ctx context.Context, handle func(context.Context, Change)) error {
	tick := time.NewTicker(w.debounce / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.notify.Events:
			if !ok {
				return nil
			}
			if change, ok := w.classify(event); ok {
				w.pending.add(change)
			}
		case err, ok := <-w.notify.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		case <-tick.C:
			for _, change := range w.pending.due() {
				handle(ctx, change)
			}
		}
	}
}

func (w *Watcher) classify(event fsnotify.Event) (Change, bool) {
	switch {
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		info, err := os.Stat(event.Name)
		if err != nil {
			return Change{}, false
		}
		if info.IsDir() {
			if event.Has(fsnotify.Create) && !w.walker.Excluded(w.root, event.Name) {
				if err := w.addTree(event.Name); err != nil {
					w.logger.Warn("failed to watch directory", "path", event.Name, "error", err)
				}
			}
			return Change{}, false
		}
		if !w.walker.Match(w.root, event.Name) {
			return Change{}, false
		}
		return Change{Path: event.Name, Kind: ChangeUpsert}, true
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		if !w.walker.Match(w.root, event.Name) {
			return Change{}, false
		}
		return Change{Path: event.Name, Kind: ChangeRemove}, true
	default:
		// chmod only
		return Change{}, false
	}
}

// debouncer keeps the latest change per path until it has been quiet for
// the debounce window.
type debouncer struct {
	mu      sync.Mutex
	window  time.Duration
	now     func() time.Time
	pending map[string]pendingChange
}

type pendingChange struct {
	change Change
	seen   time.Time
}

func newDebouncer(window time.Duration, now func() time.Time) *debouncer {
	return &debouncer{
		window:  window,
		now:     now,
		pending: make(map[string]pendingChange),
	}
}

func (d *debouncer) add(c Change) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[c.Path] = pendingChange{change: c, seen: d.now()}
}

// due removes and returns settled changes sorted by path.
func (d *debouncer) due() []Change {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	var out []Change
	for path, p := range d.pending {
		if now.Sub(p.seen) >= d.window {
			out = append(out, p.change)
			delete(d.pending, path)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
