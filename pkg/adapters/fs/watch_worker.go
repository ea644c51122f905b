package fs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the bursts of events one atomic replace produces.
const DefaultDebounce = 50 * time.Millisecond

// ChangeFunc is called once per settled change of a watched file.
type ChangeFunc func(ctx context.Context, path string) error

// Watcher reports changes to a fixed set of files. The parent directories
// are watched rather than the files, so replacing a file by rename is seen
// as a change of the same path.
type Watcher struct {
	*worker.BaseWorker
	files    map[string]bool
	dirs     []string
	onChange ChangeFunc
	logger   *slog.Logger
	delay    time.Duration

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
	flights sync.WaitGroup
	closed  bool
}

// NewWatcher creates a watcher for files. A nil logger discards output.
func NewWatcher(files []string, onChange ChangeFunc, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	w := &Watcher{
		BaseWorker: worker.NewBaseWorker("label-watcher"),
		files:      make(map[string]bool, len(files)),
		onChange:   onChange,
		logger:     logger,
		delay:      DefaultDebounce,
		pending:    make(map[string]*time.Timer),
	}
	seen := make(map[string]bool)
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			abs = filepath.Clean(f)
		}
		w.files[abs] = true
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	return w
}

// SetDebounce changes the quiet period before a change is reported. It must
// be called before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.delay = d
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.watcher = watcher
	w.done = make(chan struct{})

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

// Stop ends the event loop and waits for in-flight callbacks.
func (w *Watcher) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}
	err := w.BaseWorker.Stop(ctx)
	if w.done != nil {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (w *Watcher) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
			"files":             fmt.Sprint(len(w.files)),
		}
	})
}

func (w *Watcher) run(ctx context.Context) (err error) {
	defer close(w.done)
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if w.logger.Enabled(ctx, slog.LevelDebug) {
				w.logger.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.logger.Error("watcher panic", "error", err)
			}
		}
	}()
	defer w.watcher.Close()
	defer w.drain()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.handle(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error("fsnotify error", "error", wErr)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if strings.HasPrefix(filepath.Base(event.Name), TempFilePrefix) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}
	path, err := filepath.Abs(event.Name)
	if err != nil || !w.files[path] {
		return
	}
	w.logger.Debug("change detected", "path", path, "op", event.Op.String())
	w.schedule(ctx, path)
}

// schedule restarts the quiet period for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[path]; ok && t.Stop() {
		w.flights.Done()
	}
	w.flights.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.delay, func() {
		defer w.flights.Done()
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		w.fire(ctx, path)
	})
	w.pending[path] = timer
}

func (w *Watcher) fire(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			w.logger.Error("change handler panic", "path", path, "error", recovered)
		}
	}()
	if err := w.onChange(ctx, path); err != nil {
		w.logger.Error("change handler failed", "path", path, "error", err)
	}
}

// drain cancels pending timers and waits for the ones already firing.
func (w *Watcher) drain() {
	w.mu.Lock()
	w.closed = true
	for path, t := range w.pending {
		if t.Stop() {
			w.flights.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.flights.Wait()
}
