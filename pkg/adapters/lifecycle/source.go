package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/lifecycle"

	"github.com/aretw0/pdfledger/pkg/adapters/fs"
)

// ChangeEvent reports a settled change of a watched store file.
type ChangeEvent struct {
	Path string
	At   time.Time
}

func (e ChangeEvent) String() string {
	return fmt.Sprintf("changed %s", e.Path)
}

type storeSource struct {
	watcher *fs.Watcher
	out     chan lifecycle.Event
}

// NewSource creates a lifecycle.Source that emits a ChangeEvent whenever one
// of files is rewritten. debounce <= 0 keeps fs.DefaultDebounce.
func NewSource(files []string, debounce time.Duration, logger *slog.Logger) lifecycle.Source {
	s := &storeSource{out: make(chan lifecycle.Event)}
	s.watcher = fs.NewWatcher(files, s.emit, logger)
	s.watcher.SetDebounce(debounce)
	return s
}

func (s *storeSource) Events() <-chan lifecycle.Event {
	return s.out
}

func (s *storeSource) emit(ctx context.Context, path string) error {
	select {
	case s.out <- ChangeEvent{Path: path, At: time.Now()}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start starts the watcher. Events is closed once ctx is done and every
// pending callback has returned.
func (s *storeSource) Start(ctx context.Context) error {
	if err := s.watcher.Start(ctx); err != nil {
		return err
	}
	lifecycle.Go(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.watcher.Stop(stopCtx)
		close(s.out)
		return err
	})
	return nil
}
