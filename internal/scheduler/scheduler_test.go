package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/importer"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/sources/homepage"
	"github.com/MrSnakeDoc/linkvault/internal/store/memory"
)

const bookmarksYAML = `---
- Developer:
    - Github:
        - abbr: GH
          href: https://github.com/
`

func TestImportReloaderStartAndTrigger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bookmarks.yaml")
	if err := os.WriteFile(path, []byte(bookmarksYAML), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := memory.New(logger.Nop(), 8)
	trigger := make(chan struct{}, 1)
	r := NewImportReloader(importer.New(s, logger.Nop()), path, homepage.KindBookmarks, "alice",
		logger.Nop(), time.Hour, trigger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Stop()

	if got := r.Last().Created; got != 1 {
		t.Errorf("initial import created %d, want 1", got)
	}
	if r.LastRun().IsZero() {
		t.Error("LastRun() should be set after the initial import")
	}

	// Add an entry and trigger manually
	more := bookmarksYAML + `    - Go:
        - abbr: GO
          href: https://go.dev/
`
	if err := os.WriteFile(path, []byte(more), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	trigger <- struct{}{}

	deadline := time.Now().Add(2 * time.Second)
	for s.Count() != 2 {
		if time.Now().After(deadline) {
			t.Fatalf("manual trigger did not import, count = %d", s.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}

	r.Stop()
	r.Stop()
}

func TestImportReloaderStartFailsOnMissingFile(t *testing.T) {
	s := memory.New(logger.Nop(), 8)
	r := NewImportReloader(importer.New(s, logger.Nop()), "/nonexistent/bookmarks.yaml",
		homepage.KindBookmarks, "alice", logger.Nop(), time.Hour, nil)

	if err := r.Start(context.Background()); err == nil {
		t.Error("Start() should fail when the file is missing")
	}
}

type countingSweeper struct {
	calls   atomic.Int32
	removed int
	err     error
}

func (c *countingSweeper) Sweep(context.Context) (int, error) {
	c.calls.Add(1)
	return c.removed, c.err
}

func TestIndexSweeperCollect(t *testing.T) {
	cs := &countingSweeper{removed: 3}
	s := NewIndexSweeper(cs, logger.Nop(), time.Hour)

	removed, err := s.Collect(context.Background())
	if err != nil || removed != 3 {
		t.Errorf("Collect() = %d, %v; want 3, nil", removed, err)
	}

	cs.err = errors.New("redis down")
	if _, err := s.Collect(context.Background()); err == nil {
		t.Error("Collect() should surface sweep errors")
	}
}

func TestIndexSweeperRunsPeriodically(t *testing.T) {
	cs := &countingSweeper{}
	s := NewIndexSweeper(cs, logger.Nop(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for cs.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper ran %d times, want >= 3", cs.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()
}
