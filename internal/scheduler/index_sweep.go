package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// Sweeper removes index entries whose link no longer exists.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// IndexSweeper runs a Sweeper periodically
type IndexSweeper struct {
	sweeper  Sweeper
	logger   logger.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewIndexSweeper creates a new index sweeper
func NewIndexSweeper(s Sweeper, log logger.Logger, interval time.Duration) *IndexSweeper {
	return &IndexSweeper{
		sweeper:  s,
		logger:   log,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep process
func (s *IndexSweeper) Start(ctx context.Context) error {
	// Run immediately on start
	if _, err := s.Collect(ctx); err != nil {
		s.logger.Warn("initial index sweep failed", logger.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := s.Collect(ctx); err != nil {
					s.logger.Error("index sweep failed", logger.Error(err))
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the sweeper. Safe to call multiple times.
func (s *IndexSweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Collect runs one sweep
func (s *IndexSweeper) Collect(ctx context.Context) (int, error) {
	removed, err := s.sweeper.Sweep(ctx)
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		s.logger.Info("index sweep completed", logger.Int("removed", removed))
	} else {
		s.logger.Debug("no dangling index entries")
	}
	return removed, nil
}
