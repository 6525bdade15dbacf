package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/importer"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/sources/homepage"
)

// ImportReloader periodically imports a Homepage file into one owner's
// collection. Links already saved are skipped, so reruns are cheap.
type ImportReloader struct {
	importer      *importer.Importer
	path          string
	kind          homepage.Kind
	owner         string
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}

	mu     sync.Mutex
	last   importer.Result
	lastAt time.Time
}

// NewImportReloader creates a new import reloader
func NewImportReloader(
	im *importer.Importer,
	path string,
	kind homepage.Kind,
	owner string,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *ImportReloader {
	return &ImportReloader{
		importer:      im,
		path:          path,
		kind:          kind,
		owner:         owner,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start imports immediately, then on every tick or manual trigger
func (r *ImportReloader) Start(ctx context.Context) error {
	if err := r.Reload(ctx); err != nil {
		return fmt.Errorf("initial import failed: %w", err)
	}

	ticker := time.NewTicker(r.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := r.Reload(ctx); err != nil {
					r.logger.Error("failed to import links", logger.Error(err))
				}
			case <-r.manualTrigger:
				r.logger.Info("manual import triggered")
				if err := r.Reload(ctx); err != nil {
					r.logger.Error("failed to import links", logger.Error(err))
				}
			case <-r.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader. Safe to call multiple times.
func (r *ImportReloader) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// Reload runs one import
func (r *ImportReloader) Reload(ctx context.Context) error {
	r.logger.Info("importing homepage links",
		logger.String("file", r.path),
		logger.String("kind", string(r.kind)),
		logger.String("owner", r.owner))

	res, err := r.importer.ImportFile(ctx, r.owner, r.path, r.kind)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.last = res
	r.lastAt = time.Now()
	r.mu.Unlock()
	return nil
}

// Last returns the result of the most recent successful import
func (r *ImportReloader) Last() importer.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.last
}

// LastRun returns when the most recent successful import finished, or
// the zero time.
func (r *ImportReloader) LastRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.lastAt
}
