package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/sources/homepage"
	"github.com/MrSnakeDoc/linkvault/internal/store"
)

// Store is the part of a durable store an import needs.
type Store interface {
	store.Reader
	store.Writer
}

// Result summarizes one import run.
type Result struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"` // URL already saved
	Invalid int `json:"invalid"` // rejected by link validation
}

// Importer copies Homepage links into a user's collection through the
// durable write path, so open sessions receive them over the change feed.
type Importer struct {
	store  Store
	logger logger.Logger
}

// New creates an importer.
func New(s Store, log logger.Logger) *Importer {
	return &Importer{store: s, logger: log}
}

// ImportFile loads a Homepage file and imports it for owner.
func (im *Importer) ImportFile(ctx context.Context, ownerID, path string, kind homepage.Kind) (Result, error) {
	entries, err := homepage.NewLoader(path, kind).Load()
	if err != nil {
		return Result{}, err
	}
	return im.Import(ctx, ownerID, entries)
}

// Import creates every entry whose URL the owner has not saved yet.
// It stops at the first write failure.
func (im *Importer) Import(ctx context.Context, ownerID string, entries []homepage.Entry) (Result, error) {
	var res Result

	existing, err := im.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return res, fmt.Errorf("failed to list existing links: %w", err)
	}

	saved := make(map[string]bool, len(existing))
	for _, it := range existing {
		saved[normalizeURL(it.URL)] = true
	}

	for _, e := range entries {
		key := normalizeURL(e.URL)
		if saved[key] {
			res.Skipped++
			continue
		}

		if err := domain.ValidateLink(e.URL, e.Title); err != nil {
			im.logger.Warn("skipping invalid link",
				logger.String("title", e.Title),
				logger.String("url", e.URL),
				logger.Error(err))
			res.Invalid++
			continue
		}

		if _, err := im.store.Create(ctx, ownerID, e.URL, e.Title); err != nil {
			if errors.Is(err, domain.ErrInvalidLink) {
				res.Invalid++
				continue
			}
			return res, &domain.WriteError{Op: "create", Err: err}
		}
		saved[key] = true
		res.Created++
	}

	im.logger.Info("import finished",
		logger.String("owner", ownerID),
		logger.Int("created", res.Created),
		logger.Int("skipped", res.Skipped),
		logger.Int("invalid", res.Invalid))

	return res, nil
}

func normalizeURL(u string) string {
	return strings.TrimRight(strings.TrimSpace(u), "/")
}
