package store

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
)

// Reader is the snapshot side of a durable store.
type Reader interface {
	// ListByOwner returns the owner's links, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Item, error)
}

// Writer is the write side of a durable store.
type Writer interface {
	Create(ctx context.Context, ownerID, url, title string) (domain.Item, error)
	// Delete returns domain.ErrNotFound when the owner has no such link.
	Delete(ctx context.Context, ownerID, id string) error
}

// Backend is a complete durable store: reads, writes and the
// owner-scoped change feed of committed writes.
type Backend interface {
	Reader
	Writer
	feed.ChangeFeed

	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// NewItem validates input and builds a link with a fresh id.
// The id is a ULID so ids sort in creation order within an owner.
func NewItem(ownerID, url, title string, now time.Time) (domain.Item, error) {
	if err := domain.ValidateLink(url, title); err != nil {
		return domain.Item{}, err
	}

	return domain.Item{
		ID:        ulid.Make().String(),
		OwnerID:   ownerID,
		URL:       strings.TrimSpace(url),
		Title:     strings.TrimSpace(title),
		CreatedAt: now.UTC().Truncate(time.Microsecond),
	}, nil
}
