package store

import (
	"errors"
	"testing"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
)

func TestNewItem(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 123456789, time.FixedZone("CET", 3600))

	item, err := NewItem("alice", "  https://go.dev  ", "  Go  ", now)
	if err != nil {
		t.Fatalf("NewItem() error = %v", err)
	}
	if item.ID == "" {
		t.Error("expected an id")
	}
	if item.OwnerID != "alice" || item.URL != "https://go.dev" || item.Title != "Go" {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.CreatedAt.Location() != time.UTC {
		t.Errorf("CreatedAt should be UTC, got %v", item.CreatedAt.Location())
	}
	if item.CreatedAt.Nanosecond() != 123456000 {
		t.Errorf("CreatedAt should be truncated to microseconds, got %d", item.CreatedAt.Nanosecond())
	}
}

func TestNewItemIDsAreOrdered(t *testing.T) {
	now := time.Now()
	a, _ := NewItem("alice", "https://a.example", "a", now)
	b, _ := NewItem("alice", "https://b.example", "b", now)
	if a.ID >= b.ID {
		t.Errorf("expected %s < %s", a.ID, b.ID)
	}
}

func TestNewItemInvalid(t *testing.T) {
	_, err := NewItem("alice", "ftp://x", "x", time.Now())
	if !errors.Is(err, domain.ErrInvalidLink) {
		t.Errorf("expected ErrInvalidLink, got %v", err)
	}
}
