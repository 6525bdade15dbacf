package collection

import (
	"slices"
	"sync"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
)

// Collection is the ordered, deduplicated set of items for one identity.
//
// Order is newest-first by CreatedAt; among equal timestamps the most
// recent arrival comes first. Only the reconciler mutates a Collection;
// readers may call Current and Len from any goroutine.
type Collection struct {
	mu        sync.RWMutex
	items     []domain.Item       // display order
	ids       map[string]struct{} // ID set mirroring items
	observers []func(size int)
}

// New creates an empty collection.
func New() *Collection {
	return &Collection{
		ids: make(map[string]struct{}),
	}
}

// From creates a collection seeded with items (same rules as Replace).
func From(items []domain.Item) *Collection {
	c := New()
	c.items, c.ids = normalize(items)
	return c
}

// OnSizeChange registers an observer called after every mutation that
// changed the collection. Observers must not mutate the collection.
func (c *Collection) OnSizeChange(fn func(size int)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.observers = append(c.observers, fn)
}

// Current returns a copy of the items in display order.
func (c *Collection) Current() []domain.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.items)
}

// Len returns the number of items.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Replace substitutes the whole content. The result is newest-first
// regardless of input order; duplicates keep their first occurrence.
func (c *Collection) Replace(items []domain.Item) {
	c.mu.Lock()
	c.items, c.ids = normalize(items)
	size := len(c.items)
	c.mu.Unlock()

	c.notify(size)
}

// InsertFront inserts item at its ordered position unless an item with
// the same ID already exists. Returns false for the no-op case.
func (c *Collection) InsertFront(item domain.Item) bool {
	c.mu.Lock()
	if _, exists := c.ids[item.ID]; exists {
		c.mu.Unlock()
		return false
	}

	pos := len(c.items)
	for i, existing := range c.items {
		if !existing.CreatedAt.After(item.CreatedAt) {
			pos = i
			break
		}
	}
	c.items = slices.Insert(c.items, pos, item)
	c.ids[item.ID] = struct{}{}
	size := len(c.items)
	c.mu.Unlock()

	c.notify(size)
	return true
}

// RemoveByID removes the matching item. Absent ids are a no-op (false).
func (c *Collection) RemoveByID(id string) bool {
	c.mu.Lock()
	if _, exists := c.ids[id]; !exists {
		c.mu.Unlock()
		return false
	}

	c.items = slices.DeleteFunc(c.items, func(it domain.Item) bool { return it.ID == id })
	delete(c.ids, id)
	size := len(c.items)
	c.mu.Unlock()

	c.notify(size)
	return true
}

func (c *Collection) notify(size int) {
	c.mu.RLock()
	observers := slices.Clone(c.observers)
	c.mu.RUnlock()

	for _, fn := range observers {
		fn(size)
	}
}

// normalize deduplicates by ID and stable-sorts newest-first.
func normalize(items []domain.Item) ([]domain.Item, map[string]struct{}) {
	out := make([]domain.Item, 0, len(items))
	ids := make(map[string]struct{}, len(items))
	for _, it := range items {
		if _, dup := ids[it.ID]; dup {
			continue
		}
		ids[it.ID] = struct{}{}
		out = append(out, it)
	}

	slices.SortStableFunc(out, func(a, b domain.Item) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, ids
}
