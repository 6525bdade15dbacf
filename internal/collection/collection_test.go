package collection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func item(id string, minute int) domain.Item {
	return domain.Item{
		ID:        id,
		OwnerID:   "user-1",
		URL:       "https://example.com/" + id,
		Title:     id,
		CreatedAt: base.Add(time.Duration(minute) * time.Minute),
	}
}

func ids(items []domain.Item) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func TestNewCollectionIsEmpty(t *testing.T) {
	c := New()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Current())
}

func TestInsertFrontOrdersNewestFirst(t *testing.T) {
	c := New()

	require.True(t, c.InsertFront(item("t2", 2)))
	require.True(t, c.InsertFront(item("t1", 1)))
	require.True(t, c.InsertFront(item("t3", 3)))

	assert.Equal(t, []string{"t3", "t2", "t1"}, ids(c.Current()))
}

func TestInsertFrontTiesFavourLatestArrival(t *testing.T) {
	c := New()

	c.InsertFront(item("first", 5))
	c.InsertFront(item("older", 1))
	c.InsertFront(item("second", 5))

	assert.Equal(t, []string{"second", "first", "older"}, ids(c.Current()))
}

func TestInsertFrontDuplicateIsNoop(t *testing.T) {
	c := New()
	c.InsertFront(item("a", 1))

	dup := item("a", 9)
	dup.Title = "changed"
	assert.False(t, c.InsertFront(dup))

	got := c.Current()
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Title)
}

func TestRemoveByID(t *testing.T) {
	c := From([]domain.Item{item("a", 1), item("b", 2)})

	assert.True(t, c.RemoveByID("a"))
	assert.False(t, c.RemoveByID("a"))
	assert.False(t, c.RemoveByID("never-seen"))
	assert.Equal(t, []string{"b"}, ids(c.Current()))
	assert.Equal(t, 1, c.Len())
}

func TestReplaceSortsAndDeduplicates(t *testing.T) {
	c := From([]domain.Item{item("a", 1)})

	c.Replace([]domain.Item{item("c", 1), item("d", 4), item("c", 7), item("e", 2)})

	assert.Equal(t, []string{"d", "e", "c"}, ids(c.Current()))
}

func TestReplaceKeepsSnapshotOrderForTies(t *testing.T) {
	c := New()
	c.Replace([]domain.Item{item("x", 3), item("y", 3), item("z", 3)})

	assert.Equal(t, []string{"x", "y", "z"}, ids(c.Current()))
}

func TestObserverSeesSizeAfterEachMutation(t *testing.T) {
	c := New()
	var sizes []int
	c.OnSizeChange(func(size int) { sizes = append(sizes, size) })

	c.InsertFront(item("a", 1))
	c.InsertFront(item("a", 1)) // duplicate, no change
	c.InsertFront(item("b", 2))
	c.RemoveByID("missing") // absent, no change
	c.RemoveByID("a")
	c.Replace(nil)

	assert.Equal(t, []int{1, 2, 1, 0}, sizes)
}

func TestCurrentReturnsCopy(t *testing.T) {
	c := From([]domain.Item{item("a", 1)})

	got := c.Current()
	got[0].Title = "mutated"

	assert.Equal(t, "a", c.Current()[0].Title)
}
