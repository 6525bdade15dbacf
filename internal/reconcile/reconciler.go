package reconcile

import (
	"github.com/MrSnakeDoc/linkvault/internal/collection"
	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// Outcome reports what Apply did with an event.
type Outcome int

const (
	// Applied means the collection changed (or was replaced).
	Applied Outcome = iota
	// Dropped means the event was absorbed without effect.
	Dropped
)

func (o Outcome) String() string {
	if o == Applied {
		return "applied"
	}
	return "dropped"
}

// Reconciler is the single place where events from every channel are
// merged into a collection. It performs no I/O and cannot fail.
//
// Adds are idempotent on ID, so the same creation may arrive from the
// local path, a broadcast and the change feed in any order and collapse
// to one entry. Callers serialize Apply; the Reconciler does no locking
// of its own.
type Reconciler struct {
	items  *collection.Collection
	logger logger.Logger
}

// New creates a reconciler that owns items.
func New(items *collection.Collection, log logger.Logger) *Reconciler {
	return &Reconciler{
		items:  items,
		logger: log,
	}
}

// Collection returns the collection this reconciler mutates.
func (r *Reconciler) Collection() *collection.Collection {
	return r.items
}

// Apply merges ev into the collection.
func (r *Reconciler) Apply(ev Event) Outcome {
	switch ev.Kind {
	case KindLocalAdd, KindRemoteAdd:
		if !r.items.InsertFront(ev.Item) {
			r.logger.Debug("duplicate add absorbed",
				logger.String("kind", ev.Kind.String()),
				logger.String("id", ev.Item.ID))
			return Dropped
		}
		return Applied

	case KindRemoteRemove:
		if !r.items.RemoveByID(ev.ID) {
			r.logger.Debug("remove for absent id absorbed",
				logger.String("id", ev.ID))
			return Dropped
		}
		return Applied

	case KindResync:
		r.items.Replace(ev.Items)
		r.logger.Debug("collection resynced",
			logger.Int("count", len(ev.Items)))
		return Applied

	default:
		r.logger.Warn("unknown event kind ignored",
			logger.Int("kind", int(ev.Kind)))
		return Dropped
	}
}

// Reconcile is the functional form: it returns the collection that
// results from applying ev to current, leaving current untouched.
func Reconcile(current []domain.Item, ev Event) []domain.Item {
	c := collection.From(current)
	New(c, logger.Nop()).Apply(ev)
	return c.Current()
}
