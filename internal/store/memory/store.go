package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/store"
)

// DefaultFeedBuffer is the per-subscription notification buffer.
const DefaultFeedBuffer = 64

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("memory store closed")

	errOverflow = errors.New("subscriber fell behind")
)

// Store is an in-process durable store. Links live for the lifetime of
// the process; writes are pushed to the owner's subscribers as they
// commit. A subscriber whose buffer overflows is failed rather than
// silently skipped, so its consumer knows to resync.
type Store struct {
	mu     sync.RWMutex
	links  map[string]domain.Item                // ID -> link
	owners map[string]map[string]struct{}        // owner -> IDs
	subs   map[string]map[*subscription]struct{} // owner -> live subscriptions
	closed bool

	feedBuffer int
	logger     logger.Logger
	now        func() time.Time
}

var _ store.Backend = (*Store)(nil)

// New creates an empty memory store.
func New(log logger.Logger, feedBuffer int) *Store {
	if feedBuffer <= 0 {
		feedBuffer = DefaultFeedBuffer
	}
	return &Store{
		links:      make(map[string]domain.Item),
		owners:     make(map[string]map[string]struct{}),
		subs:       make(map[string]map[*subscription]struct{}),
		feedBuffer: feedBuffer,
		logger:     log,
		now:        time.Now,
	}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Create(_ context.Context, ownerID, url, title string) (domain.Item, error) {
	item, err := store.NewItem(ownerID, url, title, s.now())
	if err != nil {
		return domain.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.Item{}, ErrClosed
	}

	s.links[item.ID] = item
	ids, ok := s.owners[ownerID]
	if !ok {
		ids = make(map[string]struct{})
		s.owners[ownerID] = ids
	}
	ids[item.ID] = struct{}{}

	s.publishLocked(ownerID, feed.Inserted(item))
	return item, nil
}

func (s *Store) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	ids := s.owners[ownerID]
	if _, ok := ids[id]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	delete(ids, id)
	delete(s.links, id)

	s.publishLocked(ownerID, feed.Deleted(id))
	return nil
}

// ListByOwner returns the owner's links, newest first.
func (s *Store) ListByOwner(_ context.Context, ownerID string) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	items := make([]domain.Item, 0, len(s.owners[ownerID]))
	for id := range s.owners[ownerID] {
		items = append(items, s.links[id])
	}

	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
	return items, nil
}

// Count returns the number of stored links across all owners.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.links)
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return ErrClosed
	}
	return nil
}

// Close ends every live subscription.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for owner, subs := range s.subs {
		for sub := range subs {
			sub.Finish(ErrClosed)
		}
		delete(s.subs, owner)
	}
	return nil
}

func (s *Store) Subscribe(_ context.Context, ownerID string) (feed.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, &domain.SubscriptionError{Owner: ownerID, Err: ErrClosed}
	}

	sub := &subscription{
		Stream: feed.NewStream(s.feedBuffer),
		store:  s,
		owner:  ownerID,
	}
	subs, ok := s.subs[ownerID]
	if !ok {
		subs = make(map[*subscription]struct{})
		s.subs[ownerID] = subs
	}
	subs[sub] = struct{}{}
	return sub, nil
}

// publishLocked delivers n to the owner's subscribers. Caller holds mu.
func (s *Store) publishLocked(ownerID string, n feed.Notification) {
	for sub := range s.subs[ownerID] {
		if sub.TrySend(n) {
			continue
		}
		s.logger.Warn("dropping slow change-feed subscriber",
			logger.String("owner", ownerID))
		s.detachLocked(sub)
		sub.Finish(errOverflow)
	}
}

func (s *Store) detachLocked(sub *subscription) {
	if subs, ok := s.subs[sub.owner]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(s.subs, sub.owner)
		}
	}
}

type subscription struct {
	*feed.Stream

	store *Store
	owner string
}

func (sub *subscription) Ping(context.Context) error {
	return sub.store.Ping(context.Background())
}

// Close detaches the subscription. Safe to call multiple times.
func (sub *subscription) Close() error {
	sub.Stop()

	sub.store.mu.Lock()
	defer sub.store.mu.Unlock()

	sub.store.detachLocked(sub)
	sub.Finish(nil)
	return nil
}
