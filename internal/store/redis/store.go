package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/store"
)

// DefaultFeedBuffer is the per-subscription notification buffer.
const DefaultFeedBuffer = 64

// deleteScript removes a link only if the owner's index holds it, and
// publishes the change in the same atomic step.
//
// KEYS[1] owner index, KEYS[2] link value
// ARGV[1] id, ARGV[2] channel, ARGV[3] notification
var deleteScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call('DEL', KEYS[2])
redis.call('PUBLISH', ARGV[2], ARGV[3])
return 1
`)

// Store keeps links in Redis and publishes every committed write on the
// owner's change channel.
type Store struct {
	client     *redis.Client
	logger     logger.Logger
	feedBuffer int
	now        func() time.Time
}

var _ store.Backend = (*Store)(nil)

// NewStore creates a new Redis store. The store owns client.
func NewStore(client *redis.Client, log logger.Logger, feedBuffer int) *Store {
	if feedBuffer <= 0 {
		feedBuffer = DefaultFeedBuffer
	}
	return &Store{
		client:     client,
		logger:     log,
		feedBuffer: feedBuffer,
		now:        time.Now,
	}
}

func (s *Store) Name() string { return "redis" }

// Create stores a link, indexes it and publishes the insert in one
// MULTI/EXEC block.
func (s *Store) Create(ctx context.Context, ownerID, url, title string) (domain.Item, error) {
	item, err := store.NewItem(ownerID, url, title, s.now())
	if err != nil {
		return domain.Item{}, err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return domain.Item{}, fmt.Errorf("failed to marshal link: %w", err)
	}
	payload, err := feed.Encode(feed.Inserted(item))
	if err != nil {
		return domain.Item{}, err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, LinkKey(item.ID), data, 0)
		pipe.ZAdd(ctx, OwnerLinksKey(ownerID), redis.Z{
			Score:  float64(item.CreatedAt.UnixMilli()),
			Member: item.ID,
		})
		pipe.Publish(ctx, ChangesChannel(ownerID), payload)
		return nil
	})
	if err != nil {
		return domain.Item{}, fmt.Errorf("failed to save link: %w", err)
	}

	return item, nil
}

// Delete removes one of the owner's links.
func (s *Store) Delete(ctx context.Context, ownerID, id string) error {
	payload, err := feed.Encode(feed.Deleted(id))
	if err != nil {
		return err
	}

	removed, err := deleteScript.Run(ctx, s.client,
		[]string{OwnerLinksKey(ownerID), LinkKey(id)},
		id, ChangesChannel(ownerID), payload,
	).Int()
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if removed == 0 {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	return nil
}

// ListByOwner returns the owner's links, newest first.
func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]domain.Item, error) {
	ids, err := s.client.ZRevRange(ctx, OwnerLinksKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get link IDs: %w", err)
	}

	if len(ids) == 0 {
		return []domain.Item{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = LinkKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get links: %w", err)
	}

	items := make([]domain.Item, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Index entry without a value
			s.logger.Warn("dangling link index entry",
				logger.String("owner", ownerID),
				logger.String("id", ids[i]))
			continue
		}

		var item domain.Item
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			s.logger.Warn("skipping unreadable link",
				logger.String("id", ids[i]),
				logger.Error(err))
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
