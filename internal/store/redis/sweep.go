package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// Sweep removes owner index entries whose link value is gone and
// returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	removed := 0

	iter := s.client.Scan(ctx, 0, KeyPrefixOwner+"*:links", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		n, err := s.sweepIndex(ctx, key)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan owner indexes: %w", err)
	}

	return removed, nil
}

func (s *Store) sweepIndex(ctx context.Context, key string) (int, error) {
	ids, err := s.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	pipe := s.client.Pipeline()
	checks := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		checks[i] = pipe.Exists(ctx, LinkKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to check links of %s: %w", key, err)
	}

	var dangling []interface{}
	for i, cmd := range checks {
		if cmd.Val() == 0 {
			dangling = append(dangling, ids[i])
		}
	}
	if len(dangling) == 0 {
		return 0, nil
	}

	n, err := s.client.ZRem(ctx, key, dangling...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s: %w", key, err)
	}

	owner := strings.TrimSuffix(strings.TrimPrefix(key, KeyPrefixOwner), ":links")
	s.logger.Info("pruned dangling link index entries",
		logger.String("owner", owner),
		logger.Int("removed", int(n)))
	return int(n), nil
}
