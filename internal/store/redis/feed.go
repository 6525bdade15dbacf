package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

// Subscribe opens the owner's change channel. It returns once Redis
// confirmed the subscription.
func (s *Store) Subscribe(ctx context.Context, ownerID string) (feed.Subscription, error) {
	channel := ChangesChannel(ownerID)
	ps := s.client.Subscribe(ctx, channel)

	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &domain.SubscriptionError{Owner: ownerID, Err: err}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		Stream: feed.NewStream(s.feedBuffer),
		ps:     ps,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.pump(pumpCtx, s.logger, channel)

	s.logger.Debug("subscribed to change channel", logger.String("channel", channel))
	return sub, nil
}

type subscription struct {
	*feed.Stream

	ps     *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (sub *subscription) pump(ctx context.Context, log logger.Logger, channel string) {
	defer close(sub.done)

	for {
		msg, err := sub.ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				sub.Finish(nil)
				return
			}
			sub.Finish(fmt.Errorf("receive on %s: %w", channel, err))
			return
		}

		n, err := feed.Decode([]byte(msg.Payload))
		if err != nil {
			log.Warn("dropping malformed change message",
				logger.String("channel", channel),
				logger.Error(err))
			continue
		}

		if !sub.Send(n) {
			sub.Finish(nil)
			return
		}
	}
}

func (sub *subscription) Ping(ctx context.Context) error {
	return sub.ps.Ping(ctx)
}

func (sub *subscription) Close() error {
	var err error
	sub.once.Do(func() {
		sub.Stop()
		sub.cancel()
		err = sub.ps.Close()
		<-sub.done
	})
	return err
}
