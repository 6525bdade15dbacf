package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

var (
	errListenerClosed = errors.New("listener closed")
	// A reconnected listener may have missed notifications while down.
	errReconnected = errors.New("listener reconnected")
)

type listenerEvent struct {
	kind pq.ListenerEventType
	err  error
}

// Subscribe LISTENs on the owner's channel over a dedicated connection.
// It returns once the server acknowledged the LISTEN.
func (s *Store) Subscribe(ctx context.Context, ownerID string) (feed.Subscription, error) {
	channel := ChannelName(s.opts.Table, ownerID)
	events := make(chan listenerEvent, 4)

	listener := pq.NewListener(s.dsn, s.opts.MinReconnect, s.opts.MaxReconnect,
		func(kind pq.ListenerEventType, err error) {
			select {
			case events <- listenerEvent{kind: kind, err: err}:
			default:
			}
		})

	listenErr := make(chan error, 1)
	go func() { listenErr <- listener.Listen(channel) }()

	fail := func(err error) (feed.Subscription, error) {
		_ = listener.Close()
		return nil, &domain.SubscriptionError{Owner: ownerID, Err: err}
	}

wait:
	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case err := <-listenErr:
			if err != nil {
				return fail(err)
			}
			break wait
		case ev := <-events:
			if ev.kind == pq.ListenerEventConnectionAttemptFailed {
				return fail(fmt.Errorf("listen on %s: %w", channel, ev.err))
			}
		}
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		Stream:   feed.NewStream(s.opts.FeedBuffer),
		listener: listener,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go sub.pump(pumpCtx, s.logger, channel, events)

	s.logger.Debug("listening on change channel", logger.String("channel", channel))
	return sub, nil
}

type subscription struct {
	*feed.Stream

	listener *pq.Listener
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

func (sub *subscription) pump(ctx context.Context, log logger.Logger, channel string, events <-chan listenerEvent) {
	defer close(sub.done)

	for {
		select {
		case <-ctx.Done():
			sub.Finish(nil)
			return

		case ev := <-events:
			if ev.kind == pq.ListenerEventDisconnected {
				sub.Finish(fmt.Errorf("listener on %s disconnected: %w", channel, ev.err))
				return
			}

		case n, ok := <-sub.listener.Notify:
			if !ok {
				sub.Finish(errListenerClosed)
				return
			}
			if n == nil {
				sub.Finish(errReconnected)
				return
			}

			msg, err := feed.Decode([]byte(n.Extra))
			if err != nil {
				log.Warn("dropping malformed change message",
					logger.String("channel", channel),
					logger.Error(err))
				continue
			}
			if !sub.Send(msg) {
				sub.Finish(nil)
				return
			}
		}
	}
}

func (sub *subscription) Ping(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- sub.listener.Ping() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (sub *subscription) Close() error {
	var err error
	sub.once.Do(func() {
		sub.Stop()
		sub.cancel()
		<-sub.done
		err = sub.listener.Close()
	})
	return err
}
