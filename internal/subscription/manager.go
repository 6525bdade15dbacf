package subscription

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/linkvault/internal/backoff"
	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/reconcile"
)

var (
	// ErrNotOpen is returned by Resync when no identity is open.
	ErrNotOpen = errors.New("subscription not open")

	errFeedEnded = errors.New("change feed ended")
)

// tombstoneCap bounds how many removed ids a session remembers.
const tombstoneCap = 256

// Emitter receives the events a session produces.
type Emitter func(ev reconcile.Event)

// Snapshotter is the durable store's read path.
type Snapshotter interface {
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Item, error)
}

// Options tunes retry and liveness behaviour.
type Options struct {
	RetryInterval time.Duration // initial wait between subscribe attempts, doubles
	MaxWait       time.Duration // cap for the retry wait
	IdleTimeout   time.Duration // silence after which the channel is pinged
	PingTimeout   time.Duration // timeout of each ping
	ResyncTimeout time.Duration // timeout of each snapshot fetch

	// OnStateChange is called on every state transition (optional).
	OnStateChange func(identity string, state State)
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		RetryInterval: 1 * time.Second,
		MaxWait:       30 * time.Second,
		IdleTimeout:   30 * time.Second,
		PingTimeout:   5 * time.Second,
		ResyncTimeout: 10 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.RetryInterval <= 0 {
		o.RetryInterval = def.RetryInterval
	}
	if o.MaxWait <= 0 {
		o.MaxWait = def.MaxWait
	}
	if o.MaxWait < o.RetryInterval {
		o.MaxWait = o.RetryInterval
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = def.IdleTimeout
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = def.PingTimeout
	}
	if o.ResyncTimeout <= 0 {
		o.ResyncTimeout = def.ResyncTimeout
	}
	return o
}

// Manager owns the live channel of one identity at a time.
//
// It translates change-feed notifications and broadcasts into
// reconciler events and hands them to the session's Emitter. Every
// (re)confirmed subscription is followed by a Resync, since anything
// that happened while the channel was not Subscribed may have been
// missed.
type Manager struct {
	feed   feed.ChangeFeed
	hub    *feed.Hub
	snap   Snapshotter
	logger logger.Logger
	opts   Options

	mu      sync.Mutex
	current *session
}

// NewManager creates a manager. hub may be nil to disable broadcasts.
func NewManager(cf feed.ChangeFeed, hub *feed.Hub, snap Snapshotter, log logger.Logger, opts Options) *Manager {
	return &Manager{
		feed:   cf,
		hub:    hub,
		snap:   snap,
		logger: log,
		opts:   opts.withDefaults(),
	}
}

type session struct {
	identity string
	emit     Emitter
	cancel   context.CancelFunc
	done     chan struct{}

	// resyncs carries on-demand resync requests to the run goroutine, so
	// a snapshot is never applied concurrently with feed events.
	resyncs chan chan error

	// removed holds ids the change feed deleted. A broadcast add for one
	// of them arrived late and is dropped. Owned by the run goroutine.
	removed *tombstones

	// mu serializes deliveries against close so nothing is emitted
	// once close returned.
	mu     sync.Mutex
	closed bool

	stateMu sync.Mutex
	state   State
}

func (s *session) deliver(ev reconcile.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.emit(ev)
	return true
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

// Open starts the channel for identity. Opening the identity that is
// already open is a no-op; any other identity's channel is closed first.
func (m *Manager) Open(identity string, emit Emitter) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s := m.current; s != nil {
		if s.identity == identity && !s.isClosed() {
			return
		}
		m.closeSession(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		identity: identity,
		emit:     emit,
		cancel:   cancel,
		done:     make(chan struct{}),
		resyncs:  make(chan chan error),
		removed:  newTombstones(tombstoneCap),
	}
	m.current = s

	m.logger.Info("opening subscription", logger.String("identity", identity))
	go m.run(ctx, s)
}

// Close releases the channel. After it returns no further events are
// emitted. Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.closeSession(m.current)
		m.current = nil
	}
}

// Identity returns the open identity, or "".
func (m *Manager) Identity() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ""
	}
	return m.current.identity
}

// State returns the current session's state.
func (m *Manager) State() State {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s == nil {
		return StateIdle
	}
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// Resync fetches an authoritative snapshot and emits it. Used when the
// caller cannot trust incremental state, e.g. after a failed delete.
// The fetch runs on the session's own goroutine between feed events;
// Resync waits for it or for ctx.
func (m *Manager) Resync(ctx context.Context) error {
	m.mu.Lock()
	s := m.current
	m.mu.Unlock()

	if s == nil || s.isClosed() {
		return ErrNotOpen
	}

	// Queueing behind a subscribe attempt plus the fetch itself.
	ctx, cancel := context.WithTimeout(ctx, 2*m.opts.ResyncTimeout)
	defer cancel()

	reply := make(chan error, 1)
	select {
	case s.resyncs <- reply:
	case <-s.done:
		return ErrNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) closeSession(s *session) {
	s.mu.Lock()
	already := s.closed
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done

	if !already {
		m.setState(s, StateClosed)
		m.logger.Info("subscription closed", logger.String("identity", s.identity))
	}
}

func (m *Manager) setState(s *session, st State) {
	s.stateMu.Lock()
	prev := s.state
	s.state = st
	s.stateMu.Unlock()

	if prev == st {
		return
	}
	m.logger.Debug("subscription state changed",
		logger.String("identity", s.identity),
		logger.String("from", prev.String()),
		logger.String("to", st.String()))
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(s.identity, st)
	}
}

// run keeps the channel alive until ctx is cancelled, retrying with
// exponential backoff capped at MaxWait.
func (m *Manager) run(ctx context.Context, s *session) {
	defer close(s.done)

	var broadcasts <-chan feed.Broadcast
	if m.hub != nil {
		bsub := m.hub.Subscribe(feed.ChannelName(s.identity))
		defer bsub.Close()
		broadcasts = bsub.C()
	}

	bo := backoff.New(m.opts.RetryInterval, m.opts.MaxWait)
	failures := 0

	for {
		m.setState(s, StateConnecting)

		sub, err := m.feed.Subscribe(ctx, s.identity)
		if err == nil {
			m.setState(s, StateSubscribed)
			if failures > 0 {
				m.logger.Info("change feed resubscribed",
					logger.String("identity", s.identity),
					logger.Int("attempts", failures+1))
			}
			failures = 0
			bo.Reset()

			err = m.consume(ctx, s, sub, broadcasts)
			_ = sub.Close()
		}

		if ctx.Err() != nil {
			return
		}

		var serr *domain.SubscriptionError
		if !errors.As(err, &serr) {
			err = &domain.SubscriptionError{Owner: s.identity, Err: err}
		}
		failures++
		m.setState(s, StateErrored)
		wait := bo.Next()
		m.logger.Warn("change feed unavailable, retrying",
			logger.String("identity", s.identity),
			logger.Int("attempt", failures),
			logger.Duration("next_retry_in", wait),
			logger.Error(err))

		if !m.pause(ctx, s, wait, broadcasts) {
			return
		}
	}
}

// consume pumps one confirmed subscription until it fails or ctx ends.
func (m *Manager) consume(ctx context.Context, s *session, sub feed.Subscription, broadcasts <-chan feed.Broadcast) error {
	pendingResync := m.resync(ctx, s) != nil

	idle := time.NewTimer(m.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n, ok := <-sub.Notifications():
			if !ok {
				if err := sub.Err(); err != nil {
					return err
				}
				return errFeedEnded
			}
			resetTimer(idle, m.opts.IdleTimeout)
			m.handleNotification(s, n)

		case msg, ok := <-broadcasts:
			if !ok {
				broadcasts = nil
				continue
			}
			m.handleBroadcast(s, msg)

		case reply := <-s.resyncs:
			// Notifications arriving meanwhile wait in the subscription
			// buffer and are applied after the snapshot.
			err := m.resync(ctx, s)
			pendingResync = err != nil
			reply <- err

		case <-idle.C:
			pingCtx, cancel := context.WithTimeout(ctx, m.opts.PingTimeout)
			err := sub.Ping(pingCtx)
			cancel()
			if err != nil {
				return fmt.Errorf("ping after %v of silence: %w", m.opts.IdleTimeout, err)
			}
			if pendingResync {
				pendingResync = m.resync(ctx, s) != nil
			}
			idle.Reset(m.opts.IdleTimeout)
		}
	}
}

// pause waits d while still relaying broadcasts. False when ctx ended.
func (m *Manager) pause(ctx context.Context, s *session, d time.Duration, broadcasts <-chan feed.Broadcast) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case msg, ok := <-broadcasts:
			if !ok {
				broadcasts = nil
				continue
			}
			m.handleBroadcast(s, msg)
		case reply := <-s.resyncs:
			reply <- m.resync(ctx, s)
		}
	}
}

func (m *Manager) handleNotification(s *session, n feed.Notification) {
	switch n.Kind {
	case feed.KindInsert:
		if n.Item == nil {
			return
		}
		if n.Item.OwnerID != "" && n.Item.OwnerID != s.identity {
			m.logger.Warn("ignoring insert for foreign owner",
				logger.String("identity", s.identity),
				logger.String("owner", n.Item.OwnerID))
			return
		}
		s.deliver(reconcile.RemoteAdd(*n.Item))
	case feed.KindDelete:
		s.removed.add(n.ID)
		s.deliver(reconcile.RemoteRemove(n.ID))
	default:
		m.logger.Debug("ignoring notification", logger.String("kind", string(n.Kind)))
	}
}

func (m *Manager) handleBroadcast(s *session, msg feed.Broadcast) {
	if msg.Event != feed.EventLinkAdded {
		return
	}
	if s.removed.has(msg.Item.ID) {
		m.logger.Debug("ignoring broadcast for removed link",
			logger.String("identity", s.identity),
			logger.String("id", msg.Item.ID))
		return
	}
	s.deliver(reconcile.RemoteAdd(msg.Item))
}

func (m *Manager) resync(ctx context.Context, s *session) error {
	rctx, cancel := context.WithTimeout(ctx, m.opts.ResyncTimeout)
	defer cancel()

	items, err := m.snap.ListByOwner(rctx, s.identity)
	if err != nil {
		m.logger.Error("resync failed, keeping last known state",
			logger.String("identity", s.identity),
			logger.Error(err))
		return fmt.Errorf("resync %s: %w", s.identity, err)
	}

	if !s.deliver(reconcile.Resync(items)) {
		return ErrNotOpen
	}
	m.logger.Debug("resync delivered",
		logger.String("identity", s.identity),
		logger.Int("count", len(items)))
	return nil
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
