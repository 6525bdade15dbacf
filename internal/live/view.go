package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/linkvault/internal/collection"
	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/reconcile"
	"github.com/MrSnakeDoc/linkvault/internal/store"
	"github.com/MrSnakeDoc/linkvault/internal/subscription"
)

var (
	// ErrViewClosed is returned by every operation after Close.
	ErrViewClosed = errors.New("view closed")
	// ErrNoIdentity is returned by writes before Open.
	ErrNoIdentity = errors.New("no identity open")
)

// Options configures a View.
type Options struct {
	Subscription subscription.Options
}

// View is one open session on a user's collection.
//
// Every event, whatever its channel, is applied by a single loop
// goroutine. Each Open starts a new generation; a write completion that
// carries an older generation is reported as stale and never applied.
type View struct {
	id      string
	backend store.Backend
	hub     *feed.Hub
	manager *subscription.Manager
	logger  logger.Logger

	inbox chan envelope
	quit  chan struct{}
	done  chan struct{}

	// opMu serializes Open and Close so generations reach the loop in order.
	opMu sync.Mutex

	mu       sync.Mutex
	identity string
	gen      uint64
	closed   bool

	items atomic.Pointer[collection.Collection]
	state atomic.Int32

	watchMu  sync.Mutex
	watchers map[chan Snapshot]struct{}
}

type envelope struct {
	gen    uint64
	event  reconcile.Event
	rebind *collection.Collection
	reply  chan result
}

type result struct {
	outcome reconcile.Outcome
	stale   bool
}

// NewView creates a session on backend; Open binds it to an identity.
// hub may be nil.
func NewView(backend store.Backend, hub *feed.Hub, log logger.Logger, opts Options) *View {
	v := &View{
		id:       uuid.NewString(),
		backend:  backend,
		hub:      hub,
		logger:   log,
		inbox:    make(chan envelope),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		watchers: make(map[chan Snapshot]struct{}),
	}
	v.items.Store(collection.New())

	subOpts := opts.Subscription
	userHook := subOpts.OnStateChange
	subOpts.OnStateChange = func(identity string, st subscription.State) {
		if userHook != nil {
			userHook(identity, st)
		}
		v.onStateChange(identity, st)
	}
	v.manager = subscription.NewManager(backend, hub, backend, log, subOpts)

	go v.loop()
	return v
}

// ID returns the session id.
func (v *View) ID() string { return v.id }

// Identity returns the open identity, or "".
func (v *View) Identity() string {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.identity
}

// State returns the subscription state of the open identity.
func (v *View) State() subscription.State {
	return subscription.State(v.state.Load())
}

// Current returns the collection in display order.
func (v *View) Current() []domain.Item {
	return v.items.Load().Current()
}

// Count returns the collection size.
func (v *View) Count() int {
	return v.items.Load().Len()
}

// Open binds the view to identity: seeds the collection from the store
// and opens the live channel. Re-opening the same identity is a no-op;
// a different identity discards the current collection.
func (v *View) Open(ctx context.Context, identity string) error {
	if identity == "" {
		return ErrNoIdentity
	}

	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	if v.identity == identity {
		v.mu.Unlock()
		return nil
	}
	v.gen++
	gen := v.gen
	v.identity = identity
	v.mu.Unlock()

	v.state.Store(int32(subscription.StateIdle))

	coll := collection.New()
	coll.OnSizeChange(func(int) { v.publish() })
	v.items.Store(coll)
	if _, err := v.post(envelope{gen: gen, rebind: coll}); err != nil {
		return err
	}

	v.logger.Info("session opened",
		logger.String("session", v.id),
		logger.String("identity", identity))

	// The subscription resyncs once confirmed, so a failed seed only
	// delays the first render.
	if items, err := v.backend.ListByOwner(ctx, identity); err != nil {
		v.logger.Warn("initial fetch failed",
			logger.String("session", v.id),
			logger.String("identity", identity),
			logger.Error(err))
	} else if _, err := v.apply(gen, identity, reconcile.Resync(items)); err != nil {
		return err
	}

	v.manager.Open(identity, func(ev reconcile.Event) {
		_, _ = v.apply(gen, identity, ev)
	})
	v.publish()
	return nil
}

// SubmitAdd validates and writes a new link. On success the link is in
// the collection when SubmitAdd returns and other sessions of the same
// identity are notified.
func (v *View) SubmitAdd(ctx context.Context, url, title string) (domain.Item, error) {
	if err := domain.ValidateLink(url, title); err != nil {
		return domain.Item{}, err
	}

	gen, identity, err := v.active()
	if err != nil {
		return domain.Item{}, err
	}

	item, err := v.backend.Create(ctx, identity, url, title)
	if err != nil {
		v.logger.Warn("create rejected",
			logger.String("session", v.id),
			logger.String("identity", identity),
			logger.Error(err))
		return domain.Item{}, &domain.WriteError{Op: "create", Err: err}
	}

	if _, err := v.apply(gen, identity, reconcile.LocalAdd(item)); err != nil {
		if errors.Is(err, domain.ErrStaleResponse) {
			return item, &domain.StaleResponseError{Op: "create", Identity: identity}
		}
		return item, err
	}

	if v.hub != nil {
		v.hub.Publish(feed.ChannelName(identity), feed.Broadcast{
			Event: feed.EventLinkAdded,
			Item:  item,
		})
	}
	return item, nil
}

// SubmitDelete removes id optimistically, then deletes it from the
// store. A rejected delete triggers a resync, which restores the link if
// it still exists.
func (v *View) SubmitDelete(ctx context.Context, id string) error {
	gen, identity, err := v.active()
	if err != nil {
		return err
	}

	if _, err := v.apply(gen, identity, reconcile.RemoteRemove(id)); err != nil {
		if errors.Is(err, domain.ErrStaleResponse) {
			return &domain.StaleResponseError{Op: "delete", Identity: identity}
		}
		return err
	}

	if err := v.backend.Delete(ctx, identity, id); err != nil {
		werr := &domain.WriteError{Op: "delete", ID: id, Err: err}
		v.logger.Warn("delete rejected, resyncing",
			logger.String("session", v.id),
			logger.String("identity", identity),
			logger.String("id", id),
			logger.Error(err))

		if !v.isCurrent(gen) {
			return &domain.StaleResponseError{Op: "delete", Identity: identity}
		}
		if rerr := v.manager.Resync(context.WithoutCancel(ctx)); rerr != nil {
			v.logger.Error("resync after rejected delete failed",
				logger.String("session", v.id),
				logger.Error(rerr))
		}
		return werr
	}

	if !v.isCurrent(gen) {
		return &domain.StaleResponseError{Op: "delete", Identity: identity}
	}
	return nil
}

// Resync refetches the collection from the store.
func (v *View) Resync(ctx context.Context) error {
	if _, _, err := v.active(); err != nil {
		return err
	}
	return v.manager.Resync(ctx)
}

// Close releases the live channel and stops the loop. Watch channels are
// closed. Safe to call multiple times.
func (v *View) Close() {
	v.opMu.Lock()
	defer v.opMu.Unlock()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.manager.Close()
	close(v.quit)
	<-v.done

	v.watchMu.Lock()
	for ch := range v.watchers {
		close(ch)
		delete(v.watchers, ch)
	}
	v.watchMu.Unlock()

	v.logger.Info("session closed", logger.String("session", v.id))
}

func (v *View) loop() {
	defer close(v.done)

	var (
		rec *reconcile.Reconciler
		gen uint64
	)

	for {
		select {
		case <-v.quit:
			return

		case env := <-v.inbox:
			if env.rebind != nil {
				rec = reconcile.New(env.rebind, v.logger)
				gen = env.gen
				env.reply <- result{}
				continue
			}
			if rec == nil || env.gen != gen {
				env.reply <- result{stale: true}
				continue
			}
			env.reply <- result{outcome: rec.Apply(env.event)}
		}
	}
}

func (v *View) post(env envelope) (result, error) {
	env.reply = make(chan result, 1)

	select {
	case v.inbox <- env:
	case <-v.quit:
		return result{}, ErrViewClosed
	}

	select {
	case r := <-env.reply:
		return r, nil
	case <-v.quit:
		return result{}, ErrViewClosed
	}
}

func (v *View) apply(gen uint64, identity string, ev reconcile.Event) (reconcile.Outcome, error) {
	r, err := v.post(envelope{gen: gen, event: ev})
	if err != nil {
		return reconcile.Dropped, err
	}
	if r.stale {
		v.logger.Debug("stale event discarded",
			logger.String("session", v.id),
			logger.String("identity", identity),
			logger.String("kind", ev.Kind.String()))
		return reconcile.Dropped, &domain.StaleResponseError{Op: ev.Kind.String(), Identity: identity}
	}
	return r.outcome, nil
}

func (v *View) active() (uint64, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, "", ErrViewClosed
	}
	if v.identity == "" {
		return 0, "", ErrNoIdentity
	}
	return v.gen, v.identity, nil
}

func (v *View) isCurrent(gen uint64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	return !v.closed && v.gen == gen
}

func (v *View) onStateChange(identity string, st subscription.State) {
	if identity != v.Identity() {
		return
	}
	v.state.Store(int32(st))
	v.publish()
}
