package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
	"github.com/MrSnakeDoc/linkvault/internal/feed"
	"github.com/MrSnakeDoc/linkvault/internal/logger"
	"github.com/MrSnakeDoc/linkvault/internal/reconcile"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// ---- fakes ----

type fakeSub struct {
	*feed.Stream

	mu      sync.Mutex
	pingErr error
}

func (s *fakeSub) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

func (s *fakeSub) failPings(err error) {
	s.mu.Lock()
	s.pingErr = err
	s.mu.Unlock()
}

func (s *fakeSub) Close() error { s.Stop(); return nil }

type fakeFeed struct {
	mu       sync.Mutex
	failures int
	calls    int
	subs     []*fakeSub
}

func (f *fakeFeed) Subscribe(_ context.Context, _ string) (feed.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection refused")
	}
	s := &fakeSub{Stream: feed.NewStream(8)}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeFeed) latest() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

// gate parks one snapshot fetch after it read the store.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

type fakeSnap struct {
	mu    sync.Mutex
	items []domain.Item
	err   error
	calls int
	gate  *gate
}

func (s *fakeSnap) ListByOwner(context.Context, string) ([]domain.Item, error) {
	s.mu.Lock()
	s.calls++
	if s.err != nil {
		s.mu.Unlock()
		return nil, s.err
	}
	items := append([]domain.Item(nil), s.items...)
	g := s.gate
	s.gate = nil
	s.mu.Unlock()

	if g != nil {
		close(g.entered)
		<-g.release
	}
	return items, nil
}

func (s *fakeSnap) set(items []domain.Item, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = items
	s.err = err
}

func (s *fakeSnap) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recorder struct {
	mu     sync.Mutex
	events []reconcile.Event
}

func (r *recorder) emit(ev reconcile.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) snapshot() []reconcile.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]reconcile.Event(nil), r.events...)
}

func (r *recorder) count(kind reconcile.Kind) int {
	n := 0
	for _, ev := range r.snapshot() {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func testOptions() Options {
	return Options{
		RetryInterval: 5 * time.Millisecond,
		MaxWait:       20 * time.Millisecond,
		IdleTimeout:   time.Hour,
		PingTimeout:   time.Second,
		ResyncTimeout: time.Second,
	}
}

func item(id string, at time.Time) domain.Item {
	return domain.Item{ID: id, OwnerID: "alice", URL: "https://example.com/" + id, Title: id, CreatedAt: at}
}

// ---- tests ----

func TestOpenResyncsOnSubscribe(t *testing.T) {
	now := time.Now()
	cf := &fakeFeed{}
	snap := &fakeSnap{items: []domain.Item{item("a", now)}}
	rec := &recorder{}

	m := NewManager(cf, nil, snap, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)

	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)
	assert.Equal(t, StateSubscribed, m.State())
	assert.Equal(t, "alice", m.Identity())

	first := rec.snapshot()[0]
	assert.Equal(t, reconcile.KindResync, first.Kind)
	require.Len(t, first.Items, 1)
	assert.Equal(t, "a", first.Items[0].ID)
}

func TestNotificationsBecomeRemoteEvents(t *testing.T) {
	now := time.Now()
	cf := &fakeFeed{}
	rec := &recorder{}

	m := NewManager(cf, nil, &fakeSnap{}, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)

	sub := cf.latest()
	require.NotNil(t, sub)
	sub.Send(feed.Inserted(item("b", now)))
	sub.Send(feed.Deleted("b"))

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 3 }, waitFor, tick)
	events := rec.snapshot()
	assert.Equal(t, reconcile.KindRemoteAdd, events[1].Kind)
	assert.Equal(t, "b", events[1].Item.ID)
	assert.Equal(t, reconcile.KindRemoteRemove, events[2].Kind)
	assert.Equal(t, "b", events[2].ID)
}

func TestForeignOwnerInsertIgnored(t *testing.T) {
	cf := &fakeFeed{}
	rec := &recorder{}

	m := NewManager(cf, nil, &fakeSnap{}, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)

	foreign := item("x", time.Now())
	foreign.OwnerID = "bob"
	cf.latest().Send(feed.Inserted(foreign))
	cf.latest().Send(feed.Deleted("marker"))

	require.Eventually(t, func() bool { return rec.count(reconcile.KindRemoteRemove) == 1 }, waitFor, tick)
	assert.Equal(t, 0, rec.count(reconcile.KindRemoteAdd))
}

func TestRetriesUntilSubscribed(t *testing.T) {
	cf := &fakeFeed{failures: 2}
	rec := &recorder{}

	var mu sync.Mutex
	var states []State
	opts := testOptions()
	opts.OnStateChange = func(_ string, s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	m := NewManager(cf, nil, &fakeSnap{}, logger.Nop(), opts)
	defer m.Close()

	m.Open("alice", rec.emit)

	require.Eventually(t, func() bool { return m.State() == StateSubscribed }, waitFor, tick)
	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)
	assert.Equal(t, 3, cf.callCount())

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, states, StateErrored)
	assert.Equal(t, StateSubscribed, states[len(states)-1])
}

func TestFeedDropResubscribesAndResyncs(t *testing.T) {
	cf := &fakeFeed{}
	rec := &recorder{}

	m := NewManager(cf, nil, &fakeSnap{}, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)

	cf.latest().Finish(errors.New("connection reset"))

	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 2 }, waitFor, tick)
	assert.Equal(t, 2, cf.callCount())
}

func TestFailedPingResubscribes(t *testing.T) {
	cf := &fakeFeed{}
	rec := &recorder{}

	opts := testOptions()
	opts.IdleTimeout = 10 * time.Millisecond

	m := NewManager(cf, nil, &fakeSnap{}, logger.Nop(), opts)
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return cf.latest() != nil }, waitFor, tick)
	cf.latest().failPings(errors.New("broken pipe"))

	require.Eventually(t, func() bool { return cf.callCount() >= 2 }, waitFor, tick)
}

func TestOpenSameIdentityIsNoop(t *testing.T) {
	cf := &fakeFeed{}
	rec := &recorder{}

	m := NewManager(cf, nil, &fakeSnap{}, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return m.State() == StateSubscribed }, waitFor, tick)

	m.Open("alice", rec.emit)
	m.Open("alice", rec.emit)

	assert.Equal(t, 1, cf.callCount())
}

func TestCloseStopsEmission(t *testing.T) {
	cf := &fakeFeed{}
	rec := &recorder{}

	m := NewManager(cf, nil, &fakeSnap{}, logger.Nop(), testOptions())

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)
	sub := cf.latest()

	m.Close()
	m.Close()

	assert.False(t, sub.Send(feed.Deleted("a")), "stream should be stopped after close")
	assert.Len(t, rec.snapshot(), 1)
	assert.Equal(t, StateIdle, m.State())
	assert.ErrorIs(t, m.Resync(context.Background()), ErrNotOpen)
}

func TestSwitchIdentityClosesPrevious(t *testing.T) {
	cf := &fakeFeed{}
	alice := &recorder{}
	bob := &recorder{}

	m := NewManager(cf, nil, &fakeSnap{}, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", alice.emit)
	require.Eventually(t, func() bool { return alice.count(reconcile.KindResync) == 1 }, waitFor, tick)
	aliceSub := cf.latest()

	m.Open("bob", bob.emit)
	require.Eventually(t, func() bool { return bob.count(reconcile.KindResync) == 1 }, waitFor, tick)

	assert.False(t, aliceSub.Send(feed.Deleted("a")))
	assert.Len(t, alice.snapshot(), 1)
	assert.Equal(t, "bob", m.Identity())
}

func TestBroadcastRelayed(t *testing.T) {
	cf := &fakeFeed{}
	hub := feed.NewHub(4)
	rec := &recorder{}

	m := NewManager(cf, hub, &fakeSnap{}, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool {
		return hub.Subscribers(feed.ChannelName("alice")) == 1
	}, waitFor, tick)

	hub.Publish(feed.ChannelName("alice"), feed.Broadcast{Event: feed.EventLinkAdded, Item: item("c", time.Now())})
	hub.Publish(feed.ChannelName("alice"), feed.Broadcast{Event: "something-else", Item: item("d", time.Now())})

	require.Eventually(t, func() bool { return rec.count(reconcile.KindRemoteAdd) == 1 }, waitFor, tick)
	for _, ev := range rec.snapshot() {
		if ev.Kind == reconcile.KindRemoteAdd {
			assert.Equal(t, "c", ev.Item.ID)
		}
	}
}

func TestResyncOnDemand(t *testing.T) {
	now := time.Now()
	cf := &fakeFeed{}
	snap := &fakeSnap{}
	rec := &recorder{}

	m := NewManager(cf, nil, snap, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)

	snap.mu.Lock()
	snap.items = []domain.Item{item("z", now)}
	snap.mu.Unlock()

	require.NoError(t, m.Resync(context.Background()))
	events := rec.snapshot()
	last := events[len(events)-1]
	assert.Equal(t, reconcile.KindResync, last.Kind)
	require.Len(t, last.Items, 1)
	assert.Equal(t, "z", last.Items[0].ID)

	snap.mu.Lock()
	snap.err = errors.New("db down")
	snap.mu.Unlock()
	assert.Error(t, m.Resync(context.Background()))
}

func TestResyncOnDemandKeepsConcurrentInsert(t *testing.T) {
	now := time.Now()
	cf := &fakeFeed{}
	snap := &fakeSnap{}
	rec := &recorder{}

	m := NewManager(cf, nil, snap, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)

	g := newGate()
	snap.mu.Lock()
	snap.gate = g
	snap.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- m.Resync(context.Background()) }()

	select {
	case <-g.entered:
	case <-time.After(waitFor):
		t.Fatal("resync never reached the store")
	}

	// y is committed after the snapshot was read but before it is applied.
	y := item("y", now)
	snap.set([]domain.Item{y}, nil)
	require.True(t, cf.latest().Send(feed.Inserted(y)))

	close(g.release)
	require.NoError(t, <-done)
	require.Eventually(t, func() bool { return rec.count(reconcile.KindRemoteAdd) == 1 }, waitFor, tick)

	var view []domain.Item
	for _, ev := range rec.snapshot() {
		view = reconcile.Reconcile(view, ev)
	}
	require.Len(t, view, 1)
	assert.Equal(t, "y", view[0].ID)
}

func TestResyncWaitsForSession(t *testing.T) {
	m := NewManager(&fakeFeed{}, nil, &fakeSnap{}, logger.Nop(), testOptions())
	assert.ErrorIs(t, m.Resync(context.Background()), ErrNotOpen)

	m.Open("alice", (&recorder{}).emit)
	m.Close()
	assert.ErrorIs(t, m.Resync(context.Background()), ErrNotOpen)
}

func TestFailedResyncRetriedAtIdleTick(t *testing.T) {
	cf := &fakeFeed{}
	snap := &fakeSnap{err: errors.New("db down")}
	rec := &recorder{}

	opts := testOptions()
	opts.IdleTimeout = 20 * time.Millisecond

	m := NewManager(cf, nil, snap, logger.Nop(), opts)
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return snap.callCount() >= 1 }, waitFor, tick)

	// The failed fetch leaves the last known state alone.
	assert.Zero(t, rec.count(reconcile.KindResync))
	assert.Equal(t, StateSubscribed, m.State())

	snap.set([]domain.Item{item("a", time.Now())}, nil)

	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return rec.count(reconcile.KindResync) > 1 }, 10*opts.IdleTimeout, tick)
	assert.Equal(t, 1, cf.callCount())
}

func TestRetryLogCountsFailuresAfterDrop(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	cf := &fakeFeed{}
	rec := &recorder{}

	m := NewManager(cf, nil, &fakeSnap{}, logger.FromZap(zap.New(core)), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 1 }, waitFor, tick)

	cf.latest().Finish(errors.New("connection reset"))
	require.Eventually(t, func() bool { return rec.count(reconcile.KindResync) == 2 }, waitFor, tick)

	retries := logs.FilterMessage("change feed unavailable, retrying").All()
	require.Len(t, retries, 1)
	assert.Equal(t, int64(1), retries[0].ContextMap()["attempt"])
}

func TestLateBroadcastForRemovedLinkIgnored(t *testing.T) {
	now := time.Now()
	cf := &fakeFeed{}
	hub := feed.NewHub(4)
	rec := &recorder{}

	m := NewManager(cf, hub, &fakeSnap{}, logger.Nop(), testOptions())
	defer m.Close()

	m.Open("alice", rec.emit)
	require.Eventually(t, func() bool {
		return hub.Subscribers(feed.ChannelName("alice")) == 1 && rec.count(reconcile.KindResync) == 1
	}, waitFor, tick)

	x := item("x", now)
	require.True(t, cf.latest().Send(feed.Inserted(x)))
	require.True(t, cf.latest().Send(feed.Deleted("x")))
	require.Eventually(t, func() bool { return rec.count(reconcile.KindRemoteRemove) == 1 }, waitFor, tick)

	hub.Publish(feed.ChannelName("alice"), feed.Broadcast{Event: feed.EventLinkAdded, Item: x})
	hub.Publish(feed.ChannelName("alice"), feed.Broadcast{Event: feed.EventLinkAdded, Item: item("z", now)})
	require.Eventually(t, func() bool { return rec.count(reconcile.KindRemoteAdd) == 2 }, waitFor, tick)

	var view []domain.Item
	for _, ev := range rec.snapshot() {
		view = reconcile.Reconcile(view, ev)
	}
	require.Len(t, view, 1)
	assert.Equal(t, "z", view[0].ID)
}

func TestTombstonesForgetOldest(t *testing.T) {
	ts := newTombstones(2)
	ts.add("a")
	ts.add("b")
	ts.add("b")
	assert.True(t, ts.has("a"))

	ts.add("c")
	assert.False(t, ts.has("a"))
	assert.True(t, ts.has("b"))
	assert.True(t, ts.has("c"))

	ts.add("")
	assert.False(t, ts.has(""))
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateConnecting, "connecting"},
		{StateSubscribed, "subscribed"},
		{StateErrored, "errored"},
		{StateClosed, "closed"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
