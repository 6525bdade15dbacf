package live

import "github.com/MrSnakeDoc/linkvault/internal/domain"

// Snapshot is what a session renders: the collection plus the state of
// its live channel.
type Snapshot struct {
	Session  string        `json:"session"`
	Identity string        `json:"identity"`
	State    string        `json:"state"`
	Count    int           `json:"count"`
	Links    []domain.Item `json:"links"`
}

// Snapshot returns the current view.
func (v *View) Snapshot() Snapshot {
	links := v.Current()
	return Snapshot{
		Session:  v.id,
		Identity: v.Identity(),
		State:    v.State().String(),
		Count:    len(links),
		Links:    links,
	}
}

// Watch returns a channel receiving a Snapshot after every change. Only
// the latest snapshot is kept for a slow reader. The channel is closed
// by cancel or Close.
func (v *View) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	v.watchMu.Lock()
	v.mu.Lock()
	closed := v.closed
	v.mu.Unlock()
	if closed {
		v.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	v.watchers[ch] = struct{}{}
	ch <- v.Snapshot()
	v.watchMu.Unlock()

	cancel := func() {
		v.watchMu.Lock()
		defer v.watchMu.Unlock()

		if _, ok := v.watchers[ch]; ok {
			delete(v.watchers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// publish pushes a fresh snapshot to every watcher, replacing any the
// watcher has not read yet.
func (v *View) publish() {
	v.watchMu.Lock()
	defer v.watchMu.Unlock()

	if len(v.watchers) == 0 {
		return
	}

	snap := v.Snapshot()
	for ch := range v.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
