package subscription

// tombstones is a bounded set of removed ids. The oldest id is forgotten
// once the set is full. Not safe for concurrent use.
type tombstones struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newTombstones(capacity int) *tombstones {
	return &tombstones{
		ids:  make(map[string]struct{}, capacity),
		ring: make([]string, capacity),
	}
}

func (t *tombstones) add(id string) {
	if id == "" || len(t.ring) == 0 {
		return
	}
	if _, ok := t.ids[id]; ok {
		return
	}
	if old := t.ring[t.next]; old != "" {
		delete(t.ids, old)
	}
	t.ring[t.next] = id
	t.ids[id] = struct{}{}
	t.next = (t.next + 1) % len(t.ring)
}

func (t *tombstones) has(id string) bool {
	_, ok := t.ids[id]
	return ok
}
