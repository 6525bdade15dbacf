package live

import "sync"

// Sessions tracks the open views of a process so they can be listed
// and closed together on shutdown.
type Sessions struct {
	mu     sync.Mutex
	views  map[string]*View
	closed bool
}

func NewSessions() *Sessions {
	return &Sessions{views: make(map[string]*View)}
}

// Add registers v. It returns false, and closes v, once CloseAll has run.
func (s *Sessions) Add(v *View) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		v.Close()
		return false
	}
	s.views[v.ID()] = v
	s.mu.Unlock()
	return true
}

// Remove forgets v without closing it.
func (s *Sessions) Remove(v *View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.views, v.ID())
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.views)
}

// ByIdentity counts open views per identity.
func (s *Sessions) ByIdentity() map[string]int {
	s.mu.Lock()
	views := make([]*View, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.mu.Unlock()

	out := make(map[string]int, len(views))
	for _, v := range views {
		if id := v.Identity(); id != "" {
			out[id]++
		}
	}
	return out
}

// CloseAll closes every registered view and rejects later Adds.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	s.closed = true
	views := s.views
	s.views = make(map[string]*View)
	s.mu.Unlock()

	for _, v := range views {
		v.Close()
	}
}
