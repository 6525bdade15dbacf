package feed

import "sync"

// Stream is the delivery half shared by Subscription implementations.
// One pump goroutine calls Send and finally Finish; the consumer reads
// Notifications and calls Stop when it is done.
type Stream struct {
	ch   chan Notification
	stop chan struct{}

	stopOnce   sync.Once
	finishOnce sync.Once

	mu  sync.Mutex
	err error
}

// NewStream creates a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{
		ch:   make(chan Notification, buffer),
		stop: make(chan struct{}),
	}
}

func (s *Stream) Notifications() <-chan Notification { return s.ch }

// Send blocks until n is queued or the consumer stopped.
func (s *Stream) Send(n Notification) bool {
	select {
	case <-s.stop:
		return false
	default:
	}

	select {
	case s.ch <- n:
		return true
	case <-s.stop:
		return false
	}
}

// TrySend queues n without blocking. False when the buffer is full or
// the stream is stopped.
func (s *Stream) TrySend(n Notification) bool {
	select {
	case <-s.stop:
		return false
	default:
	}

	select {
	case s.ch <- n:
		return true
	default:
		return false
	}
}

// Finish records the terminal error and closes Notifications.
// Only the pump goroutine may call it.
func (s *Stream) Finish(err error) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
	})
}

// Stop signals the pump to exit. Safe to call multiple times.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}
