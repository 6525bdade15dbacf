package feed

import (
	"sync"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
)

// EventLinkAdded tags a broadcast carrying a freshly created link.
const EventLinkAdded = "bookmark-added"

// DefaultBroadcastBuffer is the per-subscriber queue length.
const DefaultBroadcastBuffer = 32

// Broadcast is a same-origin latency hint. It is never the only source
// of truth: losing one is tolerated because the change feed follows.
type Broadcast struct {
	Event string      `json:"event"`
	Item  domain.Item `json:"payload"`
}

// ChannelName derives the broadcast channel for an identity.
func ChannelName(ownerID string) string {
	return "bookmarks-" + ownerID
}

// Hub fans broadcasts out to every session of this process listening
// on the same channel. Delivery is best-effort: a full subscriber
// queue drops the message instead of blocking the publisher.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*HubSubscription]struct{}
	buffer   int
}

// NewHub creates a hub with the given per-subscriber buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBroadcastBuffer
	}
	return &Hub{
		channels: make(map[string]map[*HubSubscription]struct{}),
		buffer:   buffer,
	}
}

// Publish delivers msg to current subscribers of channel and returns
// how many received it.
func (h *Hub) Publish(channel string, msg Broadcast) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.channels[channel] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribe starts listening on channel.
func (h *Hub) Subscribe(channel string) *HubSubscription {
	sub := &HubSubscription{
		hub:     h,
		channel: channel,
		ch:      make(chan Broadcast, h.buffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[*HubSubscription]struct{})
		h.channels[channel] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of listeners on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.channels[channel])
}

// HubSubscription is one listener on a hub channel.
type HubSubscription struct {
	hub     *Hub
	channel string
	ch      chan Broadcast
	once    sync.Once
}

// C returns the delivery channel; it is closed by Close.
func (s *HubSubscription) C() <-chan Broadcast { return s.ch }

// Close detaches the subscription. Safe to call multiple times.
func (s *HubSubscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()

		if subs, ok := s.hub.channels[s.channel]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(s.hub.channels, s.channel)
			}
		}
		close(s.ch)
	})
}
