package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
)

// Kind is the change-feed notification type.
type Kind string

const (
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
)

// Notification is one committed change pushed by a durable store.
type Notification struct {
	Kind Kind         `json:"kind"`
	Item *domain.Item `json:"item,omitempty"` // insert
	ID   string       `json:"id,omitempty"`   // delete
}

// Inserted builds an insert notification.
func Inserted(item domain.Item) Notification {
	return Notification{Kind: KindInsert, Item: &item}
}

// Deleted builds a delete notification.
func Deleted(id string) Notification {
	return Notification{Kind: KindDelete, ID: id}
}

var ErrMalformedNotification = errors.New("malformed notification")

// Encode serializes n for the wire.
func Encode(n Notification) ([]byte, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	return data, nil
}

// Decode parses and validates a wire notification.
func Decode(data []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	switch n.Kind {
	case KindInsert:
		if n.Item == nil || n.Item.ID == "" {
			return Notification{}, fmt.Errorf("%w: insert without item", ErrMalformedNotification)
		}
	case KindDelete:
		if n.ID == "" {
			return Notification{}, fmt.Errorf("%w: delete without id", ErrMalformedNotification)
		}
	default:
		return Notification{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedNotification, n.Kind)
	}

	return n, nil
}

// Subscription is a live, owner-scoped change-feed channel.
//
// Notifications is closed when the channel ends, after which Err
// reports why (nil after Close).
type Subscription interface {
	Notifications() <-chan Notification
	Err() error
	Ping(ctx context.Context) error
	Close() error
}

// ChangeFeed registers interest in one owner's changes.
// Subscribe returns only once the server confirmed the subscription.
type ChangeFeed interface {
	Subscribe(ctx context.Context, ownerID string) (Subscription, error)
}
