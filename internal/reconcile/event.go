package reconcile

import "github.com/MrSnakeDoc/linkvault/internal/domain"

// Kind tags an Event.
type Kind int

const (
	KindLocalAdd Kind = iota + 1
	KindRemoteAdd
	KindRemoteRemove
	KindResync
)

func (k Kind) String() string {
	switch k {
	case KindLocalAdd:
		return "local_add"
	case KindRemoteAdd:
		return "remote_add"
	case KindRemoteRemove:
		return "remote_remove"
	case KindResync:
		return "resync"
	default:
		return "unknown"
	}
}

// Event is a notification consumed by the Reconciler.
// Which payload field is meaningful depends on Kind.
type Event struct {
	Kind  Kind
	Item  domain.Item   // LocalAdd, RemoteAdd
	ID    string        // RemoteRemove
	Items []domain.Item // Resync
}

// LocalAdd is produced right after the session's own successful create.
func LocalAdd(item domain.Item) Event {
	return Event{Kind: KindLocalAdd, Item: item}
}

// RemoteAdd is produced by the change feed or a broadcast.
func RemoteAdd(item domain.Item) Event {
	return Event{Kind: KindRemoteAdd, Item: item}
}

// RemoteRemove is produced by the change feed after a committed delete,
// and locally for the optimistic removal of submitDelete.
func RemoteRemove(id string) Event {
	return Event{Kind: KindRemoteRemove, ID: id}
}

// Resync carries an authoritative snapshot that replaces the collection.
func Resync(items []domain.Item) Event {
	return Event{Kind: KindResync, Items: items}
}
