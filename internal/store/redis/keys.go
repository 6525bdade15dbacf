package redis

const (
	// KeyPrefixLink is the prefix for link values (JSON)
	KeyPrefixLink = "linkvault:link:"
	// KeyPrefixOwner is the prefix for per-owner indexes
	KeyPrefixOwner = "linkvault:owner:"
	// ChannelPrefixChanges is the prefix for per-owner change channels
	ChannelPrefixChanges = "linkvault:changes:"
)

// LinkKey returns the Redis key for a link
func LinkKey(id string) string {
	return KeyPrefixLink + id
}

// OwnerLinksKey returns the sorted set of an owner's link ids,
// scored by creation time in milliseconds
func OwnerLinksKey(ownerID string) string {
	return KeyPrefixOwner + ownerID + ":links"
}

// ChangesChannel returns the pub/sub channel carrying an owner's changes
func ChangesChannel(ownerID string) string {
	return ChannelPrefixChanges + ownerID
}
