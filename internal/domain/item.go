package domain

import "time"

// Item represents one saved link in a user's collection.
//
// Items are created by the durable store and never edited afterwards:
// the only mutations a collection sees are additions and removals.
type Item struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// ID is assigned by the durable store at creation.
	// It is the sole deduplication key across every delivery channel.
	ID string `json:"id"`

	// OwnerID is the identity the link belongs to.
	OwnerID string `json:"owner_id"`

	// ─────────────────────────────
	// User-supplied content
	// ─────────────────────────────

	// URL is the saved address.
	// Example: https://example.com
	URL string `json:"url"`

	// Title is the label shown in the collection.
	Title string `json:"title"`

	// ─────────────────────────────
	// Metadata
	// ─────────────────────────────

	// CreatedAt is assigned by the store; used only for display ordering.
	CreatedAt time.Time `json:"created_at"`
}
