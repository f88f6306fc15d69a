// Package bus propagates cache invalidations between instances that share
// a remote tier. Messages describe Local-only mutations; delivery is
// best-effort and every mutation is idempotent, so duplicated or
// out-of-order messages are safe to apply.
package bus

import "context"

// Type identifies the invalidation a Message carries.
type Type string

const (
	TypeEvict       Type = "EVICT"
	TypeEvictAll    Type = "EVICT_ALL"
	TypeEvictByTags Type = "EVICT_BY_TAGS"
)

// Message is the wire format for one invalidation. Origin carries the
// publishing instance id so receivers can discard their own echoes.
type Message struct {
	Type   Type     `json:"type"`
	Keys   []string `json:"keys,omitempty"`
	Tags   []string `json:"tags,omitempty"`
	Origin string   `json:"origin"`
}

// Handler receives one delivered Message.
type Handler func(ctx context.Context, msg Message)

// Subscriber is a handle to an active subscription.
type Subscriber interface {
	// Close stops the subscription.
	Close() error
}

// Bus is a publish/subscribe channel for invalidation messages.
type Bus interface {
	// Publish sends a message to every subscribed instance, the publisher
	// included.
	Publish(ctx context.Context, msg Message) error
	// Subscribe registers a handler for incoming messages.
	Subscribe(ctx context.Context, handler Handler) (Subscriber, error)
	// Close shuts the bus down.
	Close() error
}
