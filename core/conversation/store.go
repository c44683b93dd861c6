package conversation

import "context"

type (
	// Store owns the durable copy of every thread.
	// Get reports whether anything was ever stored for the key.
	Store interface {
		Get(ctx context.Context, key ThreadKey) ([]Message, bool, error)
		Set(ctx context.Context, key ThreadKey, msgs []Message) error
		Clear(ctx context.Context, key ThreadKey) error
	}

	// HostThread is a message list managed by the host: when present, it is rendered as is
	// and receives every write, the Store is not used.
	HostThread interface {
		Messages() []Message
		SetMessages(msgs []Message)
	}
)
