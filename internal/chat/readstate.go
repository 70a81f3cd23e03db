package chat

import (
	"context"

	"github.com/google/uuid"
)

// ReadTracker flips unread messages to read for one receiver of a
// conversation. The flip happens inside the store as a single conditional
// update, so concurrent calls never count a message twice.
type ReadTracker struct {
	store Store
}

func NewReadTracker(store Store) *ReadTracker {
	return &ReadTracker{store: store}
}

// MarkRead returns how many messages flipped; zero is not an error.
func (t *ReadTracker) MarkRead(ctx context.Context, conversationID uuid.UUID, reader string) (int, error) {
	if conversationID == uuid.Nil {
		return 0, &ValidationError{Field: "conversationId", Message: "must not be empty"}
	}
	if reader == "" {
		return 0, &ValidationError{Field: "readerIdentity", Message: "must not be empty"}
	}
	n, err := t.store.MarkRead(ctx, conversationID, reader)
	if err != nil {
		return 0, &PersistenceError{Op: "mark read", Err: err}
	}
	return n, nil
}
