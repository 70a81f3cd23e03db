package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Query serves initial page loads and reconnects. It only reads.
type Query struct {
	store     Store
	directory *Directory
}

func NewQuery(store Store, directory *Directory) *Query {
	return &Query{store: store, directory: directory}
}

// ListMessages returns the conversation's history, oldest first.
func (q *Query) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	messages, err := q.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, &PersistenceError{Op: "list messages", Err: err}
	}
	if messages == nil {
		messages = []*Message{}
	}
	return messages, nil
}

func (q *Query) ListConversations(ctx context.Context, identity string, role Role) ([]*ConversationSummary, error) {
	summaries, err := q.directory.ListFor(ctx, identity, role)
	if err != nil {
		return nil, err
	}
	if summaries == nil {
		summaries = []*ConversationSummary{}
	}
	return summaries, nil
}

// MessagesBetween returns the history of a pair without creating their
// conversation; a pair that never talked has an empty history.
func (q *Query) MessagesBetween(ctx context.Context, a, b Participant) ([]*Message, error) {
	c, err := q.directory.Find(ctx, a, b)
	if errors.Is(err, ErrNotFound) {
		return []*Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return q.ListMessages(ctx, c.ID)
}

// Conversation returns one conversation, ErrNotFound if unknown.
func (q *Query) Conversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return q.directory.Get(ctx, id)
}

func (q *Query) Ping(ctx context.Context) error {
	return q.store.Ping(ctx)
}
