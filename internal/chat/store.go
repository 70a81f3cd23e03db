//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mock_store_test.go -package=chat
package chat

import (
	"context"

	"github.com/google/uuid"
)

// Store is the durable home of conversations and messages. It knows nothing
// about live connections.
type Store interface {
	// FindConversationByPair returns ErrNotFound when the pair never talked.
	FindConversationByPair(ctx context.Context, pairKey string) (*Conversation, error)
	// InsertConversation returns ErrConversationExists when a conversation
	// with the same pair key is already stored.
	InsertConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// ListConversations returns the conversations p takes part in, most
	// recently updated first.
	ListConversations(ctx context.Context, p Participant) ([]*Conversation, error)

	// AppendMessage stores msg and points its conversation's last message at
	// it in one unit: either both happen or neither does.
	AppendMessage(ctx context.Context, msg *Message) error
	// ListMessages returns the full history, oldest first.
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error)
	// MarkRead flips every unread message addressed to reader and returns
	// how many flipped.
	MarkRead(ctx context.Context, conversationID uuid.UUID, reader string) (int, error)

	Ping(ctx context.Context) error
}
