package chat

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MemoryRepository keeps everything in process memory. It backs tests and
// the "memory" store driver; data is gone on restart.
type MemoryRepository struct {
	mu            sync.RWMutex
	conversations map[uuid.UUID]*Conversation
	byPair        map[string]uuid.UUID
	messages      map[uuid.UUID][]*Message
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[uuid.UUID]*Conversation),
		byPair:        make(map[string]uuid.UUID),
		messages:      make(map[uuid.UUID][]*Message),
	}
}

func (r *MemoryRepository) FindConversationByPair(_ context.Context, pairKey string) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairKey]
	if !ok {
		return nil, ErrNotFound
	}
	return r.copyConversation(r.conversations[id]), nil
}

func (r *MemoryRepository) InsertConversation(_ context.Context, c *Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := c.PairKey()
	if _, ok := r.byPair[key]; ok {
		return ErrConversationExists
	}
	stored := *c
	stored.LastMessage = nil
	r.conversations[c.ID] = &stored
	r.byPair[key] = c.ID
	return nil
}

func (r *MemoryRepository) GetConversation(_ context.Context, id uuid.UUID) (*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.copyConversation(c), nil
}

func (r *MemoryRepository) ListConversations(_ context.Context, p Participant) ([]*Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Conversation
	for _, c := range r.conversations {
		if c.HasParticipant(p) {
			out = append(out, r.copyConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) AppendMessage(_ context.Context, m *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[m.ConversationID]
	if !ok {
		return ErrNotFound
	}
	stored := *m
	r.messages[m.ConversationID] = append(r.messages[m.ConversationID], &stored)
	if !m.Timestamp.Before(c.UpdatedAt) {
		c.LastMessage = &stored
		c.UpdatedAt = m.Timestamp
	}
	return nil
}

func (r *MemoryRepository) ListMessages(_ context.Context, conversationID uuid.UUID) ([]*Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := lo.Map(r.messages[conversationID], func(m *Message, _ int) *Message {
		cp := *m
		return &cp
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (r *MemoryRepository) MarkRead(_ context.Context, conversationID uuid.UUID, reader string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages[conversationID] {
		if m.Receiver.Identity == reader && !m.Read {
			m.Read = true
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Ping(context.Context) error { return nil }

// copyConversation must be called with r.mu held.
func (r *MemoryRepository) copyConversation(c *Conversation) *Conversation {
	cp := *c
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	return &cp
}
