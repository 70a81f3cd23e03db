//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=mock_profile_test.go -package=chat
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ProfileResolver is the slice of the platform's user directory we need:
// public fields of a participant, or nil when unknown.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, identity string, role Role) (*Profile, error)
}

const profileLookups = 8

// Directory owns conversation creation and the last-message pointer.
type Directory struct {
	store    Store
	profiles ProfileResolver
	log      *log.Logger
	locks    keyedMutex
	now      func() time.Time
}

func NewDirectory(store Store, profiles ProfileResolver, logger *log.Logger) *Directory {
	if logger == nil {
		logger = log.Default()
	}
	return &Directory{
		store:    store,
		profiles: profiles,
		log:      logger,
		now:      time.Now,
	}
}

// GetOrCreate returns the conversation of the unordered pair (a, b), creating
// it on first use. Concurrent first calls race on the store's pair-key
// uniqueness; losers read back and return the winner's conversation.
func (d *Directory) GetOrCreate(ctx context.Context, a, b Participant) (*Conversation, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}
	key := PairKey(a, b)
	c, err := d.store.FindConversationByPair(ctx, key)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, &PersistenceError{Op: "find conversation", Err: err}
	}

	c = newConversation(a, b, d.timestamp())
	err = d.store.InsertConversation(ctx, c)
	if err == nil {
		d.log.Debug("conversation created", "conversation", c.ID, "pair", key)
		return c, nil
	}
	if !errors.Is(err, ErrConversationExists) {
		return nil, &PersistenceError{Op: "create conversation", Err: err}
	}
	winner, err := d.store.FindConversationByPair(ctx, key)
	if err != nil {
		return nil, &PersistenceError{Op: "find conversation", Err: err}
	}
	return winner, nil
}

// Find returns the pair's conversation without creating it.
func (d *Directory) Find(ctx context.Context, a, b Participant) (*Conversation, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}
	c, err := d.store.FindConversationByPair(ctx, PairKey(a, b))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, &PersistenceError{Op: "find conversation", Err: err}
	}
	return c, err
}

func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	c, err := d.store.GetConversation(ctx, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, &PersistenceError{Op: "get conversation", Err: err}
	}
	return c, err
}

// Append validates m against its conversation, assigns its id and timestamp
// and stores it together with the conversation's new last-message pointer.
// Appends to one conversation run one at a time so timestamps never go
// backwards.
func (d *Directory) Append(ctx context.Context, m *Message) error {
	unlock := d.locks.Lock(m.ConversationID)
	defer unlock()

	c, err := d.store.GetConversation(ctx, m.ConversationID)
	if errors.Is(err, ErrNotFound) {
		return &ValidationError{Field: "conversationId", Message: "unknown conversation"}
	}
	if err != nil {
		return &PersistenceError{Op: "get conversation", Err: err}
	}
	if c.PairKey() != PairKey(m.Sender, m.Receiver) {
		return &ValidationError{Field: "conversationId", Message: "conversation does not belong to sender and receiver"}
	}

	// v7 ids sort by creation, breaking ties between equal timestamps.
	if m.ID, err = uuid.NewV7(); err != nil {
		return &PersistenceError{Op: "new message id", Err: err}
	}
	m.Timestamp = d.timestamp()
	if m.Timestamp.Before(c.UpdatedAt) {
		m.Timestamp = c.UpdatedAt
	}
	if err := d.store.AppendMessage(ctx, m); err != nil {
		return &PersistenceError{Op: "append message", Err: err}
	}
	return nil
}

// ListFor returns identity's conversations, most recent first, each with the
// other participant's profile. A failed profile lookup leaves that profile
// nil instead of failing the listing.
func (d *Directory) ListFor(ctx context.Context, identity string, role Role) ([]*ConversationSummary, error) {
	self := Participant{Identity: identity, Role: role}
	if err := self.validate("participant"); err != nil {
		return nil, err
	}
	conversations, err := d.store.ListConversations(ctx, self)
	if err != nil {
		return nil, &PersistenceError{Op: "list conversations", Err: err}
	}

	summaries := make([]*ConversationSummary, len(conversations))
	var g errgroup.Group
	g.SetLimit(profileLookups)
	for i, c := range conversations {
		summaries[i] = &ConversationSummary{Conversation: c, OtherParticipant: c.Other(self)}
		if d.profiles == nil {
			continue
		}
		s := summaries[i]
		g.Go(func() error {
			p, err := d.profiles.ResolveProfile(ctx, s.OtherParticipant.Identity, s.OtherParticipant.Role)
			if err != nil {
				d.log.Warn("profile lookup failed", "identity", s.OtherParticipant.Identity, "role", s.OtherParticipant.Role, "err", err)
				return nil
			}
			s.Profile = p
			return nil
		})
	}
	_ = g.Wait()
	return summaries, nil
}

// timestamp is truncated to the coarsest precision of the stores (Mongo
// keeps milliseconds) so a stored message reads back unchanged.
func (d *Directory) timestamp() time.Time {
	return d.now().UTC().Truncate(time.Millisecond)
}

func validatePair(a, b Participant) error {
	if err := a.validate("participantA"); err != nil {
		return err
	}
	if err := b.validate("participantB"); err != nil {
		return err
	}
	if a.Identity == b.Identity {
		return &ValidationError{Field: "participantB.identity", Message: "must differ from participantA"}
	}
	return nil
}
