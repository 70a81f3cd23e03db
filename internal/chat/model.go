package chat

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------
// 🧑 Participants
// ---------------------------------------------

// Role distinguishes the two user classes that talk to each other.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

func (r Role) Valid() bool {
	return r == RoleInitiator || r == RoleResponder
}

// Participant is an identity plus its role. Two participants with the same
// identity but different roles are different references.
type Participant struct {
	Identity string `json:"identity" bson:"identity" validate:"required"`
	Role     Role   `json:"role" bson:"role" validate:"required,oneof=initiator responder"`
}

func (p Participant) key() string {
	return string(p.Role) + ":" + url.PathEscape(p.Identity)
}

func (p Participant) validate(field string) error {
	if strings.TrimSpace(p.Identity) == "" {
		return &ValidationError{Field: field + ".identity", Message: "must not be empty"}
	}
	if !p.Role.Valid() {
		return &ValidationError{Field: field + ".role", Message: "must be initiator or responder"}
	}
	return nil
}

// PairKey is the order-independent encoding of two participants. It is the
// uniqueness key of a conversation.
func PairKey(a, b Participant) string {
	keys := []string{a.key(), b.key()}
	sort.Strings(keys)
	return keys[0] + "|" + keys[1]
}

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

type Conversation struct {
	ID           uuid.UUID      `json:"id"`
	Participants [2]Participant `json:"participants"`
	LastMessage  *Message       `json:"lastMessage,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

func newConversation(a, b Participant, now time.Time) *Conversation {
	if b.key() < a.key() {
		a, b = b, a
	}
	return &Conversation{
		ID:           uuid.New(),
		Participants: [2]Participant{a, b},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (c *Conversation) PairKey() string {
	return PairKey(c.Participants[0], c.Participants[1])
}

func (c *Conversation) HasParticipant(p Participant) bool {
	return c.Participants[0] == p || c.Participants[1] == p
}

// Other returns the participant that is not p.
func (c *Conversation) Other(p Participant) Participant {
	if c.Participants[0] == p {
		return c.Participants[1]
	}
	return c.Participants[0]
}

type Message struct {
	ID             uuid.UUID   `json:"id"`
	ConversationID uuid.UUID   `json:"conversationId"`
	Sender         Participant `json:"sender"`
	Receiver       Participant `json:"receiver"`
	Body           string      `json:"body"`
	Timestamp      time.Time   `json:"timestamp"`
	Read           bool        `json:"read"`
}

// Profile holds the public fields of the other participant in a listing.
type Profile struct {
	Name       string `json:"name"`
	Department string `json:"department"`
}

// ConversationSummary is a conversation as seen by one of its participants.
type ConversationSummary struct {
	*Conversation
	OtherParticipant Participant `json:"otherParticipant"`
	Profile          *Profile    `json:"profile"`
}
