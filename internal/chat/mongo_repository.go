package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoRepository is the MongoDB Store. Pair uniqueness comes from a unique
// index on pair_key; the last message is embedded in the conversation
// document so listings need no lookup.
type MongoRepository struct {
	db *mongo.Database
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{db: db}
}

type mongoConversation struct {
	ID           string        `bson:"_id"`
	PairKey      string        `bson:"pair_key"`
	Participants []Participant `bson:"participants"`
	LastMessage  *mongoMessage `bson:"last_message,omitempty"`
	CreatedAt    time.Time     `bson:"created_at"`
	UpdatedAt    time.Time     `bson:"updated_at"`
}

type mongoMessage struct {
	ID             string      `bson:"_id"`
	ConversationID string      `bson:"conversation_id"`
	Sender         Participant `bson:"sender"`
	Receiver       Participant `bson:"receiver"`
	Body           string      `bson:"body"`
	CreatedAt      time.Time   `bson:"created_at"`
	Read           bool        `bson:"read"`
}

func (r *MongoRepository) conversations() *mongo.Collection { return r.db.Collection("conversations") }
func (r *MongoRepository) messages() *mongo.Collection      { return r.db.Collection("messages") }

// EnsureIndexes creates the unique pair index and the history indexes.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		r.conversations(): {
			{Keys: bson.D{{Key: "pair_key", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "participants.identity", Value: 1}, {Key: "participants.role", Value: 1}}},
		},
		r.messages(): {
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}},
			{Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "receiver.identity", Value: 1}, {Key: "read", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (r *MongoRepository) FindConversationByPair(ctx context.Context, pairKey string) (*Conversation, error) {
	return r.findConversation(ctx, bson.M{"pair_key": pairKey})
}

func (r *MongoRepository) InsertConversation(ctx context.Context, c *Conversation) error {
	doc := mongoConversation{
		ID:           c.ID.String(),
		PairKey:      c.PairKey(),
		Participants: c.Participants[:],
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if _, err := r.conversations().InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrConversationExists
		}
		return err
	}
	return nil
}

func (r *MongoRepository) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	return r.findConversation(ctx, bson.M{"_id": id.String()})
}

func (r *MongoRepository) ListConversations(ctx context.Context, p Participant) ([]*Conversation, error) {
	filter := bson.M{"participants": bson.M{"$elemMatch": bson.M{"identity": p.Identity, "role": p.Role}}}
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.conversations().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []mongoConversation
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*Conversation, 0, len(docs))
	for _, d := range docs {
		c, err := d.toConversation()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := r.loadLastRead(ctx, out...); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendMessage has no multi-document transaction to lean on (standalone
// servers do not support them), so a failed pointer update deletes the
// message it just inserted.
func (r *MongoRepository) AppendMessage(ctx context.Context, m *Message) error {
	n, err := r.conversations().CountDocuments(ctx, bson.M{"_id": m.ConversationID.String()})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	doc := fromMessage(m)
	if _, err := r.messages().InsertOne(ctx, doc); err != nil {
		return err
	}
	_, err = r.conversations().UpdateOne(ctx,
		bson.M{"_id": doc.ConversationID, "updated_at": bson.M{"$lte": doc.CreatedAt}},
		bson.M{"$set": bson.M{"last_message": doc, "updated_at": doc.CreatedAt}})
	if err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if _, delErr := r.messages().DeleteOne(cleanupCtx, bson.M{"_id": doc.ID}); delErr != nil {
			return errors.Join(err, fmt.Errorf("roll back message %s: %w", doc.ID, delErr))
		}
		return err
	}
	return nil
}

func (r *MongoRepository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.messages().Find(ctx, bson.M{"conversation_id": conversationID.String()}, opts)
	if err != nil {
		return nil, err
	}
	var docs []mongoMessage
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*Message, 0, len(docs))
	for _, d := range docs {
		msg, err := d.toMessage()
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// MarkRead counts ModifiedCount: single-document updates are atomic, so a
// message flipped by a concurrent call is not modified (or counted) again.
// The embedded last message is not touched; its read flag is taken from the
// messages collection when conversations are loaded.
func (r *MongoRepository) MarkRead(ctx context.Context, conversationID uuid.UUID, reader string) (int, error) {
	res, err := r.messages().UpdateMany(ctx,
		bson.M{"conversation_id": conversationID.String(), "receiver.identity": reader, "read": false},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

// loadLastRead sets each last message's read flag from its message document.
func (r *MongoRepository) loadLastRead(ctx context.Context, convs ...*Conversation) error {
	byID := make(map[string]*Message, len(convs))
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		if c.LastMessage == nil {
			continue
		}
		id := c.LastMessage.ID.String()
		byID[id] = c.LastMessage
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil
	}
	opts := options.Find().SetProjection(bson.M{"_id": 1, "read": 1})
	cursor, err := r.messages().Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, opts)
	if err != nil {
		return err
	}
	var docs []struct {
		ID   string `bson:"_id"`
		Read bool   `bson:"read"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return err
	}
	for _, d := range docs {
		byID[d.ID].Read = d.Read
	}
	return nil
}

func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, nil)
}

func (r *MongoRepository) findConversation(ctx context.Context, filter bson.M) (*Conversation, error) {
	var doc mongoConversation
	if err := r.conversations().FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c, err := doc.toConversation()
	if err != nil {
		return nil, err
	}
	if err := r.loadLastRead(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (d mongoConversation) toConversation() (*Conversation, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("conversation id %q: %w", d.ID, err)
	}
	if len(d.Participants) != 2 {
		return nil, fmt.Errorf("conversation %s has %d participants", d.ID, len(d.Participants))
	}
	c := &Conversation{
		ID:           id,
		Participants: [2]Participant{d.Participants[0], d.Participants[1]},
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
	if d.LastMessage != nil {
		if c.LastMessage, err = d.LastMessage.toMessage(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func fromMessage(m *Message) mongoMessage {
	return mongoMessage{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		Sender:         m.Sender,
		Receiver:       m.Receiver,
		Body:           m.Body,
		CreatedAt:      m.Timestamp,
		Read:           m.Read,
	}
}

func (d mongoMessage) toMessage() (*Message, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("message id %q: %w", d.ID, err)
	}
	conversationID, err := uuid.Parse(d.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("message %s conversation id: %w", d.ID, err)
	}
	return &Message{
		ID:             id,
		ConversationID: conversationID,
		Sender:         d.Sender,
		Receiver:       d.Receiver,
		Body:           d.Body,
		Timestamp:      d.CreatedAt.UTC(),
		Read:           d.Read,
	}, nil
}
