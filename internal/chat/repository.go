package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Repository is the Postgres Store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const conversationColumns = `
	c.id, c.a_identity, c.a_role, c.b_identity, c.b_role, c.created_at, c.updated_at,
	m.id, m.sender_identity, m.sender_role, m.receiver_identity, m.receiver_role,
	m.body, m.created_at, m.read`

const conversationFrom = `
	FROM conversations c
	LEFT JOIN messages m ON m.id = c.last_message_id`

func (r *Repository) FindConversationByPair(ctx context.Context, pairKey string) (*Conversation, error) {
	query := "SELECT" + conversationColumns + conversationFrom + " WHERE c.pair_key = $1"
	return scanConversation(r.db.QueryRowContext(ctx, query, pairKey))
}

func (r *Repository) InsertConversation(ctx context.Context, c *Conversation) error {
	query := `
		INSERT INTO conversations (id, pair_key, a_identity, a_role, b_identity, b_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (pair_key) DO NOTHING`
	a, b := c.Participants[0], c.Participants[1]
	res, err := r.db.ExecContext(ctx, query,
		c.ID, c.PairKey(), a.Identity, string(a.Role), b.Identity, string(b.Role), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConversationExists
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConversationExists
	}
	return nil
}

func (r *Repository) GetConversation(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := "SELECT" + conversationColumns + conversationFrom + " WHERE c.id = $1"
	return scanConversation(r.db.QueryRowContext(ctx, query, id))
}

func (r *Repository) ListConversations(ctx context.Context, p Participant) ([]*Conversation, error) {
	query := "SELECT" + conversationColumns + conversationFrom + `
		WHERE (c.a_identity = $1 AND c.a_role = $2) OR (c.b_identity = $1 AND c.b_role = $2)
		ORDER BY c.updated_at DESC, c.id`
	rows, err := r.db.QueryContext(ctx, query, p.Identity, string(p.Role))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (r *Repository) AppendMessage(ctx context.Context, m *Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_identity, sender_role, receiver_identity, receiver_role, body, created_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.ConversationID,
		m.Sender.Identity, string(m.Sender.Role),
		m.Receiver.Identity, string(m.Receiver.Role),
		m.Body, m.Timestamp, m.Read)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrNotFound
		}
		return err
	}

	// Never move the pointer back to an older message.
	_, err = tx.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = $1, updated_at = $2
		WHERE id = $3 AND updated_at <= $2`,
		m.ID, m.Timestamp, m.ConversationID)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	query := `
		SELECT id, conversation_id, sender_identity, sender_role, receiver_identity, receiver_role, body, created_at, read
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		msg := &Message{}
		var senderRole, receiverRole string
		if err := rows.Scan(&msg.ID, &msg.ConversationID,
			&msg.Sender.Identity, &senderRole,
			&msg.Receiver.Identity, &receiverRole,
			&msg.Body, &msg.Timestamp, &msg.Read); err != nil {
			return nil, err
		}
		msg.Sender.Role = Role(senderRole)
		msg.Receiver.Role = Role(receiverRole)
		msg.Timestamp = msg.Timestamp.UTC()
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// MarkRead relies on the row lock taken by UPDATE: a row already flipped by
// a concurrent call no longer matches "read = false" and is not counted twice.
func (r *Repository) MarkRead(ctx context.Context, conversationID uuid.UUID, reader string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET read = true
		WHERE conversation_id = $1 AND receiver_identity = $2 AND read = false`,
		conversationID, reader)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	c := &Conversation{}
	var aRole, bRole string
	var (
		lastID                   uuid.NullUUID
		senderID, senderRole     sql.NullString
		receiverID, receiverRole sql.NullString
		body                     sql.NullString
		sentAt                   sql.NullTime
		read                     sql.NullBool
	)
	err := row.Scan(&c.ID,
		&c.Participants[0].Identity, &aRole,
		&c.Participants[1].Identity, &bRole,
		&c.CreatedAt, &c.UpdatedAt,
		&lastID, &senderID, &senderRole, &receiverID, &receiverRole,
		&body, &sentAt, &read)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.Participants[0].Role = Role(aRole)
	c.Participants[1].Role = Role(bRole)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	if lastID.Valid {
		c.LastMessage = &Message{
			ID:             lastID.UUID,
			ConversationID: c.ID,
			Sender:         Participant{Identity: senderID.String, Role: Role(senderRole.String)},
			Receiver:       Participant{Identity: receiverID.String, Role: Role(receiverRole.String)},
			Body:           body.String,
			Timestamp:      sentAt.Time.UTC(),
			Read:           read.Bool,
		}
	}
	return c, nil
}
