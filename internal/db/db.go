package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Database struct {
	Conn *sql.DB
}

func NewDatabase(ctx context.Context, dsn string) (*Database, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(25)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return &Database{Conn: conn}, nil
}

func (d *Database) Close() error {
	return d.Conn.Close()
}

// AutoMigrate creates the chat schema. The profiles table belongs to the
// surrounding platform; it is created here only so a fresh database works.
func (d *Database) AutoMigrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
            identity VARCHAR(64) NOT NULL,
            role VARCHAR(16) NOT NULL CHECK (role IN ('initiator', 'responder')),
            name VARCHAR(255) NOT NULL DEFAULT '',
            department VARCHAR(255) NOT NULL DEFAULT '',
            PRIMARY KEY (identity, role)
        )`,

		`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            pair_key TEXT NOT NULL UNIQUE,
            a_identity VARCHAR(64) NOT NULL,
            a_role VARCHAR(16) NOT NULL CHECK (a_role IN ('initiator', 'responder')),
            b_identity VARCHAR(64) NOT NULL,
            b_role VARCHAR(16) NOT NULL CHECK (b_role IN ('initiator', 'responder')),
            last_message_id UUID,
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
        )`,

		`CREATE INDEX IF NOT EXISTS conversations_a_idx ON conversations (a_identity, a_role)`,
		`CREATE INDEX IF NOT EXISTS conversations_b_idx ON conversations (b_identity, b_role)`,

		`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            conversation_id UUID NOT NULL REFERENCES conversations(id),
            sender_identity VARCHAR(64) NOT NULL,
            sender_role VARCHAR(16) NOT NULL,
            receiver_identity VARCHAR(64) NOT NULL,
            receiver_role VARCHAR(16) NOT NULL,
            body TEXT NOT NULL CHECK (body <> ''),
            created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            read BOOLEAN NOT NULL DEFAULT false,
            CHECK (sender_identity <> receiver_identity)
        )`,

		`CREATE INDEX IF NOT EXISTS messages_history_idx ON messages (conversation_id, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS messages_unread_idx ON messages (conversation_id, receiver_identity) WHERE NOT read`,
	}

	for _, query := range queries {
		_, err := d.Conn.ExecContext(ctx, query)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}
