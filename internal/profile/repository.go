package profile

import (
	"context"
	"database/sql"
	"errors"

	"mentor-chat/internal/chat"
)

const searchLimit = 10

// Repository reads profiles from the Postgres profiles table.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ResolveProfile returns nil, nil when the directory has no such entry.
func (r *Repository) ResolveProfile(ctx context.Context, identity string, role chat.Role) (*chat.Profile, error) {
	p := &chat.Profile{}
	query := "SELECT name, department FROM profiles WHERE identity = $1 AND role = $2"

	err := r.db.QueryRowContext(ctx, query, identity, string(role)).Scan(&p.Name, &p.Department)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *Repository) Upsert(ctx context.Context, rec Record) error {
	query := `INSERT INTO profiles (identity, role, name, department) VALUES ($1, $2, $3, $4)
        ON CONFLICT (identity, role) DO UPDATE SET name = EXCLUDED.name, department = EXCLUDED.department`
	_, err := r.db.ExecContext(ctx, query, rec.Identity, string(rec.Role), rec.Name, rec.Department)
	return err
}

// Search matches names case-insensitively within one role.
func (r *Repository) Search(ctx context.Context, query string, role chat.Role) ([]Record, error) {
	q := `SELECT identity, role, name, department FROM profiles
        WHERE role = $1 AND name ILIKE $2 ORDER BY name, identity LIMIT $3`
	rows, err := r.db.QueryContext(ctx, q, string(role), "%"+escapeLike(query)+"%", searchLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Identity, &rec.Role, &rec.Name, &rec.Department); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, c := range s {
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out)
}
