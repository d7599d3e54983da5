package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// Schema is the DDL for call_activity. The table is append-only.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS call_activity (
  id               TEXT PRIMARY KEY,
  type             TEXT NOT NULL,
  call_id          TEXT,
  provider_call_id TEXT,
  status           TEXT,
  actor_user_id    TEXT,
  ip_address       TEXT,
  message          TEXT,
  created_at       TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS call_activity_call_id ON call_activity (call_id)`,
	`REVOKE UPDATE, DELETE ON call_activity FROM PUBLIC`,
}

// PostgresRepo appends entries with plain INSERTs; it has no update path.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO call_activity (
  id, type, call_id, provider_call_id, status, actor_user_id, ip_address, message, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		nullIfEmpty(e.CallID),
		nullIfEmpty(e.ProviderCallID),
		nullIfEmpty(e.Status),
		nullIfEmpty(e.ActorUserID),
		nullIfEmpty(e.IPAddress),
		nullIfEmpty(e.Message),
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: insert entry: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
