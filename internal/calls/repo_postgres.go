package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Schema is the DDL for call_records, applied at startup with utils.ApplySchema.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS call_records (
  id               TEXT PRIMARY KEY,
  contact_id       TEXT,
  project_id       TEXT NOT NULL,
  to_number        TEXT NOT NULL,
  from_number      TEXT,
  status           TEXT NOT NULL,
  duration         INT,
  started_at       TIMESTAMPTZ,
  ended_at         TIMESTAMPTZ,
  recording_url    TEXT,
  transcription    TEXT,
  provider_call_id TEXT,
  conversation_id  TEXT,
  created_at       TIMESTAMPTZ NOT NULL,
  updated_at       TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS call_records_provider_call_id ON call_records (provider_call_id)`,
	`CREATE INDEX IF NOT EXISTS call_records_conversation_id ON call_records (conversation_id)`,
	`CREATE INDEX IF NOT EXISTS call_records_project_created ON call_records (project_id, created_at)`,
}

// PostgresRepo implements Repository on database/sql (pgx stdlib driver).
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `id, contact_id, project_id, to_number, from_number, status, duration, started_at, ended_at,
       recording_url, transcription, provider_call_id, conversation_id, created_at, updated_at`

var terminalList = "'" + strings.Join(TerminalStatuses(), "','") + "'"

// applyStatusQuery mirrors applyStatus: status never leaves a terminal value for a
// non-terminal one, timestamps keep the earliest known value (LEAST skips NULLs)
// and updated_at only moves forward.
var applyStatusQuery = fmt.Sprintf(`
UPDATE call_records SET
  status = CASE
    WHEN $2::text = '' THEN status
    WHEN status IN (%[1]s) AND $2::text NOT IN (%[1]s) THEN status
    ELSE $2::text
  END,
  duration = COALESCE($3::int, duration),
  started_at = LEAST(started_at, $4::timestamptz),
  ended_at = LEAST(ended_at, $5::timestamptz),
  conversation_id = COALESCE(conversation_id, NULLIF($6::text, '')),
  updated_at = GREATEST(updated_at, $7)
WHERE provider_call_id = $1 OR conversation_id = $1
`, terminalList)

func (r *PostgresRepo) Create(ctx context.Context, c Call) error {
	if c.CallID == "" || c.ProjectID == "" {
		return ErrInvalidArgument
	}
	const q = `
INSERT INTO call_records (
  id, contact_id, project_id, to_number, from_number, status, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8
)
`
	_, err := r.db.ExecContext(ctx, q,
		c.CallID,
		nullIfEmpty(c.ContactID),
		c.ProjectID,
		c.To,
		nullIfEmpty(c.From),
		string(c.Status),
		c.CreatedAt,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("calls: insert record: %w", err)
	}
	return nil
}

func (r *PostgresRepo) Get(ctx context.Context, callID string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM call_records WHERE id = $1`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

func (r *PostgresRepo) LinkProviderCall(ctx context.Context, callID, providerCallID string, at time.Time) error {
	const q = `UPDATE call_records SET provider_call_id = $2, updated_at = GREATEST(updated_at, $3) WHERE id = $1`
	return r.exec(ctx, q, callID, providerCallID, at)
}

func (r *PostgresRepo) ApplyStatus(ctx context.Context, providerCallID string, u StatusUpdate) error {
	return r.exec(ctx, applyStatusQuery,
		providerCallID,
		string(u.Status),
		u.DurationSeconds,
		u.StartedAt,
		u.EndedAt,
		u.ConversationID,
		u.At,
	)
}

func (r *PostgresRepo) SetRecording(ctx context.Context, providerCallID, url string, at time.Time) error {
	const q = `
UPDATE call_records SET recording_url = $2, updated_at = GREATEST(updated_at, $3)
WHERE provider_call_id = $1 OR conversation_id = $1
`
	return r.exec(ctx, q, providerCallID, url, at)
}

func (r *PostgresRepo) SetTranscription(ctx context.Context, providerCallID, text string, at time.Time) error {
	const q = `
UPDATE call_records SET transcription = $2, updated_at = GREATEST(updated_at, $3)
WHERE provider_call_id = $1 OR conversation_id = $1
`
	return r.exec(ctx, q, providerCallID, text, at)
}

func (r *PostgresRepo) ListCalls(ctx context.Context, projectID string, from, to time.Time) ([]Call, error) {
	if projectID == "" {
		return nil, ErrInvalidArgument
	}
	q := `SELECT ` + callColumns + `
FROM call_records
WHERE project_id = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, projectID, from, to)
	if err != nil {
		return nil, fmt.Errorf("calls: list records: %w", err)
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// exec runs a keyed UPDATE and maps "no row matched" to ErrNotFound.
func (r *PostgresRepo) exec(ctx context.Context, q string, args ...any) error {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c         Call
		contactID sql.NullString
		from      sql.NullString
		status    string
	)
	err := row.Scan(
		&c.CallID,
		&contactID,
		&c.ProjectID,
		&c.To,
		&from,
		&status,
		&c.DurationSeconds,
		&c.StartedAt,
		&c.EndedAt,
		&c.RecordingURL,
		&c.Transcription,
		&c.ProviderCallID,
		&c.ConversationID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	c.ContactID = contactID.String
	c.From = from.String
	c.Status = Status(status)
	return c, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
