package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Schema creates the journal table and its indexes. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS link_messages (
		id          BIGSERIAL PRIMARY KEY,
		session_id  TEXT        NOT NULL,
		msg_type    TEXT        NOT NULL,
		sent_at     TIMESTAMPTZ,
		received_at TIMESTAMPTZ NOT NULL,
		body        JSONB       NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS link_messages_received_at_idx ON link_messages (received_at)`,
	`CREATE INDEX IF NOT EXISTS link_messages_type_idx ON link_messages (msg_type, received_at)`,
}

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	return nil
}
