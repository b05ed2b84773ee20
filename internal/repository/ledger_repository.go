package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository records processed inbound message ids in processed_messages.
type LedgerRepository struct {
	db *pgxpool.Pool
}

func NewLedgerRepository(db *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) HasProcessed(ctx context.Context, messageID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1)",
		messageID).Scan(&exists)
	return exists, wrapQueryError("check processed message", err)
}

// MarkProcessed inserts the id and reports whether this call recorded it.
// The unique constraint arbitrates concurrent deliveries of the same id.
func (r *LedgerRepository) MarkProcessed(ctx context.Context, messageID, tenantID string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO processed_messages (message_id, client_id)
		VALUES ($1, NULLIF($2, '')::uuid)
		ON CONFLICT (message_id) DO NOTHING`,
		messageID, tenantID)
	if err != nil {
		return false, wrapQueryError("mark processed message", err)
	}
	return tag.RowsAffected() == 1, nil
}
