package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"neowhatai/internal/entities"
)

type LogRepository struct {
	db *pgxpool.Pool
}

func NewLogRepository(db *pgxpool.Pool) *LogRepository {
	return &LogRepository{db: db}
}

func (r *LogRepository) Insert(ctx context.Context, entry *entities.ConversationLog) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO logs (client_id, user_phone, message_in, message_out, tokens_used)
		VALUES ($1::uuid, $2, $3, $4, $5)
		RETURNING id, created_at`,
		entry.TenantID, entry.UserPhone, entry.MessageIn, entry.MessageOut, entry.TokensUsed,
	).Scan(&entry.ID, &entry.CreatedAt)
	return wrapQueryError("insert log", err)
}

// Recent returns the last limit exchanges between a tenant and one sender, oldest first.
func (r *LogRepository) Recent(ctx context.Context, tenantID, userPhone string, limit int) ([]entities.ConversationLog, error) {
	if limit <= 0 {
		return []entities.ConversationLog{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, client_id::text, user_phone, message_in, message_out, tokens_used, created_at
		FROM logs
		WHERE client_id = $1::uuid AND user_phone = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, tenantID, userPhone, limit)
	if err != nil {
		return nil, wrapQueryError("recent logs", err)
	}
	logs, err := scanLogs(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
	return logs, nil
}

// List returns the latest exchanges, newest first. An empty tenantID lists every tenant.
func (r *LogRepository) List(ctx context.Context, tenantID string, limit int) ([]entities.ConversationLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, client_id::text, user_phone, message_in, message_out, tokens_used, created_at
		FROM logs
		WHERE $1 = '' OR client_id = NULLIF($1, '')::uuid
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, wrapQueryError("list logs", err)
	}
	return scanLogs(rows)
}

func (r *LogRepository) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM logs WHERE client_id = $1::uuid", tenantID).Scan(&n)
	return n, wrapQueryError("count logs", err)
}

func scanLogs(rows pgx.Rows) ([]entities.ConversationLog, error) {
	defer rows.Close()

	logs := []entities.ConversationLog{}
	for rows.Next() {
		var l entities.ConversationLog
		if err := rows.Scan(&l.ID, &l.TenantID, &l.UserPhone, &l.MessageIn,
			&l.MessageOut, &l.TokensUsed, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
