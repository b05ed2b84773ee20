package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"neowhatai/internal/entities"
)

type TenantRepository struct {
	db *pgxpool.Pool
}

func NewTenantRepository(db *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{db: db}
}

const tenantColumns = `
	id::text, name, whatsapp_phone_id, whatsapp_session_id,
	COALESCE(whatsapp_token, ''), COALESCE(webhook_secret, ''), COALESCE(openrouter_key, ''),
	system_prompt, is_active, created_at, updated_at`

func scanTenant(row pgx.Row) (*entities.Tenant, error) {
	var t entities.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.PhoneID, &t.SessionID,
		&t.GatewayToken, &t.WebhookSecret, &t.LLMKey,
		&t.SystemPrompt, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *TenantRepository) Get(ctx context.Context, id string) (*entities.Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("get tenant %q: %w", id, ErrNotFound)
	}
	t, err := scanTenant(r.db.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM clients WHERE id = $1::uuid", id))
	if err != nil {
		return nil, wrapQueryError("get tenant", err)
	}
	return t, nil
}

func (r *TenantRepository) GetActiveBySession(ctx context.Context, sessionID string) (*entities.Tenant, error) {
	t, err := scanTenant(r.db.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM clients WHERE whatsapp_session_id = $1 AND is_active",
		sessionID))
	if err != nil {
		return nil, wrapQueryError("get tenant by session", err)
	}
	return t, nil
}

// ListActive returns at most limit active tenants, oldest first. A limit <= 0 means no limit.
func (r *TenantRepository) ListActive(ctx context.Context, limit int) ([]entities.Tenant, error) {
	query := "SELECT " + tenantColumns + " FROM clients WHERE is_active ORDER BY created_at ASC, id ASC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapQueryError("list active tenants", err)
	}
	defer rows.Close()

	tenants := []entities.Tenant{}
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, rows.Err()
}

// List returns every tenant with its log and document counts, newest first.
func (r *TenantRepository) List(ctx context.Context) ([]entities.TenantSummary, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+tenantColumns+`,
			(SELECT COUNT(*) FROM logs l WHERE l.client_id = c.id),
			(SELECT COUNT(*) FROM documents d WHERE d.client_id = c.id)
		FROM clients c
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, wrapQueryError("list tenants", err)
	}
	defer rows.Close()

	summaries := []entities.TenantSummary{}
	for rows.Next() {
		var t entities.Tenant
		var logs, docs int
		if err := rows.Scan(&t.ID, &t.Name, &t.PhoneID, &t.SessionID,
			&t.GatewayToken, &t.WebhookSecret, &t.LLMKey,
			&t.SystemPrompt, &t.IsActive, &t.CreatedAt, &t.UpdatedAt,
			&logs, &docs); err != nil {
			return nil, err
		}
		summaries = append(summaries, t.Summarize(logs, docs))
	}
	return summaries, rows.Err()
}

// Create assigns an id when missing and inserts the tenant.
func (r *TenantRepository) Create(ctx context.Context, t *entities.Tenant) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now

	_, err := r.db.Exec(ctx, `
		INSERT INTO clients (id, name, whatsapp_phone_id, whatsapp_session_id, whatsapp_token,
			webhook_secret, openrouter_key, system_prompt, is_active, created_at, updated_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
		t.ID, t.Name, t.PhoneID, t.SessionID, nullIfEmpty(t.GatewayToken),
		nullIfEmpty(t.WebhookSecret), nullIfEmpty(t.LLMKey), t.SystemPrompt, t.IsActive, now)
	return wrapQueryError("create tenant", err)
}

func (r *TenantRepository) Update(ctx context.Context, t *entities.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE clients SET name = $2, whatsapp_phone_id = $3, whatsapp_session_id = $4,
			whatsapp_token = $5, webhook_secret = $6, openrouter_key = $7,
			system_prompt = $8, is_active = $9, updated_at = $10
		WHERE id = $1::uuid`,
		t.ID, t.Name, t.PhoneID, t.SessionID, nullIfEmpty(t.GatewayToken),
		nullIfEmpty(t.WebhookSecret), nullIfEmpty(t.LLMKey), t.SystemPrompt, t.IsActive, t.UpdatedAt)
	if err != nil {
		return wrapQueryError("update tenant", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update tenant %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a tenant; documents, logs and ledger rows cascade.
func (r *TenantRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("delete tenant %q: %w", id, ErrNotFound)
	}
	tag, err := r.db.Exec(ctx, "DELETE FROM clients WHERE id = $1::uuid", id)
	if err != nil {
		return wrapQueryError("delete tenant", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete tenant %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *TenantRepository) Count(ctx context.Context) (total, active int, err error) {
	err = r.db.QueryRow(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE is_active) FROM clients").Scan(&total, &active)
	return total, active, wrapQueryError("count tenants", err)
}

// UpsertBySession updates the tenant owning t.SessionID, or creates it.
// Used by the YAML import.
func (r *TenantRepository) UpsertBySession(ctx context.Context, t *entities.Tenant) (created bool, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx,
		"SELECT id::text FROM clients WHERE whatsapp_session_id = $1 ORDER BY is_active DESC, created_at DESC LIMIT 1 FOR UPDATE",
		t.SessionID).Scan(&id)

	now := time.Now().UTC()
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO clients (id, name, whatsapp_phone_id, whatsapp_session_id, whatsapp_token,
				webhook_secret, openrouter_key, system_prompt, is_active, created_at, updated_at)
			VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`,
			t.ID, t.Name, t.PhoneID, t.SessionID, nullIfEmpty(t.GatewayToken),
			nullIfEmpty(t.WebhookSecret), nullIfEmpty(t.LLMKey), t.SystemPrompt, t.IsActive, now)
		created = true
	case err != nil:
		return false, wrapQueryError("find tenant by session", err)
	default:
		t.ID = id
		_, err = tx.Exec(ctx, `
			UPDATE clients SET name = $2, whatsapp_phone_id = $3, whatsapp_token = $4,
				webhook_secret = $5, openrouter_key = $6, system_prompt = $7, is_active = $8, updated_at = $9
			WHERE id = $1::uuid`,
			t.ID, t.Name, t.PhoneID, nullIfEmpty(t.GatewayToken),
			nullIfEmpty(t.WebhookSecret), nullIfEmpty(t.LLMKey), t.SystemPrompt, t.IsActive, now)
	}
	if err != nil {
		return false, wrapQueryError("upsert tenant", err)
	}
	return created, tx.Commit(ctx)
}
