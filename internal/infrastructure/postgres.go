package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresClient struct {
	Pool      *pgxpool.Pool
	dimension int
	logger    *slog.Logger
}

// NewPostgresClient opens the pool, pings it and applies the schema.
// dimension is the embedding vector length used for the documents table.
func NewPostgresClient(ctx context.Context, connString string, dimension int, logger *slog.Logger) (*PostgresClient, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	client := &PostgresClient{Pool: pool, dimension: dimension, logger: logger}

	if err := client.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return client, nil
}

// Migrate creates the tables, indexes and the match_documents function.
// Every statement is idempotent.
func (p *PostgresClient) Migrate(ctx context.Context) error {
	steps := []struct {
		name string
		sql  string
	}{
		{"vector extension", `CREATE EXTENSION IF NOT EXISTS vector`},
		{"clients table", `
			CREATE TABLE IF NOT EXISTS clients (
				id UUID PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				whatsapp_phone_id VARCHAR(64) NOT NULL DEFAULT '',
				whatsapp_session_id VARCHAR(128) NOT NULL,
				whatsapp_token TEXT,
				webhook_secret TEXT,
				openrouter_key TEXT,
				system_prompt TEXT NOT NULL DEFAULT '',
				is_active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`},
		// One active tenant per gateway session.
		{"clients session index", `
			CREATE UNIQUE INDEX IF NOT EXISTS clients_active_session_idx
			ON clients (whatsapp_session_id) WHERE is_active`},
		{"documents table", fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS documents (
				id UUID PRIMARY KEY,
				client_id UUID NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
				content TEXT NOT NULL,
				embedding vector(%d),
				metadata JSONB NOT NULL DEFAULT '{}',
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, p.dimension)},
		{"documents client index", `CREATE INDEX IF NOT EXISTS documents_client_idx ON documents (client_id)`},
		{"documents embedding index", `
			CREATE INDEX IF NOT EXISTS documents_embedding_idx
			ON documents USING hnsw (embedding vector_cosine_ops)`},
		{"logs table", `
			CREATE TABLE IF NOT EXISTS logs (
				id BIGSERIAL PRIMARY KEY,
				client_id UUID NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
				user_phone VARCHAR(64) NOT NULL,
				message_in TEXT NOT NULL,
				message_out TEXT NOT NULL,
				tokens_used INT,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`},
		{"logs history index", `
			CREATE INDEX IF NOT EXISTS logs_history_idx
			ON logs (client_id, user_phone, created_at DESC)`},
		{"processed_messages table", `
			CREATE TABLE IF NOT EXISTS processed_messages (
				id BIGSERIAL PRIMARY KEY,
				message_id VARCHAR(255) UNIQUE NOT NULL,
				client_id UUID REFERENCES clients(id) ON DELETE CASCADE,
				processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`},
		{"match_documents function", fmt.Sprintf(`
			CREATE OR REPLACE FUNCTION match_documents(
				query_embedding vector(%d),
				match_client_id UUID,
				match_threshold FLOAT,
				match_count INT
			)
			RETURNS TABLE (id UUID, content TEXT, metadata JSONB, similarity FLOAT)
			LANGUAGE sql STABLE
			AS $$
				SELECT d.id, d.content, d.metadata, 1 - (d.embedding <=> query_embedding) AS similarity
				FROM documents d
				WHERE d.client_id = match_client_id
				  AND d.embedding IS NOT NULL
				  AND 1 - (d.embedding <=> query_embedding) > match_threshold
				ORDER BY d.embedding <=> query_embedding
				LIMIT match_count;
			$$`, p.dimension)},
	}

	for _, step := range steps {
		if _, err := p.Pool.Exec(ctx, step.sql); err != nil {
			return fmt.Errorf("create %s: %w", step.name, err)
		}
	}

	if p.logger != nil {
		p.logger.Info("database schema ready", "embedding_dimension", p.dimension)
	}
	return nil
}

func (p *PostgresClient) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

func (p *PostgresClient) Close() {
	p.Pool.Close()
}
