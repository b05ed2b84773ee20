package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"neowhatai/internal/entities"
)

type DocumentRepository struct {
	db *pgxpool.Pool
}

func NewDocumentRepository(db *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// CountEmbedded counts the tenant's chunks that carry an embedding.
func (r *DocumentRepository) CountEmbedded(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM documents WHERE client_id = $1::uuid AND embedding IS NOT NULL",
		tenantID).Scan(&n)
	return n, wrapQueryError("count documents", err)
}

// MatchDocuments runs a cosine similarity search restricted to one tenant.
// Results have similarity strictly above threshold, best first.
func (r *DocumentRepository) MatchDocuments(ctx context.Context, tenantID string, embedding []float32, threshold float64, count int) ([]entities.RetrievedPassage, error) {
	rows, err := r.db.Query(ctx,
		"SELECT content, similarity FROM match_documents($1::vector, $2::uuid, $3, $4)",
		VectorLiteral(embedding), tenantID, threshold, count)
	if err != nil {
		return nil, wrapQueryError("match documents", err)
	}
	defer rows.Close()

	passages := []entities.RetrievedPassage{}
	for rows.Next() {
		var p entities.RetrievedPassage
		if err := rows.Scan(&p.Content, &p.Similarity); err != nil {
			return nil, err
		}
		passages = append(passages, p)
	}
	return passages, rows.Err()
}

// SearchText returns chunk contents containing term, case-insensitively.
func (r *DocumentRepository) SearchText(ctx context.Context, tenantID, term string, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT content FROM documents
		WHERE client_id = $1::uuid AND content ILIKE '%' || $2 || '%'
		ORDER BY created_at ASC
		LIMIT $3`,
		tenantID, escapeLike(term), limit)
	if err != nil {
		return nil, wrapQueryError("search documents", err)
	}
	defer rows.Close()

	contents := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		contents = append(contents, c)
	}
	return contents, rows.Err()
}

// ReplaceForTenant swaps the tenant's whole knowledge base in one transaction.
func (r *DocumentRepository) ReplaceForTenant(ctx context.Context, tenantID string, docs []entities.Document) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM documents WHERE client_id = $1::uuid", tenantID); err != nil {
		return wrapQueryError("clear documents", err)
	}

	for i := range docs {
		doc := &docs[i]
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata for chunk %d: %w", i, err)
		}
		var embedding interface{}
		if len(doc.Embedding) > 0 {
			embedding = VectorLiteral(doc.Embedding)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO documents (id, client_id, content, embedding, metadata)
			VALUES ($1::uuid, $2::uuid, $3, $4::vector, $5::jsonb)`,
			doc.ID, tenantID, doc.Content, embedding, string(meta)); err != nil {
			return wrapQueryError(fmt.Sprintf("insert chunk %d", i), err)
		}
	}

	return tx.Commit(ctx)
}

func (r *DocumentRepository) DeleteForTenant(ctx context.Context, tenantID string) (int64, error) {
	tag, err := r.db.Exec(ctx, "DELETE FROM documents WHERE client_id = $1::uuid", tenantID)
	if err != nil {
		return 0, wrapQueryError("delete documents", err)
	}
	return tag.RowsAffected(), nil
}

func (r *DocumentRepository) ListSources(ctx context.Context, tenantID string) ([]entities.DocumentSource, error) {
	rows, err := r.db.Query(ctx, `
		SELECT COALESCE(metadata->>'source', ''), COUNT(*)
		FROM documents
		WHERE client_id = $1::uuid
		GROUP BY 1
		ORDER BY 1`, tenantID)
	if err != nil {
		return nil, wrapQueryError("list sources", err)
	}
	defer rows.Close()

	sources := []entities.DocumentSource{}
	for rows.Next() {
		var s entities.DocumentSource
		if err := rows.Scan(&s.Source, &s.Chunks); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// VectorLiteral renders an embedding in pgvector's text format, for use with a ::vector cast.
func VectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.Grow(len(v) * 10)
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}
