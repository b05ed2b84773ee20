package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"neowhatai/internal/entities"
	"neowhatai/internal/interfaces"
)

var (
	ErrEmptyDocument   = errors.New("document has no extractable text")
	ErrNothingEmbedded = errors.New("no chunk could be embedded")
)

// IngestResult summarizes one knowledge base replacement.
type IngestResult struct {
	TenantID   string `json:"client_id"`
	Source     string `json:"source"`
	Chunks     int    `json:"chunks_created"`
	Stored     int    `json:"chunks_count"`
	Failed     int    `json:"chunks_failed"`
	TotalWords int    `json:"total_words"`
	TotalChars int    `json:"total_chars"`
	Warning    string `json:"warning,omitempty"`
}

// IngestService chunks and embeds extracted text, then replaces the tenant's documents.
type IngestService struct {
	tenants   interfaces.TenantStore
	docs      interfaces.DocumentStore
	embedder  interfaces.Embedder
	batchSize int
	pacer     *rate.Limiter
	logger    *slog.Logger
}

// NewIngestService paces embedding calls to one batch of batchSize chunks per pause.
func NewIngestService(tenants interfaces.TenantStore, docs interfaces.DocumentStore, embedder interfaces.Embedder, batchSize int, pause time.Duration, logger *slog.Logger) *IngestService {
	if batchSize <= 0 {
		batchSize = 10
	}
	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}
	return &IngestService{
		tenants:   tenants,
		docs:      docs,
		embedder:  embedder,
		batchSize: batchSize,
		pacer:     rate.NewLimiter(limit, 1),
		logger:    logger.With("component", "ingest"),
	}
}

// Ingest replaces the tenant's whole knowledge base with the chunks of text.
// Chunks whose embedding fails are skipped.
func (s *IngestService) Ingest(ctx context.Context, tenantID, source, text string) (*IngestResult, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, fmt.Errorf("ingest for %s: %w", tenantID, err)
	}

	cleaned := CleanText(text)
	if cleaned == "" {
		return nil, ErrEmptyDocument
	}

	chunks := ChunkText(cleaned)
	result := &IngestResult{
		TenantID:   tenantID,
		Source:     source,
		Chunks:     len(chunks),
		TotalWords: len(strings.Fields(cleaned)),
		TotalChars: len(cleaned),
	}
	if len(chunks) == 1 {
		result.Warning = "Un seul chunk créé, le document est peut-être trop court pour une recherche optimale"
	}

	log := s.logger.With("tenant_id", tenantID, "source", source)
	log.Info("chunking done", "chunks", len(chunks), "words", result.TotalWords)

	docs := make([]entities.Document, 0, len(chunks))
	for i, chunk := range chunks {
		if i%s.batchSize == 0 {
			if err := s.pacer.Wait(ctx); err != nil {
				return nil, err
			}
		}

		embedding, err := s.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Error("embedding failed, skipping chunk", "chunk", chunk.Index, "error", err)
			result.Failed++
			continue
		}

		docs = append(docs, entities.Document{
			TenantID:  tenantID,
			Content:   chunk.Text,
			Embedding: embedding,
			Metadata: entities.DocumentMetadata{
				Source:      source,
				ChunkIndex:  chunk.Index,
				TotalChunks: len(chunks),
				Tokens:      chunk.Tokens,
			},
		})
	}

	if len(docs) == 0 {
		return nil, ErrNothingEmbedded
	}
	if err := s.docs.ReplaceForTenant(ctx, tenantID, docs); err != nil {
		return nil, fmt.Errorf("store chunks: %w", err)
	}

	result.Stored = len(docs)
	log.Info("knowledge base replaced", "stored", result.Stored, "failed", result.Failed)
	return result, nil
}
