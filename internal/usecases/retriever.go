package usecases

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"neowhatai/internal/entities"
	"neowhatai/internal/interfaces"
)

// RetrievalSource tells where the context of a Retrieval came from.
type RetrievalSource string

const (
	SourceNone         RetrievalSource = "none"
	SourceVector       RetrievalSource = "vector"
	SourceVectorText   RetrievalSource = "vector+text"
	SourceTextFallback RetrievalSource = "text"
)

// RetrievalConfig holds the tuning constants of ContextRetriever.
type RetrievalConfig struct {
	Thresholds []float64 // Descending; the first one with a match wins
	MatchCount int
	TopN       int

	TermSearchLimit     int
	EnrichmentMax       int
	EnrichmentPrefix    int
	FallbackMax         int
	FallbackPrefix      int
	FallbackDefaultTerm string
}

func DefaultRetrievalConfig() RetrievalConfig {
	return RetrievalConfig{
		Thresholds:          []float64{0.7, 0.6, 0.5, 0.4, 0.3, 0.25},
		MatchCount:          8,
		TopN:                5,
		TermSearchLimit:     5,
		EnrichmentMax:       5,
		EnrichmentPrefix:    100,
		FallbackMax:         5,
		FallbackPrefix:      50,
		FallbackDefaultTerm: "formule",
	}
}

// Retrieval is the knowledge gathered for one question. An empty Context is a valid outcome.
type Retrieval struct {
	Context       string
	HasDocuments  bool
	DocumentCount int
	Passages      []entities.RetrievedPassage
	ThresholdUsed float64
	Source        RetrievalSource
}

// ContextRetriever finds tenant knowledge relevant to a question.
type ContextRetriever struct {
	docs     interfaces.DocumentStore
	embedder interfaces.Embedder
	cfg      RetrievalConfig
	logger   *slog.Logger
}

func NewContextRetriever(docs interfaces.DocumentStore, embedder interfaces.Embedder, cfg RetrievalConfig, logger *slog.Logger) *ContextRetriever {
	return &ContextRetriever{
		docs:     docs,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.With("component", "retriever"),
	}
}

// Retrieve never fails: backend errors are logged and degrade to less context.
func (r *ContextRetriever) Retrieve(ctx context.Context, tenantID, question string) Retrieval {
	log := r.logger.With("tenant_id", tenantID)
	result := Retrieval{Source: SourceNone}

	count, err := r.docs.CountEmbedded(ctx, tenantID)
	if err != nil {
		log.Error("count embedded documents failed", "error", err)
		count = 0
	}
	if count == 0 {
		log.Info("tenant has no embedded documents")
		return result
	}
	result.HasDocuments = true
	result.DocumentCount = count

	embedding, err := r.embedder.Embed(ctx, question)
	if err != nil {
		log.Error("embed question failed", "error", err)
	} else {
		result.Passages, result.ThresholdUsed = r.vectorSearch(ctx, log, tenantID, embedding)
	}

	if len(result.Passages) > 0 {
		result.Context = joinPassages(result.Passages)
		result.Source = SourceVector

		if IsFactual(question) {
			if extra := r.enrich(ctx, log, tenantID, question, result.Context); len(extra) > 0 {
				result.Context += "\n\n" + strings.Join(extra, "\n\n")
				result.Source = SourceVectorText
			}
		}
	}

	if result.Context == "" && isFallbackFactual(question) {
		if found := r.textFallback(ctx, log, tenantID, question); len(found) > 0 {
			result.Context = strings.Join(found, "\n\n")
			result.Source = SourceTextFallback
		}
	}

	log.Info("context retrieved",
		"source", result.Source,
		"passages", len(result.Passages),
		"threshold", result.ThresholdUsed,
		"context_length", len(result.Context))
	return result
}

// vectorSearch walks the thresholds downward and stops at the first hit.
// A search error aborts the walk.
func (r *ContextRetriever) vectorSearch(ctx context.Context, log *slog.Logger, tenantID string, embedding []float32) ([]entities.RetrievedPassage, float64) {
	for _, threshold := range r.cfg.Thresholds {
		matches, err := r.docs.MatchDocuments(ctx, tenantID, embedding, threshold, r.cfg.MatchCount)
		if err != nil {
			log.Error("vector search failed", "threshold", threshold, "error", err)
			return nil, 0
		}
		if len(matches) == 0 {
			continue
		}

		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].Similarity > matches[j].Similarity
		})
		if len(matches) > r.cfg.TopN {
			matches = matches[:r.cfg.TopN]
		}
		return matches, threshold
	}
	return nil, 0
}

func joinPassages(passages []entities.RetrievedPassage) string {
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = p.Content
	}
	return strings.Join(parts, "\n\n")
}

// enrich returns text-search passages to append to a vector context.
func (r *ContextRetriever) enrich(ctx context.Context, log *slog.Logger, tenantID, question, vectorContext string) []string {
	words := enrichmentTerms.All(question)
	if len(words) == 0 {
		return nil
	}

	// Any significant word already in the vector context counts, not only the searched ones.
	covered := containsAny(strings.ToLower(vectorContext), words)
	if covered && !containsAny(strings.ToLower(question), enrichmentTriggers) {
		return nil
	}

	terms := words
	if len(terms) > enrichmentTerms.MaxTerms {
		terms = terms[:enrichmentTerms.MaxTerms]
	}

	seen := map[string]struct{}{}
	extra := []string{}
	for _, term := range terms {
		contents, err := r.docs.SearchText(ctx, tenantID, term, r.cfg.TermSearchLimit)
		if err != nil {
			log.Warn("enrichment search failed", "term", term, "error", err)
			continue
		}
		for _, content := range contents {
			key := prefixKey(content, r.cfg.EnrichmentPrefix)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if !containsAny(strings.ToLower(content), terms) {
				continue
			}
			extra = append(extra, content)
			if len(extra) == r.cfg.EnrichmentMax {
				return extra
			}
		}
	}
	return extra
}

// textFallback builds a whole context from substring search when vectors found nothing.
func (r *ContextRetriever) textFallback(ctx context.Context, log *slog.Logger, tenantID, question string) []string {
	terms := fallbackTerms.Extract(question)
	if len(terms) == 0 {
		terms = []string{r.cfg.FallbackDefaultTerm}
	}

	seen := map[string]struct{}{}
	found := []string{}
	for _, term := range terms {
		contents, err := r.docs.SearchText(ctx, tenantID, term, r.cfg.TermSearchLimit)
		if err != nil {
			log.Warn("fallback search failed", "term", term, "error", err)
			continue
		}
		for _, content := range contents {
			key := prefixKey(content, r.cfg.FallbackPrefix)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			found = append(found, content)
			if len(found) == r.cfg.FallbackMax {
				return found
			}
		}
	}
	return found
}
