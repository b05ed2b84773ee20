package entities

import "time"

// DocumentMetadata is stored alongside each chunk as JSONB.
type DocumentMetadata struct {
	Source      string `json:"source"`
	Page        int    `json:"page,omitempty"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Tokens      int    `json:"tokens,omitempty"`
}

// Document is one embedded chunk of a tenant's knowledge base.
type Document struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"client_id"`
	Content   string           `json:"content"`
	Embedding []float32        `json:"-"`
	Metadata  DocumentMetadata `json:"metadata"`
	CreatedAt time.Time        `json:"created_at"`
}

// RetrievedPassage is a candidate knowledge fragment for one retrieval call.
// Similarity is only meaningful for vector-search results.
type RetrievedPassage struct {
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// DocumentSource groups a tenant's chunks by ingestion source.
type DocumentSource struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}
