package interfaces

import (
	"context"

	"neowhatai/internal/entities"
)

// TenantStore reads and manages tenant configurations.
type TenantStore interface {
	Get(ctx context.Context, id string) (*entities.Tenant, error)
	GetActiveBySession(ctx context.Context, sessionID string) (*entities.Tenant, error)
	ListActive(ctx context.Context, limit int) ([]entities.Tenant, error)
	List(ctx context.Context) ([]entities.TenantSummary, error)
	Create(ctx context.Context, tenant *entities.Tenant) error
	Update(ctx context.Context, tenant *entities.Tenant) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (total, active int, err error)
}

// DocumentStore holds the embedded knowledge base of every tenant.
type DocumentStore interface {
	CountEmbedded(ctx context.Context, tenantID string) (int, error)
	MatchDocuments(ctx context.Context, tenantID string, embedding []float32, threshold float64, count int) ([]entities.RetrievedPassage, error)
	SearchText(ctx context.Context, tenantID, term string, limit int) ([]string, error)
	ReplaceForTenant(ctx context.Context, tenantID string, docs []entities.Document) error
	DeleteForTenant(ctx context.Context, tenantID string) (int64, error)
	ListSources(ctx context.Context, tenantID string) ([]entities.DocumentSource, error)
}

// Ledger records processed inbound message ids.
type Ledger interface {
	HasProcessed(ctx context.Context, messageID string) (bool, error)
	// MarkProcessed reports false when the id was already recorded.
	MarkProcessed(ctx context.Context, messageID, tenantID string) (bool, error)
}

// LogStore persists question/answer exchanges.
type LogStore interface {
	Insert(ctx context.Context, entry *entities.ConversationLog) error
	// Recent returns the latest exchanges for a tenant and sender, oldest first.
	Recent(ctx context.Context, tenantID, userPhone string, limit int) ([]entities.ConversationLog, error)
	List(ctx context.Context, tenantID string, limit int) ([]entities.ConversationLog, error)
	Count(ctx context.Context, tenantID string) (int, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type CompletionOptions struct {
	Model       string
	Temperature float64
	APIKey      entities.Optional[string]
}

type Completer interface {
	Complete(ctx context.Context, messages []entities.ChatMessage, opts CompletionOptions) (string, error)
}

// Messenger delivers a text reply through a WhatsApp gateway.
type Messenger interface {
	Send(ctx context.Context, msg entities.OutboundMessage) error
}
