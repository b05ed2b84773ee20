package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"neowhatai/internal/entities"
	"neowhatai/internal/interfaces"
	"neowhatai/internal/repository"
)

var (
	ErrInvalidTenant  = errors.New("invalid tenant")
	ErrSessionTaken   = errors.New("session already used by an active tenant")
	ErrNoActiveTenant = errors.New("no active tenant")
)

const (
	DefaultLogLimit = 100
	MaxLogLimit     = 500
)

// TenantInput is the writable part of a tenant. Nil fields are left unchanged on update.
type TenantInput struct {
	Name          *string `json:"name"`
	PhoneID       *string `json:"whatsapp_phone_id"`
	SessionID     *string `json:"whatsapp_session_id"`
	GatewayToken  *string `json:"whatsapp_token"`
	WebhookSecret *string `json:"webhook_secret"`
	LLMKey        *string `json:"openrouter_key"`
	SystemPrompt  *string `json:"system_prompt"`
	IsActive      *bool   `json:"is_active"`
}

func (in TenantInput) apply(t *entities.Tenant) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&t.Name, in.Name)
	set(&t.PhoneID, in.PhoneID)
	set(&t.SessionID, in.SessionID)
	set(&t.GatewayToken, in.GatewayToken)
	set(&t.WebhookSecret, in.WebhookSecret)
	set(&t.LLMKey, in.LLMKey)
	if in.SystemPrompt != nil {
		t.SystemPrompt = *in.SystemPrompt
	}
	if in.IsActive != nil {
		t.IsActive = *in.IsActive
	}
}

// Stats is the platform overview of the admin API.
type Stats struct {
	Tenants       int `json:"clients"`
	ActiveTenants int `json:"active_clients"`
	Documents     int `json:"documents"`
	Logs          int `json:"logs"`
}

// TenantDocuments describes a tenant's knowledge base.
type TenantDocuments struct {
	Count   int                       `json:"count"`
	Sources []entities.DocumentSource `json:"sources"`
}

// DashboardUsecase backs the admin API: tenant management, knowledge base and logs.
type DashboardUsecase struct {
	tenants      interfaces.TenantStore
	docs         interfaces.DocumentStore
	logs         interfaces.LogStore
	messenger    interfaces.Messenger
	ingest       *IngestService
	defaultToken string
	logger       *slog.Logger
}

func NewDashboardUsecase(tenants interfaces.TenantStore, docs interfaces.DocumentStore, logs interfaces.LogStore, messenger interfaces.Messenger, ingest *IngestService, defaultToken string, logger *slog.Logger) *DashboardUsecase {
	return &DashboardUsecase{
		tenants:      tenants,
		docs:         docs,
		logs:         logs,
		messenger:    messenger,
		ingest:       ingest,
		defaultToken: defaultToken,
		logger:       logger.With("component", "dashboard"),
	}
}

// Tenant management

func (u *DashboardUsecase) ListTenants(ctx context.Context) ([]entities.TenantSummary, error) {
	return u.tenants.List(ctx)
}

func (u *DashboardUsecase) GetTenant(ctx context.Context, id string) (*entities.TenantSummary, error) {
	t, err := u.tenants.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logCount, err := u.logs.Count(ctx, id)
	if err != nil {
		return nil, err
	}
	docCount, err := u.docs.CountEmbedded(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := t.Summarize(logCount, docCount)
	return &summary, nil
}

func (u *DashboardUsecase) CreateTenant(ctx context.Context, in TenantInput) (*entities.Tenant, error) {
	t := &entities.Tenant{IsActive: true}
	in.apply(t)
	if err := u.validate(ctx, t); err != nil {
		return nil, err
	}
	if err := u.tenants.Create(ctx, t); err != nil {
		return nil, translateConflict(err)
	}
	u.logger.Info("tenant created", "tenant_id", t.ID, "session_id", t.SessionID)
	return t, nil
}

func (u *DashboardUsecase) UpdateTenant(ctx context.Context, id string, in TenantInput) (*entities.Tenant, error) {
	t, err := u.tenants.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	in.apply(t)
	if err := u.validate(ctx, t); err != nil {
		return nil, err
	}
	if err := u.tenants.Update(ctx, t); err != nil {
		return nil, translateConflict(err)
	}
	u.logger.Info("tenant updated", "tenant_id", t.ID)
	return t, nil
}

// DeleteTenant removes the tenant with its documents, logs and ledger entries.
func (u *DashboardUsecase) DeleteTenant(ctx context.Context, id string) error {
	if err := u.tenants.Delete(ctx, id); err != nil {
		return err
	}
	u.logger.Info("tenant deleted", "tenant_id", id)
	return nil
}

func (u *DashboardUsecase) validate(ctx context.Context, t *entities.Tenant) error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTenant)
	}
	if t.SessionID == "" {
		return fmt.Errorf("%w: whatsapp_session_id is required", ErrInvalidTenant)
	}
	if !t.IsActive {
		return nil
	}
	owner, err := u.tenants.GetActiveBySession(ctx, t.SessionID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return err
	case owner.ID != t.ID:
		return fmt.Errorf("%w: %s", ErrSessionTaken, t.SessionID)
	}
	return nil
}

func translateConflict(err error) error {
	if errors.Is(err, repository.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrSessionTaken, err)
	}
	return err
}

// Knowledge base

func (u *DashboardUsecase) Documents(ctx context.Context, tenantID string) (*TenantDocuments, error) {
	if _, err := u.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	count, err := u.docs.CountEmbedded(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	sources, err := u.docs.ListSources(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return &TenantDocuments{Count: count, Sources: sources}, nil
}

func (u *DashboardUsecase) IngestDocument(ctx context.Context, tenantID, source, content string) (*IngestResult, error) {
	return u.ingest.Ingest(ctx, tenantID, source, content)
}

func (u *DashboardUsecase) DeleteDocuments(ctx context.Context, tenantID string) (int64, error) {
	if _, err := u.tenants.Get(ctx, tenantID); err != nil {
		return 0, err
	}
	return u.docs.DeleteForTenant(ctx, tenantID)
}

// Logs and statistics

// Logs lists recent exchanges. A non-positive limit means DefaultLogLimit; larger ones are capped at MaxLogLimit.
func (u *DashboardUsecase) Logs(ctx context.Context, tenantID string, limit int) ([]entities.ConversationLog, error) {
	switch {
	case limit <= 0:
		limit = DefaultLogLimit
	case limit > MaxLogLimit:
		limit = MaxLogLimit
	}
	return u.logs.List(ctx, tenantID, limit)
}

func (u *DashboardUsecase) Stats(ctx context.Context) (*Stats, error) {
	total, active, err := u.tenants.Count(ctx)
	if err != nil {
		return nil, err
	}
	summaries, err := u.tenants.List(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Tenants: total, ActiveTenants: active}
	for _, s := range summaries {
		stats.Documents += s.DocumentCount
		stats.Logs += s.LogCount
	}
	return stats, nil
}

// TestSend delivers text to a phone through the given tenant, or the oldest active one.
func (u *DashboardUsecase) TestSend(ctx context.Context, tenantID, to, text string) (*entities.Tenant, error) {
	var tenant *entities.Tenant
	if tenantID != "" {
		t, err := u.tenants.Get(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		tenant = t
	} else {
		active, err := u.tenants.ListActive(ctx, 1)
		if err != nil {
			return nil, err
		}
		if len(active) == 0 {
			return nil, ErrNoActiveTenant
		}
		tenant = &active[0]
	}

	err := u.messenger.Send(ctx, entities.OutboundMessage{
		SessionID: tenant.SessionID,
		Token:     entities.Resolve(tenant.GatewayToken, u.defaultToken),
		To:        to,
		Text:      text,
	})
	if err != nil {
		return tenant, err
	}
	u.logger.Info("test message sent", "tenant_id", tenant.ID, "to", to)
	return tenant, nil
}
