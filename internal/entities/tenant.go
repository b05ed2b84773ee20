package entities

import "time"

const DefaultSystemPrompt = "Tu es un assistant utile."

// Tenant is one customer deployment: a WhatsApp session, a knowledge base and a prompt.
type Tenant struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	PhoneID       string    `json:"whatsapp_phone_id" yaml:"whatsapp_phone_id"`
	SessionID     string    `json:"whatsapp_session_id" yaml:"whatsapp_session_id"` // Unique among active tenants
	GatewayToken  string    `json:"-" yaml:"whatsapp_token"`
	WebhookSecret string    `json:"-" yaml:"webhook_secret"`
	LLMKey        string    `json:"-" yaml:"openrouter_key"`
	SystemPrompt  string    `json:"system_prompt" yaml:"system_prompt"`
	IsActive      bool      `json:"is_active" yaml:"-"`
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"-"`
}

// Prompt returns the tenant's system prompt, or the default one when unset.
func (t *Tenant) Prompt() string {
	if t.SystemPrompt == "" {
		return DefaultSystemPrompt
	}
	return t.SystemPrompt
}

// TenantSummary is the admin list view of a tenant.
type TenantSummary struct {
	Tenant
	HasGatewayToken  bool `json:"has_whatsapp_token"`
	HasWebhookSecret bool `json:"has_webhook_secret"`
	HasLLMKey        bool `json:"has_openrouter_key"`
	LogCount         int  `json:"log_count"`
	DocumentCount    int  `json:"document_count"`
}

// Summarize builds the admin view without exposing credentials.
func (t Tenant) Summarize(logCount, docCount int) TenantSummary {
	return TenantSummary{
		Tenant:           t,
		HasGatewayToken:  t.GatewayToken != "",
		HasWebhookSecret: t.WebhookSecret != "",
		HasLLMKey:        t.LLMKey != "",
		LogCount:         logCount,
		DocumentCount:    docCount,
	}
}
