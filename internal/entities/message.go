package entities

import "time"

// InboundMessage is the normalized view of one webhook delivery. It is never persisted.
type InboundMessage struct {
	SenderPhone string
	Text        string
	MessageID   string // Empty disables idempotency for this delivery
	SessionHint string
	Event       string
}

// Valid reports whether the delivery carries enough data to be answered.
func (m InboundMessage) Valid() bool {
	return m.SenderPhone != "" && m.Text != ""
}

// ProcessedMessage is the idempotency marker for an inbound message id.
type ProcessedMessage struct {
	MessageID  string    `json:"message_id"`
	TenantID   string    `json:"client_id"`
	RecordedAt time.Time `json:"processed_at"`
}

// ConversationLog is one persisted question/answer exchange.
type ConversationLog struct {
	ID         int64     `json:"id"`
	TenantID   string    `json:"client_id"`
	UserPhone  string    `json:"user_phone"`
	MessageIn  string    `json:"message_in"`
	MessageOut string    `json:"message_out"`
	TokensUsed *int      `json:"tokens_used,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of the message list sent to the language model.
type ChatMessage struct {
	Role    Role
	Content string
}

// OutboundMessage is a reply ready for the messaging gateway.
type OutboundMessage struct {
	SessionID string
	Token     Optional[string]
	To        string
	Text      string
}
