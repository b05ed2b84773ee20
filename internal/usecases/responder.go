package usecases

import (
	"context"
	"errors"
	"log/slog"

	"neowhatai/internal/entities"
	"neowhatai/internal/infrastructure"
	"neowhatai/internal/interfaces"
)

// ErrNoSession means no session was resolvable for the reply, so nothing was sent.
var ErrNoSession = errors.New("no outbound session")

// ResponderConfig carries the startup-resolved defaults of Responder.
type ResponderConfig struct {
	Model               string
	DefaultLLMKey       string
	DefaultGatewayToken string
	DefaultErrorMessage string
}

// Reply is the outcome of answering one question.
type Reply struct {
	Text     string
	Degraded bool // Text is the apology message
	Sent     bool
	SendErr  error
	Logged   bool
	LogErr   error
}

// Responder generates the answer, sends it and records the exchange.
type Responder struct {
	completer interfaces.Completer
	messenger interfaces.Messenger
	logs      interfaces.LogStore
	cfg       ResponderConfig
	logger    *slog.Logger
}

func NewResponder(completer interfaces.Completer, messenger interfaces.Messenger, logs interfaces.LogStore, cfg ResponderConfig, logger *slog.Logger) *Responder {
	return &Responder{
		completer: completer,
		messenger: messenger,
		logs:      logs,
		cfg:       cfg,
		logger:    logger.With("component", "responder"),
	}
}

// Respond never fails: generation, send and log errors are reported in Reply.
func (r *Responder) Respond(ctx context.Context, tenant *entities.Tenant, msg entities.InboundMessage, messages []entities.ChatMessage) Reply {
	log := r.logger.With("tenant_id", tenant.ID, "message_id", msg.MessageID)
	reply := Reply{}

	text, err := r.completer.Complete(ctx, messages, interfaces.CompletionOptions{
		Model:       r.cfg.Model,
		Temperature: 0,
		APIKey:      entities.Resolve(tenant.LLMKey, r.cfg.DefaultLLMKey),
	})
	if err != nil {
		log.Error("completion failed, sending apology", "error", err)
		text = r.cfg.DefaultErrorMessage
		reply.Degraded = true
	}
	reply.Text = text

	reply.SendErr = r.send(ctx, tenant, msg, text)
	switch {
	case reply.SendErr == nil:
		reply.Sent = true
		log.Info("reply sent", "to", msg.SenderPhone, "length", len(text))
	case errors.Is(reply.SendErr, ErrNoSession), errors.Is(reply.SendErr, infrastructure.ErrGatewayUnavailable):
		log.Warn("reply not sent", "reason", reply.SendErr)
	default:
		log.Error("reply send failed", "error", reply.SendErr)
	}

	reply.LogErr = r.logs.Insert(ctx, &entities.ConversationLog{
		TenantID:   tenant.ID,
		UserPhone:  msg.SenderPhone,
		MessageIn:  msg.Text,
		MessageOut: text,
	})
	if reply.LogErr != nil {
		log.Error("conversation log write failed", "error", reply.LogErr)
	} else {
		reply.Logged = true
	}
	return reply
}

func (r *Responder) send(ctx context.Context, tenant *entities.Tenant, msg entities.InboundMessage, text string) error {
	session, ok := entities.Resolve(tenant.SessionID, msg.SessionHint).Get()
	if !ok {
		return ErrNoSession
	}
	return r.messenger.Send(ctx, entities.OutboundMessage{
		SessionID: session,
		Token:     entities.Resolve(tenant.GatewayToken, r.cfg.DefaultGatewayToken),
		To:        msg.SenderPhone,
		Text:      text,
	})
}
