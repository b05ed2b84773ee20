package usecases

import (
	"context"
	"log/slog"

	"neowhatai/internal/entities"
	"neowhatai/internal/interfaces"
)

// Stage is a step of the inbound message state machine.
type Stage int

const (
	StageReceived Stage = iota
	StagePayloadParsed
	StageEventFiltered
	StageDataExtracted
	StageDuplicateChecked
	StageTenantResolved
	StageSignatureVerified
	StageContextRetrieved
	StageResponseGenerated
	StageDispatched
	StageLogged
	StageAcknowledged
)

var stageNames = [...]string{
	"received", "payload_parsed", "event_filtered", "data_extracted", "duplicate_checked",
	"tenant_resolved", "signature_verified", "context_retrieved", "response_generated",
	"dispatched", "logged", "acknowledged",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// Reason explains an early exit. Empty means the message was processed.
type Reason string

const (
	ReasonInvalidPayload   Reason = "invalid_payload"
	ReasonEventNotHandled  Reason = "event_not_handled"
	ReasonMissingData      Reason = "missing_data"
	ReasonDuplicate        Reason = "duplicate"
	ReasonClientNotFound   Reason = "client_not_found"
	ReasonInvalidSignature Reason = "invalid_signature"
)

// DeliverySource tells how a message reached the pipeline.
type DeliverySource string

const (
	DeliveryWebhook DeliverySource = "webhook"
	DeliveryDirect  DeliverySource = "direct" // whatsmeow event, no signature to check
)

// Delivery is one extracted inbound message.
type Delivery struct {
	Message   entities.InboundMessage
	Signature string
	Source    DeliverySource
}

// Outcome is where a delivery stopped and why.
type Outcome struct {
	Stage     Stage
	Reason    Reason
	Tenant    *entities.Tenant
	Retrieval Retrieval
	Branch    Branch
	Reply     *Reply
}

// Processed reports whether the delivery went through the whole pipeline.
func (o Outcome) Processed() bool {
	return o.Reason == ""
}

// IsSignatureFailure reports whether an outcome must be answered with 401.
func (o Outcome) IsSignatureFailure() bool {
	return o.Reason == ReasonInvalidSignature
}

// Pipeline runs one delivery through idempotency, resolution, verification,
// retrieval, generation, dispatch and logging, strictly in that order.
type Pipeline struct {
	ledger       interfaces.Ledger
	resolver     *TenantResolver
	verifier     *SignatureVerifier
	retriever    *ContextRetriever
	assembler    *ConversationAssembler
	responder    *Responder
	logs         interfaces.LogStore
	historyLimit int
	logger       *slog.Logger
}

func NewPipeline(
	ledger interfaces.Ledger,
	resolver *TenantResolver,
	verifier *SignatureVerifier,
	retriever *ContextRetriever,
	assembler *ConversationAssembler,
	responder *Responder,
	logs interfaces.LogStore,
	historyLimit int,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		ledger:       ledger,
		resolver:     resolver,
		verifier:     verifier,
		retriever:    retriever,
		assembler:    assembler,
		responder:    responder,
		logs:         logs,
		historyLimit: historyLimit,
		logger:       logger.With("component", "pipeline"),
	}
}

// Handle processes a delivery that already passed payload parsing and event filtering.
func (p *Pipeline) Handle(ctx context.Context, d Delivery) Outcome {
	msg := d.Message
	log := p.logger.With("message_id", msg.MessageID, "source", d.Source)

	if !msg.Valid() {
		return Outcome{Stage: StageDataExtracted, Reason: ReasonMissingData}
	}

	if msg.MessageID != "" {
		seen, err := p.ledger.HasProcessed(ctx, msg.MessageID)
		if err != nil {
			log.Error("ledger check failed, processing anyway", "error", err)
		} else if seen {
			log.Info("duplicate delivery ignored")
			return Outcome{Stage: StageDuplicateChecked, Reason: ReasonDuplicate}
		}
	}

	tenant, err := p.resolver.Resolve(ctx, msg.SessionHint)
	if err != nil {
		log.Warn("tenant not resolved", "session_id", msg.SessionHint, "from", msg.SenderPhone, "error", err)
		return Outcome{Stage: StageDuplicateChecked, Reason: ReasonClientNotFound}
	}
	log = log.With("tenant_id", tenant.ID)

	if d.Source != DeliveryDirect {
		if _, err := p.verifier.Verify(tenant, d.Signature); err != nil {
			return Outcome{Stage: StageTenantResolved, Reason: ReasonInvalidSignature, Tenant: tenant}
		}
	}

	if msg.MessageID != "" {
		inserted, err := p.ledger.MarkProcessed(ctx, msg.MessageID, tenant.ID)
		switch {
		case err != nil:
			log.Error("ledger insert failed, processing anyway", "error", err)
		case !inserted:
			log.Info("concurrent duplicate delivery ignored")
			return Outcome{Stage: StageSignatureVerified, Reason: ReasonDuplicate, Tenant: tenant}
		}
	}

	retrieval := p.retriever.Retrieve(ctx, tenant.ID, msg.Text)

	history, err := p.logs.Recent(ctx, tenant.ID, msg.SenderPhone, p.historyLimit)
	if err != nil {
		log.Warn("history unavailable", "error", err)
		history = nil
	}
	conversation := p.assembler.Assemble(tenant, retrieval, history, msg.Text)
	log.Info("conversation assembled", "branch", conversation.Branch, "history", len(history))

	reply := p.responder.Respond(ctx, tenant, msg, conversation.Messages)

	log.Info("delivery processed", "sent", reply.Sent, "logged", reply.Logged, "degraded", reply.Degraded)
	return Outcome{
		Stage:     StageAcknowledged,
		Tenant:    tenant,
		Retrieval: retrieval,
		Branch:    conversation.Branch,
		Reply:     &reply,
	}
}
