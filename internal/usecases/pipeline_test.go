package usecases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neowhatai/internal/config"
	"neowhatai/internal/entities"
)

type pipelineFixture struct {
	tenants   *fakeTenants
	docs      *fakeDocs
	ledger    *fakeLedger
	logs      *fakeLogs
	completer *fakeCompleter
	messenger *fakeMessenger
	pipeline  *Pipeline
}

func newPipelineFixture(globalSecret string, tenants ...*entities.Tenant) *pipelineFixture {
	f := &pipelineFixture{
		tenants:   newFakeTenants(tenants...),
		docs:      newFakeDocs(),
		ledger:    newFakeLedger(),
		logs:      &fakeLogs{},
		completer: &fakeCompleter{Reply: "Réponse"},
		messenger: &fakeMessenger{},
	}
	logger := config.Discard()
	responder := NewResponder(f.completer, f.messenger, f.logs, ResponderConfig{
		Model:               "deepseek/deepseek-chat",
		DefaultGatewayToken: "global-token",
		DefaultErrorMessage: apology,
	}, logger)
	f.pipeline = NewPipeline(
		f.ledger,
		NewTenantResolver(f.tenants, true, logger),
		NewSignatureVerifier(globalSecret, false, logger),
		NewContextRetriever(f.docs, &fakeEmbedder{}, DefaultRetrievalConfig(), logger),
		NewConversationAssembler(),
		responder,
		f.logs,
		3,
		logger,
	)
	return f
}

func webhookDelivery(session, messageID, text string) Delivery {
	return Delivery{
		Message: entities.InboundMessage{
			SenderPhone: "2250705223228",
			Text:        text,
			MessageID:   messageID,
			SessionHint: session,
		},
		Source: DeliveryWebhook,
	}
}

func TestPipelineEarlyExits(t *testing.T) {
	resto := &entities.Tenant{ID: "t-resto", SessionID: "sess-resto", IsActive: true, WebhookSecret: "s3cret"}

	tests := []struct {
		name       string
		delivery   Delivery
		wantReason Reason
		wantStage  Stage
	}{
		{"missing text", webhookDelivery("sess-resto", "m1", ""), ReasonMissingData, StageDataExtracted},
		{"unknown session", webhookDelivery("sess-other", "m2", "Bonjour"), ReasonClientNotFound, StageDuplicateChecked},
		{"bad signature", webhookDelivery("sess-resto", "m3", "Bonjour"), ReasonInvalidSignature, StageTenantResolved},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture("", resto)

			out := f.pipeline.Handle(context.Background(), tt.delivery)

			assert.Equal(t, tt.wantReason, out.Reason)
			assert.Equal(t, tt.wantStage, out.Stage)
			assert.False(t, out.Processed())
			assert.Empty(t, f.completer.calls)
			assert.Zero(t, f.messenger.count())
			assert.Empty(t, f.logs.forTenant("t-resto"))
			assert.Empty(t, f.ledger.seen, "early exits never consume the message id")
		})
	}
}

func TestPipelineSignatureFailureIsFlagged(t *testing.T) {
	f := newPipelineFixture("global", &entities.Tenant{ID: "t1", SessionID: "s1", IsActive: true})

	d := webhookDelivery("s1", "m1", "Bonjour")
	d.Signature = "wrong"
	out := f.pipeline.Handle(context.Background(), d)
	assert.True(t, out.IsSignatureFailure())

	d.Signature = "global"
	out = f.pipeline.Handle(context.Background(), d)
	assert.True(t, out.Processed())
}

func TestPipelineDirectDeliveryBypassesSignature(t *testing.T) {
	f := newPipelineFixture("", &entities.Tenant{ID: "t1", SessionID: "s1", IsActive: true, WebhookSecret: "s3cret"})

	d := webhookDelivery("s1", "m1", "Bonjour")
	d.Source = DeliveryDirect
	out := f.pipeline.Handle(context.Background(), d)

	assert.True(t, out.Processed())
	assert.Equal(t, StageAcknowledged, out.Stage)
}

func TestPipelineIdempotency(t *testing.T) {
	f := newPipelineFixture("", &entities.Tenant{ID: "t1", SessionID: "s1", IsActive: true})
	ctx := context.Background()

	first := f.pipeline.Handle(ctx, webhookDelivery("s1", "wamid.1", "Bonjour"))
	second := f.pipeline.Handle(ctx, webhookDelivery("s1", "wamid.1", "Bonjour"))

	assert.True(t, first.Processed())
	assert.Equal(t, ReasonDuplicate, second.Reason)
	assert.Equal(t, StageDuplicateChecked, second.Stage)
	assert.Len(t, f.logs.forTenant("t1"), 1)
	assert.Equal(t, 1, f.messenger.count())
}

func TestPipelineConcurrentDuplicates(t *testing.T) {
	f := newPipelineFixture("", &entities.Tenant{ID: "t1", SessionID: "s1", IsActive: true})
	f.ledger.Delay = 20 * time.Millisecond // every delivery passes the check before any insert

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 10)
	for i := range outcomes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = f.pipeline.Handle(context.Background(), webhookDelivery("s1", "wamid.race", "Bonjour"))
		}(i)
	}
	wg.Wait()

	processed := 0
	for _, out := range outcomes {
		if out.Processed() {
			processed++
		} else {
			assert.Equal(t, ReasonDuplicate, out.Reason)
		}
	}
	assert.Equal(t, 1, processed)
	assert.Len(t, f.logs.forTenant("t1"), 1)
	assert.Equal(t, 1, f.messenger.count())
}

func TestPipelineWithoutMessageIDAlwaysProcesses(t *testing.T) {
	f := newPipelineFixture("", &entities.Tenant{ID: "t1", SessionID: "s1", IsActive: true})

	for i := 0; i < 2; i++ {
		out := f.pipeline.Handle(context.Background(), webhookDelivery("s1", "", "Bonjour"))
		assert.True(t, out.Processed())
	}
	assert.Len(t, f.logs.forTenant("t1"), 2)
	assert.Empty(t, f.ledger.seen)
}

func TestPipelineLedgerFailureIsNotFatal(t *testing.T) {
	f := newPipelineFixture("", &entities.Tenant{ID: "t1", SessionID: "s1", IsActive: true})
	f.ledger.CheckErr = errors.New("timeout")
	f.ledger.MarkErr = errors.New("timeout")

	out := f.pipeline.Handle(context.Background(), webhookDelivery("s1", "m1", "Bonjour"))
	assert.True(t, out.Processed())
	assert.Len(t, f.logs.forTenant("t1"), 1)
}

func TestPipelineTenantIsolation(t *testing.T) {
	resto := &entities.Tenant{ID: "t-resto", SessionID: "sess-resto", IsActive: true}
	garage := &entities.Tenant{ID: "t-garage", SessionID: "sess-garage", IsActive: true}
	f := newPipelineFixture("", resto, garage)
	f.docs.add("t-resto", fakeDoc{"Formule Express 14,50€", 0.9})
	f.docs.add("t-garage", fakeDoc{"Vidange : prix 89€", 0.9})

	out := f.pipeline.Handle(context.Background(), webhookDelivery("sess-garage", "m1", "Quel est le prix ?"))

	require.True(t, out.Processed())
	assert.Equal(t, "t-garage", out.Tenant.ID)
	assert.NotContains(t, out.Retrieval.Context, "Express")
	for _, term := range f.docs.Searched {
		assert.Contains(t, term, "t-garage:")
	}
	assert.Empty(t, f.logs.forTenant("t-resto"))
	assert.Len(t, f.logs.forTenant("t-garage"), 1)
	assert.Equal(t, "sess-garage", f.messenger.sent[0].SessionID)
}

func TestPipelineHistoryIsScopedToSender(t *testing.T) {
	f := newPipelineFixture("", &entities.Tenant{ID: "t1", SessionID: "s1", IsActive: true})
	ctx := context.Background()

	for _, text := range []string{"Un", "Deux", "Trois", "Quatre"} {
		f.pipeline.Handle(ctx, webhookDelivery("s1", "m"+text, text))
	}
	other := webhookDelivery("s1", "m-other", "Autre")
	other.Message.SenderPhone = "33600000000"
	f.pipeline.Handle(ctx, other)

	f.pipeline.Handle(ctx, webhookDelivery("s1", "m-last", "Cinq"))

	last := f.completer.calls[len(f.completer.calls)-1].Messages
	require.Len(t, last, 1+2*3+1)
	assert.Equal(t, "Deux", last[1].Content)
	assert.Equal(t, "Quatre", last[5].Content)
	assert.Equal(t, "Cinq", last[7].Content)
}

// Scenario: a restaurant tenant with one active session is asked for the Express price.
func TestScenarioExpressPrice(t *testing.T) {
	f := newPipelineFixture("", &entities.Tenant{ID: "t-resto", SessionID: "sess-resto", IsActive: true})
	f.docs.add("t-resto",
		fakeDoc{"Bienvenue au Bistrot, cuisine maison", 0.3},
		fakeDoc{"Formules du Midi : Formule Express 14,50€ (plat + café)", 0.2},
	)
	f.completer.Echo = "14,50"

	// No session hint: the single active tenant is used.
	out := f.pipeline.Handle(context.Background(), webhookDelivery("", "wamid.express", "Quel est le prix du menu Express?"))

	require.True(t, out.Processed())
	assert.Equal(t, BranchFactual, out.Branch)
	assert.Contains(t, out.Retrieval.Context, "Formule Express 14,50€")

	entries := f.logs.forTenant("t-resto")
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].MessageOut, "14,50")
	assert.Equal(t, "Quel est le prix du menu Express?", entries[0].MessageIn)
}

// Scenario: the same question for a tenant without any document.
func TestScenarioNoKnowledgeBase(t *testing.T) {
	f := newPipelineFixture("", &entities.Tenant{ID: "t-resto", SessionID: "sess-resto", IsActive: true})

	out := f.pipeline.Handle(context.Background(), webhookDelivery("sess-resto", "wamid.empty", "Quel est le prix du menu Express?"))

	require.True(t, out.Processed())
	assert.Equal(t, "", out.Retrieval.Context)
	assert.Equal(t, BranchNoKnowledgeBase, out.Branch)
	assert.Contains(t, f.completer.calls[0].Messages[0].Content, "Aucun document n'a encore été importé")
	assert.Empty(t, f.docs.Thresholds)
}
