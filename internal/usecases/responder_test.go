package usecases

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neowhatai/internal/config"
	"neowhatai/internal/entities"
	"neowhatai/internal/infrastructure"
)

const apology = "Désolé, une erreur est survenue."

func newTestResponder(completer *fakeCompleter, messenger *fakeMessenger, logs *fakeLogs) *Responder {
	return NewResponder(completer, messenger, logs, ResponderConfig{
		Model:               "deepseek/deepseek-chat",
		DefaultLLMKey:       "global-llm-key",
		DefaultGatewayToken: "global-token",
		DefaultErrorMessage: apology,
	}, config.Discard())
}

func TestRespondSuccess(t *testing.T) {
	completer := &fakeCompleter{Reply: "La formule Express coûte 14,50€."}
	messenger := &fakeMessenger{}
	logs := &fakeLogs{}
	tenant := &entities.Tenant{ID: "t1", SessionID: "sess-tenant", GatewayToken: "tenant-token"}
	msg := entities.InboundMessage{SenderPhone: "2250705223228", Text: "Prix ?", SessionHint: "sess-hint"}

	reply := newTestResponder(completer, messenger, logs).Respond(context.Background(), tenant, msg, nil)

	assert.Equal(t, "La formule Express coûte 14,50€.", reply.Text)
	assert.True(t, reply.Sent)
	assert.True(t, reply.Logged)
	assert.False(t, reply.Degraded)

	require.Len(t, completer.calls, 1)
	opts := completer.calls[0].Opts
	assert.Equal(t, 0.0, opts.Temperature)
	assert.Equal(t, "deepseek/deepseek-chat", opts.Model)
	assert.Equal(t, "global-llm-key", opts.APIKey.OrElse(""))

	require.Len(t, messenger.sent, 1)
	sent := messenger.sent[0]
	assert.Equal(t, "sess-tenant", sent.SessionID, "tenant session overrides the payload hint")
	assert.Equal(t, "tenant-token", sent.Token.OrElse(""))
	assert.Equal(t, "2250705223228", sent.To)

	entries := logs.forTenant("t1")
	require.Len(t, entries, 1)
	assert.Equal(t, "Prix ?", entries[0].MessageIn)
	assert.Equal(t, "La formule Express coûte 14,50€.", entries[0].MessageOut)
}

func TestRespondCredentialResolution(t *testing.T) {
	completer := &fakeCompleter{Reply: "ok"}
	messenger := &fakeMessenger{}
	tenant := &entities.Tenant{ID: "t1", LLMKey: "tenant-llm-key"}
	msg := entities.InboundMessage{SenderPhone: "1", Text: "hi", SessionHint: "sess-hint"}

	newTestResponder(completer, messenger, &fakeLogs{}).Respond(context.Background(), tenant, msg, nil)

	assert.Equal(t, "tenant-llm-key", completer.calls[0].Opts.APIKey.OrElse(""))
	require.Len(t, messenger.sent, 1)
	assert.Equal(t, "sess-hint", messenger.sent[0].SessionID, "hint is used when the tenant has no session")
	assert.Equal(t, "global-token", messenger.sent[0].Token.OrElse(""))
}

func TestRespondDegradation(t *testing.T) {
	upstream := &infrastructure.SendError{Status: 502, Message: "upstream down"}

	tests := []struct {
		name         string
		completerErr error
		sendErr      error
		insertErr    error
		tenant       entities.Tenant
		wantText     string
		wantSent     bool
		wantSendErr  error
		wantLogged   bool
		wantDegraded bool
	}{
		{
			name:         "completion failure sends the apology",
			completerErr: errors.New("429 rate limited"),
			tenant:       entities.Tenant{ID: "t1", SessionID: "s"},
			wantText:     apology,
			wantSent:     true,
			wantLogged:   true,
			wantDegraded: true,
		},
		{
			name:        "no session skips sending but logs",
			tenant:      entities.Tenant{ID: "t1"},
			wantText:    "answer",
			wantSendErr: ErrNoSession,
			wantLogged:  true,
		},
		{
			name:        "gateway unavailable skips sending but logs",
			sendErr:     fmt.Errorf("send: %w", infrastructure.ErrGatewayUnavailable),
			tenant:      entities.Tenant{ID: "t1", SessionID: "s"},
			wantText:    "answer",
			wantSendErr: infrastructure.ErrGatewayUnavailable,
			wantLogged:  true,
		},
		{
			name:        "send failure still logs",
			sendErr:     upstream,
			tenant:      entities.Tenant{ID: "t1", SessionID: "s"},
			wantText:    "answer",
			wantLogged:  true,
			wantSendErr: upstream,
		},
		{
			name:      "log failure is reported",
			insertErr: errors.New("disk full"),
			tenant:    entities.Tenant{ID: "t1", SessionID: "s"},
			wantText:  "answer",
			wantSent:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{Reply: "answer", Err: tt.completerErr}
			messenger := &fakeMessenger{Err: tt.sendErr}
			logs := &fakeLogs{InsertErr: tt.insertErr}
			msg := entities.InboundMessage{SenderPhone: "2250705223228", Text: "Bonjour"}

			reply := newTestResponder(completer, messenger, logs).Respond(context.Background(), &tt.tenant, msg, nil)

			assert.Equal(t, tt.wantText, reply.Text)
			assert.Equal(t, tt.wantSent, reply.Sent)
			assert.Equal(t, tt.wantLogged, reply.Logged)
			assert.Equal(t, tt.wantDegraded, reply.Degraded)
			if tt.wantSendErr != nil {
				assert.ErrorIs(t, reply.SendErr, tt.wantSendErr)
			} else {
				assert.NoError(t, reply.SendErr)
			}
			if tt.insertErr != nil {
				assert.ErrorIs(t, reply.LogErr, tt.insertErr)
			}
		})
	}
}
