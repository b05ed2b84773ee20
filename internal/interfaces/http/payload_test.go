package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neowhatai/internal/entities"
)

func TestParsePayloadShapes(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		header http.Header
		want   entities.InboundMessage
	}{
		{
			name: "wasender messages.received",
			body: `{"event":"messages.received","sessionId":"sess-1","data":{"messages":{
				"key":{"id":"3EB0A1","remoteJid":"123456@lid","cleanedSenderPn":"2250705223228"},
				"messageBody":"Quel est le prix du menu Express?",
				"message":{"conversation":"ignored"}}}}`,
			want: entities.InboundMessage{
				SenderPhone: "2250705223228",
				Text:        "Quel est le prix du menu Express?",
				MessageID:   "3EB0A1",
				SessionHint: "sess-1",
				Event:       "messages.received",
			},
		},
		{
			name: "group participant wins over sender",
			body: `{"event":"messages.received","data":{"messages":{
				"key":{"id":"g1","cleanedParticipantPn":"33611111111","cleanedSenderPn":"33622222222"},
				"message":{"extendedTextMessage":{"text":"Bonjour"}}}}}`,
			want: entities.InboundMessage{SenderPhone: "33611111111", Text: "Bonjour", MessageID: "g1", Event: "messages.received"},
		},
		{
			name: "chat id fallback strips suffix",
			body: `{"event":"message","data":{"message":{"key":{"remoteJid":"2250705223228@s.whatsapp.net"},"body":"Salut","id":42}}}`,
			want: entities.InboundMessage{SenderPhone: "2250705223228", Text: "Salut", MessageID: "42", Event: "message"},
		},
		{
			name: "flat payload with type and nested text body",
			body: `{"type":"message.received","from":"+33600000000","message":{"text":{"body":"Horaires ?"}},"message_id":"m-9","session_id":"sess-flat"}`,
			want: entities.InboundMessage{SenderPhone: "+33600000000", Text: "Horaires ?", MessageID: "m-9", SessionHint: "sess-flat", Event: "message.received"},
		},
		{
			name: "data aliases and session object",
			body: `{"event_type":"personal.message.received","data":{"phone_number":"22501","content":"Menu ?","session":{"id":"sess-obj"},"id":"d-1"}}`,
			want: entities.InboundMessage{SenderPhone: "22501", Text: "Menu ?", MessageID: "d-1", SessionHint: "sess-obj", Event: "personal.message.received"},
		},
		{
			name:   "session from header",
			body:   `{"event":"message","data":{"from":"22501","text":"Bonjour"}}`,
			header: http.Header{"X-Whatsapp-Session-Id": []string{"sess-header"}},
			want:   entities.InboundMessage{SenderPhone: "22501", Text: "Bonjour", SessionHint: "sess-header", Event: "message"},
		},
		{
			name:   "payload session wins over header",
			body:   `{"event":"message","session_id":"sess-body","data":{"from":"22501","text":"Bonjour"}}`,
			header: http.Header{"X-Session-Id": []string{"sess-header"}},
			want:   entities.InboundMessage{SenderPhone: "22501", Text: "Bonjour", SessionHint: "sess-body", Event: "message"},
		},
		{
			name: "values kept as sent",
			body: `{"event":"message","data":{"from":"22501","text":"  Menu du jour ?\n","id":" m-1 "}}`,
			want: entities.InboundMessage{SenderPhone: "22501", Text: "  Menu du jour ?\n", MessageID: " m-1 ", Event: "message"},
		},
		{
			name: "missing text",
			body: `{"event":"messages.received","data":{"messages":{"key":{"cleanedSenderPn":"22501"},"message":{"imageMessage":{}}}}}`,
			want: entities.InboundMessage{SenderPhone: "22501", Event: "messages.received"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.header
			if header == nil {
				header = http.Header{}
			}
			p, err := ParsePayload([]byte(tt.body), header)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Message())
		})
	}
}

func TestParsePayloadRejectsNonObjects(t *testing.T) {
	for _, body := range []string{``, `not json`, `[1,2]`, `"text"`, `{"event":`} {
		_, err := ParsePayload([]byte(body), http.Header{})
		assert.Error(t, err, body)
	}
}

func TestPayloadEventFilter(t *testing.T) {
	tests := []struct {
		body    string
		event   string
		handled bool
	}{
		{`{"event":"messages.received"}`, "messages.received", true},
		{`{"event":"webhook-personal-message-received"}`, "webhook-personal-message-received", true},
		{`{"type":"webhook.message.received"}`, "webhook.message.received", true},
		{`{"event":"","type":"message"}`, "message", true},
		{`{"event":"Messages.Received"}`, "Messages.Received", false},
		{`{"event":"session.status"}`, "session.status", false},
		{`{"event":42}`, "42", false},
		{`{}`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			p, err := ParsePayload([]byte(tt.body), http.Header{})
			require.NoError(t, err)
			assert.Equal(t, tt.event, p.Event())
			assert.Equal(t, tt.handled, p.Handled())
		})
	}
}
