package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"neowhatai/internal/entities"
)

var errNotAnObject = errors.New("webhook payload is not a JSON object")

// handledEvents are the gateway event names that carry an inbound message.
var handledEvents = map[string]struct{}{
	"messages.received":                 {},
	"message.received":                  {},
	"webhook-message-received":          {},
	"webhook-personal-message-received": {},
	"message":                           {},
	"webhook.message.received":          {},
	"personal.message.received":         {},
}

// WebhookPayload is a decoded gateway delivery. Gateways disagree on the
// shape, so fields are located through an extraction plan.
type WebhookPayload struct {
	root    map[string]interface{}
	data    interface{} // root.data, or root
	message interface{} // data.messages, data.message, or data
	header  http.Header
}

// ParsePayload decodes body. Numbers are kept in their textual form.
func ParsePayload(body []byte, header http.Header) (*WebhookPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	root, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errNotAnObject
	}

	p := &WebhookPayload{root: root, header: header}
	p.data = firstPresent(root["data"], root)
	p.message = firstPresent(lookup(p.data, "messages"), lookup(p.data, "message"), p.data)
	return p, nil
}

// Event reads the event name from "event", then "type", then "event_type".
func (p *WebhookPayload) Event() string {
	for _, key := range []string{"event", "type", "event_type"} {
		if s := asString(p.root[key]); s != "" {
			return s
		}
	}
	return ""
}

// Handled reports whether the event is an inbound message. Matching is exact.
func (p *WebhookPayload) Handled() bool {
	_, ok := handledEvents[p.Event()]
	return ok
}

// Message runs the extraction plan.
func (p *WebhookPayload) Message() entities.InboundMessage {
	return entities.InboundMessage{
		SenderPhone: senderPlan.extract(p),
		Text:        textPlan.extract(p),
		MessageID:   messageIDPlan.extract(p),
		SessionHint: sessionPlan.extract(p),
		Event:       p.Event(),
	}
}

// extractor pulls one candidate value; empty means "not here".
type extractor func(p *WebhookPayload) string

// fieldPlan lists extractors in priority order. The first non-empty value wins.
type fieldPlan []extractor

func (fp fieldPlan) extract(p *WebhookPayload) string {
	for _, e := range fp {
		if v := e(p); v != "" {
			return v
		}
	}
	return ""
}

func fromRoot(path ...string) extractor {
	return func(p *WebhookPayload) string { return asString(lookup(p.root, path...)) }
}

func fromData(path ...string) extractor {
	return func(p *WebhookPayload) string { return asString(lookup(p.data, path...)) }
}

func fromMessage(path ...string) extractor {
	return func(p *WebhookPayload) string { return asString(lookup(p.message, path...)) }
}

func fromHeader(name string) extractor {
	return func(p *WebhookPayload) string { return p.header.Get(name) }
}

// chatID derives a phone number from a chat id such as "2250705223228@s.whatsapp.net".
func chatID(path ...string) extractor {
	return func(p *WebhookPayload) string {
		id := asString(lookup(p.message, path...))
		id = strings.Replace(id, "@lid", "", 1)
		return strings.Replace(id, "@s.whatsapp.net", "", 1)
	}
}

var (
	senderPlan = fieldPlan{
		fromMessage("key", "cleanedParticipantPn"),
		fromMessage("key", "cleanedSenderPn"),
		chatID("key", "remoteJid"),
		fromData("from"),
		fromData("phone_number"),
		fromData("phone"),
		fromData("from_number"),
		fromRoot("from"),
	}

	textPlan = fieldPlan{
		fromMessage("messageBody"),
		fromMessage("message", "conversation"),
		fromMessage("message", "extendedTextMessage", "text"),
		fromMessage("body"),
		fromMessage("text"),
		fromData("message", "body"),
		fromData("message", "text", "body"),
		fromData("message", "text"),
		fromData("body"),
		fromData("text", "body"),
		fromData("text"),
		fromData("content"),
		fromRoot("message", "body"),
		fromRoot("message", "text", "body"),
		fromRoot("body"),
	}

	messageIDPlan = fieldPlan{
		fromMessage("key", "id"),
		fromMessage("id"),
		fromData("message", "id"),
		fromData("id"),
		fromData("message_id"),
		fromRoot("message_id"),
	}

	sessionPlan = fieldPlan{
		fromRoot("session_id"),
		fromRoot("sessionId"),
		fromData("session_id"),
		fromData("sessionId"),
		fromData("session", "id"),
		fromHeader("X-Session-Id"),
		fromHeader("Session-Id"),
		fromHeader("X-Whatsapp-Session-Id"),
	}
)

// lookup walks nested objects. Anything that is not an object on the way yields nil.
func lookup(v interface{}, path ...string) interface{} {
	for _, key := range path {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil
		}
		v = m[key]
	}
	return v
}

// firstPresent returns the first value that is neither nil, false, zero nor an empty string.
func firstPresent(values ...interface{}) interface{} {
	for _, v := range values {
		switch t := v.(type) {
		case nil:
			continue
		case string:
			if t == "" {
				continue
			}
		case bool:
			if !t {
				continue
			}
		case json.Number:
			if t.String() == "0" {
				continue
			}
		}
		return v
	}
	return nil
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
