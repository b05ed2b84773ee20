package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"neowhatai/internal/entities"
)

var (
	// ErrGatewayUnavailable means no credential or connection exists to send through.
	ErrGatewayUnavailable = errors.New("whatsapp gateway unavailable")
)

// SendError is a non-2xx answer from the WaSender API.
type SendError struct {
	Status  int
	Message string
}

func (e *SendError) Error() string {
	return fmt.Sprintf("wasender error (%d): %s", e.Status, e.Message)
}

// WasenderClient sends WhatsApp messages through the WaSender HTTP API.
type WasenderClient struct {
	baseURL string
	http    *http.Client
	limiter *MessageRateLimiter
	logger  *slog.Logger
}

func NewWasenderClient(baseURL string, limiter *MessageRateLimiter, logger *slog.Logger) *WasenderClient {
	return &WasenderClient{
		baseURL: TrimAPIPath(baseURL),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		logger:  logger,
	}
}

// WithHTTPClient swaps the underlying HTTP client (tests).
func (w *WasenderClient) WithHTTPClient(c *http.Client) *WasenderClient {
	w.http = c
	return w
}

// TrimAPIPath strips a trailing slash and a trailing /api or /api/v1 from the base URL.
func TrimAPIPath(base string) string {
	base = strings.TrimRight(base, "/")
	for _, suffix := range []string{"/api/v1", "/api"} {
		if strings.HasSuffix(base, suffix) {
			return strings.TrimSuffix(base, suffix)
		}
	}
	return base
}

// NormalizePhone keeps E.164 numbers as-is and otherwise prefixes "+" to the digits.
func NormalizePhone(to string) string {
	if strings.HasPrefix(to, "+") {
		return to
	}
	var sb strings.Builder
	sb.WriteByte('+')
	for _, r := range to {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func (w *WasenderClient) Send(ctx context.Context, msg entities.OutboundMessage) error {
	token, ok := msg.Token.Get()
	if !ok {
		return fmt.Errorf("%w: no wasender api key", ErrGatewayUnavailable)
	}

	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, msg.SessionID); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	payload := map[string]string{
		"to":   NormalizePhone(msg.To),
		"text": msg.Text,
	}
	_, err := w.do(ctx, http.MethodPost, "/api/send-message", token, payload)
	if err != nil {
		return err
	}

	w.logger.Debug("wasender message sent", "session_id", msg.SessionID, "to", payload["to"], "length", len(msg.Text))
	return nil
}

// SessionDetails fetches the gateway's view of a session (status, phone number).
func (w *WasenderClient) SessionDetails(ctx context.Context, sessionID string, token entities.Optional[string]) (map[string]interface{}, error) {
	key, ok := token.Get()
	if !ok {
		return nil, fmt.Errorf("%w: no wasender api key", ErrGatewayUnavailable)
	}
	body, err := w.do(ctx, http.MethodGet, "/api/v1/sessions/"+sessionID, key, nil)
	if err != nil {
		return nil, err
	}
	var details map[string]interface{}
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("decode session details: %w", err)
	}
	return details, nil
}

func (w *WasenderClient) do(ctx context.Context, method, path, token string, payload interface{}) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, w.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wasender request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SendError{Status: resp.StatusCode, Message: errorMessage(body, resp.StatusCode)}
	}
	return body, nil
}

// errorMessage prefers the JSON "message", then "error", then the raw body.
func errorMessage(body []byte, status int) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
		return fmt.Sprintf("status %d", status)
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
