package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"neowhatai/internal/usecases"
)

// pipelineTimeout bounds one delivery once it is detached from the request.
const pipelineTimeout = 2 * time.Minute

// DeliveryHandler runs an extracted message through the pipeline.
type DeliveryHandler interface {
	Handle(ctx context.Context, d usecases.Delivery) usecases.Outcome
}

type WebhookHandler struct {
	pipeline        DeliveryHandler
	verifyToken     string
	strictHandshake bool
	logger          *slog.Logger
}

func NewWebhookHandler(pipeline DeliveryHandler, verifyToken string, strictHandshake bool, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		pipeline:        pipeline,
		verifyToken:     verifyToken,
		strictHandshake: strictHandshake,
		logger:          logger.With("component", "webhook"),
	}
}

func (h *WebhookHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/webhook", h.Receive)
	r.GET("/api/webhook", h.Verify)
}

// Receive acknowledges every delivery with 200 except signature failures.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.ack(c, gin.H{"received": true, "reason": usecases.ReasonInvalidPayload})
		return
	}

	payload, err := ParsePayload(body, c.Request.Header)
	if err != nil {
		h.logger.Warn("unparseable webhook payload", "error", err, "size", len(body))
		h.ack(c, gin.H{"received": true, "reason": usecases.ReasonInvalidPayload})
		return
	}

	if !payload.Handled() {
		h.logger.Info("webhook event ignored", "event", payload.Event())
		h.ack(c, gin.H{"received": true, "event": payload.Event(), "reason": usecases.ReasonEventNotHandled})
		return
	}

	msg := payload.Message()

	// The gateway gets its acknowledgment only after the reply went out, but a
	// client disconnect must not abort a delivery already marked processed.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), pipelineTimeout)
	defer cancel()

	out := h.pipeline.Handle(ctx, usecases.Delivery{
		Message:   msg,
		Signature: c.GetHeader(usecases.SignatureHeader),
		Source:    usecases.DeliveryWebhook,
	})

	switch {
	case out.IsSignatureFailure():
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid webhook signature"})
	case out.Reason == usecases.ReasonClientNotFound:
		h.ack(c, gin.H{"received": true, "reason": out.Reason, "sessionId": msg.SessionHint, "from": msg.SenderPhone})
	case !out.Processed():
		h.ack(c, gin.H{"received": true, "reason": out.Reason})
	default:
		h.ack(c, gin.H{"received": true, "processed": true})
	}
}

func (h *WebhookHandler) ack(c *gin.Context, body gin.H) {
	c.JSON(http.StatusOK, body)
}

// Verify answers the gateway's endpoint verification handshake.
func (h *WebhookHandler) Verify(c *gin.Context) {
	token := firstQuery(c, "verify_token", "token")
	challenge := firstQuery(c, "challenge", "hub.challenge")
	// An unset verify token never matches, even an empty one.
	matches := h.verifyToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(h.verifyToken)) == 1

	if challenge != "" {
		if !matches && h.strictHandshake {
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid verification token"})
			return
		}
		if !matches {
			h.logger.Warn("echoing webhook challenge without a valid verification token")
		}
		c.String(http.StatusOK, challenge)
		return
	}

	if matches {
		c.JSON(http.StatusOK, gin.H{"verified": true})
		return
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Invalid verification token"})
}

func firstQuery(c *gin.Context, keys ...string) string {
	for _, k := range keys {
		if v := c.Query(k); v != "" {
			return v
		}
	}
	return ""
}
