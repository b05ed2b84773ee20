package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"neowhatai/internal/infrastructure"
	"neowhatai/internal/repository"
	"neowhatai/internal/usecases"
)

type AdminHandler struct {
	dashboard *usecases.DashboardUsecase
	gateway   *infrastructure.GatewayRouter
	sends     *infrastructure.MessageRateLimiter
	logger    *slog.Logger
}

func NewAdminHandler(dashboard *usecases.DashboardUsecase, gateway *infrastructure.GatewayRouter, sends *infrastructure.MessageRateLimiter, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		dashboard: dashboard,
		gateway:   gateway,
		sends:     sends,
		logger:    logger.With("component", "admin"),
	}
}

func (h *AdminHandler) RegisterRoutes(admin gin.IRouter) {
	admin.GET("/stats", h.GetStats)
	admin.GET("/logs", h.GetLogs)
	admin.POST("/test-send", h.TestSend)

	admin.GET("/tenants", h.ListTenants)
	admin.POST("/tenants", h.CreateTenant)
	admin.GET("/tenants/:id", h.GetTenant)
	admin.PUT("/tenants/:id", h.UpdateTenant)
	admin.DELETE("/tenants/:id", h.DeleteTenant)

	admin.GET("/tenants/:id/documents", h.GetDocuments)
	admin.POST("/tenants/:id/documents", h.IngestDocument)
	admin.DELETE("/tenants/:id/documents", h.DeleteDocuments)
}

// tenantID reads and validates the :id parameter, answering 400 when invalid.
func tenantID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if !ValidTenantID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return "", false
	}
	return id, true
}

// respondError maps domain errors to status codes; anything unknown is a 500 with msg.
func respondError(c *gin.Context, logger *slog.Logger, err error, msg string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Client not found"})
	case errors.Is(err, usecases.ErrInvalidTenant), errors.Is(err, usecases.ErrEmptyDocument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, usecases.ErrSessionTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, usecases.ErrNoActiveTenant):
		c.JSON(http.StatusNotFound, gin.H{"error": "No active client"})
	case errors.Is(err, infrastructure.ErrGatewayUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		var sendErr *infrastructure.SendError
		if errors.As(err, &sendErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": sendErr.Message, "status": sendErr.Status})
			return
		}
		logger.Error(msg, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}

// GetStats returns platform statistics
func (h *AdminHandler) GetStats(c *gin.Context) {
	stats, err := h.dashboard.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch stats")
		return
	}

	gateway := gin.H{}
	if h.gateway != nil {
		gateway["driver"] = h.gateway.Driver()
		gateway["connected_sessions"] = len(h.gateway.ConnectedSessions())
	}
	if h.sends != nil {
		gateway["send_limiter"] = h.sends.Stats()
	}

	c.JSON(http.StatusOK, gin.H{
		"clients":        stats.Tenants,
		"active_clients": stats.ActiveTenants,
		"documents":      stats.Documents,
		"logs":           stats.Logs,
		"gateway":        gateway,
	})
}

func (h *AdminHandler) ListTenants(c *gin.Context) {
	tenants, err := h.dashboard.ListTenants(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch clients")
		return
	}
	c.JSON(http.StatusOK, tenants)
}

func (h *AdminHandler) GetTenant(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	tenant, err := h.dashboard.GetTenant(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch client")
		return
	}
	c.JSON(http.StatusOK, tenant)
}

// bindTenantInput decodes and sanitizes a tenant body, answering 400 when invalid.
func bindTenantInput(c *gin.Context) (usecases.TenantInput, bool) {
	var in usecases.TenantInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return in, false
	}

	for _, field := range []*string{in.Name, in.PhoneID, in.SessionID, in.GatewayToken, in.WebhookSecret, in.LLMKey, in.SystemPrompt} {
		if field != nil {
			*field = SanitizeString(*field)
		}
	}
	if in.Name != nil && !ValidateLength(strings.TrimSpace(*in.Name), 1, MaxNameLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid name"})
		return in, false
	}
	if in.SessionID != nil && !ValidSlug(strings.TrimSpace(*in.SessionID)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid whatsapp_session_id (letters, digits, _ . : - only)"})
		return in, false
	}
	if in.SystemPrompt != nil && !ValidateLength(*in.SystemPrompt, 0, MaxPromptLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "System prompt too long"})
		return in, false
	}
	return in, true
}

func (h *AdminHandler) CreateTenant(c *gin.Context) {
	in, ok := bindTenantInput(c)
	if !ok {
		return
	}
	tenant, err := h.dashboard.CreateTenant(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.logger, err, "Failed to create client")
		return
	}
	c.JSON(http.StatusCreated, tenant.Summarize(0, 0))
}

func (h *AdminHandler) UpdateTenant(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	in, ok := bindTenantInput(c)
	if !ok {
		return
	}
	tenant, err := h.dashboard.UpdateTenant(c.Request.Context(), id, in)
	if err != nil {
		respondError(c, h.logger, err, "Failed to update client")
		return
	}
	c.JSON(http.StatusOK, tenant.Summarize(0, 0))
}

func (h *AdminHandler) DeleteTenant(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	if err := h.dashboard.DeleteTenant(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err, "Failed to delete client")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *AdminHandler) GetDocuments(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	docs, err := h.dashboard.Documents(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch documents")
		return
	}
	c.JSON(http.StatusOK, docs)
}

// IngestDocument accepts JSON {source, content} or a multipart text "file".
// The tenant's previous documents are replaced.
func (h *AdminHandler) IngestDocument(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}

	var source, content string
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Bad request: missing file"})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, MaxDocumentLength+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Could not read file"})
			return
		}
		source = c.DefaultPostForm("source", header.Filename)
		content = string(data)
	} else {
		var payload struct {
			Source  string `json:"source"`
			Content string `json:"content"`
		}
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		source, content = payload.Source, payload.Content
	}

	if len(content) > MaxDocumentLength {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Document too large"})
		return
	}
	source = strings.TrimSpace(SanitizeString(source))
	if source == "" {
		source = "document"
	}
	if !ValidateLength(source, 1, MaxSourceLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source"})
		return
	}

	result, err := h.dashboard.IngestDocument(c.Request.Context(), id, source, SanitizeString(content))
	if err != nil {
		respondError(c, h.logger, err, "Failed to ingest document")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "result": result})
}

func (h *AdminHandler) DeleteDocuments(c *gin.Context) {
	id, ok := tenantID(c)
	if !ok {
		return
	}
	deleted, err := h.dashboard.DeleteDocuments(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to delete documents")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted", "deleted": deleted})
}

// GetLogs lists recent exchanges, optionally for one tenant.
func (h *AdminHandler) GetLogs(c *gin.Context) {
	tenant := c.Query("tenant_id")
	if tenant != "" && !ValidTenantID(tenant) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	logs, err := h.dashboard.Logs(c.Request.Context(), tenant, limit)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch logs")
		return
	}
	c.JSON(http.StatusOK, logs)
}

// TestSend sends a message through a tenant's session to check the gateway setup.
func (h *AdminHandler) TestSend(c *gin.Context) {
	var payload struct {
		To       string `json:"to"`
		Text     string `json:"text"`
		TenantID string `json:"tenant_id"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if !ValidPhone(payload.To) {
		c.JSON(http.StatusBadRequest, gin.H{"error": `Parameter "to" must be a phone number`})
		return
	}
	if payload.TenantID != "" && !ValidTenantID(payload.TenantID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid client ID"})
		return
	}
	if !ValidateLength(payload.Text, 0, MaxMessageLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message too long"})
		return
	}
	text := SanitizeString(payload.Text)
	if text == "" {
		text = fmt.Sprintf("Message de test\nDate: %s\n\nSi vous recevez ce message, le système fonctionne correctement !",
			time.Now().Format("02/01/2006 15:04:05"))
	}

	tenant, err := h.dashboard.TestSend(c.Request.Context(), payload.TenantID, payload.To, text)
	if err != nil {
		respondError(c, h.logger, err, "Failed to send message")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"client": gin.H{
			"id":         tenant.ID,
			"name":       tenant.Name,
			"session_id": tenant.SessionID,
		},
		"to": payload.To,
	})
}
