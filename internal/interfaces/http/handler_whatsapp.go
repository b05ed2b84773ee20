package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"neowhatai/internal/entities"
	"neowhatai/internal/infrastructure"
	"neowhatai/internal/usecases"
)

// WhatsAppHandler pairs and supervises direct WhatsApp sessions, one per tenant.
type WhatsAppHandler struct {
	dashboard    *usecases.DashboardUsecase
	gateway      *infrastructure.GatewayRouter
	waManager    *infrastructure.WhatsAppManager // nil unless GATEWAY_DRIVER=whatsmeow
	defaultToken string
	logger       *slog.Logger
}

func NewWhatsAppHandler(dashboard *usecases.DashboardUsecase, gateway *infrastructure.GatewayRouter, waManager *infrastructure.WhatsAppManager, defaultToken string, logger *slog.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		dashboard:    dashboard,
		gateway:      gateway,
		waManager:    waManager,
		defaultToken: defaultToken,
		logger:       logger.With("component", "whatsapp"),
	}
}

func (h *WhatsAppHandler) RegisterRoutes(admin gin.IRouter) {
	wa := admin.Group("/tenants/:id/whatsapp")
	wa.POST("/connect", h.Connect)
	wa.GET("/qr", h.QRCode)
	wa.GET("/status", h.Status)
	wa.POST("/logout", h.Logout)
}

// tenant loads the tenant named by :id, answering the request on failure.
func (h *WhatsAppHandler) tenant(c *gin.Context) (*entities.TenantSummary, bool) {
	id, ok := tenantID(c)
	if !ok {
		return nil, false
	}
	tenant, err := h.dashboard.GetTenant(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch client")
		return nil, false
	}
	return tenant, true
}

func (h *WhatsAppHandler) requireDirect(c *gin.Context) bool {
	if h.waManager == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Direct WhatsApp driver not enabled"})
		return false
	}
	return true
}

// Connect creates and connects the WhatsApp client for the tenant's session
func (h *WhatsAppHandler) Connect(c *gin.Context) {
	if !h.requireDirect(c) {
		return
	}
	tenant, ok := h.tenant(c)
	if !ok {
		return
	}

	client, err := h.waManager.ConnectClient(c.Request.Context(), tenant.SessionID)
	if err != nil {
		h.logger.Error("whatsapp connect failed", "tenant_id", tenant.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to connect WhatsApp"})
		return
	}

	phone, name := client.GetUserInfo()
	c.JSON(http.StatusOK, gin.H{
		"status":    "connecting",
		"connected": client.IsLoggedIn(),
		"phone":     phone,
		"name":      name,
	})
}

// QRCode returns the pairing QR code as PNG
func (h *WhatsAppHandler) QRCode(c *gin.Context) {
	if !h.requireDirect(c) {
		return
	}
	tenant, ok := h.tenant(c)
	if !ok {
		return
	}

	client, err := h.waManager.ConnectClient(c.Request.Context(), tenant.SessionID)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to connect: "+err.Error())
		return
	}

	qrCodeString := client.GetQR()
	if qrCodeString == "" {
		if client.IsLoggedIn() {
			c.String(http.StatusOK, "Already logged in")
			return
		}
		c.String(http.StatusAccepted, "QR code not yet available. Please wait...")
		return
	}

	png, err := qrcode.Encode(qrCodeString, qrcode.Medium, 256)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	c.Data(http.StatusOK, "image/png", png)
}

// Status reports the session as seen by the active gateway driver.
func (h *WhatsAppHandler) Status(c *gin.Context) {
	tenant, ok := h.tenant(c)
	if !ok {
		return
	}
	if h.gateway == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "WhatsApp not configured"})
		return
	}

	token := entities.Resolve(tenant.GatewayToken, h.defaultToken)
	status, err := h.gateway.SessionStatus(c.Request.Context(), tenant.SessionID, token)
	if err != nil {
		respondError(c, h.logger, err, "Failed to fetch session status")
		return
	}
	status["session_id"] = tenant.SessionID
	c.JSON(http.StatusOK, status)
}

// Logout unpairs the tenant's WhatsApp device
func (h *WhatsAppHandler) Logout(c *gin.Context) {
	if !h.requireDirect(c) {
		return
	}
	tenant, ok := h.tenant(c)
	if !ok {
		return
	}

	// Errors are logged only: the device is gone either way.
	if err := h.waManager.LogoutClient(c.Request.Context(), tenant.SessionID); err != nil {
		h.logger.Warn("whatsapp logout", "tenant_id", tenant.ID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}
