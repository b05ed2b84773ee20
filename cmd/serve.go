package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"neowhatai/internal/config"
	"neowhatai/internal/infrastructure"
	httpapi "neowhatai/internal/interfaces/http"
	"neowhatai/internal/usecases"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook and admin HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	llm, err := infrastructure.NewLLM(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init LLM: %w", err)
	}
	defer llm.Close()

	// Gateway
	sendLimiter := infrastructure.NewMessageRateLimiter(cfg.GatewaySendRate, cfg.GatewaySendBurst)
	wasender := infrastructure.NewWasenderClient(cfg.WasenderBaseURL, sendLimiter, logger.With("component", "wasender"))

	var waManager *infrastructure.WhatsAppManager
	if cfg.GatewayDriver == config.DriverWhatsmeow {
		waManager = infrastructure.NewWhatsAppManager(cfg.WhatsmeowDeviceDir, sendLimiter, cfg.WhatsmeowLogLevel, logger.With("component", "whatsmeow"))
		defer waManager.DisconnectAll()
	}
	gateway := infrastructure.NewGatewayRouter(cfg.GatewayDriver, wasender, waManager)

	// Use cases
	signatures := usecases.NewSignatureVerifier(cfg.DefaultWebhookSecret, cfg.WebhookSignatureRequired, logger)
	if cfg.SignatureDisabledByDefault() {
		logger.Warn("no default webhook secret: tenants without their own secret accept unsigned webhooks")
	}

	responder := usecases.NewResponder(llm.Completer, gateway, st.logs, usecases.ResponderConfig{
		Model:               cfg.ChatModel,
		DefaultLLMKey:       cfg.DefaultLLMKey,
		DefaultGatewayToken: cfg.DefaultGatewayToken,
		DefaultErrorMessage: cfg.DefaultErrorMessage,
	}, logger)

	pipeline := usecases.NewPipeline(
		st.ledger,
		usecases.NewTenantResolver(st.tenants, cfg.AllowSingleTenantFallback, logger),
		signatures,
		usecases.NewContextRetriever(st.documents, llm.Embedder, usecases.DefaultRetrievalConfig(), logger),
		usecases.NewConversationAssembler(),
		responder,
		st.logs,
		cfg.HistoryLimit,
		logger,
	)

	ingest := usecases.NewIngestService(st.tenants, st.documents, llm.Embedder, cfg.IngestBatchSize, cfg.IngestBatchPause, logger)
	dashboard := usecases.NewDashboardUsecase(st.tenants, st.documents, st.logs, gateway, ingest, cfg.DefaultGatewayToken, logger)

	direct := newDirectDispatcher(pipeline, logger.With("component", "direct"))
	if waManager != nil {
		waManager.HandlerFactory = direct.HandlerFor
		connectActiveSessions(ctx, st, waManager)
	}

	// HTTP server
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	httpapi.SetupRoutes(r, httpapi.Routes{
		Webhook:        httpapi.NewWebhookHandler(pipeline, cfg.WebhookVerifyToken, cfg.WebhookStrictHandshake, logger),
		Admin:          httpapi.NewAdminHandler(dashboard, gateway, sendLimiter, logger),
		WhatsApp:       httpapi.NewWhatsAppHandler(dashboard, gateway, waManager, cfg.DefaultGatewayToken, logger),
		DB:             st.db,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		AdminRateLimit: rate.Limit(cfg.AdminRateLimit),
		AdminRateBurst: cfg.AdminRateBurst,
	}, httpapi.NewMiddleware(logger))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "gateway", gateway.Driver(), "llm", cfg.LLMProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	if err := direct.Drain(shutdownCtx); err != nil {
		logger.Error("direct messages still running at shutdown", "error", err)
	}
	return nil
}

// connectActiveSessions reconnects the paired devices of active tenants.
// Sessions that were never paired are skipped until an admin requests a QR code.
func connectActiveSessions(ctx context.Context, st *stores, waManager *infrastructure.WhatsAppManager) {
	tenants, err := st.tenants.ListActive(ctx, 0)
	if err != nil {
		logger.Error("failed to list active tenants", "error", err)
		return
	}
	for _, t := range tenants {
		if t.SessionID == "" {
			continue
		}
		client, err := waManager.GetOrCreateClient(ctx, t.SessionID)
		if err != nil {
			logger.Warn("failed to open WhatsApp device", "session_id", t.SessionID, "error", err)
			continue
		}
		if !client.IsLoggedIn() {
			continue
		}
		if _, err := waManager.ConnectClient(ctx, t.SessionID); err != nil {
			logger.Warn("failed to reconnect WhatsApp session", "session_id", t.SessionID, "error", err)
		}
	}
}
