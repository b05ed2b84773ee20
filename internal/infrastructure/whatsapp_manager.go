package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"neowhatai/internal/entities"
)

var unsafeFileChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// WhatsAppManager owns one direct WhatsApp client per tenant session id.
type WhatsAppManager struct {
	clients  map[string]*WhatsAppClient
	mu       sync.RWMutex
	baseDir  string
	limiter  *MessageRateLimiter
	logLevel slog.Level
	logger   *slog.Logger

	// HandlerFactory builds the event handler registered on each new client.
	HandlerFactory func(sessionID string) func(interface{})
}

func NewWhatsAppManager(baseDir string, limiter *MessageRateLimiter, logLevel slog.Level, logger *slog.Logger) *WhatsAppManager {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		logger.Warn("could not create devices directory", "dir", baseDir, "error", err)
	}

	return &WhatsAppManager{
		clients:  make(map[string]*WhatsAppClient),
		baseDir:  baseDir,
		limiter:  limiter,
		logLevel: logLevel,
		logger:   logger,
	}
}

// GetClient returns the client for a session, or nil.
func (m *WhatsAppManager) GetClient(sessionID string) *WhatsAppClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[sessionID]
}

func (m *WhatsAppManager) devicePath(sessionID string) string {
	return filepath.Join(m.baseDir, unsafeFileChars.ReplaceAllString(sessionID, "_")+".db")
}

// GetOrCreateClient opens the device store for a session without connecting.
func (m *WhatsAppManager) GetOrCreateClient(ctx context.Context, sessionID string) (*WhatsAppClient, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", ErrGatewayUnavailable)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[sessionID]; exists {
		return client, nil
	}

	client, err := NewWhatsAppClient(ctx, m.devicePath(sessionID), sessionID, m.logLevel, m.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create WhatsApp client for session %s: %w", sessionID, err)
	}

	if m.HandlerFactory != nil {
		client.AddHandler(m.HandlerFactory(sessionID))
	}

	m.clients[sessionID] = client
	return client, nil
}

// ConnectClient creates the client if needed and connects it.
func (m *WhatsAppManager) ConnectClient(ctx context.Context, sessionID string) (*WhatsAppClient, error) {
	client, err := m.GetOrCreateClient(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if client.Client.IsConnected() {
		return client, nil
	}
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect WhatsApp for session %s: %w", sessionID, err)
	}
	return client, nil
}

func (m *WhatsAppManager) DisconnectClient(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if client, exists := m.clients[sessionID]; exists {
		client.Disconnect()
		delete(m.clients, sessionID)
	}
}

// LogoutClient unpairs a session. A missing or already disconnected client is not an error.
func (m *WhatsAppManager) LogoutClient(ctx context.Context, sessionID string) error {
	m.mu.RLock()
	client, exists := m.clients[sessionID]
	m.mu.RUnlock()

	if !exists || client == nil {
		return nil
	}

	var err error
	if client.IsLoggedIn() || client.Client.IsConnected() {
		err = client.Logout(ctx)
	}

	m.mu.Lock()
	delete(m.clients, sessionID)
	m.mu.Unlock()

	return err
}

// ConnectedSessions lists sessions with a paired device.
func (m *WhatsAppManager) ConnectedSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []string
	for id, client := range m.clients {
		if client.IsLoggedIn() {
			sessions = append(sessions, id)
		}
	}
	return sessions
}

// DisconnectAll is used on shutdown.
func (m *WhatsAppManager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		client.Disconnect()
	}
	m.clients = make(map[string]*WhatsAppClient)
}

// Send implements interfaces.Messenger over the direct connection.
// The gateway token is not used: the paired device is the credential.
func (m *WhatsAppManager) Send(ctx context.Context, msg entities.OutboundMessage) error {
	client := m.GetClient(msg.SessionID)
	if client == nil || !client.IsConnected() {
		return fmt.Errorf("%w: session %s not connected", ErrGatewayUnavailable, msg.SessionID)
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx, msg.SessionID); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	return client.SendMessage(ctx, msg.To, msg.Text)
}
