package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"neowhatai/internal/entities"
)

// WhatsAppClient is one direct WhatsApp connection, bound to a tenant session id.
type WhatsAppClient struct {
	Client    *whatsmeow.Client
	SessionID string

	logger *slog.Logger
	qrCode string
	qrLock sync.RWMutex
}

// slogWA adapts slog to whatsmeow's logger interface, dropping records below min.
type slogWA struct {
	l   *slog.Logger
	min slog.Level
}

func (s slogWA) log(level slog.Level, msg string, args []interface{}) {
	if level < s.min {
		return
	}
	s.l.Log(context.Background(), level, fmt.Sprintf(msg, args...))
}

func (s slogWA) Warnf(msg string, args ...interface{})  { s.log(slog.LevelWarn, msg, args) }
func (s slogWA) Errorf(msg string, args ...interface{}) { s.log(slog.LevelError, msg, args) }
func (s slogWA) Infof(msg string, args ...interface{})  { s.log(slog.LevelInfo, msg, args) }
func (s slogWA) Debugf(msg string, args ...interface{}) { s.log(slog.LevelDebug, msg, args) }
func (s slogWA) Sub(module string) waLog.Logger {
	return slogWA{l: s.l.With("module", module), min: s.min}
}

// NewWhatsAppClient opens (or creates) the device store at dbPath.
// whatsmeow's own logs below level are dropped.
func NewWhatsAppClient(ctx context.Context, dbPath, sessionID string, level slog.Level, logger *slog.Logger) (*WhatsAppClient, error) {
	waLogger := slogWA{l: logger.With("session_id", sessionID), min: level}

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", waLogger.Sub("Database"))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLogger.Sub("Client"))

	return &WhatsAppClient{
		Client:    client,
		SessionID: sessionID,
		logger:    logger.With("session_id", sessionID),
	}, nil
}

// Connect starts the connection; unpaired devices start publishing QR codes.
func (w *WhatsAppClient) Connect(ctx context.Context) error {
	if w.Client.Store.ID != nil {
		if err := w.Client.Connect(); err != nil {
			return err
		}
		w.logger.Info("whatsapp connected with existing session")
		return nil
	}

	qrChan, err := w.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get qr channel: %w", err)
	}
	if err := w.Client.Connect(); err != nil {
		return err
	}
	go w.watchQR(qrChan)
	return nil
}

func (w *WhatsAppClient) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for evt := range qrChan {
		if evt.Event == "code" {
			w.qrLock.Lock()
			w.qrCode = evt.Code
			w.qrLock.Unlock()
			w.logger.Info("whatsapp pairing code refreshed")
			continue
		}
		w.logger.Info("whatsapp login event", "event", evt.Event)
		if evt.Event == "success" {
			w.qrLock.Lock()
			w.qrCode = ""
			w.qrLock.Unlock()
		}
	}
}

func (w *WhatsAppClient) GetQR() string {
	w.qrLock.RLock()
	defer w.qrLock.RUnlock()
	return w.qrCode
}

func (w *WhatsAppClient) IsLoggedIn() bool {
	return w.Client.Store.ID != nil
}

func (w *WhatsAppClient) IsConnected() bool {
	return w.Client.IsConnected() && w.Client.Store.ID != nil
}

// GetUserInfo returns the paired phone number and push name.
func (w *WhatsAppClient) GetUserInfo() (string, string) {
	if w.Client.Store.ID == nil {
		return "", ""
	}
	return w.Client.Store.ID.User, w.Client.Store.PushName
}

// Logout unpairs the device and reconnects so a fresh QR code is issued.
func (w *WhatsAppClient) Logout(ctx context.Context) error {
	w.qrLock.Lock()
	w.qrCode = ""
	w.qrLock.Unlock()

	if err := w.Client.Logout(ctx); err != nil {
		return err
	}
	w.Client.Disconnect()

	qrChan, err := w.Client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("get qr channel: %w", err)
	}
	if err := w.Client.Connect(); err != nil {
		return fmt.Errorf("reconnect after logout: %w", err)
	}
	go w.watchQR(qrChan)
	return nil
}

func (w *WhatsAppClient) Disconnect() {
	w.Client.Disconnect()
}

func (w *WhatsAppClient) AddHandler(handler func(interface{})) {
	w.Client.AddEventHandler(handler)
}

func (w *WhatsAppClient) SendMessage(ctx context.Context, to, content string) error {
	jid, err := types.ParseJID(strings.TrimPrefix(to, "+") + "@" + types.DefaultUserServer)
	if err != nil {
		return fmt.Errorf("invalid number format: %w", err)
	}

	_, err = w.Client.SendMessage(ctx, jid, &waProto.Message{
		Conversation: &content,
	})
	return err
}

// ParseMessage converts a whatsmeow event into an inbound message.
// ok is false for group chats, our own messages and non-text content.
func ParseMessage(sessionID string, evt *events.Message) (entities.InboundMessage, bool) {
	if evt.Info.IsGroup || evt.Info.IsFromMe {
		return entities.InboundMessage{}, false
	}

	text := evt.Message.GetConversation()
	if text == "" {
		text = evt.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		return entities.InboundMessage{}, false
	}

	return entities.InboundMessage{
		SenderPhone: evt.Info.Sender.User,
		Text:        text,
		MessageID:   string(evt.Info.ID),
		SessionHint: sessionID,
		Event:       "whatsmeow.message",
	}, true
}
