package infrastructure

import (
	"context"
	"fmt"

	"neowhatai/internal/config"
	"neowhatai/internal/entities"
	"neowhatai/internal/interfaces"
)

// GatewayRouter sends through the driver selected by GATEWAY_DRIVER.
type GatewayRouter struct {
	driver    string
	wasender  *WasenderClient
	whatsmeow *WhatsAppManager
}

func NewGatewayRouter(driver string, wasender *WasenderClient, whatsmeow *WhatsAppManager) *GatewayRouter {
	return &GatewayRouter{driver: driver, wasender: wasender, whatsmeow: whatsmeow}
}

func (g *GatewayRouter) Driver() string {
	return g.driver
}

func (g *GatewayRouter) Send(ctx context.Context, msg entities.OutboundMessage) error {
	return g.pick().Send(ctx, msg)
}

func (g *GatewayRouter) pick() interfaces.Messenger {
	if g.driver == config.DriverWhatsmeow && g.whatsmeow != nil {
		return g.whatsmeow
	}
	if g.wasender != nil {
		return g.wasender
	}
	return unavailable{}
}

// ConnectedSessions lists paired direct sessions. It is empty for the HTTP driver.
func (g *GatewayRouter) ConnectedSessions() []string {
	if g.driver != config.DriverWhatsmeow || g.whatsmeow == nil {
		return nil
	}
	return g.whatsmeow.ConnectedSessions()
}

// SessionStatus reports what the active driver knows about a session.
func (g *GatewayRouter) SessionStatus(ctx context.Context, sessionID string, token entities.Optional[string]) (map[string]interface{}, error) {
	if g.driver == config.DriverWhatsmeow && g.whatsmeow != nil {
		client := g.whatsmeow.GetClient(sessionID)
		if client == nil {
			return map[string]interface{}{"driver": g.driver, "initialized": false, "connected": false}, nil
		}
		phone, name := client.GetUserInfo()
		return map[string]interface{}{
			"driver":      g.driver,
			"initialized": true,
			"connected":   client.IsConnected(),
			"phone":       phone,
			"name":        name,
			"hasQR":       client.GetQR() != "",
		}, nil
	}
	if g.wasender == nil {
		return nil, ErrGatewayUnavailable
	}
	details, err := g.wasender.SessionDetails(ctx, sessionID, token)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"driver": g.driver, "session": details}, nil
}

type unavailable struct{}

func (unavailable) Send(context.Context, entities.OutboundMessage) error {
	return fmt.Errorf("%w: no driver configured", ErrGatewayUnavailable)
}
