package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.mau.fi/whatsmeow/types/events"

	"neowhatai/internal/entities"
	"neowhatai/internal/infrastructure"
	httpapi "neowhatai/internal/interfaces/http"
	"neowhatai/internal/usecases"
)

const directHandleTimeout = 2 * time.Minute

// directDispatcher runs whatsmeow messages through the pipeline in the background
// and keeps track of them so shutdown can wait.
type directDispatcher struct {
	pipeline httpapi.DeliveryHandler
	timeout  time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	draining bool
	wg       sync.WaitGroup
}

func newDirectDispatcher(pipeline httpapi.DeliveryHandler, logger *slog.Logger) *directDispatcher {
	return &directDispatcher{pipeline: pipeline, timeout: directHandleTimeout, logger: logger}
}

// HandlerFor returns the event handler of one session.
func (d *directDispatcher) HandlerFor(sessionID string) func(interface{}) {
	return func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			if msg, ok := infrastructure.ParseMessage(sessionID, v); ok {
				d.dispatch(msg)
			}
		case *events.LoggedOut:
			d.logger.Warn("WhatsApp session logged out", "session_id", sessionID, "reason", v.Reason)
		}
	}
}

// dispatch detaches from the whatsmeow event loop. The pipeline call is not
// tied to the server context so a shutdown lets it finish.
func (d *directDispatcher) dispatch(msg entities.InboundMessage) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining {
		d.logger.Warn("dropping direct message received during shutdown", "message_id", msg.MessageID)
		return
	}
	d.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		d.pipeline.Handle(ctx, usecases.Delivery{Message: msg, Source: usecases.DeliveryDirect})
	})
}

// Drain stops accepting messages and waits for the in-flight ones until ctx is done.
func (d *directDispatcher) Drain(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
