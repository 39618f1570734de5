package handler

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/notifier"
)

const (
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// RealtimeHandler streams scan events to dashboard websockets
type RealtimeHandler struct {
	hub    *notifier.Hub
	logger *zap.Logger
}

func NewRealtimeHandler(hub *notifier.Hub, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		hub:    hub,
		logger: logger,
	}
}

func (h *RealtimeHandler) RequireUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

// Stream is mounted at GET /ws/scans
func (h *RealtimeHandler) Stream() fiber.Handler {
	return websocket.New(h.stream, websocket.Config{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	})
}

func (h *RealtimeHandler) stream(conn *websocket.Conn) {
	id, events := h.hub.Subscribe()
	defer h.hub.Unsubscribe(id)

	for _, event := range h.hub.Recent() {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
	}

	// Clients only listen; reading detects the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug("Websocket write failed", zap.String("client", id), zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		}
	}
}
