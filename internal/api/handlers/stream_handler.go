package handlers

import (
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/wattwise/backend/internal/stream"
	"github.com/wattwise/backend/pkg/logger"
)

// StreamHandler pushes detected anomaly events to websocket clients as they
// happen. An optional userId query filter limits the feed to one user.
type StreamHandler struct {
	hub *stream.Hub
}

func NewStreamHandler(hub *stream.Hub) *StreamHandler {
	return &StreamHandler{
		hub: hub,
	}
}

func (h *StreamHandler) HandleConnection(c *websocket.Conn) {
	userFilter := c.Query("userId")

	logger.Info("Anomaly stream connection established", zap.String("user_filter", userFilter))

	events, cancel := h.hub.Subscribe()
	defer cancel()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		c.Close()
		logger.Info("Anomaly stream connection closed")
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if userFilter != "" && event.UserID != userFilter {
				continue
			}

			msg := map[string]interface{}{
				"type":  "anomaly",
				"event": event,
			}
			if err := c.WriteJSON(msg); err != nil {
				logger.Debug("Failed to write stream event", zap.Error(err))
				return
			}
		case <-closed:
			return
		}
	}
}
