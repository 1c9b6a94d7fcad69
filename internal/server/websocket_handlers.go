package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"feedhub/internal/auth"
	"feedhub/internal/middleware"
)

// upgradeRequired rejects plain HTTP requests to the websocket endpoint.
func (s *Server) upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// WebsocketHandler handles GET /ws. Every subscriber receives every post
// event; anonymous connections are allowed.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ac, _ := conn.Locals(middleware.LocalsAuthKey).(auth.Context)

		client, err := s.hub.Register(ac.UserID, conn)
		if err != nil {
			middleware.Logger.WarnContext(context.Background(), "websocket registration refused",
				"user_id", ac.UserID,
				"error", err.Error(),
			)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"error","payload":{"message":"`+err.Error()+`"}}`))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		client.ReadPump()
	})
}
