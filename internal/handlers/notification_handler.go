package handlers

import (
	"errors"
	"strings"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	notifyws "github.com/saeid-a/MentorHubBack/internal/websocket"
	"github.com/saeid-a/MentorHubBack/pkg/utils"
)

// NotificationHandler upgrades authenticated clients to a websocket that
// receives their live notifications.
type NotificationHandler struct {
	hub       *notifyws.Hub
	jwtSecret string
}

func NewNotificationHandler(hub *notifyws.Hub, jwtSecret string) *NotificationHandler {
	return &NotificationHandler{hub: hub, jwtSecret: jwtSecret}
}

func (h *NotificationHandler) WebSocketAuth(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{"error": "WebSocket upgrade required"})
	}

	claims, err := h.parseWSClaims(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid or expired token"})
	}

	c.Locals("user_id", claims.UserID)
	c.Locals("role", claims.Role)
	return c.Next()
}

func (h *NotificationHandler) HandleWebSocket(conn *websocket.Conn) {
	userID, err := parseConnUserID(conn)
	if err != nil {
		log.Warn().Err(err).Msg("websocket connection without user id")
		_ = conn.Close()
		return
	}

	client := notifyws.NewClient(h.hub, conn, userID)
	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump()
}

func (h *NotificationHandler) parseWSClaims(c *fiber.Ctx) (*utils.Claims, error) {
	tokenString := strings.TrimSpace(c.Query("token"))
	if tokenString == "" {
		authHeader := strings.TrimSpace(c.Get("Authorization"))
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}
	}

	if tokenString == "" {
		return nil, errors.New("missing token")
	}

	return utils.ValidateToken(tokenString, h.jwtSecret)
}

func parseConnUserID(conn *websocket.Conn) (int64, error) {
	userIDStr, ok := conn.Locals("user_id").(string)
	if !ok {
		return 0, errors.New("user id missing from connection")
	}
	return parseInt64(userIDStr)
}
