package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type HandlerConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	AllowedOrigins  []string
	Settings        Settings
}

type Handler struct {
	hub       *Hub
	upgrader  websocket.Upgrader
	settings  Settings
	authorize RoomAuthorizer
}

func NewHandler(hub *Hub, config HandlerConfig, authorize RoomAuthorizer) *Handler {
	if config.Settings.PingPeriod == 0 {
		config.Settings = DefaultSettings()
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     originChecker(config.AllowedOrigins),
		},
		settings:  config.Settings,
		authorize: authorize,
	}
}

// HandleWebSocket upgrades an authenticated request. The user id must have
// been placed on the context by the auth middleware.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.hub.log.WithUserID(userID).WithError(err).Warn("Websocket upgrade failed")
		return
	}

	client := NewClient(h.hub, conn, userID, h.settings)
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h.authorize)
}

func (h *Handler) Hub() *Hub {
	return h.hub
}

func originChecker(allowed []string) func(r *http.Request) bool {
	allowAll := len(allowed) == 0
	set := make(map[string]bool, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			allowAll = true
		}
		set[origin] = true
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}
