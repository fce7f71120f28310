package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// Settings tune connection keepalive and limits.
type Settings struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
}

func DefaultSettings() Settings {
	return Settings{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 4096,
	}
}

// RoomAuthorizer decides whether userID may subscribe to a ride's room.
type RoomAuthorizer func(ctx context.Context, userID, rideID string) error

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	settings Settings
	UserID   string
	// rooms is only touched by the hub's Run goroutine.
	rooms map[string]bool
}

func NewClient(hub *Hub, conn *websocket.Conn, userID string, settings Settings) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		settings: settings,
		UserID:   userID,
		rooms:    make(map[string]bool),
	}
}

type clientCommand struct {
	Type   string `json:"type"`
	RideID string `json:"ride_id"`
}

func (c *Client) readPump(authorize RoomAuthorizer) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.settings.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.settings.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.WithUserID(c.UserID).WithError(err).Warn("Websocket read failed")
			}
			return
		}

		c.handleMessage(message, authorize)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.settings.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.settings.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(message []byte, authorize RoomAuthorizer) {
	var cmd clientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.reply(newMessage("error", "", c.UserID, map[string]string{"message": "malformed message"}))
		return
	}

	switch cmd.Type {
	case "join_ride":
		if authorize != nil {
			if err := authorize(context.Background(), c.UserID, cmd.RideID); err != nil {
				c.reply(newMessage("error", RideRoom(cmd.RideID), c.UserID, map[string]string{"message": err.Error()}))
				return
			}
		}
		c.hub.submit(c.hub.join, roomRequest{client: c, roomID: RideRoom(cmd.RideID)})

	case "leave_ride":
		c.hub.submit(c.hub.leave, roomRequest{client: c, roomID: RideRoom(cmd.RideID)})

	case "ping":
		c.reply(newMessage("pong", "", c.UserID, nil))

	default:
		c.reply(newMessage("error", "", c.UserID, map[string]string{"message": "unknown message type"}))
	}
}

// reply goes through the hub so the send channel is never written after
// the hub closed it.
func (c *Client) reply(message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	select {
	case c.hub.direct <- directMessage{client: c, data: data}:
	case <-c.hub.done:
	}
}
