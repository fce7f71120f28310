package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"carpool/pkg/events"
	"carpool/pkg/logger"
)

// Room names.
func RideRoom(rideID string) string { return "ride_" + rideID }
func UserRoom(userID string) string { return "user_" + userID }

type Message struct {
	Type      string          `json:"type"`
	RoomID    string          `json:"room_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type roomRequest struct {
	client *Client
	roomID string
}

type directMessage struct {
	client *Client
	data   []byte
}

type roomMessage struct {
	roomID string
	data   []byte
}

// Hub owns the client and room tables. Only the Run goroutine mutates them;
// the mutex guards the counters read from other goroutines.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
	mutex   sync.RWMutex

	register   chan *Client
	unregister chan *Client
	join       chan roomRequest
	leave      chan roomRequest
	broadcast  chan roomMessage
	direct     chan directMessage
	done       chan struct{}

	log *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan roomRequest),
		leave:      make(chan roomRequest),
		broadcast:  make(chan roomMessage, 256),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			close(h.done)
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case req := <-h.join:
			h.joinRoom(req.client, req.roomID)

		case req := <-h.leave:
			h.leaveRoom(req.client, req.roomID)

		case msg := <-h.broadcast:
			h.sendToRoom(msg.roomID, msg.data)

		case msg := <-h.direct:
			h.mutex.RLock()
			_, ok := h.clients[msg.client]
			h.mutex.RUnlock()
			if ok {
				h.deliver(msg.client, msg.data)
			}
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	h.mutex.Unlock()

	h.log.WithUserID(client.UserID).Debug("Websocket client registered")
	h.joinRoom(client, UserRoom(client.UserID))
	h.sendToClient(client, newMessage("welcome", "", client.UserID, nil))
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	for roomID := range client.rooms {
		if room, exists := h.rooms[roomID]; exists {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.log.WithUserID(client.UserID).Debug("Websocket client unregistered")
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
	h.mutex.Unlock()

	h.sendToClient(client, newMessage("joined", roomID, client.UserID, nil))
}

func (h *Hub) leaveRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if room, exists := h.rooms[roomID]; exists {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(client.rooms, roomID)
}

func (h *Hub) sendToRoom(roomID string, data []byte) {
	h.mutex.RLock()
	room := h.rooms[roomID]
	targets := make([]*Client, 0, len(room))
	for client := range room {
		targets = append(targets, client)
	}
	h.mutex.RUnlock()

	for _, client := range targets {
		h.deliver(client, data)
	}
}

func (h *Hub) sendToClient(client *Client, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	h.deliver(client, data)
}

// deliver drops clients whose send buffer is full.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.log.WithUserID(client.UserID).Warn("Dropping slow websocket client")
		h.removeClient(client)
	}
}

func (h *Hub) closeAll() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		h.removeClient(client)
	}
}

// submit hands a request to the Run loop unless the hub has stopped.
func (h *Hub) submit(ch chan roomRequest, req roomRequest) {
	select {
	case ch <- req:
	case <-h.done:
	}
}

// Broadcast queues a message for every client in the room.
func (h *Hub) Broadcast(roomID string, message Message) error {
	message.RoomID = roomID
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- roomMessage{roomID: roomID, data: data}:
	case <-h.done:
	}
	return nil
}

// HandleEvent fans a change event out to the ride room and, for
// participation events, to the affected user's personal room.
func (h *Hub) HandleEvent(ctx context.Context, event *events.Event) error {
	message := Message{
		Type:      string(event.Type),
		UserID:    event.UserID,
		Timestamp: event.OccurredAt.Unix(),
		Data:      event.Data,
	}

	if event.RideID != "" {
		if err := h.Broadcast(RideRoom(event.RideID), message); err != nil {
			return err
		}
	}
	switch event.Type {
	case events.ParticipationCreated, events.ParticipationPaid, events.ParticipationReleased:
		if event.UserID != "" {
			return h.Broadcast(UserRoom(event.UserID), message)
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) RoomSize(roomID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[roomID])
}

func newMessage(messageType, roomID, userID string, data interface{}) Message {
	message := Message{
		Type:      messageType,
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: time.Now().Unix(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			message.Data = raw
		}
	}
	return message
}
