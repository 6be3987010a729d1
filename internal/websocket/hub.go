// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package websocket

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GovThePPL/candid/internal/logging"
	"github.com/GovThePPL/candid/internal/metrics"
)

// Message types exchanged over the chat relay.
const (
	MessageTypeChat   = "chat"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeJoined = "joined"
	MessageTypeLeft   = "left"
)

// Message is a single frame on the chat relay.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ChatData is the payload carried by chat frames.
type ChatData struct {
	ChatID    uuid.UUID `json:"chat_id"`
	UserID    uuid.UUID `json:"user_id"`
	Text      string    `json:"text"`
	Timestamp string    `json:"timestamp"`
}

// PresenceData is the payload carried by joined/left frames.
type PresenceData struct {
	ChatID       uuid.UUID `json:"chat_id"`
	UserID       uuid.UUID `json:"user_id"`
	Participants int       `json:"participants"`
}

// roomMessage pairs a frame with the chat session it belongs to.
type roomMessage struct {
	room uuid.UUID
	msg  Message
}

// Hub maintains the set of active clients grouped by chat session and
// relays messages to the participants of the originating room only.
type Hub struct {
	rooms      map[uuid.UUID]map[*Client]bool
	broadcast  chan roomMessage
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a hub with no rooms.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan roomMessage, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// String implements suture.Service naming.
func (h *Hub) String() string { return "chat-hub" }

// Serve runs the hub event loop under supervision.
//
// When the context is canceled every connected client is closed and the
// method returns ctx.Err(), so a supervisor restart never leaves
// orphaned connections behind.
//
// DETERMINISM: uses priority-based selection so behavior is predictable
// when multiple channels are ready:
//   - Priority 1: context cancellation (shutdown)
//   - Priority 2: client lifecycle events (Register/Unregister)
//   - Priority 3: room broadcasts
//
// Lifecycle events drain first so room membership is always settled
// before a frame fans out.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Priority 1: shutdown check (non-blocking)
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		// Priority 2: lifecycle events (non-blocking)
		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		// Priority 3: block until any event arrives
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.register(client)

		case client := <-h.Unregister:
			h.unregister(client)

		case rm := <-h.broadcast:
			h.relayToRoom(rm.room, rm.msg)
		}
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.room]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[client.room] = room
	}
	room[client] = true
	participants := len(room)
	h.mu.Unlock()

	metrics.WebsocketConnections.Inc()
	logging.Info().
		Str("chat_id", client.room.String()).
		Str("user_id", client.userID.String()).
		Int("participants", participants).
		Msg("chat client joined")

	h.enqueue(client.room, Message{
		Type: MessageTypeJoined,
		Data: PresenceData{ChatID: client.room, UserID: client.userID, Participants: participants},
	})
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.room]
	if ok {
		if _, member := room[client]; member {
			delete(room, client)
			close(client.send)
		} else {
			ok = false
		}
		if len(room) == 0 {
			delete(h.rooms, client.room)
		}
	}
	participants := len(room)
	h.mu.Unlock()

	if !ok {
		return
	}

	metrics.WebsocketConnections.Dec()
	logging.Info().
		Str("chat_id", client.room.String()).
		Str("user_id", client.userID.String()).
		Int("participants", participants).
		Msg("chat client left")

	h.enqueue(client.room, Message{
		Type: MessageTypeLeft,
		Data: PresenceData{ChatID: client.room, UserID: client.userID, Participants: participants},
	})
}

// relayToRoom fans a frame out to every participant of one room.
// DETERMINISM: clients are sorted by connection id so delivery order is
// stable within a process run. Participants whose send buffer is full
// are evicted; a stalled reader must not block the room.
func (h *Hub) relayToRoom(roomID uuid.UUID, message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		return
	}

	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var evicted int
	for _, client := range clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(room, client)
			metrics.WebsocketConnections.Dec()
			evicted++
		}
	}
	if len(room) == 0 {
		delete(h.rooms, roomID)
	}
	if evicted > 0 {
		logging.Warn().
			Str("chat_id", roomID.String()).
			Int("evicted", evicted).
			Msg("evicted slow chat clients")
	}
}

// shutdown closes every connected client across all rooms.
// DETERMINISM: clients close in connection-id order.
func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := make([]*Client, 0)
	for _, room := range h.rooms {
		for client := range room {
			clients = append(clients, client)
		}
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	for _, client := range clients {
		close(client.send)
	}
	h.rooms = make(map[uuid.UUID]map[*Client]bool)
	h.mu.Unlock()

	metrics.WebsocketConnections.Sub(float64(len(clients)))

	// Cancellation is the expected shutdown path, so this is not an
	// error-level event.
	logging.Info().
		Str("component", "chat-hub").
		AnErr("cause", ctx.Err()).
		Int("clients_closed", len(clients)).
		Msg("chat hub stopped")
}

// enqueue hands a frame to the event loop without blocking. Frames are
// dropped when the relay is saturated; chat history lives in the
// database, the relay is best-effort delivery.
func (h *Hub) enqueue(roomID uuid.UUID, message Message) {
	select {
	case h.broadcast <- roomMessage{room: roomID, msg: message}:
	default:
		logging.Warn().
			Str("chat_id", roomID.String()).
			Str("message_type", message.Type).
			Msg("relay channel full, dropping message")
	}
}

// BroadcastChat relays a chat message to every participant of a session.
func (h *Hub) BroadcastChat(chatID, userID uuid.UUID, text string) {
	h.enqueue(chatID, Message{
		Type: MessageTypeChat,
		Data: ChatData{
			ChatID:    chatID,
			UserID:    userID,
			Text:      text,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// RoomCount returns the number of active chat sessions.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ClientCount returns the number of connected clients across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var n int
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// RoomClientCount returns the number of participants in one session.
func (h *Hub) RoomClientCount(chatID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}
