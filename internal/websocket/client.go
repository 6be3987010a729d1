// Candid - Deliberation Platform Backend
// Copyright 2026 GovThePPL
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/GovThePPL/candid

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/GovThePPL/candid/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// Chat frames are short text; anything larger is a misbehaving peer.
	maxMessageSize = 4 * 1024
)

// clientIDCounter assigns unique, monotonically increasing connection
// ids so the hub can order clients deterministically during fanout.
var clientIDCounter atomic.Uint64

// inboundFrame is the shape of frames the relay accepts from peers.
// Unknown types are ignored.
type inboundFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Client bridges one websocket connection and the hub, scoped to a
// single chat session.
type Client struct {
	id     uint64
	room   uuid.UUID
	userID uuid.UUID
	hub    *Hub
	conn   *websocket.Conn
	send   chan Message
}

// NewClient creates a client bound to one chat session.
func NewClient(hub *Hub, conn *websocket.Conn, chatID, userID uuid.UUID) *Client {
	return &Client{
		id:     clientIDCounter.Add(1),
		room:   chatID,
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan Message, 256),
	}
}

// ID returns the connection id used for deterministic ordering.
func (c *Client) ID() uint64 {
	return c.id
}

// readPump pumps frames from the websocket connection into the hub.
// Chat frames are relayed to the client's session; ping frames get an
// application-level pong.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame inboundFrame
		err := c.conn.ReadJSON(&frame)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Msg("unexpected websocket close error")
			}
			break
		}

		switch frame.Type {
		case MessageTypeChat:
			if frame.Text == "" {
				continue
			}
			c.hub.BroadcastChat(c.room, c.userID, frame.Text)

		case MessageTypePing:
			select {
			case c.send <- Message{Type: MessageTypePong}:
			default:
			}
		}
	}
}

// writePump pumps frames from the hub to the websocket connection and
// keeps the connection alive with protocol-level pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline")
				return
			}

			if !ok {
				// The hub closed the channel.
				if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					logging.Error().Err(err).Msg("failed to write close message")
				}
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				logging.Error().Err(err).Msg("failed to write chat frame")
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}

			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Start registers the client with the hub and begins both pumps.
func (c *Client) Start() {
	c.hub.Register <- c
	go c.writePump()
	go c.readPump()
}
