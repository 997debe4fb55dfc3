package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/usdt-market/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8 << 10
	sendBuffer     = 64
)

// Client is one websocket connection
type Client struct {
	id         string
	senderType SenderType
	conn       *websocket.Conn
	hub        *Hub
	logger     *logging.Logger

	sendMu sync.Mutex
	send   chan []byte
	closed bool

	// rooms is guarded by hub.mu
	rooms map[string]struct{}
}

// inbound is what clients send. Only the text and display name of a
// message are taken from the client.
type inbound struct {
	Type    string `json:"type"`
	Room    string `json:"room"`
	Message *struct {
		Sender string `json:"sender"`
		Text   string `json:"text"`
	} `json:"message"`
}

func newClient(hub *Hub, conn *websocket.Conn, senderType SenderType) *Client {
	id := uuid.NewString()
	return &Client{
		id:         id,
		senderType: senderType,
		conn:       conn,
		hub:        hub,
		send:       make(chan []byte, sendBuffer),
		rooms:      make(map[string]struct{}),
		logger:     logging.WithFields(map[string]interface{}{"clientId": id, "senderType": senderType}),
	}
}

// Serve runs a connection until it closes. An initial room, when given,
// is joined before any client event is read.
func (h *Hub) Serve(conn *websocket.Conn, senderType SenderType, initialRoom string) {
	c := newClient(h, conn, senderType)
	c.logger.Debug("Chat client connected")

	go c.writePump()
	if initialRoom != "" {
		c.handle(inbound{Type: EventJoinRoom, Room: initialRoom})
	}
	c.readPump()
}

// readPump reads events until the connection fails
func (c *Client) readPump() {
	defer func() {
		c.hub.LeaveAll(c)
		c.close()
		c.logger.Debug("Chat client disconnected")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("Chat connection closed unexpectedly")
			}
			return
		}

		var ev inbound
		if err := json.Unmarshal(data, &ev); err != nil {
			c.sendEvent(Event{Type: EventError, Error: "invalid message format"})
			continue
		}
		c.handle(ev)
	}
}

func (c *Client) handle(ev inbound) {
	switch ev.Type {
	case EventJoinRoom:
		history, err := c.hub.Join(c, ev.Room)
		if err != nil {
			c.sendEvent(Event{Type: EventError, Room: ev.Room, Error: err.Error()})
			return
		}
		c.sendEvent(Event{Type: EventChatHistory, Room: ev.Room, Messages: history})

	case EventLeaveRoom:
		c.hub.Leave(c, ev.Room)

	case EventSendMessage:
		if ev.Message == nil {
			c.sendEvent(Event{Type: EventError, Room: ev.Room, Error: ErrEmptyMessage.Error()})
			return
		}
		msg := Message{Sender: ev.Message.Sender, SenderType: c.senderType, Text: ev.Message.Text}
		if c.senderType == SenderAdmin {
			msg.Sender = "Admin"
		}
		if _, err := c.hub.Send(ev.Room, msg); err != nil {
			c.sendEvent(Event{Type: EventError, Room: ev.Room, Error: err.Error()})
		}

	default:
		c.sendEvent(Event{Type: EventError, Error: "unknown event type: " + ev.Type})
	}
}

// writePump forwards queued events and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) sendEvent(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.logger.WithError(err).Error("Failed to encode chat event")
		return
	}
	c.deliver(payload)
}

// deliver queues a payload without blocking. Slow clients lose messages.
func (c *Client) deliver(payload []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("Chat client send buffer full")
	}
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
