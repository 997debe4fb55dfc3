// Package chat relays trade chat messages between users and admins.
// History lives in memory only and is bounded per room and in room count.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/usdt-market/internal/logging"
)

const (
	// DefaultHistoryLimit bounds the messages kept per room
	DefaultHistoryLimit = 200
	// DefaultMaxRooms bounds the number of rooms kept
	DefaultMaxRooms = 10000

	maxRoomNameLen = 128
	maxTextLen     = 4000
	maxSenderLen   = 64
)

var (
	// ErrInvalidRoom is returned for empty or oversized room names
	ErrInvalidRoom = errors.New("invalid room name")
	// ErrEmptyMessage is returned for blank messages
	ErrEmptyMessage = errors.New("message text required")
)

// SenderType tells admins and users apart. It is set by the server from the
// connection, never taken from the client.
type SenderType string

const (
	SenderUser  SenderType = "user"
	SenderAdmin SenderType = "admin"
)

// Message is one chat line
type Message struct {
	Sender     string     `json:"sender"`
	SenderType SenderType `json:"senderType"`
	Text       string     `json:"text"`
	Timestamp  time.Time  `json:"timestamp"`
}

// RoomInfo summarizes a room for the admin panel
type RoomInfo struct {
	Room          string    `json:"room"`
	Messages      int       `json:"messages"`
	Members       int       `json:"members"`
	LastMessageAt time.Time `json:"lastMessageAt"`
}

// Event is the JSON envelope exchanged over the websocket
type Event struct {
	Type     string    `json:"type"`
	Room     string    `json:"room,omitempty"`
	Message  *Message  `json:"message,omitempty"`
	Messages []Message `json:"messages,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Event types
const (
	EventJoinRoom       = "joinRoom"
	EventLeaveRoom      = "leaveRoom"
	EventSendMessage    = "sendMessage"
	EventChatHistory    = "chatHistory"
	EventReceiveMessage = "receiveMessage"
	EventError          = "error"
)

type room struct {
	name       string
	messages   []Message
	members    map[*Client]struct{}
	lastActive time.Time
}

// Hub keeps rooms, their history and their connected members
type Hub struct {
	mu           sync.RWMutex
	rooms        map[string]*room
	historyLimit int
	maxRooms     int
	now          func() time.Time
}

// NewHub creates a new chat hub
func NewHub(historyLimit, maxRooms int) *Hub {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	if maxRooms <= 0 {
		maxRooms = DefaultMaxRooms
	}
	return &Hub{
		rooms:        make(map[string]*room),
		historyLimit: historyLimit,
		maxRooms:     maxRooms,
		now:          time.Now,
	}
}

// RoomName returns the room shared by a trader and a user. Anonymous
// users share the guest room of the trader.
func RoomName(traderID int64, owner string) string {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		owner = "guest"
	}
	return fmt.Sprintf("chat_trader_%d_user_%s", traderID, owner)
}

// Join adds c to a room and returns a copy of its history
func (h *Hub) Join(c *Client, name string) ([]Message, error) {
	if err := validRoom(name); err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.getOrCreate(name)
	r.members[c] = struct{}{}
	c.rooms[name] = struct{}{}

	return append([]Message(nil), r.messages...), nil
}

// Leave removes c from a room
func (h *Hub) Leave(c *Client, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[name]; ok {
		delete(r.members, c)
	}
	delete(c.rooms, name)
}

// LeaveAll removes c from every room it joined
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for name := range c.rooms {
		if r, ok := h.rooms[name]; ok {
			delete(r.members, c)
		}
	}
	c.rooms = make(map[string]struct{})
}

// Send appends a message to a room and relays it to the room's members.
// Sending to a room creates it, like joining does.
func (h *Hub) Send(name string, msg Message) (Message, error) {
	if err := validRoom(name); err != nil {
		return Message{}, err
	}
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.Text == "" {
		return Message{}, ErrEmptyMessage
	}
	if len(msg.Text) > maxTextLen {
		msg.Text = msg.Text[:maxTextLen]
	}
	msg.Sender = strings.TrimSpace(msg.Sender)
	if len(msg.Sender) > maxSenderLen {
		msg.Sender = msg.Sender[:maxSenderLen]
	}
	if msg.Sender == "" {
		msg.Sender = "User"
	}
	msg.Timestamp = h.now()

	payload, err := json.Marshal(Event{Type: EventReceiveMessage, Room: name, Message: &msg})
	if err != nil {
		return Message{}, err
	}

	h.mu.Lock()
	r := h.getOrCreate(name)
	r.messages = append(r.messages, msg)
	if over := len(r.messages) - h.historyLimit; over > 0 {
		r.messages = append([]Message(nil), r.messages[over:]...)
	}
	r.lastActive = msg.Timestamp
	members := make([]*Client, 0, len(r.members))
	for c := range r.members {
		members = append(members, c)
	}
	h.mu.Unlock()

	for _, c := range members {
		c.deliver(payload)
	}
	return msg, nil
}

// History returns a copy of a room's messages
func (h *Hub) History(name string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if r, ok := h.rooms[name]; ok {
		return append([]Message(nil), r.messages...)
	}
	return []Message{}
}

// Rooms lists rooms, most recently active first
func (h *Hub) Rooms() []RoomInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]RoomInfo, 0, len(h.rooms))
	for _, r := range h.rooms {
		info := RoomInfo{Room: r.name, Messages: len(r.messages), Members: len(r.members)}
		if n := len(r.messages); n > 0 {
			info.LastMessageAt = r.messages[n-1].Timestamp
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := h.rooms[out[i].Room], h.rooms[out[j].Room]
		if !ri.lastActive.Equal(rj.lastActive) {
			return ri.lastActive.After(rj.lastActive)
		}
		return out[i].Room < out[j].Room
	})
	return out
}

// getOrCreate must be called with h.mu held
func (h *Hub) getOrCreate(name string) *room {
	if r, ok := h.rooms[name]; ok {
		return r
	}
	if len(h.rooms) >= h.maxRooms {
		h.evictOldest()
	}
	r := &room{name: name, members: make(map[*Client]struct{}), lastActive: h.now()}
	h.rooms[name] = r
	return r
}

// evictOldest drops the least recently active room. Its members stay
// connected but no longer receive its messages.
func (h *Hub) evictOldest() {
	var oldest *room
	for _, r := range h.rooms {
		if oldest == nil || r.lastActive.Before(oldest.lastActive) {
			oldest = r
		}
	}
	if oldest == nil {
		return
	}
	for c := range oldest.members {
		delete(c.rooms, oldest.name)
	}
	delete(h.rooms, oldest.name)

	logging.WithFields(map[string]interface{}{
		"room":     oldest.name,
		"messages": len(oldest.messages),
	}).Debug("Evicted chat room")
}

func validRoom(name string) error {
	if strings.TrimSpace(name) == "" || len(name) > maxRoomNameLen {
		return ErrInvalidRoom
	}
	return nil
}
