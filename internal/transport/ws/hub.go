package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// MessageType defines the type of WebSocket message
type MessageType string

// Client-sent message types
const (
	MsgJoinRoom       MessageType = "joinRoom"
	MsgSendMessage    MessageType = "sendMessage"
	MsgUpdateNote     MessageType = "updateNote"
	MsgCreateQuestion MessageType = "createQuestion"
	MsgAnswerQuestion MessageType = "answerQuestion"
	MsgStartVideoCall MessageType = "startVideoCall"
	MsgJoinVideoCall  MessageType = "joinVideoCall"
	MsgLeaveVideoCall MessageType = "leaveVideoCall"
	MsgEndVideoCall   MessageType = "endVideoCall"
	MsgToggleMedia    MessageType = "toggleMedia"
	MsgWebRTCOffer    MessageType = "webrtc-offer"
	MsgWebRTCAnswer   MessageType = "webrtc-answer"
	MsgWebRTCICE      MessageType = "webrtc-ice-candidate"
)

// Server-sent message types
const (
	MsgBacklog MessageType = "backlog"
	MsgError   MessageType = "error"
)

// Message is the WebSocket envelope format
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Connection represents a live WebSocket connection with its authenticated
// identity attached.
type Connection struct {
	ID       string
	UserID   string
	UserName string
	Send     chan []byte
}

// Hub is the connection registry: it tracks live connections and the logical
// rooms (group rooms, call signaling rooms) each has joined, and fans events
// out to them. All methods are safe for concurrent use; room mutations and
// sends for a room serialize on the hub lock, so broadcast order is the order
// the hub processed the requests.
type Hub struct {
	mu     sync.RWMutex
	conns  map[string]*Connection            // connID -> conn
	rooms  map[string]map[string]*Connection // roomID -> connID -> conn
	joined map[string]map[string]bool        // connID -> roomID set
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		conns:  make(map[string]*Connection),
		rooms:  make(map[string]map[string]*Connection),
		joined: make(map[string]map[string]bool),
	}
}

// Register adds a connection to the hub.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn.ID] = conn
	h.joined[conn.ID] = make(map[string]bool)
	log.Printf("Connection %s registered for user %s", conn.ID, conn.UserID)
}

// Disconnect removes the connection from the hub and every room it joined,
// atomically with respect to other hub operations, and returns the rooms it
// was in so the caller can run per-room cleanup.
func (h *Hub) Disconnect(connID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return nil
	}

	var rooms []string
	for roomID := range h.joined[connID] {
		rooms = append(rooms, roomID)
		h.removeFromRoomLocked(connID, roomID)
	}
	delete(h.joined, connID)
	delete(h.conns, connID)
	close(conn.Send)
	log.Printf("Connection %s disconnected (was in %d rooms)", connID, len(rooms))
	return rooms
}

// JoinRoomWithBacklog queues the backlog frames to the joining connection and
// then registers it in the room, under one lock acquisition. The connection
// therefore receives the backlog strictly before any live event emitted to
// the room after this call: no gap, no duplicate. Rejoining a room the
// connection is already in is a no-op, so the backlog is never replayed.
func (h *Hub) JoinRoomWithBacklog(connID, roomID string, backlog [][]byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn, ok := h.conns[connID]
	if !ok {
		return
	}
	if h.joined[connID][roomID] {
		return
	}
	for _, frame := range backlog {
		h.sendLocked(conn, frame)
	}
	h.addToRoomLocked(conn, roomID)
}

// JoinRoom adds the connection to a room (implements service.Broadcaster)
func (h *Hub) JoinRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[connID]; ok {
		h.addToRoomLocked(conn, roomID)
	}
}

// LeaveRoom removes the connection from a room (implements service.Broadcaster)
func (h *Hub) LeaveRoom(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeFromRoomLocked(connID, roomID)
	if set, ok := h.joined[connID]; ok {
		delete(set, roomID)
	}
}

// ClearRoom removes every connection from the room (implements
// service.Broadcaster). Used when a call ends.
func (h *Hub) ClearRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for connID := range h.rooms[roomID] {
		if set, ok := h.joined[connID]; ok {
			delete(set, roomID)
		}
	}
	delete(h.rooms, roomID)
}

// BroadcastToRoom sends an event to every connection in the room (implements
// service.Broadcaster). The write lock makes the fan-out one atomic step:
// every member observes concurrent broadcasts in the same relative order.
func (h *Hub) BroadcastToRoom(roomID string, event string, payload interface{}) {
	frame := encodeFrame(event, payload)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.rooms[roomID] {
		h.sendLocked(conn, frame)
	}
}

// SendToConnection sends an event to one connection (implements
// service.Broadcaster)
func (h *Hub) SendToConnection(connID string, event string, payload interface{}) {
	frame := encodeFrame(event, payload)

	h.mu.Lock()
	defer h.mu.Unlock()
	if conn, ok := h.conns[connID]; ok {
		h.sendLocked(conn, frame)
	}
}

// SendRaw forwards a pre-encoded frame to one connection, unmodified. Used by
// the signaling relay. Returns false if the connection is gone.
func (h *Hub) SendRaw(connID string, frame []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.conns[connID]
	if !ok {
		return false
	}
	h.sendLocked(conn, frame)
	return true
}

// Rooms returns the rooms the connection is currently in.
func (h *Hub) Rooms(connID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var rooms []string
	for roomID := range h.joined[connID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (h *Hub) addToRoomLocked(conn *Connection, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]*Connection)
	}
	h.rooms[roomID][conn.ID] = conn
	h.joined[conn.ID][roomID] = true
}

func (h *Hub) removeFromRoomLocked(connID, roomID string) {
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *Hub) sendLocked(conn *Connection, frame []byte) {
	select {
	case conn.Send <- frame:
	default:
		// Drop frame if the client's buffer is full
	}
}

func encodeFrame(event string, payload interface{}) []byte {
	data, _ := json.Marshal(payload)
	frame, _ := json.Marshal(&Message{
		Type:    MessageType(event),
		Payload: data,
	})
	return frame
}
