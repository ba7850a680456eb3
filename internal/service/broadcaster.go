package service

// Broadcaster interface for WebSocket room fan-out (avoids import cycle)
type Broadcaster interface {
	BroadcastToRoom(roomID string, event string, payload interface{})
	SendToConnection(connID string, event string, payload interface{})
	JoinRoom(connID, roomID string)
	LeaveRoom(connID, roomID string)
	ClearRoom(roomID string)
}

// GroupRoom is the broadcast scope of all connections joined to a group.
func GroupRoom(groupID string) string {
	return "group:" + groupID
}

// CallRoom is the signaling scope of connections participating in one call.
func CallRoom(callID string) string {
	return "call:" + callID
}
