package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	"studysync/internal/service"
)

// Error codes reported back to the originating connection. A failure is
// always scoped to that connection; it never interrupts anyone else's
// session.
const (
	codeNotFound      = "NOT_FOUND"
	codeUnauthorized  = "UNAUTHORIZED"
	codeValidation    = "VALIDATION"
	codeRouting       = "ROUTING"
	codeStateConflict = "STATE_CONFLICT"
	codeInternal      = "INTERNAL"
)

func (h *Handler) dispatch(conn *Connection, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.sendError(conn, "", codeValidation, "malformed message")
		return
	}

	ctx := context.Background()

	switch msg.Type {
	case MsgJoinRoom:
		h.handleJoinRoom(ctx, conn, msg.Payload)
	case MsgSendMessage:
		h.handleSendMessage(ctx, conn, msg.Payload)
	case MsgUpdateNote:
		h.handleUpdateNote(ctx, conn, msg.Payload)
	case MsgCreateQuestion:
		h.handleCreateQuestion(ctx, conn, msg.Payload)
	case MsgAnswerQuestion:
		h.handleAnswerQuestion(ctx, conn, msg.Payload)
	case MsgStartVideoCall:
		h.handleStartVideoCall(ctx, conn, msg.Payload)
	case MsgJoinVideoCall:
		h.handleJoinVideoCall(ctx, conn, msg.Payload)
	case MsgLeaveVideoCall:
		h.handleLeaveVideoCall(ctx, conn, msg.Payload)
	case MsgEndVideoCall:
		h.handleEndVideoCall(ctx, conn, msg.Payload)
	case MsgToggleMedia:
		h.handleToggleMedia(conn, msg.Payload)
	case MsgWebRTCOffer, MsgWebRTCAnswer, MsgWebRTCICE:
		h.relaySignal(conn, msg.Type, msg.Payload, raw)
	default:
		h.sendError(conn, msg.Type, codeValidation, "unknown message type")
	}
}

func (h *Handler) handleJoinRoom(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req joinRoomPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.GroupID == "" {
		h.sendError(conn, MsgJoinRoom, codeValidation, "groupId is required")
		return
	}

	group, err := h.groupSvc.GetGroup(ctx, req.GroupID)
	if err != nil {
		h.sendServiceError(conn, MsgJoinRoom, err)
		return
	}
	if !group.IsMember(conn.UserID) {
		h.sendError(conn, MsgJoinRoom, codeUnauthorized, "not a member of this group")
		return
	}

	backlog, err := h.chatSvc.FetchBacklog(ctx, req.GroupID)
	if err != nil {
		h.sendServiceError(conn, MsgJoinRoom, err)
		return
	}

	frame := encodeFrame(string(MsgBacklog), backlog)
	h.hub.JoinRoomWithBacklog(conn.ID, service.GroupRoom(req.GroupID), [][]byte{frame})

	if err := h.presence.Add(ctx, req.GroupID, conn.UserID); err != nil {
		log.Printf("Failed to record presence for %s in %s: %v", conn.UserID, req.GroupID, err)
	}
}

func (h *Handler) handleSendMessage(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req sendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, MsgSendMessage, codeValidation, "malformed payload")
		return
	}
	if _, err := h.chatSvc.PostMessage(ctx, req.GroupID, conn.UserID, req.Content); err != nil {
		h.sendServiceError(conn, MsgSendMessage, err)
	}
}

func (h *Handler) handleUpdateNote(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req updateNotePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, MsgUpdateNote, codeValidation, "malformed payload")
		return
	}
	if _, err := h.chatSvc.UpdateNote(ctx, req.GroupID, conn.UserID, req.Content); err != nil {
		h.sendServiceError(conn, MsgUpdateNote, err)
	}
}

func (h *Handler) handleCreateQuestion(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req createQuestionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, MsgCreateQuestion, codeValidation, "malformed payload")
		return
	}
	if _, err := h.chatSvc.PostQuestion(ctx, req.GroupID, conn.UserID, req.Question); err != nil {
		h.sendServiceError(conn, MsgCreateQuestion, err)
	}
}

func (h *Handler) handleAnswerQuestion(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req answerQuestionPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, MsgAnswerQuestion, codeValidation, "malformed payload")
		return
	}
	if _, err := h.chatSvc.AnswerQuestion(ctx, req.GroupID, conn.UserID, req.QuestionID, req.Answer); err != nil {
		h.sendServiceError(conn, MsgAnswerQuestion, err)
	}
}

func (h *Handler) handleStartVideoCall(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req startVideoCallPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, MsgStartVideoCall, codeValidation, "malformed payload")
		return
	}
	userName := req.UserName
	if userName == "" {
		userName = conn.UserName
	}
	if _, _, err := h.callSvc.StartCall(ctx, req.GroupID, conn.UserID, userName, conn.ID); err != nil {
		h.sendServiceError(conn, MsgStartVideoCall, err)
	}
}

func (h *Handler) handleJoinVideoCall(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req joinVideoCallPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, MsgJoinVideoCall, codeValidation, "malformed payload")
		return
	}
	userName := req.UserName
	if userName == "" {
		userName = conn.UserName
	}
	if _, _, err := h.callSvc.JoinCall(ctx, req.CallID, conn.UserID, userName, conn.ID); err != nil {
		h.sendServiceError(conn, MsgJoinVideoCall, err)
	}
}

func (h *Handler) handleLeaveVideoCall(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req leaveVideoCallPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, MsgLeaveVideoCall, codeValidation, "malformed payload")
		return
	}
	if err := h.callSvc.LeaveCall(ctx, req.CallID, conn.UserID); err != nil {
		h.sendServiceError(conn, MsgLeaveVideoCall, err)
	}
}

func (h *Handler) handleEndVideoCall(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var req endVideoCallPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, MsgEndVideoCall, codeValidation, "malformed payload")
		return
	}
	if err := h.callSvc.EndCall(ctx, req.CallID, conn.UserID); err != nil {
		h.sendServiceError(conn, MsgEndVideoCall, err)
	}
}

func (h *Handler) handleToggleMedia(conn *Connection, payload json.RawMessage) {
	var req toggleMediaPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		h.sendError(conn, MsgToggleMedia, codeValidation, "malformed payload")
		return
	}
	if err := h.callSvc.ToggleMedia(req.CallID, conn.UserID, req.MediaType, req.Enabled); err != nil {
		h.sendServiceError(conn, MsgToggleMedia, err)
	}
}

// relaySignal forwards a WebRTC negotiation frame, unmodified, to the target
// participant's current connection. Unreachable targets are reported to the
// sender only, never broadcast.
func (h *Handler) relaySignal(conn *Connection, event MessageType, payload json.RawMessage, raw []byte) {
	var sig signalPayload
	if err := json.Unmarshal(payload, &sig); err != nil || sig.To == "" || sig.CallID == "" {
		h.sendError(conn, event, codeValidation, "to and callId are required")
		return
	}

	targetConn, ok := h.callSvc.LookupConnection(sig.CallID, sig.To)
	if !ok {
		h.sendError(conn, event, codeRouting, "target participant is not reachable")
		return
	}
	if !h.hub.SendRaw(targetConn, raw) {
		h.sendError(conn, event, codeRouting, "target participant is not reachable")
	}
}

// cleanup runs when a connection's read pump exits: a disconnect is an
// implicit leave of everything the connection participated in.
func (h *Handler) cleanup(conn *Connection) {
	ctx := context.Background()

	rooms := h.hub.Disconnect(conn.ID)
	for _, roomID := range rooms {
		if groupID, found := strings.CutPrefix(roomID, "group:"); found {
			if err := h.presence.Remove(ctx, groupID, conn.UserID); err != nil {
				log.Printf("Failed to clear presence for %s in %s: %v", conn.UserID, groupID, err)
			}
		}
	}

	if err := h.callSvc.CleanupConnection(ctx, conn.ID); err != nil {
		log.Printf("Call cleanup for connection %s failed: %v", conn.ID, err)
	}
}

func (h *Handler) sendServiceError(conn *Connection, event MessageType, err error) {
	code := codeInternal
	switch {
	case errors.Is(err, service.ErrNotFound):
		code = codeNotFound
	case errors.Is(err, service.ErrUnauthorized):
		code = codeUnauthorized
	case errors.Is(err, service.ErrValidation):
		code = codeValidation
	case errors.Is(err, service.ErrStateConflict):
		code = codeStateConflict
	}
	h.sendError(conn, event, code, err.Error())
}

func (h *Handler) sendError(conn *Connection, event MessageType, code, message string) {
	h.hub.SendToConnection(conn.ID, string(MsgError), map[string]string{
		"event":   string(event),
		"code":    code,
		"message": message,
	})
}
