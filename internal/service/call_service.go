package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"studysync/internal/model"
	"studysync/internal/repository"
)

// CallService bridges durable call records with the ephemeral registry of live
// participants. Per-group mutations serialize through the registry's group
// lock, so concurrent starts, joins, leaves and disconnects for one group are
// well-ordered while other groups proceed independently.
type CallService struct {
	groupRepo   repository.GroupRepo
	callRepo    repository.CallRepo
	registry    *CallRegistry
	broadcaster Broadcaster
}

// NewCallService creates a new call service
func NewCallService(groupRepo repository.GroupRepo, callRepo repository.CallRepo, registry *CallRegistry) *CallService {
	return &CallService{
		groupRepo: groupRepo,
		callRepo:  callRepo,
		registry:  registry,
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *CallService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// StartCall starts a call in the group. Only the group owner may start one.
// An already-active call is superseded: force-ended before the new call's
// start is broadcast. Returns the new record and its seeded participant list.
func (s *CallService) StartCall(ctx context.Context, groupID, userID, userName, connID string) (*model.CallRecord, []*model.CallParticipant, error) {
	if groupID == "" || userID == "" || connID == "" {
		return nil, nil, ErrValidation
	}

	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return nil, nil, ErrNotFound
	}
	if group.OwnerID != userID {
		return nil, nil, ErrUnauthorized
	}

	mu := s.registry.GroupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	if prev := s.registry.Get(groupID); prev != nil {
		if err := s.endLocked(ctx, prev); err != nil {
			return nil, nil, err
		}
	}
	// Also sweep durable leftovers (a crash can lose the in-memory entry while
	// the record is still marked active).
	if err := s.callRepo.EndActiveByGroup(ctx, groupID, time.Now()); err != nil {
		return nil, nil, fmt.Errorf("failed to end previous call: %w", err)
	}

	call := &model.CallRecord{
		ID:           uuid.NewString(),
		GroupID:      groupID,
		StartedBy:    userID,
		Status:       model.CallActive,
		StartTime:    time.Now(),
		Participants: []string{userID},
	}
	if err := s.callRepo.Create(ctx, call); err != nil {
		return nil, nil, fmt.Errorf("failed to create call: %w", err)
	}

	entry := &ActiveCall{
		CallID:    call.ID,
		GroupID:   groupID,
		StartedBy: userID,
		Participants: map[string]*model.CallParticipant{
			userID: {UserID: userID, UserName: userName, ConnID: connID, JoinedAt: time.Now()},
		},
	}
	if !s.registry.CreateIfAbsent(entry) {
		// Cannot happen while the group lock is held; fail loudly if it does.
		return nil, nil, ErrStateConflict
	}

	participants := s.registry.Participants(groupID)

	if s.broadcaster != nil {
		s.broadcaster.JoinRoom(connID, CallRoom(call.ID))
		s.broadcaster.BroadcastToRoom(GroupRoom(groupID), "videoCallStarted", map[string]interface{}{
			"callId":        call.ID,
			"groupId":       groupID,
			"startedBy":     userID,
			"startedByName": userName,
		})
		s.broadcaster.SendToConnection(connID, "videoCallStartedSuccess", map[string]interface{}{
			"callId":       call.ID,
			"groupId":      groupID,
			"participants": participants,
		})
	}

	log.Printf("Call %s started in group %s by %s", call.ID, groupID, userID)
	return call, participants, nil
}

// JoinCall adds the user to an active call. Rejoining is idempotent on the
// durable list; on the ephemeral side a reconnect overwrites the stale
// connection mapping.
func (s *CallService) JoinCall(ctx context.Context, callID, userID, userName, connID string) (*model.CallRecord, []*model.CallParticipant, error) {
	if callID == "" || userID == "" || connID == "" {
		return nil, nil, ErrValidation
	}

	entry := s.registry.GetByCall(callID)
	if entry == nil {
		return nil, nil, ErrNotFound
	}
	groupID := entry.GroupID

	mu := s.registry.GroupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	// The call may have ended while we waited for the lock.
	if cur := s.registry.GetByCall(callID); cur == nil {
		return nil, nil, ErrNotFound
	}

	if err := s.callRepo.AddParticipant(ctx, callID, userID); err != nil {
		return nil, nil, fmt.Errorf("failed to record participant: %w", err)
	}

	// Re-validate after the awaited durable write.
	if cur := s.registry.GetByCall(callID); cur == nil {
		return nil, nil, ErrNotFound
	}

	p := &model.CallParticipant{UserID: userID, UserName: userName, ConnID: connID, JoinedAt: time.Now()}
	prevConn, ok := s.registry.SetParticipant(groupID, p)
	if !ok {
		return nil, nil, ErrNotFound
	}

	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load call: %w", err)
	}
	if call == nil {
		return nil, nil, ErrNotFound
	}

	participants := s.registry.Participants(groupID)

	if s.broadcaster != nil {
		if prevConn != "" && prevConn != connID {
			s.broadcaster.LeaveRoom(prevConn, CallRoom(callID))
		}
		s.broadcaster.JoinRoom(connID, CallRoom(callID))
		s.broadcaster.BroadcastToRoom(CallRoom(callID), "participantJoined", map[string]interface{}{
			"callId":            callID,
			"userId":            userID,
			"userName":          userName,
			"participants":      participants,
			"participantsCount": len(participants),
		})
		s.broadcaster.BroadcastToRoom(GroupRoom(groupID), "videoCallParticipantsChanged", map[string]interface{}{
			"callId":            callID,
			"participantsCount": len(participants),
		})
		s.broadcaster.SendToConnection(connID, "videoCallJoinedSuccess", map[string]interface{}{
			"callId":       callID,
			"groupId":      groupID,
			"participants": participants,
		})
	}

	return call, participants, nil
}

// LeaveCall removes the user from the call, durably and ephemerally. The last
// participant leaving ends the call.
func (s *CallService) LeaveCall(ctx context.Context, callID, userID string) error {
	if callID == "" || userID == "" {
		return ErrValidation
	}

	entry := s.registry.GetByCall(callID)
	if entry == nil {
		return ErrNotFound
	}
	groupID := entry.GroupID

	mu := s.registry.GroupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	if cur := s.registry.GetByCall(callID); cur == nil {
		return ErrNotFound
	}
	// A durable-only participant (dropped connection, never rejoined) has
	// nothing live to leave; fail before touching their membership record.
	if _, ok := s.registry.LookupConnection(callID, userID); !ok {
		return ErrNotFound
	}

	// Explicit leave removes durable membership; a mere disconnect does not.
	if err := s.callRepo.RemoveParticipant(ctx, callID, userID); err != nil {
		return fmt.Errorf("failed to remove participant: %w", err)
	}

	removed, remaining, ok := s.registry.RemoveParticipant(groupID, userID)
	if !ok {
		return ErrNotFound
	}

	if s.broadcaster != nil {
		s.broadcaster.LeaveRoom(removed.ConnID, CallRoom(callID))
	}

	if remaining == 0 {
		return s.endLocked(ctx, s.registry.Get(groupID))
	}

	if s.broadcaster != nil {
		participants := s.registry.Participants(groupID)
		s.broadcaster.BroadcastToRoom(CallRoom(callID), "participantLeft", map[string]interface{}{
			"callId":            callID,
			"userId":            userID,
			"participants":      participants,
			"participantsCount": len(participants),
		})
	}
	return nil
}

// EndCall ends the call for everyone. Owner-only; ending an already-ended
// call is a state conflict.
func (s *CallService) EndCall(ctx context.Context, callID, userID string) error {
	if callID == "" || userID == "" {
		return ErrValidation
	}

	call, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to load call: %w", err)
	}
	if call == nil {
		return ErrNotFound
	}

	group, err := s.groupRepo.GetByID(ctx, call.GroupID)
	if err != nil {
		return fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return ErrNotFound
	}
	if group.OwnerID != userID {
		return ErrUnauthorized
	}

	mu := s.registry.GroupLock(call.GroupID)
	mu.Lock()
	defer mu.Unlock()

	entry := s.registry.GetByCall(callID)
	if entry == nil {
		return ErrStateConflict
	}
	return s.endLocked(ctx, entry)
}

// ToggleMedia broadcasts a participant's mute/camera state to the call room
// only. It touches no durable state.
func (s *CallService) ToggleMedia(callID, userID, mediaType string, enabled bool) error {
	if callID == "" || userID == "" || mediaType == "" {
		return ErrValidation
	}

	if _, ok := s.registry.LookupConnection(callID, userID); !ok {
		return ErrNotFound
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(CallRoom(callID), "participantMediaToggled", map[string]interface{}{
			"callId":    callID,
			"userId":    userID,
			"mediaType": mediaType,
			"enabled":   enabled,
		})
	}
	return nil
}

// LookupConnection resolves a call participant to its live connection for the
// signaling relay.
func (s *CallService) LookupConnection(callID, userID string) (string, bool) {
	return s.registry.LookupConnection(callID, userID)
}

// CleanupConnection tears down the disconnected connection's call
// participation. The reverse index makes this O(1) in the number of active
// calls; a connection belongs to at most one call. Durable membership is kept:
// only an explicit leave removes it.
func (s *CallService) CleanupConnection(ctx context.Context, connID string) error {
	groupID, ok := s.registry.GroupByConn(connID)
	if !ok {
		return nil
	}

	mu := s.registry.GroupLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	entry := s.registry.Get(groupID)
	if entry == nil {
		return nil
	}

	var stale *model.CallParticipant
	for _, p := range entry.Participants {
		if p.ConnID == connID {
			stale = p
			break
		}
	}
	if stale == nil {
		return nil
	}

	removed, remaining, ok := s.registry.RemoveParticipant(groupID, stale.UserID)
	if !ok {
		return nil
	}
	log.Printf("Purged participant %s from call %s after disconnect", removed.UserID, entry.CallID)

	if remaining == 0 {
		return s.endLocked(ctx, s.registry.Get(groupID))
	}

	if s.broadcaster != nil {
		participants := s.registry.Participants(groupID)
		s.broadcaster.BroadcastToRoom(CallRoom(entry.CallID), "participantLeft", map[string]interface{}{
			"callId":            entry.CallID,
			"userId":            removed.UserID,
			"participants":      participants,
			"participantsCount": len(participants),
		})
	}
	return nil
}

// endLocked marks the call ended durably, discards the ephemeral entry,
// notifies both rooms and clears the signaling room. Caller holds the group
// lock.
func (s *CallService) endLocked(ctx context.Context, entry *ActiveCall) error {
	if entry == nil {
		return nil
	}

	if err := s.callRepo.End(ctx, entry.CallID, time.Now()); err != nil {
		return fmt.Errorf("failed to end call: %w", err)
	}
	s.registry.Delete(entry.GroupID)

	if s.broadcaster != nil {
		payload := map[string]interface{}{
			"callId":  entry.CallID,
			"groupId": entry.GroupID,
		}
		s.broadcaster.BroadcastToRoom(CallRoom(entry.CallID), "videoCallEnded", payload)
		s.broadcaster.BroadcastToRoom(GroupRoom(entry.GroupID), "videoCallEnded", payload)
		s.broadcaster.ClearRoom(CallRoom(entry.CallID))
	}

	log.Printf("Call %s ended in group %s", entry.CallID, entry.GroupID)
	return nil
}
