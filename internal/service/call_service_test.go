package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"studysync/internal/model"
)

func newCallFixture(t *testing.T) (*CallService, *fakeCallRepo, *recorderBroadcaster) {
	t.Helper()

	groups := newFakeGroupRepo()
	groups.Create(context.Background(), &model.Group{
		ID:      "g1",
		Name:    "Algorithms",
		Code:    "ABC234",
		OwnerID: "mentor",
		Members: []string{"mentor", "alice", "bob"},
	})

	calls := newFakeCallRepo()
	svc := NewCallService(groups, calls, NewCallRegistry())
	rec := newRecorderBroadcaster()
	svc.SetBroadcaster(rec)
	return svc, calls, rec
}

func findEvent(events []recordedEvent, name string) *recordedEvent {
	for i := range events {
		if events[i].Name == name {
			return &events[i]
		}
	}
	return nil
}

func payloadOf(t *testing.T, e *recordedEvent) map[string]interface{} {
	t.Helper()
	if e == nil {
		t.Fatal("expected event, got none")
	}
	p, ok := e.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected payload type %T", e.Payload)
	}
	return p
}

func TestStartCallNotifiesGroupAndAcksStarter(t *testing.T) {
	svc, _, rec := newCallFixture(t)
	ctx := context.Background()

	call, participants, err := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	if err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}
	if len(participants) != 1 || participants[0].UserID != "mentor" {
		t.Fatalf("expected participants=[mentor], got %+v", participants)
	}

	started := findEvent(rec.eventsIn(GroupRoom("g1")), "videoCallStarted")
	p := payloadOf(t, started)
	if p["callId"] != call.ID {
		t.Errorf("videoCallStarted callId = %v, want %s", p["callId"], call.ID)
	}

	acks := rec.eventsTo("conn-1")
	ack := findEvent(acks, "videoCallStartedSuccess")
	ap := payloadOf(t, ack)
	list, ok := ap["participants"].([]*model.CallParticipant)
	if !ok || len(list) != 1 {
		t.Fatalf("expected 1-element participant list in ack, got %v", ap["participants"])
	}
}

func TestStartCallRequiresOwner(t *testing.T) {
	svc, calls, rec := newCallFixture(t)

	_, _, err := svc.StartCall(context.Background(), "g1", "alice", "Alice", "conn-2")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if calls.activeCount("g1") != 0 {
		t.Error("unauthorized start must not create a call")
	}
	if len(rec.allEvents()) != 0 {
		t.Error("unauthorized start must not broadcast")
	}
}

func TestStartCallUnknownGroup(t *testing.T) {
	svc, _, _ := newCallFixture(t)

	_, _, err := svc.StartCall(context.Background(), "nope", "mentor", "Mentor", "conn-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStartCallSupersedesActiveCall(t *testing.T) {
	svc, calls, rec := newCallFixture(t)
	ctx := context.Background()

	first, _, err := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	if err != nil {
		t.Fatalf("first StartCall failed: %v", err)
	}
	second, _, err := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1b")
	if err != nil {
		t.Fatalf("second StartCall failed: %v", err)
	}

	if got, _ := calls.GetByID(ctx, first.ID); got.Status != model.CallEnded {
		t.Errorf("superseded call status = %s, want ended", got.Status)
	}
	if calls.activeCount("g1") != 1 {
		t.Fatalf("activeCount = %d, want 1", calls.activeCount("g1"))
	}

	// The old call's end must be broadcast before the new call's start.
	endedIdx, startedIdx := -1, -1
	for i, e := range rec.eventsIn(GroupRoom("g1")) {
		p, _ := e.Payload.(map[string]interface{})
		if e.Name == "videoCallEnded" && p["callId"] == first.ID && endedIdx < 0 {
			endedIdx = i
		}
		if e.Name == "videoCallStarted" && p["callId"] == second.ID {
			startedIdx = i
		}
	}
	if endedIdx < 0 || startedIdx < 0 || endedIdx > startedIdx {
		t.Errorf("expected videoCallEnded(first) before videoCallStarted(second), got ended=%d started=%d", endedIdx, startedIdx)
	}

	// The superseded call's signaling room was cleared.
	found := false
	for _, room := range rec.cleared {
		if room == CallRoom(first.ID) {
			found = true
		}
	}
	if !found {
		t.Error("superseded call's signaling room was not cleared")
	}
}

func TestJoinCallNotifiesAndAcks(t *testing.T) {
	svc, _, rec := newCallFixture(t)
	ctx := context.Background()

	call, _, err := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	if err != nil {
		t.Fatalf("StartCall failed: %v", err)
	}

	_, participants, err := svc.JoinCall(ctx, call.ID, "alice", "Alice", "conn-2")
	if err != nil {
		t.Fatalf("JoinCall failed: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(participants))
	}

	joined := findEvent(rec.eventsIn(CallRoom(call.ID)), "participantJoined")
	p := payloadOf(t, joined)
	if p["participantsCount"] != 2 {
		t.Errorf("participantsCount = %v, want 2", p["participantsCount"])
	}

	ack := findEvent(rec.eventsTo("conn-2"), "videoCallJoinedSuccess")
	ap := payloadOf(t, ack)
	list, ok := ap["participants"].([]*model.CallParticipant)
	if !ok || len(list) != 2 {
		t.Fatalf("expected 2-element participant list in ack, got %v", ap["participants"])
	}

	notice := findEvent(rec.eventsIn(GroupRoom("g1")), "videoCallParticipantsChanged")
	np := payloadOf(t, notice)
	if np["participantsCount"] != 2 {
		t.Errorf("group notice participantsCount = %v, want 2", np["participantsCount"])
	}
}

func TestJoinCallIdempotent(t *testing.T) {
	svc, calls, _ := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")

	if _, _, err := svc.JoinCall(ctx, call.ID, "alice", "Alice", "conn-2"); err != nil {
		t.Fatalf("first join failed: %v", err)
	}
	// Rejoin with a fresh connection (reconnect)
	if _, participants, err := svc.JoinCall(ctx, call.ID, "alice", "Alice", "conn-2b"); err != nil {
		t.Fatalf("rejoin failed: %v", err)
	} else if len(participants) != 2 {
		t.Fatalf("rejoin duplicated participant: got %d entries", len(participants))
	}

	rec, _ := calls.GetByID(ctx, call.ID)
	if len(rec.Participants) != 2 {
		t.Fatalf("durable participants = %v, want [mentor alice]", rec.Participants)
	}

	// The entry must now route to the fresh connection.
	connID, ok := svc.LookupConnection(call.ID, "alice")
	if !ok || connID != "conn-2b" {
		t.Errorf("LookupConnection = %q,%v, want conn-2b,true", connID, ok)
	}
}

func TestJoinCallUnknown(t *testing.T) {
	svc, _, _ := newCallFixture(t)

	_, _, err := svc.JoinCall(context.Background(), "missing", "alice", "Alice", "conn-2")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLeaveCallLastParticipantEndsCall(t *testing.T) {
	svc, calls, rec := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	if err := svc.LeaveCall(ctx, call.ID, "mentor"); err != nil {
		t.Fatalf("LeaveCall failed: %v", err)
	}

	if got, _ := calls.GetByID(ctx, call.ID); got.Status != model.CallEnded {
		t.Errorf("call status = %s, want ended", got.Status)
	}
	if findEvent(rec.eventsIn(GroupRoom("g1")), "videoCallEnded") == nil {
		t.Error("group room did not receive videoCallEnded")
	}
	if _, ok := svc.LookupConnection(call.ID, "mentor"); ok {
		t.Error("active entry still routable after call ended")
	}
}

func TestLeaveCallNotifiesRemaining(t *testing.T) {
	svc, calls, rec := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	svc.JoinCall(ctx, call.ID, "alice", "Alice", "conn-2")

	if err := svc.LeaveCall(ctx, call.ID, "alice"); err != nil {
		t.Fatalf("LeaveCall failed: %v", err)
	}

	left := findEvent(rec.eventsIn(CallRoom(call.ID)), "participantLeft")
	p := payloadOf(t, left)
	if p["userId"] != "alice" || p["participantsCount"] != 1 {
		t.Errorf("unexpected participantLeft payload: %v", p)
	}

	got, _ := calls.GetByID(ctx, call.ID)
	if got.Status != model.CallActive {
		t.Error("call must stay active with a participant remaining")
	}
	if len(got.Participants) != 1 || got.Participants[0] != "mentor" {
		t.Errorf("durable participants = %v, want [mentor]", got.Participants)
	}
}

func TestLeaveCallAfterDisconnectKeepsDurableMembership(t *testing.T) {
	svc, calls, rec := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	svc.JoinCall(ctx, call.ID, "alice", "Alice", "conn-2")
	if err := svc.CleanupConnection(ctx, "conn-2"); err != nil {
		t.Fatalf("CleanupConnection failed: %v", err)
	}
	before := len(rec.allEvents())

	// Alice is durably a participant but no longer live in the call.
	if err := svc.LeaveCall(ctx, call.ID, "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, _ := calls.GetByID(ctx, call.ID)
	if len(got.Participants) != 2 {
		t.Errorf("durable participants = %v, want [mentor alice] untouched", got.Participants)
	}
	if len(rec.allEvents()) != before {
		t.Error("failed leave must not broadcast")
	}
}

func TestEndCallOwnerOnly(t *testing.T) {
	svc, calls, rec := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	before := len(rec.allEvents())

	if err := svc.EndCall(ctx, call.ID, "alice"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got, _ := calls.GetByID(ctx, call.ID); got.Status != model.CallActive {
		t.Error("unauthorized end must not change state")
	}
	if len(rec.allEvents()) != before {
		t.Error("unauthorized end must not broadcast")
	}
}

func TestEndCallAlreadyEnded(t *testing.T) {
	svc, _, _ := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	if err := svc.EndCall(ctx, call.ID, "mentor"); err != nil {
		t.Fatalf("EndCall failed: %v", err)
	}
	if err := svc.EndCall(ctx, call.ID, "mentor"); !errors.Is(err, ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}

func TestDisconnectCleanupEndsEmptyCall(t *testing.T) {
	svc, calls, rec := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	if err := svc.CleanupConnection(ctx, "conn-1"); err != nil {
		t.Fatalf("CleanupConnection failed: %v", err)
	}

	got, _ := calls.GetByID(ctx, call.ID)
	if got.Status != model.CallEnded {
		t.Errorf("call status = %s, want ended", got.Status)
	}
	if findEvent(rec.eventsIn(GroupRoom("g1")), "videoCallEnded") == nil {
		t.Error("group room did not receive videoCallEnded")
	}
	// Disconnect is not an explicit leave: durable membership stays.
	if len(got.Participants) != 1 || got.Participants[0] != "mentor" {
		t.Errorf("durable participants = %v, want [mentor]", got.Participants)
	}
}

func TestDisconnectCleanupKeepsOthers(t *testing.T) {
	svc, calls, rec := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	svc.JoinCall(ctx, call.ID, "alice", "Alice", "conn-2")

	if err := svc.CleanupConnection(ctx, "conn-2"); err != nil {
		t.Fatalf("CleanupConnection failed: %v", err)
	}

	if got, _ := calls.GetByID(ctx, call.ID); got.Status != model.CallActive {
		t.Error("call must stay active for the remaining participant")
	}
	left := findEvent(rec.eventsIn(CallRoom(call.ID)), "participantLeft")
	p := payloadOf(t, left)
	if p["userId"] != "alice" {
		t.Errorf("participantLeft userId = %v, want alice", p["userId"])
	}
	if _, ok := svc.LookupConnection(call.ID, "alice"); ok {
		t.Error("stale participant still routable after disconnect")
	}
}

func TestCleanupConnectionUnknownIsNoop(t *testing.T) {
	svc, _, rec := newCallFixture(t)

	if err := svc.CleanupConnection(context.Background(), "never-seen"); err != nil {
		t.Fatalf("CleanupConnection failed: %v", err)
	}
	if len(rec.allEvents()) != 0 {
		t.Error("cleanup of an unknown connection must not broadcast")
	}
}

func TestToggleMediaBroadcastsToCallRoomOnly(t *testing.T) {
	svc, _, rec := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	if err := svc.ToggleMedia(call.ID, "mentor", "audio", false); err != nil {
		t.Fatalf("ToggleMedia failed: %v", err)
	}

	toggled := findEvent(rec.eventsIn(CallRoom(call.ID)), "participantMediaToggled")
	p := payloadOf(t, toggled)
	if p["mediaType"] != "audio" || p["enabled"] != false {
		t.Errorf("unexpected toggle payload: %v", p)
	}
	if findEvent(rec.eventsIn(GroupRoom("g1")), "participantMediaToggled") != nil {
		t.Error("media toggle must not reach the group room")
	}
}

func TestLookupConnectionAbsentParticipant(t *testing.T) {
	svc, _, _ := newCallFixture(t)
	ctx := context.Background()

	call, _, _ := svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-1")
	if _, ok := svc.LookupConnection(call.ID, "bob"); ok {
		t.Error("expected lookup miss for participant not in the call")
	}
	if _, ok := svc.LookupConnection("missing-call", "mentor"); ok {
		t.Error("expected lookup miss for unknown call")
	}
}

func TestConcurrentStartsKeepSingleActiveCall(t *testing.T) {
	svc, calls, _ := newCallFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			svc.StartCall(ctx, "g1", "mentor", "Mentor", "conn-c")
		}(i)
	}
	wg.Wait()

	if calls.activeCount("g1") != 1 {
		t.Fatalf("activeCount = %d, want exactly 1", calls.activeCount("g1"))
	}
}
