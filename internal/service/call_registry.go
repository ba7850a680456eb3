package service

import (
	"sort"
	"sync"

	"studysync/internal/model"
)

// ActiveCall is the ephemeral record of who is live in a call right now. It
// exists iff the group's durable call record is active, and it is the single
// source of truth for signaling routability.
type ActiveCall struct {
	CallID       string
	GroupID      string
	StartedBy    string
	Participants map[string]*model.CallParticipant // userID -> participant
}

// CallRegistry holds the active call entries, keyed by group. Alongside the
// primary map it maintains reverse indexes from call id and connection id back
// to the owning group, so relay lookups and disconnect cleanup are O(1)
// instead of a scan over all active calls.
//
// The registry only guards its own maps. Logical call mutations (start, join,
// leave, end, disconnect cleanup) must serialize through GroupLock so that,
// for one group, no two mutations interleave around their durable writes.
// Locks for different groups are independent.
type CallRegistry struct {
	mu      sync.RWMutex
	byGroup map[string]*ActiveCall
	byCall  map[string]string // callID -> groupID
	byConn  map[string]string // connID -> groupID

	locks sync.Map // groupID -> *sync.Mutex
}

// NewCallRegistry creates an empty registry
func NewCallRegistry() *CallRegistry {
	return &CallRegistry{
		byGroup: make(map[string]*ActiveCall),
		byCall:  make(map[string]string),
		byConn:  make(map[string]string),
	}
}

// GroupLock returns the mutex serializing call mutations for one group.
func (r *CallRegistry) GroupLock(groupID string) *sync.Mutex {
	mu, _ := r.locks.LoadOrStore(groupID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Get returns the group's active call entry, or nil.
func (r *CallRegistry) Get(groupID string) *ActiveCall {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byGroup[groupID]
}

// GetByCall resolves a call id to its active entry, or nil if the call is not
// active.
func (r *CallRegistry) GetByCall(callID string) *ActiveCall {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if groupID, ok := r.byCall[callID]; ok {
		return r.byGroup[groupID]
	}
	return nil
}

// CreateIfAbsent installs the entry only if its group has no active call.
// Returns false when an entry already exists.
func (r *CallRegistry) CreateIfAbsent(entry *ActiveCall) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byGroup[entry.GroupID]; exists {
		return false
	}
	if entry.Participants == nil {
		entry.Participants = make(map[string]*model.CallParticipant)
	}
	r.byGroup[entry.GroupID] = entry
	r.byCall[entry.CallID] = entry.GroupID
	for _, p := range entry.Participants {
		r.byConn[p.ConnID] = entry.GroupID
	}
	return true
}

// Delete removes the group's entry and all its index mappings, returning the
// removed entry (nil if there was none).
func (r *CallRegistry) Delete(groupID string) *ActiveCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.byGroup[groupID]
	if !ok {
		return nil
	}
	delete(r.byGroup, groupID)
	delete(r.byCall, entry.CallID)
	for _, p := range entry.Participants {
		if r.byConn[p.ConnID] == groupID {
			delete(r.byConn, p.ConnID)
		}
	}
	return entry
}

// SetParticipant adds or overwrites a participant keyed by identity. A
// reconnect overwrites the stale connection mapping; the previous connection
// id is returned so the caller can evict it from the signaling room.
func (r *CallRegistry) SetParticipant(groupID string, p *model.CallParticipant) (prevConnID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.byGroup[groupID]
	if !exists {
		return "", false
	}
	if old, dup := entry.Participants[p.UserID]; dup {
		prevConnID = old.ConnID
		if prevConnID != p.ConnID {
			delete(r.byConn, prevConnID)
		}
	}
	entry.Participants[p.UserID] = p
	r.byConn[p.ConnID] = groupID
	return prevConnID, true
}

// RemoveParticipant removes a participant by identity and reports how many
// remain.
func (r *CallRegistry) RemoveParticipant(groupID, userID string) (removed *model.CallParticipant, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.byGroup[groupID]
	if !exists {
		return nil, 0, false
	}
	p, present := entry.Participants[userID]
	if !present {
		return nil, len(entry.Participants), false
	}
	delete(entry.Participants, userID)
	if r.byConn[p.ConnID] == groupID {
		delete(r.byConn, p.ConnID)
	}
	return p, len(entry.Participants), true
}

// LookupConnection resolves a call participant to its current connection.
// Returns false if the participant is not present in the active entry.
func (r *CallRegistry) LookupConnection(callID, userID string) (connID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	groupID, exists := r.byCall[callID]
	if !exists {
		return "", false
	}
	p, present := r.byGroup[groupID].Participants[userID]
	if !present {
		return "", false
	}
	return p.ConnID, true
}

// GroupByConn resolves the group whose active call holds this connection.
func (r *CallRegistry) GroupByConn(connID string) (groupID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	groupID, ok = r.byConn[connID]
	return groupID, ok
}

// Participants returns the entry's participants ordered by join time, so
// every ack and broadcast carries the list in a stable order.
func (r *CallRegistry) Participants(groupID string) []*model.CallParticipant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.byGroup[groupID]
	if !exists {
		return nil
	}
	out := make([]*model.CallParticipant, 0, len(entry.Participants))
	for _, p := range entry.Participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].JoinedAt.Before(out[j].JoinedAt)
	})
	return out
}
