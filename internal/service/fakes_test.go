package service

import (
	"context"
	"sync"
	"time"

	"studysync/internal/model"
)

// In-memory repository and broadcaster fakes shared by the service tests.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*model.User)}
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = user
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id], nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

type fakeGroupRepo struct {
	mu     sync.Mutex
	groups map[string]*model.Group
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{groups: make(map[string]*model.Group)}
}

func (f *fakeGroupRepo) Create(ctx context.Context, group *model.Group) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[group.ID] = group
	return nil
}

func (f *fakeGroupRepo) GetByID(ctx context.Context, id string) (*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups[id], nil
}

func (f *fakeGroupRepo) GetByCode(ctx context.Context, code string) (*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.groups {
		if g.Code == code {
			return g, nil
		}
	}
	return nil, nil
}

func (f *fakeGroupRepo) GetByMember(ctx context.Context, userID string) ([]*model.Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Group
	for _, g := range f.groups {
		if g.IsMember(userID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGroupRepo) AddMember(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.groups[id]
	if !ok {
		return nil
	}
	for _, m := range g.Members {
		if m == userID {
			return nil
		}
	}
	g.Members = append(g.Members, userID)
	return nil
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages []*model.Message
}

func newFakeMessageRepo() *fakeMessageRepo { return &fakeMessageRepo{} }

func (f *fakeMessageRepo) Create(ctx context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeMessageRepo) GetByGroup(ctx context.Context, groupID string) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Message
	for _, m := range f.messages {
		if m.GroupID == groupID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeNoteRepo struct {
	mu    sync.Mutex
	notes map[string]*model.Note
}

func newFakeNoteRepo() *fakeNoteRepo {
	return &fakeNoteRepo{notes: make(map[string]*model.Note)}
}

func (f *fakeNoteRepo) GetByGroup(ctx context.Context, groupID string) (*model.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notes[groupID], nil
}

func (f *fakeNoteRepo) Upsert(ctx context.Context, note *model.Note) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes[note.GroupID] = note
	return nil
}

type fakeQuestionRepo struct {
	mu        sync.Mutex
	questions map[string]*model.Question
}

func newFakeQuestionRepo() *fakeQuestionRepo {
	return &fakeQuestionRepo{questions: make(map[string]*model.Question)}
}

func (f *fakeQuestionRepo) Create(ctx context.Context, q *model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.questions[q.ID] = q
	return nil
}

func (f *fakeQuestionRepo) GetByID(ctx context.Context, id string) (*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.questions[id], nil
}

func (f *fakeQuestionRepo) GetByGroup(ctx context.Context, groupID string) ([]*model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Question
	for _, q := range f.questions {
		if q.GroupID == groupID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (f *fakeQuestionRepo) SetAnswer(ctx context.Context, id, answer, answeredBy string, answeredAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok || q.AnsweredBy != "" {
		return false, nil
	}
	q.Answer = answer
	q.AnsweredBy = answeredBy
	at := answeredAt
	q.AnsweredAt = &at
	return true, nil
}

type fakeCallRepo struct {
	mu    sync.Mutex
	calls map[string]*model.CallRecord
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{calls: make(map[string]*model.CallRecord)}
}

func (f *fakeCallRepo) Create(ctx context.Context, call *model.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *call
	f.calls[call.ID] = &cp
	return nil
}

func (f *fakeCallRepo) GetByID(ctx context.Context, id string) (*model.CallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.calls[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeCallRepo) GetActiveByGroup(ctx context.Context, groupID string) (*model.CallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.GroupID == groupID && c.Status == model.CallActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeCallRepo) AddParticipant(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	if !ok {
		return nil
	}
	for _, p := range c.Participants {
		if p == userID {
			return nil
		}
	}
	c.Participants = append(c.Participants, userID)
	return nil
}

func (f *fakeCallRepo) RemoveParticipant(ctx context.Context, id, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	if !ok {
		return nil
	}
	out := c.Participants[:0]
	for _, p := range c.Participants {
		if p != userID {
			out = append(out, p)
		}
	}
	c.Participants = out
	return nil
}

func (f *fakeCallRepo) End(ctx context.Context, id string, endTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.calls[id]; ok {
		c.Status = model.CallEnded
		at := endTime
		c.EndTime = &at
	}
	return nil
}

func (f *fakeCallRepo) EndActiveByGroup(ctx context.Context, groupID string, endTime time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c.GroupID == groupID && c.Status == model.CallActive {
			c.Status = model.CallEnded
			at := endTime
			c.EndTime = &at
		}
	}
	return nil
}

func (f *fakeCallRepo) activeCount(groupID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.GroupID == groupID && c.Status == model.CallActive {
			n++
		}
	}
	return n
}

type fakeGroupCache struct {
	mu    sync.Mutex
	metas map[string]*model.GroupMeta
}

func newFakeGroupCache() *fakeGroupCache {
	return &fakeGroupCache{metas: make(map[string]*model.GroupMeta)}
}

func (f *fakeGroupCache) SetMeta(ctx context.Context, code string, meta *model.GroupMeta) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metas[code] = meta
	return nil
}

func (f *fakeGroupCache) GetMeta(ctx context.Context, code string) (*model.GroupMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.metas[code], nil
}

func (f *fakeGroupCache) Exists(ctx context.Context, code string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.metas[code]
	return ok, nil
}

func (f *fakeGroupCache) Delete(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.metas, code)
	return nil
}

// recordedEvent captures one broadcaster call for assertions.
type recordedEvent struct {
	Room    string // empty for direct sends
	Conn    string // empty for room broadcasts
	Name    string
	Payload interface{}
}

// recorderBroadcaster implements Broadcaster and records everything in call
// order.
type recorderBroadcaster struct {
	mu      sync.Mutex
	events  []recordedEvent
	rooms   map[string]map[string]bool // roomID -> connID set
	cleared []string
}

func newRecorderBroadcaster() *recorderBroadcaster {
	return &recorderBroadcaster{rooms: make(map[string]map[string]bool)}
}

func (r *recorderBroadcaster) BroadcastToRoom(roomID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Room: roomID, Name: event, Payload: payload})
}

func (r *recorderBroadcaster) SendToConnection(connID, event string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{Conn: connID, Name: event, Payload: payload})
}

func (r *recorderBroadcaster) JoinRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]bool)
	}
	r.rooms[roomID][connID] = true
}

func (r *recorderBroadcaster) LeaveRoom(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms[roomID], connID)
}

func (r *recorderBroadcaster) ClearRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
	r.cleared = append(r.cleared, roomID)
}

func (r *recorderBroadcaster) eventsIn(roomID string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Room == roomID {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorderBroadcaster) eventsTo(connID string) []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []recordedEvent
	for _, e := range r.events {
		if e.Conn == connID {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorderBroadcaster) roomMembers(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for connID := range r.rooms[roomID] {
		out = append(out, connID)
	}
	return out
}

func (r *recorderBroadcaster) allEvents() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]recordedEvent, len(r.events))
	copy(out, r.events)
	return out
}
