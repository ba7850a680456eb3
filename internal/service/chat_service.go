package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"studysync/internal/model"
	"studysync/internal/repository"
)

// ChatService implements the group broadcast operations: chat messages, the
// shared note and the Q&A thread. Every operation persists first, then emits
// the persisted event to the group's room.
type ChatService struct {
	groupRepo    repository.GroupRepo
	userRepo     repository.UserRepo
	messageRepo  repository.MessageRepo
	noteRepo     repository.NoteRepo
	questionRepo repository.QuestionRepo
	broadcaster  Broadcaster

	// Serializes note updates per group so the persisted value always matches
	// the last emitted one (last-writer-wins by processing order, not by
	// client timestamp).
	noteLocks sync.Map // groupID -> *sync.Mutex
}

// NewChatService creates a new chat service
func NewChatService(
	groupRepo repository.GroupRepo,
	userRepo repository.UserRepo,
	messageRepo repository.MessageRepo,
	noteRepo repository.NoteRepo,
	questionRepo repository.QuestionRepo,
) *ChatService {
	return &ChatService{
		groupRepo:    groupRepo,
		userRepo:     userRepo,
		messageRepo:  messageRepo,
		noteRepo:     noteRepo,
		questionRepo: questionRepo,
	}
}

// SetBroadcaster sets the broadcaster for WebSocket events
func (s *ChatService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// Backlog is the durable history handed to a connection on room join, before
// any live event for that room is delivered.
type Backlog struct {
	Messages  []*model.Message  `json:"messages"`
	Note      *model.Note       `json:"note"`
	Questions []*model.Question `json:"questions"`
}

// PostMessage persists a chat message and emits newMessage to the group room.
func (s *ChatService) PostMessage(ctx context.Context, groupID, userID, content string) (*model.Message, error) {
	if groupID == "" || userID == "" || content == "" {
		return nil, ErrValidation
	}

	author, err := s.requireMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		UserID:    userID,
		UserName:  author.Name,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(GroupRoom(groupID), "newMessage", msg)
	}
	return msg, nil
}

// UpdateNote upserts the group's shared note and emits noteUpdated. Concurrent
// edits resolve by processing order.
func (s *ChatService) UpdateNote(ctx context.Context, groupID, userID, content string) (*model.Note, error) {
	if groupID == "" || userID == "" {
		return nil, ErrValidation
	}

	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	mu := s.noteLock(groupID)
	mu.Lock()
	defer mu.Unlock()

	note := &model.Note{
		GroupID:       groupID,
		Content:       content,
		LastUpdatedBy: userID,
		UpdatedAt:     time.Now(),
	}
	if err := s.noteRepo.Upsert(ctx, note); err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(GroupRoom(groupID), "noteUpdated", note)
	}
	return note, nil
}

// GetNote returns the group's note, lazily creating an empty one on first
// access.
func (s *ChatService) GetNote(ctx context.Context, groupID string) (*model.Note, error) {
	note, err := s.noteRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load note: %w", err)
	}
	if note == nil {
		note = &model.Note{GroupID: groupID}
	}
	return note, nil
}

// PostQuestion persists a Q&A question and emits newQuestion.
func (s *ChatService) PostQuestion(ctx context.Context, groupID, userID, text string) (*model.Question, error) {
	if groupID == "" || userID == "" || text == "" {
		return nil, ErrValidation
	}

	asker, err := s.requireMember(ctx, groupID, userID)
	if err != nil {
		return nil, err
	}

	q := &model.Question{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		UserID:    userID,
		UserName:  asker.Name,
		Question:  text,
		CreatedAt: time.Now(),
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to save question: %w", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(GroupRoom(groupID), "newQuestion", q)
	}
	return q, nil
}

// AnswerQuestion sets the write-once answer and emits questionAnswered. An
// already-answered question fails with ErrStateConflict, an unknown id with
// ErrNotFound.
func (s *ChatService) AnswerQuestion(ctx context.Context, groupID, userID, questionID, answer string) (*model.Question, error) {
	if groupID == "" || userID == "" || questionID == "" || answer == "" {
		return nil, ErrValidation
	}

	if _, err := s.requireMember(ctx, groupID, userID); err != nil {
		return nil, err
	}

	answeredAt := time.Now()
	won, err := s.questionRepo.SetAnswer(ctx, questionID, answer, userID, answeredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	if !won {
		// Distinguish "unknown question" from "already answered"
		q, err := s.questionRepo.GetByID(ctx, questionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load question: %w", err)
		}
		if q == nil {
			return nil, ErrNotFound
		}
		return nil, ErrStateConflict
	}

	q, err := s.questionRepo.GetByID(ctx, questionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load question: %w", err)
	}
	if q == nil {
		return nil, ErrNotFound
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastToRoom(GroupRoom(groupID), "questionAnswered", q)
	}
	return q, nil
}

// FetchBacklog collects the durable history of a group for a newly joined
// connection.
func (s *ChatService) FetchBacklog(ctx context.Context, groupID string) (*Backlog, error) {
	messages, err := s.messageRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	note, err := s.GetNote(ctx, groupID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.GetByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load questions: %w", err)
	}

	if messages == nil {
		messages = []*model.Message{}
	}
	if questions == nil {
		questions = []*model.Question{}
	}
	return &Backlog{Messages: messages, Note: note, Questions: questions}, nil
}

func (s *ChatService) requireMember(ctx context.Context, groupID, userID string) (*model.User, error) {
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if group == nil {
		return nil, ErrNotFound
	}
	if !group.IsMember(userID) {
		return nil, ErrUnauthorized
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *ChatService) noteLock(groupID string) *sync.Mutex {
	mu, _ := s.noteLocks.LoadOrStore(groupID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
