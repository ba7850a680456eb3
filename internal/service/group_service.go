package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"

	"studysync/internal/cache"
	"studysync/internal/model"
	"studysync/internal/repository"
)

// GroupService handles group lifecycle and membership
type GroupService struct {
	groupRepo  repository.GroupRepo
	groupCache cache.GroupCache
}

// NewGroupService creates a new group service
func NewGroupService(groupRepo repository.GroupRepo, groupCache cache.GroupCache) *GroupService {
	return &GroupService{
		groupRepo:  groupRepo,
		groupCache: groupCache,
	}
}

// CreateGroup creates a group with the creator as owner (mentor). The owner is
// fixed at creation and is also the first member.
func (s *GroupService) CreateGroup(ctx context.Context, ownerID, name, description string) (*model.Group, error) {
	if ownerID == "" || name == "" {
		return nil, ErrValidation
	}

	code, err := s.generateJoinCode(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to generate join code: %w", err)
	}

	group := &model.Group{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Code:        code,
		OwnerID:     ownerID,
		Members:     []string{ownerID},
		CreatedAt:   time.Now(),
	}

	if err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	meta := &model.GroupMeta{
		GroupID:   group.ID,
		Name:      group.Name,
		OwnerID:   group.OwnerID,
		CreatedAt: group.CreatedAt,
	}
	if err := s.groupCache.SetMeta(ctx, code, meta); err != nil {
		return nil, fmt.Errorf("failed to cache group: %w", err)
	}

	return group, nil
}

// JoinGroup adds the user to the group with the given join code. Joining twice
// is a no-op; members never shrink here.
func (s *GroupService) JoinGroup(ctx context.Context, userID, code string) (*model.Group, error) {
	if userID == "" || code == "" {
		return nil, ErrValidation
	}

	groupID := ""
	meta, err := s.groupCache.GetMeta(ctx, code)
	if err == nil && meta != nil {
		groupID = meta.GroupID
	}

	var group *model.Group
	if groupID != "" {
		group, err = s.groupRepo.GetByID(ctx, groupID)
	} else {
		// Cache miss (expired or written by an older deployment)
		group, err = s.groupRepo.GetByCode(ctx, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up group: %w", err)
	}
	if group == nil {
		return nil, ErrNotFound
	}

	if err := s.groupRepo.AddMember(ctx, group.ID, userID); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	if !group.IsMember(userID) {
		group.Members = append(group.Members, userID)
	}
	return group, nil
}

// GetGroup retrieves a group by id
func (s *GroupService) GetGroup(ctx context.Context, id string) (*model.Group, error) {
	group, err := s.groupRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrNotFound
	}
	return group, nil
}

// ListGroups returns the groups the user belongs to
func (s *GroupService) ListGroups(ctx context.Context, userID string) ([]*model.Group, error) {
	return s.groupRepo.GetByMember(ctx, userID)
}

// generateJoinCode creates a 6-char alphanumeric code
func (s *GroupService) generateJoinCode(ctx context.Context) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const codeLen = 6

	for attempts := 0; attempts < 10; attempts++ {
		b := make([]byte, codeLen)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}

		code := make([]byte, codeLen)
		for i := range code {
			code[i] = chars[int(b[i])%len(chars)]
		}
		codeStr := string(code)

		exists, err := s.groupCache.Exists(ctx, codeStr)
		if err != nil {
			return "", err
		}
		if !exists {
			return codeStr, nil
		}
	}

	return "", fmt.Errorf("failed to generate unique join code")
}
