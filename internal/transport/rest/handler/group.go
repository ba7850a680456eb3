package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"studysync/internal/cache"
	"studysync/internal/model"
	"studysync/internal/service"
	"studysync/internal/transport/rest/middleware"
)

// GroupHandler handles group endpoints
type GroupHandler struct {
	groupSvc *service.GroupService
	chatSvc  *service.ChatService
	presence cache.PresenceCache
}

// NewGroupHandler creates a new group handler
func NewGroupHandler(groupSvc *service.GroupService, chatSvc *service.ChatService, presence cache.PresenceCache) *GroupHandler {
	return &GroupHandler{
		groupSvc: groupSvc,
		chatSvc:  chatSvc,
		presence: presence,
	}
}

// CreateGroupRequest is the request body for creating a group
type CreateGroupRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// JoinGroupRequest is the request body for joining by code
type JoinGroupRequest struct {
	Code string `json:"code"`
}

// Create handles POST /v1/groups
func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	group, err := h.groupSvc.CreateGroup(r.Context(), userID, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, group)
}

// Join handles POST /v1/groups/join
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req JoinGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	group, err := h.groupSvc.JoinGroup(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, group)
}

// List handles GET /v1/groups
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	groups, err := h.groupSvc.ListGroups(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, groups)
}

// Get handles GET /v1/groups/{id}
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, err := h.requireMembership(w, r)
	if err != nil {
		return
	}
	writeJSON(w, http.StatusOK, group)
}

// Messages handles GET /v1/groups/{id}/messages
func (h *GroupHandler) Messages(w http.ResponseWriter, r *http.Request) {
	group, err := h.requireMembership(w, r)
	if err != nil {
		return
	}

	backlog, err := h.chatSvc.FetchBacklog(r.Context(), group.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, backlog.Messages)
}

// Note handles GET /v1/groups/{id}/note
func (h *GroupHandler) Note(w http.ResponseWriter, r *http.Request) {
	group, err := h.requireMembership(w, r)
	if err != nil {
		return
	}

	note, err := h.chatSvc.GetNote(r.Context(), group.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// Questions handles GET /v1/groups/{id}/questions
func (h *GroupHandler) Questions(w http.ResponseWriter, r *http.Request) {
	group, err := h.requireMembership(w, r)
	if err != nil {
		return
	}

	backlog, err := h.chatSvc.FetchBacklog(r.Context(), group.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, backlog.Questions)
}

// Online handles GET /v1/groups/{id}/online
func (h *GroupHandler) Online(w http.ResponseWriter, r *http.Request) {
	group, err := h.requireMembership(w, r)
	if err != nil {
		return
	}

	users, err := h.presence.List(r.Context(), group.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if users == nil {
		users = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users, "count": len(users)})
}

func (h *GroupHandler) requireMembership(w http.ResponseWriter, r *http.Request) (*model.Group, error) {
	id := mux.Vars(r)["id"]
	userID := middleware.GetUserID(r.Context())

	group, err := h.groupSvc.GetGroup(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return nil, err
	}
	if !group.IsMember(userID) {
		writeError(w, http.StatusForbidden, "not a member of this group")
		return nil, service.ErrUnauthorized
	}
	return group, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrStateConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
