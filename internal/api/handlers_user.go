package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/openmem/openmem-server/internal/api/respond"
	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/services"
)

// UserHandler serves identity endpoints. Users are addressed by their
// external handle ({userId} in paths), never by the internal row id.
type UserHandler struct {
	users *services.Users
	mems  *services.Memories
}

func NewUserHandler(users *services.Users, mems *services.Memories) *UserHandler {
	return &UserHandler{users: users, mems: mems}
}

// resolveUser translates the path handle into the user row.
func (h *UserHandler) resolveUser(r *http.Request) (*model.User, error) {
	return h.users.GetByHandle(r.Context(), mux.Vars(r)["userId"])
}

// CreateOrGetUser POST /api/v1/users
func (h *UserHandler) CreateOrGetUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	u, err := h.users.CreateOrGet(r.Context(), req.UserID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, u)
}

// GetUser GET /api/v1/users/{userId}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.resolveUser(r)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, u)
}

// UpdateUserMetadata PATCH /api/v1/users/{userId}/metadata
func (h *UserHandler) UpdateUserMetadata(w http.ResponseWriter, r *http.Request) {
	u, err := h.resolveUser(r)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	var req struct {
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	updated, err := h.users.UpdateMetadata(r.Context(), u.ID, req.Metadata)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, updated)
}

// GetUserStats GET /api/v1/users/{userId}/stats
func (h *UserHandler) GetUserStats(w http.ResponseWriter, r *http.Request) {
	u, err := h.resolveUser(r)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	stats, err := h.users.Stats(r.Context(), u.ID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, stats)
}

// GetUserCategories GET /api/v1/users/{userId}/categories
func (h *UserHandler) GetUserCategories(w http.ResponseWriter, r *http.Request) {
	u, err := h.resolveUser(r)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	cats, err := h.mems.UserCategories(r.Context(), u.ID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if cats == nil {
		cats = []*model.Category{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"categories": cats})
}
