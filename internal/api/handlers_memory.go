package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	respond "github.com/openmem/openmem-server/internal/api/respond"
	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/services"
)

type MemoryHandler struct {
	users *services.Users
	mems  *services.Memories
	life  *services.Lifecycle
}

func NewMemoryHandler(users *services.Users, mems *services.Memories, life *services.Lifecycle) *MemoryHandler {
	return &MemoryHandler{users: users, mems: mems, life: life}
}

func optionalAppID(r *http.Request) *string {
	if v := r.URL.Query().Get("app_id"); v != "" {
		return &v
	}
	return nil
}

func queryInt(r *http.Request, key string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(key))
	return n
}

// CreateMemories POST /api/v1/users/{userId}/memories
//
// The content goes to the vector store first; the response carries the
// reconciled relational rows with the vector store's ids.
func (h *MemoryHandler) CreateMemories(w http.ResponseWriter, r *http.Request) {
	owner, err := h.users.GetByHandle(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	var req struct {
		Content  string                 `json:"content"`
		AgentID  string                 `json:"agentId,omitempty"`
		Metadata map[string]interface{} `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	out, err := h.mems.Create(r.Context(), owner.ID, req.Content, req.AgentID, req.Metadata)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, map[string]interface{}{"memories": out})
}

// ListMemories GET /api/v1/users/{userId}/memories
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	owner, err := h.users.GetByHandle(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	appID := optionalAppID(r)
	req := model.ListMemoriesRequest{
		UserID:          owner.ID,
		AppID:           appID,
		IncludeArchived: r.URL.Query().Get("include_archived") == "true",
		Limit:           queryInt(r, "limit"),
		Offset:          queryInt(r, "offset"),
	}
	out, err := h.mems.List(r.Context(), req, appID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if out == nil {
		out = []*model.Memory{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"memories": out})
}

// SearchMemories GET /api/v1/users/{userId}/memories/search
func (h *MemoryHandler) SearchMemories(w http.ResponseWriter, r *http.Request) {
	owner, err := h.users.GetByHandle(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	query := r.URL.Query().Get("q")
	hits, err := h.mems.Search(r.Context(), owner.ID, query, optionalAppID(r), queryInt(r, "limit"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"results": hits})
}

// GetMemory GET /api/v1/memories/{memoryId}
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	m, err := h.mems.Get(r.Context(), mux.Vars(r)["memoryId"], optionalAppID(r))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, m)
}

// UpdateMemory PUT /api/v1/memories/{memoryId}
func (h *MemoryHandler) UpdateMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string                 `json:"userId"`
		Content  string                 `json:"content"`
		Metadata map[string]interface{} `json:"metadata,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	actor, err := h.users.GetByHandle(r.Context(), req.UserID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	m, err := h.mems.UpdateContent(r.Context(), mux.Vars(r)["memoryId"], req.Content, actor.ID, req.Metadata)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, m)
}

// SetMemoryState POST /api/v1/memories/{memoryId}/state
func (h *MemoryHandler) SetMemoryState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		State  string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	actor, err := h.users.GetByHandle(r.Context(), req.UserID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	m, err := h.life.SetState(r.Context(), mux.Vars(r)["memoryId"], model.MemoryState(req.State), actor.ID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, m)
}

// DeleteMemory DELETE /api/v1/memories/{memoryId}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	actor, err := h.users.GetByHandle(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	m, err := h.life.Delete(r.Context(), mux.Vars(r)["memoryId"], actor.ID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, m)
}

// DeleteMemoriesBatch POST /api/v1/users/{userId}/memories/delete-batch
func (h *MemoryHandler) DeleteMemoriesBatch(w http.ResponseWriter, r *http.Request) {
	actor, err := h.users.GetByHandle(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	var req struct {
		MemoryIDs []string `json:"memoryIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	n, err := h.life.DeleteBatch(r.Context(), req.MemoryIDs, actor.ID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": n})
}

// GetMemoryHistory GET /api/v1/memories/{memoryId}/history
func (h *MemoryHandler) GetMemoryHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.mems.History(r.Context(), mux.Vars(r)["memoryId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if hist == nil {
		hist = []*model.StatusHistory{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"history": hist})
}

// GetMemoryAccessLogs GET /api/v1/memories/{memoryId}/access-logs
func (h *MemoryHandler) GetMemoryAccessLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.mems.AccessLogs(r.Context(), mux.Vars(r)["memoryId"], queryInt(r, "limit"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []*model.AccessLogEntry{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"accessLogs": logs})
}

// GetMemoryCategories GET /api/v1/memories/{memoryId}/categories
func (h *MemoryHandler) GetMemoryCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.mems.Categories(r.Context(), mux.Vars(r)["memoryId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if cats == nil {
		cats = []*model.Category{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"categories": cats})
}

// GetRelatedMemories GET /api/v1/users/{userId}/memories/{memoryId}/related
func (h *MemoryHandler) GetRelatedMemories(w http.ResponseWriter, r *http.Request) {
	owner, err := h.users.GetByHandle(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	rel, err := h.mems.Related(r.Context(), owner.ID, mux.Vars(r)["memoryId"], queryInt(r, "limit"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if rel == nil {
		rel = []*model.Memory{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"memories": rel})
}
