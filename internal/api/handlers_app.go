package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	respond "github.com/openmem/openmem-server/internal/api/respond"
	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/services"
	"github.com/openmem/openmem-server/internal/store"
)

type AppHandler struct {
	users  *services.Users
	apps   *services.Apps
	access *services.AccessResolver
	rules  store.AccessRules
}

func NewAppHandler(users *services.Users, apps *services.Apps, access *services.AccessResolver, rules store.AccessRules) *AppHandler {
	return &AppHandler{users: users, apps: apps, access: access, rules: rules}
}

// ListApps GET /api/v1/users/{userId}/apps
func (h *AppHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	owner, err := h.users.GetByHandle(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	apps, err := h.apps.ListWithCounts(r.Context(), &owner.ID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	if apps == nil {
		apps = []*model.AppWithCounts{}
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"apps": apps})
}

// GetApp GET /api/v1/apps/{appId}
func (h *AppHandler) GetApp(w http.ResponseWriter, r *http.Request) {
	app, err := h.apps.Get(r.Context(), mux.Vars(r)["appId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, app)
}

// SetAppActive PUT /api/v1/apps/{appId}/active
func (h *AppHandler) SetAppActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID   string `json:"userId"`
		IsActive bool   `json:"isActive"`
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
	app, err := h.apps.SetActive(r.Context(), mux.Vars(r)["appId"], req.IsActive, actor.ID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, app)
}

// RenameApp PUT /api/v1/apps/{appId}/name
func (h *AppHandler) RenameApp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
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
	app, err := h.apps.Rename(r.Context(), mux.Vars(r)["appId"], req.Name, actor.ID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, app)
}

// DeleteApp DELETE /api/v1/apps/{appId}
//
// Hard-deletes the app and everything it created. This is the only endpoint
// that physically removes memory rows.
func (h *AppHandler) DeleteApp(w http.ResponseWriter, r *http.Request) {
	actor, err := h.users.GetByHandle(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	purged, err := h.apps.Delete(r.Context(), mux.Vars(r)["appId"], actor.ID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{"memoriesPurged": purged})
}

// BindEndpoint POST /api/v1/users/{userId}/bind-endpoint
func (h *AppHandler) BindEndpoint(w http.ResponseWriter, r *http.Request) {
	owner, err := h.users.GetByHandle(r.Context(), mux.Vars(r)["userId"])
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	var req struct {
		EndpointURL string `json:"endpointUrl"`
		DeviceName  string `json:"deviceName"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	res, err := h.apps.BindEndpoint(r.Context(), owner.ID, req.EndpointURL, req.DeviceName)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	status := http.StatusCreated
	if res.AlreadyBound {
		status = http.StatusOK
	}
	respond.WriteJSON(w, status, res)
}

// ResolveApp POST /api/v1/apps/resolve
func (h *AppHandler) ResolveApp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		WebsocketURL string `json:"websocketUrl,omitempty"`
		AgentID      *int64 `json:"agentId,omitempty"`
		Name         string `json:"name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	app, err := h.apps.ResolveByIdentity(r.Context(), req.WebsocketURL, req.AgentID, req.Name)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusOK, app)
}

// CreateAccessRule POST /api/v1/access-rules
func (h *AppHandler) CreateAccessRule(w http.ResponseWriter, r *http.Request) {
	var rule model.AccessRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respond.WriteBadRequest(w, "Invalid JSON")
		return
	}
	switch rule.Effect {
	case model.EffectAllow, model.EffectDeny:
	default:
		respond.WriteBadRequest(w, "effect must be allow or deny")
		return
	}
	created, err := h.rules.Create(r.Context(), &rule)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	respond.WriteJSON(w, http.StatusCreated, created)
}

// GetAppAccessScope GET /api/v1/apps/{appId}/access-scope
func (h *AppHandler) GetAppAccessScope(w http.ResponseWriter, r *http.Request) {
	appID := mux.Vars(r)["appId"]
	if _, err := h.apps.Get(r.Context(), appID); err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	scope, err := h.access.AccessibleMemoryIDs(r.Context(), appID)
	if err != nil {
		respond.WriteServiceError(w, err)
		return
	}
	ids := make([]string, 0, len(scope.IDs))
	for id := range scope.IDs {
		ids = append(ids, id)
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"unrestricted": scope.Unrestricted,
		"memoryIds":    ids,
	})
}
