package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/store"
	"github.com/openmem/openmem-server/internal/vector"
)

// Apps manages app (device) registration, identity resolution and removal.
type Apps struct {
	store store.Store
	index vector.Index
	log   zerolog.Logger
}

func NewApps(s store.Store, idx vector.Index, log zerolog.Logger) *Apps {
	return &Apps{store: s, index: idx, log: log}
}

// ResolveByIdentity finds an app by its strongest identity first:
// websocket_url, then agent id, then exact name.
func (a *Apps) ResolveByIdentity(ctx context.Context, websocketURL string, agentID *int64, name string) (*model.App, error) {
	if websocketURL != "" {
		if app, err := a.store.Apps().GetByWebsocketURL(ctx, websocketURL); err == nil {
			return app, nil
		} else if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}
	if agentID != nil {
		if app, err := a.store.Apps().GetByAgentID(ctx, *agentID); err == nil {
			return app, nil
		} else if !errors.Is(err, model.ErrNotFound) {
			return nil, err
		}
	}
	if name != "" {
		return a.store.Apps().GetByName(ctx, name)
	}
	return nil, model.ErrNotFound
}

// BindResult reports the outcome of an endpoint binding.
type BindResult struct {
	App          *model.App `json:"app"`
	AlreadyBound bool       `json:"alreadyBound"`
}

// BindEndpoint binds a device endpoint URL to the owner. An endpoint already
// bound to another user is a conflict; re-binding by the same owner is a
// no-op. A device name collision within the owner rebinds that app.
func (a *Apps) BindEndpoint(ctx context.Context, ownerID, endpointURL, deviceName string) (*BindResult, error) {
	if endpointURL == "" || deviceName == "" {
		return nil, model.ErrValidation
	}

	existing, err := a.store.Apps().GetByWebsocketURL(ctx, endpointURL)
	if err == nil {
		if existing.OwnerID != ownerID {
			return nil, model.ErrConflict
		}
		return &BindResult{App: existing, AlreadyBound: true}, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	bindMeta := map[string]interface{}{
		"type":              "ai_robot",
		"device_identifier": endpointURL,
		"device_name":       deviceName,
		"bound_at":          time.Now().UTC().Format(time.RFC3339),
		"bind_method":       "manual",
	}

	sameName, err := a.store.Apps().GetByName(ctx, deviceName)
	if err == nil {
		if sameName.OwnerID != ownerID {
			return nil, model.ErrConflict
		}
		sameName.WebsocketURL = &endpointURL
		sameName.DeviceName = &deviceName
		if sameName.Metadata == nil {
			sameName.Metadata = map[string]interface{}{}
		}
		for k, v := range bindMeta {
			sameName.Metadata[k] = v
		}
		updated, err := a.store.Apps().Update(ctx, sameName)
		if err != nil {
			return nil, err
		}
		return &BindResult{App: updated}, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	desc := "Device " + deviceName
	app := &model.App{
		OwnerID:      ownerID,
		Name:         deviceName,
		Description:  &desc,
		Metadata:     bindMeta,
		IsActive:     true,
		WebsocketURL: &endpointURL,
		DeviceName:   &deviceName,
		AgentID:      agentIDFromEndpoint(endpointURL),
	}
	created, err := a.store.Apps().Create(ctx, app)
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("appId", created.ID).Str("owner", ownerID).Msg("endpoint bound to new app")
	return &BindResult{App: created}, nil
}

var tokenRe = regexp.MustCompile(`token=([^&]*)`)

// agentIDFromEndpoint extracts agentId from the JWT carried in the endpoint
// URL's token query parameter. Any parse failure means no agent id.
func agentIDFromEndpoint(endpointURL string) *int64 {
	m := tokenRe.FindStringSubmatch(endpointURL)
	if m == nil {
		return nil
	}
	parts := strings.Split(m[1], ".")
	if len(parts) < 2 {
		return nil
	}
	seg := strings.TrimRight(parts[1], "=")
	payload, err := base64.RawURLEncoding.DecodeString(seg)
	if err != nil {
		payload, err = base64.RawStdEncoding.DecodeString(seg)
		if err != nil {
			return nil
		}
	}
	var claims struct {
		AgentID *json.Number `json:"agentId"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil || claims.AgentID == nil {
		return nil
	}
	n, err := claims.AgentID.Int64()
	if err != nil {
		return nil
	}
	return &n
}

func (a *Apps) Get(ctx context.Context, id string) (*model.App, error) {
	return a.store.Apps().Get(ctx, id)
}

func (a *Apps) ListWithCounts(ctx context.Context, ownerID *string) ([]*model.AppWithCounts, error) {
	return a.store.Apps().ListWithCounts(ctx, ownerID)
}

// SetActive pauses or resumes an app without touching its memories.
func (a *Apps) SetActive(ctx context.Context, appID string, active bool, actingUserID string) (*model.App, error) {
	app, err := a.store.Apps().Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := a.authorize(ctx, app, actingUserID); err != nil {
		return nil, err
	}
	app.IsActive = active
	return a.store.Apps().Update(ctx, app)
}

// Rename changes the app's unique name.
func (a *Apps) Rename(ctx context.Context, appID, name, actingUserID string) (*model.App, error) {
	if name == "" {
		return nil, model.ErrValidation
	}
	app, err := a.store.Apps().Get(ctx, appID)
	if err != nil {
		return nil, err
	}
	if err := a.authorize(ctx, app, actingUserID); err != nil {
		return nil, err
	}
	app.Name = name
	return a.store.Apps().Update(ctx, app)
}

// Delete removes the app and hard-deletes everything it created: vector
// objects first (best effort), then the relational cascade, then the app row.
// This is the one place rows actually leave the database.
func (a *Apps) Delete(ctx context.Context, appID, actingUserID string) (int, error) {
	app, err := a.store.Apps().Get(ctx, appID)
	if err != nil {
		return 0, err
	}
	if err := a.authorize(ctx, app, actingUserID); err != nil {
		return 0, err
	}

	if a.index != nil {
		mems, err := a.store.Memories().List(ctx, model.ListMemoriesRequest{
			UserID:          app.OwnerID,
			AppID:           &app.ID,
			IncludeArchived: true,
		})
		if err != nil {
			return 0, err
		}
		for _, m := range mems {
			if err := a.index.Delete(ctx, m.ID); err != nil {
				a.log.Warn().Err(err).Str("memoryId", m.ID).Msg("vector delete failed during app purge")
			}
		}
	}

	purged, err := a.store.Memories().PurgeByApp(ctx, appID)
	if err != nil {
		return 0, err
	}
	if err := a.store.Apps().Delete(ctx, appID); err != nil {
		return purged, err
	}

	a.log.Info().Str("appId", appID).Int("memoriesPurged", purged).Msg("app deleted")
	return purged, nil
}

func (a *Apps) authorize(ctx context.Context, app *model.App, actingUserID string) error {
	if app.OwnerID == actingUserID {
		return nil
	}
	actor, err := a.store.Users().Get(ctx, actingUserID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return model.ErrPermissionDenied
		}
		return err
	}
	if !actor.IsAdmin {
		return model.ErrPermissionDenied
	}
	return nil
}
