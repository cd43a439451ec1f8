package services

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openmem/openmem-server/internal/categorize"
	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/store"
)

// Reconciler upserts relational memory rows from vector store sync events.
// The event id is canonical: rows are keyed by it and it is never regenerated
// here. Replays converge to the same row.
type Reconciler struct {
	store       store.Store
	categorizer categorize.Categorizer
	log         zerolog.Logger
}

func NewReconciler(s store.Store, c categorize.Categorizer, log zerolog.Logger) *Reconciler {
	return &Reconciler{store: s, categorizer: c, log: log}
}

// Reconcile applies one sync event for the owner. agentHint identifies the
// calling agent and drives app attribution; it may be empty.
func (r *Reconciler) Reconcile(ctx context.Context, ev model.SyncEvent, ownerID, agentHint string) (*model.Memory, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	logMeta := map[string]interface{}{}
	if agentHint != "" {
		logMeta["agent_id"] = agentHint
	}

	existing, err := r.store.Memories().Get(ctx, ev.ID)
	switch {
	case err == nil:
		return r.applyUpdate(ctx, existing.ID, ev, logMeta)
	case errors.Is(err, model.ErrNotFound):
		m, err := r.applyCreate(ctx, ev, ownerID, agentHint, logMeta)
		if errors.Is(err, model.ErrConflict) {
			// Lost the insert race to a concurrent replay; converge on update.
			return r.applyUpdate(ctx, ev.ID, ev, logMeta)
		}
		return m, err
	default:
		return nil, err
	}
}

func validateEvent(ev model.SyncEvent) error {
	if _, err := uuid.Parse(ev.ID); err != nil {
		return model.ErrMalformedSyncEvent
	}
	if ev.Memory == "" {
		return model.ErrMalformedSyncEvent
	}
	switch ev.Event {
	case model.SyncEventAdd, model.SyncEventUpdate:
		return nil
	}
	return model.ErrMalformedSyncEvent
}

func (r *Reconciler) applyCreate(ctx context.Context, ev model.SyncEvent, ownerID, agentHint string, logMeta map[string]interface{}) (*model.Memory, error) {
	app := r.resolveApp(ctx, ownerID, agentHint, ev.Metadata)
	m := &model.Memory{
		ID:       ev.ID,
		UserID:   ownerID,
		Content:  ev.Memory,
		Metadata: ev.Metadata,
	}
	if app != nil {
		m.AppID = &app.ID
	}

	created, err := r.store.Memories().CreateFromSync(ctx, m, logMeta)
	if err != nil {
		return nil, err
	}
	r.categorize(ctx, created.ID, created.Content)
	return created, nil
}

func (r *Reconciler) applyUpdate(ctx context.Context, id string, ev model.SyncEvent, logMeta map[string]interface{}) (*model.Memory, error) {
	if _, err := r.store.Memories().UpdateContentFromSync(ctx, id, ev.Memory, ev.Metadata, logMeta); err != nil {
		return nil, err
	}
	// Re-labels even when the content is identical, so category rows edited
	// out of band converge on replay.
	r.categorize(ctx, id, ev.Memory)
	return r.store.Memories().Get(ctx, id)
}

// resolveApp attributes the event to one of the owner's apps:
// numeric agent id match, then name-contains match on the hint, then the
// owner's newest app, then none. Attribution failure never fails the event.
func (r *Reconciler) resolveApp(ctx context.Context, ownerID, agentHint string, evMeta map[string]interface{}) *model.App {
	hint := agentHint
	if hint == "" && evMeta != nil {
		if v, ok := evMeta["agent_id"].(string); ok {
			hint = v
		}
	}

	if hint != "" {
		if n, err := strconv.ParseInt(hint, 10, 64); err == nil {
			if app, err := r.store.Apps().GetByAgentID(ctx, n); err == nil && app.OwnerID == ownerID {
				return app
			}
		}
		if app, err := r.store.Apps().FirstNameContaining(ctx, hint); err == nil && app.OwnerID == ownerID {
			return app
		}
	}

	apps, err := r.store.Apps().ListByOwner(ctx, ownerID)
	if err != nil || len(apps) == 0 {
		return nil
	}
	return apps[0]
}

// categorize labels the memory and persists associations. Failures are
// logged and swallowed: the memory write already committed and must stand.
func (r *Reconciler) categorize(ctx context.Context, memoryID, content string) {
	if r.categorizer == nil {
		return
	}
	names, err := r.categorizer.Categorize(ctx, content)
	if err != nil {
		r.log.Warn().Err(err).Str("memoryId", memoryID).Msg("categorization failed")
		return
	}
	if err := r.store.Categories().EnsureWithAssociations(ctx, memoryID, names); err != nil {
		r.log.Warn().Err(err).Str("memoryId", memoryID).Msg("category persistence failed")
	}
}
