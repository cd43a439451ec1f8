package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/store"
	"github.com/openmem/openmem-server/internal/vector"
)

// Memories orchestrates the dual-store write path: the vector index is
// written first and its result events drive relational reconciliation.
type Memories struct {
	store      store.Store
	index      vector.Index
	reconciler *Reconciler
	access     *AccessResolver
	log        zerolog.Logger
}

func NewMemories(s store.Store, idx vector.Index, rec *Reconciler, acc *AccessResolver, log zerolog.Logger) *Memories {
	return &Memories{store: s, index: idx, reconciler: rec, access: acc, log: log}
}

// Create stores content in the vector index and reconciles every resulting
// event into the relational store. The ids in the result are the ones the
// vector store assigned.
func (m *Memories) Create(ctx context.Context, ownerID, content, agentHint string, metadata map[string]interface{}) ([]*model.Memory, error) {
	if content == "" {
		return nil, model.ErrValidation
	}
	if _, err := m.store.Users().Get(ctx, ownerID); err != nil {
		return nil, err
	}

	res, err := m.index.Add(ctx, content, ownerID, metadata)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Memory, 0, len(res.Results))
	for _, ev := range res.Results {
		mem, err := m.reconciler.Reconcile(ctx, ev, ownerID, agentHint)
		if err != nil {
			// The vector write is durable; a failed reconcile of one event
			// must not discard the others. Replay will converge.
			m.log.Error().Stack().Err(err).Str("eventId", ev.ID).Msg("reconcile failed")
			continue
		}
		out = append(out, mem)
	}
	return out, nil
}

// UpdateContent rewrites a memory's content through the vector store and
// reconciles the result. Only the owner or an admin may update.
func (m *Memories) UpdateContent(ctx context.Context, memoryID, content, actingUserID string, metadata map[string]interface{}) (*model.Memory, error) {
	if content == "" {
		return nil, model.ErrValidation
	}
	mem, err := m.store.Memories().Get(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if err := m.authorize(ctx, mem, actingUserID); err != nil {
		return nil, err
	}

	res, err := m.index.Update(ctx, memoryID, content, metadata)
	if err != nil {
		return nil, err
	}
	var updated *model.Memory
	for _, ev := range res.Results {
		updated, err = m.reconciler.Reconcile(ctx, ev, mem.UserID, "")
		if err != nil {
			return nil, err
		}
	}
	if updated == nil {
		return mem, nil
	}
	return updated, nil
}

// Get returns the memory and, when an app is given, records a GET access log.
func (m *Memories) Get(ctx context.Context, memoryID string, appID *string) (*model.Memory, error) {
	mem, err := m.store.Memories().Get(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if appID != nil {
		scope, err := m.access.AccessibleMemoryIDs(ctx, *appID)
		if err != nil {
			return nil, err
		}
		if !scope.Allows(memoryID) {
			return nil, model.ErrPermissionDenied
		}
		m.logAccess(ctx, memoryID, *appID, model.AccessGet, nil)
	}
	return mem, nil
}

// List returns the user's memories, post-filtered by the calling app's
// access scope. Each visible memory gets a LIST access log entry.
func (m *Memories) List(ctx context.Context, req model.ListMemoriesRequest, callingAppID *string) ([]*model.Memory, error) {
	mems, err := m.store.Memories().List(ctx, req)
	if err != nil {
		return nil, err
	}
	if callingAppID == nil {
		return mems, nil
	}

	scope, err := m.access.AccessibleMemoryIDs(ctx, *callingAppID)
	if err != nil {
		return nil, err
	}
	visible := make([]*model.Memory, 0, len(mems))
	for _, mem := range mems {
		if !scope.Allows(mem.ID) {
			continue
		}
		visible = append(visible, mem)
		m.logAccess(ctx, mem.ID, *callingAppID, model.AccessList, nil)
	}
	return visible, nil
}

// SearchHit pairs a vector hit with its relational row.
type SearchHit struct {
	Memory *model.Memory `json:"memory"`
	Score  float64       `json:"score"`
}

// Search runs a semantic query scoped to the owner, drops hits the calling
// app may not see or that are soft-deleted, and records SEARCH access logs.
func (m *Memories) Search(ctx context.Context, ownerID, query string, callingAppID *string, limit int) ([]SearchHit, error) {
	if query == "" {
		return nil, model.ErrValidation
	}

	scope := model.UnrestrictedScope()
	if callingAppID != nil {
		var err error
		scope, err = m.access.AccessibleMemoryIDs(ctx, *callingAppID)
		if err != nil {
			return nil, err
		}
	}

	hits, err := m.index.Search(ctx, query, ownerID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]SearchHit, 0, len(hits))
	for _, h := range hits {
		if !scope.Allows(h.ID) {
			continue
		}
		mem, err := m.store.Memories().Get(ctx, h.ID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				// Vector object with no relational row: not yet reconciled
				// or already purged. Either way it is not servable.
				continue
			}
			return nil, err
		}
		if mem.State == model.StateDeleted {
			continue
		}
		out = append(out, SearchHit{Memory: mem, Score: h.Score})
		if callingAppID != nil {
			m.logAccess(ctx, mem.ID, *callingAppID, model.AccessSearch, map[string]interface{}{"query": query})
		}
	}
	return out, nil
}

// Related returns the user's memories sharing categories with memoryID.
func (m *Memories) Related(ctx context.Context, userID, memoryID string, limit int) ([]*model.Memory, error) {
	if _, err := m.store.Memories().Get(ctx, memoryID); err != nil {
		return nil, err
	}
	return m.store.Memories().ListRelated(ctx, userID, memoryID, limit)
}

func (m *Memories) History(ctx context.Context, memoryID string) ([]*model.StatusHistory, error) {
	if _, err := m.store.Memories().Get(ctx, memoryID); err != nil {
		return nil, err
	}
	return m.store.Memories().History(ctx, memoryID)
}

func (m *Memories) AccessLogs(ctx context.Context, memoryID string, limit int) ([]*model.AccessLogEntry, error) {
	if _, err := m.store.Memories().Get(ctx, memoryID); err != nil {
		return nil, err
	}
	return m.store.Memories().AccessLogs(ctx, memoryID, limit)
}

func (m *Memories) Categories(ctx context.Context, memoryID string) ([]*model.Category, error) {
	if _, err := m.store.Memories().Get(ctx, memoryID); err != nil {
		return nil, err
	}
	return m.store.Categories().ListForMemory(ctx, memoryID)
}

func (m *Memories) UserCategories(ctx context.Context, userID string) ([]*model.Category, error) {
	return m.store.Categories().ListForUser(ctx, userID)
}

// logAccess appends an access log row; audit failures are logged, not fatal.
func (m *Memories) logAccess(ctx context.Context, memoryID, appID, accessType string, meta map[string]interface{}) {
	err := m.store.Memories().InsertAccessLog(ctx, &model.AccessLogEntry{
		MemoryID:   memoryID,
		AppID:      appID,
		AccessType: accessType,
		Metadata:   meta,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("memoryId", memoryID).Str("accessType", accessType).Msg("access log write failed")
	}
}

func (m *Memories) authorize(ctx context.Context, mem *model.Memory, actingUserID string) error {
	if mem.UserID == actingUserID {
		return nil
	}
	actor, err := m.store.Users().Get(ctx, actingUserID)
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
