package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/store"
	"github.com/openmem/openmem-server/internal/vector"
)

// Lifecycle drives memory state transitions. Transitions are permissive: any
// of the four states may follow any other; each transition appends exactly
// one history row.
type Lifecycle struct {
	store store.Store
	index vector.Index
	log   zerolog.Logger
}

func NewLifecycle(s store.Store, idx vector.Index, log zerolog.Logger) *Lifecycle {
	return &Lifecycle{store: s, index: idx, log: log}
}

// SetState transitions the memory. Only the owner or an admin may act.
func (l *Lifecycle) SetState(ctx context.Context, memoryID string, newState model.MemoryState, actingUserID string) (*model.Memory, error) {
	if !newState.Valid() {
		return nil, model.ErrValidation
	}

	m, err := l.store.Memories().Get(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if err := l.authorize(ctx, m, actingUserID); err != nil {
		return nil, err
	}

	updated, err := l.store.Memories().SetState(ctx, memoryID, newState, actingUserID)
	if err != nil {
		return nil, err
	}

	// Soft-deleted memories leave the search surface. The relational row is
	// the audit record, so a failed vector delete is logged, not fatal.
	if newState == model.StateDeleted && l.index != nil {
		if err := l.index.Delete(ctx, memoryID); err != nil {
			l.log.Warn().Err(err).Str("memoryId", memoryID).Msg("vector delete failed")
		}
	}

	l.log.Info().
		Str("memoryId", memoryID).
		Str("from", string(m.State)).
		Str("to", string(newState)).
		Str("actor", actingUserID).
		Msg("memory state changed")
	return updated, nil
}

// Delete soft-deletes a single memory.
func (l *Lifecycle) Delete(ctx context.Context, memoryID, actingUserID string) (*model.Memory, error) {
	return l.SetState(ctx, memoryID, model.StateDeleted, actingUserID)
}

// DeleteBatch soft-deletes several memories, returning how many succeeded.
// Missing ids are skipped; permission failures abort.
func (l *Lifecycle) DeleteBatch(ctx context.Context, memoryIDs []string, actingUserID string) (int, error) {
	deleted := 0
	for _, id := range memoryIDs {
		if _, err := l.SetState(ctx, id, model.StateDeleted, actingUserID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (l *Lifecycle) authorize(ctx context.Context, m *model.Memory, actingUserID string) error {
	if m.UserID == actingUserID {
		return nil
	}
	actor, err := l.store.Users().Get(ctx, actingUserID)
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
