package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmem/openmem-server/internal/model"
)

func (e *testEnv) memory(t *testing.T, ownerID, content string) *model.Memory {
	t.Helper()
	mems, err := e.mems.Create(context.Background(), ownerID, content, "", nil)
	require.NoError(t, err)
	require.Len(t, mems, 1)
	return mems[0]
}

func TestLifecycleOwnerCanTransition(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	env.app(t, owner.ID, "life-app")
	m := env.memory(t, owner.ID, "pausable fact")
	ctx := context.Background()

	paused, err := env.life.SetState(ctx, m.ID, model.StatePaused, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePaused, paused.State)

	archived, err := env.life.SetState(ctx, m.ID, model.StateArchived, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateArchived, archived.State)
	assert.NotNil(t, archived.ArchivedAt)

	// Each transition appended exactly one history row after the birth row.
	hist, err := env.store.Memories().History(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	assert.Equal(t, model.StatePaused, hist[1].NewState)
	assert.Equal(t, model.StateArchived, hist[2].NewState)
	assert.Equal(t, model.StatePaused, hist[2].OldState)
}

func TestLifecycleRejectsInvalidState(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	env.app(t, owner.ID, "bad-state-app")
	m := env.memory(t, owner.ID, "fact")

	_, err := env.life.SetState(context.Background(), m.ID, "hibernating", owner.ID)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestLifecycleUnknownMemory(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")

	_, err := env.life.SetState(context.Background(), "00000000-0000-0000-0000-000000000000", model.StatePaused, owner.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestLifecyclePermissions(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	stranger := env.user(t, "mallory")
	admin := env.admin(t, "root")
	env.app(t, owner.ID, "perm-app")
	m := env.memory(t, owner.ID, "private fact")
	ctx := context.Background()

	_, err := env.life.SetState(ctx, m.ID, model.StatePaused, stranger.ID)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	got, err := env.life.SetState(ctx, m.ID, model.StatePaused, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePaused, got.State)

	hist, err := env.store.Memories().History(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, hist[len(hist)-1].ChangedBy)
}

func TestLifecycleSoftDeleteRemovesVectorObject(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	env.app(t, owner.ID, "del-app")
	m := env.memory(t, owner.ID, "to be forgotten")
	ctx := context.Background()

	require.Equal(t, 1, env.index.Len())

	deleted, err := env.life.Delete(ctx, m.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDeleted, deleted.State)
	assert.NotNil(t, deleted.DeletedAt)
	assert.Equal(t, 0, env.index.Len(), "vector object removed on soft delete")

	// The relational row survives as the audit record.
	row, err := env.store.Memories().Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateDeleted, row.State)
}

func TestLifecycleDeleteBatchSkipsMissing(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	env.app(t, owner.ID, "batch-app")
	m1 := env.memory(t, owner.ID, "first")
	m2 := env.memory(t, owner.ID, "second")

	n, err := env.life.DeleteBatch(context.Background(), []string{
		m1.ID, "00000000-0000-0000-0000-000000000000", m2.ID,
	}, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
