package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmem/openmem-server/internal/model"
)

func TestReconcileRejectsMalformedEvents(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	ctx := context.Background()

	cases := []model.SyncEvent{
		{ID: "not-a-uuid", Memory: "content", Event: model.SyncEventAdd},
		{ID: uuid.New().String(), Memory: "", Event: model.SyncEventAdd},
		{ID: uuid.New().String(), Memory: "content", Event: "upsert"},
	}
	for _, ev := range cases {
		_, err := env.rec.Reconcile(ctx, ev, owner.ID, "")
		assert.ErrorIs(t, err, model.ErrMalformedSyncEvent, "event %+v", ev)
	}
}

func TestReconcileCreateUsesCanonicalID(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	ctx := context.Background()

	id := uuid.New().String()
	m, err := env.rec.Reconcile(ctx, model.SyncEvent{
		ID: id, Memory: "likes black coffee", Event: model.SyncEventAdd,
	}, owner.ID, "")
	require.NoError(t, err)
	assert.Equal(t, id, m.ID, "memory id must equal the vector store's event id")
	assert.Equal(t, model.StateActive, m.State)

	// Categorization ran and persisted through the keyword fallback.
	cats, err := env.store.Categories().ListForMemory(ctx, id)
	require.NoError(t, err)
	assert.NotEmpty(t, cats)
}

func TestReconcileReplayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	app := env.app(t, owner.ID, "replay-app")
	ctx := context.Background()

	ev := model.SyncEvent{ID: uuid.New().String(), Memory: "pizza on fridays", Event: model.SyncEventAdd}
	first, err := env.rec.Reconcile(ctx, ev, owner.ID, "")
	require.NoError(t, err)
	require.NotNil(t, first.AppID)
	require.Equal(t, app.ID, *first.AppID)

	second, err := env.rec.Reconcile(ctx, ev, owner.ID, "")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Content, second.Content)

	// One row, one birth history entry, one ADD log. No duplicates.
	hist, err := env.store.Memories().History(ctx, ev.ID)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
	logs, err := env.store.Memories().AccessLogs(ctx, ev.ID, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestReconcileUpdateChangesContent(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	env.app(t, owner.ID, "upd-app")
	ctx := context.Background()

	id := uuid.New().String()
	_, err := env.rec.Reconcile(ctx, model.SyncEvent{
		ID: id, Memory: "likes tea", Event: model.SyncEventAdd,
	}, owner.ID, "")
	require.NoError(t, err)

	m, err := env.rec.Reconcile(ctx, model.SyncEvent{
		ID: id, Memory: "likes coffee now", Event: model.SyncEventUpdate,
	}, owner.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "likes coffee now", m.Content)

	logs, err := env.store.Memories().AccessLogs(ctx, id, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	var found bool
	for _, l := range logs {
		if l.AccessType == model.AccessUpdate {
			found = true
			assert.Equal(t, "likes tea", l.Metadata["previous_memory"])
			assert.Equal(t, "likes coffee now", l.Metadata["new_memory"])
		}
	}
	assert.True(t, found, "UPDATE access log missing")
}

func TestReconcileAppResolutionOrder(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	ctx := context.Background()

	agent := int64(42)
	byAgent, err := env.store.Apps().Create(ctx, &model.App{
		OwnerID: owner.ID, Name: "device-a", IsActive: true, AgentID: &agent,
	})
	require.NoError(t, err)
	byName := env.app(t, owner.ID, "chrome-extension-7")
	newest := env.app(t, owner.ID, "newest-app")

	// Numeric hint matches agent_id first.
	m1, err := env.rec.Reconcile(ctx, model.SyncEvent{
		ID: uuid.New().String(), Memory: "a", Event: model.SyncEventAdd,
	}, owner.ID, "42")
	require.NoError(t, err)
	require.NotNil(t, m1.AppID)
	assert.Equal(t, byAgent.ID, *m1.AppID)

	// Non-numeric hint falls through to a name-substring match.
	m2, err := env.rec.Reconcile(ctx, model.SyncEvent{
		ID: uuid.New().String(), Memory: "b", Event: model.SyncEventAdd,
	}, owner.ID, "extension")
	require.NoError(t, err)
	require.NotNil(t, m2.AppID)
	assert.Equal(t, byName.ID, *m2.AppID)

	// No hint: the owner's newest app.
	m3, err := env.rec.Reconcile(ctx, model.SyncEvent{
		ID: uuid.New().String(), Memory: "c", Event: model.SyncEventAdd,
	}, owner.ID, "")
	require.NoError(t, err)
	require.NotNil(t, m3.AppID)
	assert.Equal(t, newest.ID, *m3.AppID)
}

func TestReconcileWithoutAppsLeavesAttributionEmpty(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "appless")
	ctx := context.Background()

	m, err := env.rec.Reconcile(ctx, model.SyncEvent{
		ID: uuid.New().String(), Memory: "unattributed", Event: model.SyncEventAdd,
	}, owner.ID, "")
	require.NoError(t, err)
	assert.Nil(t, m.AppID)

	logs, err := env.store.Memories().AccessLogs(ctx, m.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, logs, "no app, no access log")
}

func TestReconcileReplayRerunsCategorization(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	ctx := context.Background()

	counter := &countingCategorizer{}
	env.rec.categorizer = counter

	ev := model.SyncEvent{ID: uuid.New().String(), Memory: "same content", Event: model.SyncEventAdd}
	_, err := env.rec.Reconcile(ctx, ev, owner.ID, "")
	require.NoError(t, err)
	_, err = env.rec.Reconcile(ctx, ev, owner.ID, "")
	require.NoError(t, err)

	// Identical content is a relational no-op, but labeling still re-runs so
	// category rows edited out of band converge.
	assert.Equal(t, 2, counter.calls)
}

func TestReconcileHintNeverAttributesAnotherOwnersApp(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	other := env.user(t, "bob")
	ctx := context.Background()

	env.app(t, other.ID, "extension-of-bob")
	mine := env.app(t, owner.ID, "alice-notes")

	m, err := env.rec.Reconcile(ctx, model.SyncEvent{
		ID: uuid.New().String(), Memory: "x", Event: model.SyncEventAdd,
	}, owner.ID, "extension")
	require.NoError(t, err)
	require.NotNil(t, m.AppID)
	assert.Equal(t, mine.ID, *m.AppID, "hint matching another owner's app must fall through to the owner's apps")
}

func TestReconcileCategorizationFailureDoesNotFailWrite(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	ctx := context.Background()

	env.rec.categorizer = failingCategorizer{}
	id := uuid.New().String()
	m, err := env.rec.Reconcile(ctx, model.SyncEvent{
		ID: id, Memory: "still persisted", Event: model.SyncEventAdd,
	}, owner.ID, "")
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)

	cats, err := env.store.Categories().ListForMemory(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, cats)
}

type failingCategorizer struct{}

func (failingCategorizer) Categorize(context.Context, string) ([]string, error) {
	return nil, assert.AnError
}

type countingCategorizer struct{ calls int }

func (c *countingCategorizer) Categorize(context.Context, string) ([]string, error) {
	c.calls++
	return []string{"other"}, nil
}
