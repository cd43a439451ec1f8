package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmem/openmem-server/internal/model"
)

func TestBindEndpointCreatesApp(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	ctx := context.Background()

	res, err := env.apps.BindEndpoint(ctx, owner.ID, endpointWithAgent("77"), "kitchen-robot")
	require.NoError(t, err)
	assert.False(t, res.AlreadyBound)
	assert.Equal(t, "kitchen-robot", res.App.Name)
	require.NotNil(t, res.App.AgentID)
	assert.Equal(t, int64(77), *res.App.AgentID)
	require.NotNil(t, res.App.WebsocketURL)
}

func TestBindEndpointRebindIsNoop(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	ctx := context.Background()
	url := endpointWithAgent("5")

	first, err := env.apps.BindEndpoint(ctx, owner.ID, url, "robot")
	require.NoError(t, err)

	again, err := env.apps.BindEndpoint(ctx, owner.ID, url, "robot-renamed")
	require.NoError(t, err)
	assert.True(t, again.AlreadyBound)
	assert.Equal(t, first.App.ID, again.App.ID)
}

func TestBindEndpointConflictsAcrossUsers(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user(t, "alice")
	bob := env.user(t, "bob")
	ctx := context.Background()
	url := endpointWithAgent("9")

	_, err := env.apps.BindEndpoint(ctx, alice.ID, url, "shared-device")
	require.NoError(t, err)

	_, err = env.apps.BindEndpoint(ctx, bob.ID, url, "bobs-device")
	assert.ErrorIs(t, err, model.ErrConflict)

	// Same device name under a different owner is also a conflict.
	_, err = env.apps.BindEndpoint(ctx, bob.ID, "ws://another", "shared-device")
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestBindEndpointRebindsSameNameApp(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	existing := env.app(t, owner.ID, "desk-device")
	ctx := context.Background()

	res, err := env.apps.BindEndpoint(ctx, owner.ID, "ws://desk.local/ws", "desk-device")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, res.App.ID)
	require.NotNil(t, res.App.WebsocketURL)
	assert.Equal(t, "ws://desk.local/ws", *res.App.WebsocketURL)
}

func TestResolveByIdentityPrecedence(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	ctx := context.Background()

	agent := int64(3)
	url := "ws://primary"
	withURL, err := env.store.Apps().Create(ctx, &model.App{
		OwnerID: owner.ID, Name: "with-url", IsActive: true, WebsocketURL: &url,
	})
	require.NoError(t, err)
	withAgent, err := env.store.Apps().Create(ctx, &model.App{
		OwnerID: owner.ID, Name: "with-agent", IsActive: true, AgentID: &agent,
	})
	require.NoError(t, err)
	byName := env.app(t, owner.ID, "plain-name")

	got, err := env.apps.ResolveByIdentity(ctx, url, &agent, "plain-name")
	require.NoError(t, err)
	assert.Equal(t, withURL.ID, got.ID, "websocket_url wins")

	got, err = env.apps.ResolveByIdentity(ctx, "", &agent, "plain-name")
	require.NoError(t, err)
	assert.Equal(t, withAgent.ID, got.ID, "agent id beats name")

	got, err = env.apps.ResolveByIdentity(ctx, "", nil, "plain-name")
	require.NoError(t, err)
	assert.Equal(t, byName.ID, got.ID)

	_, err = env.apps.ResolveByIdentity(ctx, "", nil, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAppDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	app := env.app(t, owner.ID, "doomed-app")
	env.app(t, owner.ID, "surviving-app")
	ctx := context.Background()

	// Attribute via the name-substring path so both land on doomed-app.
	mems1, err := env.mems.Create(ctx, owner.ID, "doomed fact one", "doomed", nil)
	require.NoError(t, err)
	mems2, err := env.mems.Create(ctx, owner.ID, "doomed fact two", "doomed", nil)
	require.NoError(t, err)
	m1, m2 := mems1[0], mems2[0]
	require.Equal(t, app.ID, *m1.AppID)
	require.Equal(t, 2, env.index.Len())

	purged, err := env.apps.Delete(ctx, app.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, purged)

	for _, id := range []string{m1.ID, m2.ID} {
		_, err := env.store.Memories().Get(ctx, id)
		assert.ErrorIs(t, err, model.ErrNotFound, "hard delete, not soft")
	}
	assert.Equal(t, 0, env.index.Len(), "vector objects purged with the app")

	_, err = env.store.Apps().Get(ctx, app.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAppDeletePermissions(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	stranger := env.user(t, "mallory")
	admin := env.admin(t, "root")
	app := env.app(t, owner.ID, "guarded-app")
	ctx := context.Background()

	_, err := env.apps.Delete(ctx, app.ID, stranger.ID)
	assert.ErrorIs(t, err, model.ErrPermissionDenied)

	_, err = env.apps.Delete(ctx, app.ID, admin.ID)
	require.NoError(t, err)
}

func TestAppSetActiveAndRename(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	app := env.app(t, owner.ID, "toggle-app")
	ctx := context.Background()

	got, err := env.apps.SetActive(ctx, app.ID, false, owner.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, err = env.apps.Rename(ctx, app.ID, "toggle-app-v2", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "toggle-app-v2", got.Name)

	_, err = env.apps.Rename(ctx, app.ID, "", owner.ID)
	assert.ErrorIs(t, err, model.ErrValidation)
}
