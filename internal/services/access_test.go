package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmem/openmem-server/internal/model"
)

func (e *testEnv) rule(t *testing.T, appID string, objectID *string, effect model.Effect) {
	t.Helper()
	_, err := e.store.AccessRules().Create(context.Background(), &model.AccessRule{
		SubjectType: model.SubjectApp,
		SubjectID:   &appID,
		ObjectType:  model.ObjectMemory,
		ObjectID:    objectID,
		Effect:      effect,
	})
	require.NoError(t, err)
}

func TestAccessNoRulesMeansUnrestricted(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	app := env.app(t, owner.ID, "open-app")

	scope, err := env.acc.AccessibleMemoryIDs(context.Background(), app.ID)
	require.NoError(t, err)
	assert.True(t, scope.Unrestricted)
	assert.True(t, scope.Allows("anything"))
}

func TestAccessWildcardAllowBeatsSpecificDeny(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	app := env.app(t, owner.ID, "blanket-app")
	memID := "some-memory-id"

	env.rule(t, app.ID, &memID, model.EffectDeny)
	env.rule(t, app.ID, nil, model.EffectAllow)

	scope, err := env.acc.AccessibleMemoryIDs(context.Background(), app.ID)
	require.NoError(t, err)
	assert.True(t, scope.Unrestricted)
	assert.True(t, scope.Allows(memID), "wildcard allow wins over the specific deny")
}

func TestAccessWildcardDenyMeansNothing(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	app := env.app(t, owner.ID, "denied-app")
	memID := "allowed-memory"

	env.rule(t, app.ID, &memID, model.EffectAllow)
	env.rule(t, app.ID, nil, model.EffectDeny)

	scope, err := env.acc.AccessibleMemoryIDs(context.Background(), app.ID)
	require.NoError(t, err)
	assert.False(t, scope.Unrestricted)
	assert.False(t, scope.Allows(memID))
	assert.False(t, scope.Allows("anything-else"))
}

func TestAccessSetDifference(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	app := env.app(t, owner.ID, "scoped-app")

	a, b, c := "mem-a", "mem-b", "mem-c"
	env.rule(t, app.ID, &a, model.EffectAllow)
	env.rule(t, app.ID, &b, model.EffectAllow)
	env.rule(t, app.ID, &b, model.EffectDeny)

	scope, err := env.acc.AccessibleMemoryIDs(context.Background(), app.ID)
	require.NoError(t, err)
	assert.False(t, scope.Unrestricted)
	assert.True(t, scope.Allows(a))
	assert.False(t, scope.Allows(b), "denied id removed from allowed set")
	assert.False(t, scope.Allows(c), "never-allowed id stays out")
}

func TestAccessRulesAreScopedToSubject(t *testing.T) {
	env := newTestEnv(t)
	owner := env.user(t, "alice")
	restricted := env.app(t, owner.ID, "restricted-app")
	other := env.app(t, owner.ID, "other-app")

	env.rule(t, restricted.ID, nil, model.EffectDeny)

	scope, err := env.acc.AccessibleMemoryIDs(context.Background(), other.ID)
	require.NoError(t, err)
	assert.True(t, scope.Unrestricted, "rules for one app must not leak to another")
}
