package services

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openmem/openmem-server/internal/categorize"
	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/store"
	"github.com/openmem/openmem-server/internal/store/sqlite"
	"github.com/openmem/openmem-server/internal/vector"
)

type testEnv struct {
	store store.Store
	index *vector.Fake
	rec   *Reconciler
	acc   *AccessResolver
	mems  *Memories
	life  *Lifecycle
	apps  *Apps
	users *Users
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s, err := sqlite.NewAtPath(context.Background(), filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)

	idx := vector.NewFake()
	log := zerolog.Nop()
	rec := NewReconciler(s, &categorize.Fallback{Secondary: categorize.Keyword{}, Log: log}, log)
	acc := NewAccessResolver(s)
	return &testEnv{
		store: s,
		index: idx,
		rec:   rec,
		acc:   acc,
		mems:  NewMemories(s, idx, rec, acc, log),
		life:  NewLifecycle(s, idx, log),
		apps:  NewApps(s, idx, log),
		users: NewUsers(s),
	}
}

func (e *testEnv) user(t *testing.T, handle string) *model.User {
	t.Helper()
	u, err := e.users.CreateOrGet(context.Background(), handle)
	require.NoError(t, err)
	return u
}

func (e *testEnv) app(t *testing.T, ownerID, name string) *model.App {
	t.Helper()
	a, err := e.store.Apps().Create(context.Background(), &model.App{OwnerID: ownerID, Name: name, IsActive: true})
	require.NoError(t, err)
	return a
}

func (e *testEnv) admin(t *testing.T, handle string) *model.User {
	t.Helper()
	u := e.user(t, handle)
	u.IsAdmin = true
	upd, err := e.store.Users().Update(context.Background(), u)
	require.NoError(t, err)
	return upd
}

// endpointWithAgent builds a websocket endpoint whose token carries agentId.
func endpointWithAgent(agentID string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"agentId":` + agentID + `}`))
	return "ws://device.local/ws?token=hdr." + payload + ".sig"
}
