// Package storetest is a driver-agnostic compliance suite for store.Store
// implementations. Both the sqlite and postgres adapters run it, so behavior
// that services depend on (conflict detection, atomic history, cascade purge)
// is pinned in one place.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/store"
)

// Factory returns a fresh, empty store for each subtest.
type Factory func(t *testing.T) store.Store

// Run executes the full compliance suite against the factory.
func Run(t *testing.T, factory Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, factory(t)) })
	t.Run("Apps", func(t *testing.T) { testApps(t, factory(t)) })
	t.Run("CreateFromSync", func(t *testing.T) { testCreateFromSync(t, factory(t)) })
	t.Run("UpdateContentFromSync", func(t *testing.T) { testUpdateContentFromSync(t, factory(t)) })
	t.Run("StateTransitions", func(t *testing.T) { testStateTransitions(t, factory(t)) })
	t.Run("ListMemories", func(t *testing.T) { testListMemories(t, factory(t)) })
	t.Run("PurgeByApp", func(t *testing.T) { testPurgeByApp(t, factory(t)) })
	t.Run("Categories", func(t *testing.T) { testCategories(t, factory(t)) })
	t.Run("AccessRules", func(t *testing.T) { testAccessRules(t, factory(t)) })
}

func strPtr(s string) *string { return &s }

func mustUser(t *testing.T, s store.Store, handle string) *model.User {
	t.Helper()
	u, err := s.Users().Create(context.Background(), &model.User{Handle: handle})
	if err != nil {
		t.Fatalf("create user %s: %v", handle, err)
	}
	return u
}

func mustApp(t *testing.T, s store.Store, ownerID, name string) *model.App {
	t.Helper()
	a, err := s.Apps().Create(context.Background(), &model.App{OwnerID: ownerID, Name: name, IsActive: true})
	if err != nil {
		t.Fatalf("create app %s: %v", name, err)
	}
	return a
}

func mustMemory(t *testing.T, s store.Store, userID string, appID *string, content string) *model.Memory {
	t.Helper()
	m, err := s.Memories().CreateFromSync(context.Background(), &model.Memory{
		ID:      uuid.New().String(),
		UserID:  userID,
		AppID:   appID,
		Content: content,
	}, nil)
	if err != nil {
		t.Fatalf("create memory: %v", err)
	}
	return m
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	u, err := s.Users().Create(ctx, &model.User{Handle: "alice", Email: strPtr("alice@example.com")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.Users().GetByHandle(ctx, "alice")
	if err != nil || got.ID != u.ID {
		t.Fatalf("get by handle: %v %+v", err, got)
	}
	if _, err := s.Users().GetByEmail(ctx, "alice@example.com"); err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if _, err := s.Users().Get(ctx, "missing"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := s.Users().Create(ctx, &model.User{Handle: "alice"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate handle: expected ErrConflict, got %v", err)
	}

	got.Name = strPtr("Alice")
	got.IsAdmin = true
	upd, err := s.Users().Update(ctx, got)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Name == nil || *upd.Name != "Alice" || !upd.IsAdmin {
		t.Fatalf("update not persisted: %+v", upd)
	}

	app := mustApp(t, s, u.ID, "stats-app")
	mustMemory(t, s, u.ID, &app.ID, "one")
	m2 := mustMemory(t, s, u.ID, &app.ID, "two")
	if _, err := s.Memories().SetState(ctx, m2.ID, model.StatePaused, u.ID); err != nil {
		t.Fatalf("pause: %v", err)
	}

	st, err := s.Users().Stats(ctx, u.ID)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.TotalMemories != 2 || st.ActiveMemories != 1 || st.TotalApps != 1 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func testApps(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "owner")

	agent := int64(42)
	a1, err := s.Apps().Create(ctx, &model.App{
		OwnerID:      owner.ID,
		Name:         "chrome-extension-device-7",
		IsActive:     true,
		WebsocketURL: strPtr("ws://device-7"),
		AgentID:      &agent,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	a2 := mustApp(t, s, owner.ID, "cli-tool")

	if _, err := s.Apps().Create(ctx, &model.App{OwnerID: owner.ID, Name: "cli-tool"}); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate name: expected ErrConflict, got %v", err)
	}

	if got, err := s.Apps().GetByName(ctx, "cli-tool"); err != nil || got.ID != a2.ID {
		t.Fatalf("get by name: %v", err)
	}
	if got, err := s.Apps().GetByWebsocketURL(ctx, "ws://device-7"); err != nil || got.ID != a1.ID {
		t.Fatalf("get by websocket url: %v", err)
	}
	if got, err := s.Apps().GetByAgentID(ctx, 42); err != nil || got.ID != a1.ID {
		t.Fatalf("get by agent id: %v", err)
	}
	if got, err := s.Apps().FirstNameContaining(ctx, "extension"); err != nil || got.ID != a1.ID {
		t.Fatalf("name containing: %v", err)
	}
	if _, err := s.Apps().FirstNameContaining(ctx, "nothing-matches"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := s.Apps().ListByOwner(ctx, owner.ID)
	if err != nil || len(list) != 2 {
		t.Fatalf("list by owner: %v len=%d", err, len(list))
	}

	mustMemory(t, s, owner.ID, &a2.ID, "note")
	counts, err := s.Apps().ListWithCounts(ctx, &owner.ID)
	if err != nil {
		t.Fatalf("list with counts: %v", err)
	}
	var found bool
	for _, c := range counts {
		if c.ID == a2.ID {
			found = true
			if c.MemoriesCreated != 1 {
				t.Fatalf("expected 1 memory created, got %d", c.MemoriesCreated)
			}
			if c.MemoriesAccessed != 1 {
				t.Fatalf("expected 1 memory accessed (ADD log), got %d", c.MemoriesAccessed)
			}
		}
	}
	if !found {
		t.Fatal("app missing from counts listing")
	}

	a1.IsActive = false
	if upd, err := s.Apps().Update(ctx, a1); err != nil || upd.IsActive {
		t.Fatalf("update: %v %+v", err, upd)
	}

	if err := s.Apps().Delete(ctx, a1.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Apps().Delete(ctx, a1.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("double delete: expected ErrNotFound, got %v", err)
	}
}

func testCreateFromSync(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "sync-owner")
	app := mustApp(t, s, owner.ID, "sync-app")

	id := uuid.New().String()
	m, err := s.Memories().CreateFromSync(ctx, &model.Memory{
		ID:      id,
		UserID:  owner.ID,
		AppID:   &app.ID,
		Content: "likes black coffee",
	}, map[string]interface{}{"agent_id": "7"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if m.ID != id {
		t.Fatalf("id rewritten: got %s want %s", m.ID, id)
	}
	if m.State != model.StateActive {
		t.Fatalf("expected active, got %s", m.State)
	}

	// Replay of the same sync event must surface as a conflict, not a dup row.
	_, err = s.Memories().CreateFromSync(ctx, &model.Memory{
		ID: id, UserID: owner.ID, AppID: &app.ID, Content: "likes black coffee",
	}, nil)
	if !errors.Is(err, model.ErrConflict) {
		t.Fatalf("expected ErrConflict on replay, got %v", err)
	}

	hist, err := s.Memories().History(ctx, id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected 1 birth history row, got %d", len(hist))
	}
	if hist[0].OldState != model.StateDeleted || hist[0].NewState != model.StateActive {
		t.Fatalf("unexpected birth transition: %s -> %s", hist[0].OldState, hist[0].NewState)
	}

	logs, err := s.Memories().AccessLogs(ctx, id, 0)
	if err != nil {
		t.Fatalf("access logs: %v", err)
	}
	if len(logs) != 1 || logs[0].AccessType != model.AccessAdd {
		t.Fatalf("expected single ADD log, got %+v", logs)
	}
	if logs[0].Metadata["agent_id"] != "7" {
		t.Fatalf("log metadata lost: %+v", logs[0].Metadata)
	}

	// No app: memory is created but no access log is attributable.
	orphanID := uuid.New().String()
	if _, err := s.Memories().CreateFromSync(ctx, &model.Memory{
		ID: orphanID, UserID: owner.ID, Content: "no app",
	}, nil); err != nil {
		t.Fatalf("create without app: %v", err)
	}
	logs, err = s.Memories().AccessLogs(ctx, orphanID, 0)
	if err != nil || len(logs) != 0 {
		t.Fatalf("expected no logs for app-less memory, got %v %d", err, len(logs))
	}
}

func testUpdateContentFromSync(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "upd-owner")
	app := mustApp(t, s, owner.ID, "upd-app")
	m := mustMemory(t, s, owner.ID, &app.ID, "original")

	// Identical content is a no-op: no UPDATE log, no timestamp churn.
	changed, err := s.Memories().UpdateContentFromSync(ctx, m.ID, "original", nil, nil)
	if err != nil {
		t.Fatalf("noop update: %v", err)
	}
	if changed {
		t.Fatal("identical content must report changed=false")
	}
	logs, _ := s.Memories().AccessLogs(ctx, m.ID, 0)
	if len(logs) != 1 {
		t.Fatalf("noop update wrote a log: %d", len(logs))
	}

	changed, err = s.Memories().UpdateContentFromSync(ctx, m.ID, "revised",
		map[string]interface{}{"source": "sync"}, map[string]interface{}{"agent_id": "9"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !changed {
		t.Fatal("expected changed=true")
	}

	got, err := s.Memories().Get(ctx, m.ID)
	if err != nil || got.Content != "revised" {
		t.Fatalf("content not updated: %v %+v", err, got)
	}
	if got.Metadata["source"] != "sync" {
		t.Fatalf("metadata not updated: %+v", got.Metadata)
	}

	logs, err = s.Memories().AccessLogs(ctx, m.ID, 0)
	if err != nil {
		t.Fatalf("access logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected ADD + UPDATE logs, got %d", len(logs))
	}
	var updLog *model.AccessLogEntry
	for _, l := range logs {
		if l.AccessType == model.AccessUpdate {
			updLog = l
		}
	}
	if updLog == nil {
		t.Fatal("UPDATE log missing")
	}
	if updLog.Metadata["previous_memory"] != "original" || updLog.Metadata["new_memory"] != "revised" {
		t.Fatalf("UPDATE log missing before/after content: %+v", updLog.Metadata)
	}
	if updLog.Metadata["agent_id"] != "9" {
		t.Fatalf("UPDATE log missing caller metadata: %+v", updLog.Metadata)
	}

	if _, err := s.Memories().UpdateContentFromSync(ctx, uuid.New().String(), "x", nil, nil); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testStateTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "state-owner")
	app := mustApp(t, s, owner.ID, "state-app")
	m := mustMemory(t, s, owner.ID, &app.ID, "stateful")

	// Transitions are permissive: any state may follow any other.
	steps := []model.MemoryState{model.StatePaused, model.StateArchived, model.StateActive, model.StateDeleted}
	for _, next := range steps {
		got, err := s.Memories().SetState(ctx, m.ID, next, owner.ID)
		if err != nil {
			t.Fatalf("set %s: %v", next, err)
		}
		if got.State != next {
			t.Fatalf("state not applied: %s", got.State)
		}
	}

	got, err := s.Memories().Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ArchivedAt == nil {
		t.Fatal("archived_at not stamped")
	}
	if got.DeletedAt == nil {
		t.Fatal("deleted_at not stamped")
	}

	hist, err := s.Memories().History(ctx, m.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	// Birth row plus one row per transition, in order.
	if len(hist) != 1+len(steps) {
		t.Fatalf("expected %d history rows, got %d", 1+len(steps), len(hist))
	}
	for i, next := range steps {
		h := hist[i+1]
		if h.NewState != next {
			t.Fatalf("history[%d]: got %s want %s", i+1, h.NewState, next)
		}
		if h.OldState != hist[i].NewState {
			t.Fatalf("history chain broken at %d: %s -> %s", i+1, hist[i].NewState, h.OldState)
		}
		if h.ChangedBy != owner.ID {
			t.Fatalf("history actor: %s", h.ChangedBy)
		}
	}

	if _, err := s.Memories().SetState(ctx, uuid.New().String(), model.StatePaused, owner.ID); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testListMemories(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "list-owner")
	other := mustUser(t, s, "list-other")
	app := mustApp(t, s, owner.ID, "list-app")
	app2 := mustApp(t, s, owner.ID, "list-app-2")

	active := mustMemory(t, s, owner.ID, &app.ID, "active one")
	archived := mustMemory(t, s, owner.ID, &app.ID, "archived one")
	deleted := mustMemory(t, s, owner.ID, &app2.ID, "deleted one")
	mustMemory(t, s, other.ID, nil, "someone else's")

	if _, err := s.Memories().SetState(ctx, archived.ID, model.StateArchived, owner.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Memories().SetState(ctx, deleted.ID, model.StateDeleted, owner.ID); err != nil {
		t.Fatal(err)
	}

	got, err := s.Memories().List(ctx, model.ListMemoriesRequest{UserID: owner.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Fatalf("default listing should hide archived and deleted: %d", len(got))
	}

	got, err = s.Memories().List(ctx, model.ListMemoriesRequest{UserID: owner.ID, IncludeArchived: true})
	if err != nil || len(got) != 2 {
		t.Fatalf("include archived: %v len=%d", err, len(got))
	}

	got, err = s.Memories().List(ctx, model.ListMemoriesRequest{UserID: owner.ID, AppID: &app2.ID, IncludeArchived: true})
	if err != nil || len(got) != 0 {
		t.Fatalf("deleted must never appear: %v len=%d", err, len(got))
	}

	got, err = s.Memories().List(ctx, model.ListMemoriesRequest{UserID: owner.ID, IncludeArchived: true, Limit: 1})
	if err != nil || len(got) != 1 {
		t.Fatalf("limit: %v len=%d", err, len(got))
	}
}

func testPurgeByApp(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "purge-owner")
	app := mustApp(t, s, owner.ID, "purge-app")
	keepApp := mustApp(t, s, owner.ID, "keep-app")

	var ids []string
	for i := 0; i < 3; i++ {
		m := mustMemory(t, s, owner.ID, &app.ID, fmt.Sprintf("doomed %d", i))
		if err := s.Categories().EnsureWithAssociations(ctx, m.ID, []string{"work"}); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.ID)
	}
	kept := mustMemory(t, s, owner.ID, &keepApp.ID, "survivor")

	n, err := s.Memories().PurgeByApp(ctx, app.ID)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 purged, got %d", n)
	}

	for _, id := range ids {
		if _, err := s.Memories().Get(ctx, id); !errors.Is(err, model.ErrNotFound) {
			t.Fatalf("memory %s survived purge: %v", id, err)
		}
		if logs, err := s.Memories().AccessLogs(ctx, id, 0); err != nil || len(logs) != 0 {
			t.Fatalf("orphaned access logs for %s", id)
		}
		if hist, err := s.Memories().History(ctx, id); err != nil || len(hist) != 0 {
			t.Fatalf("orphaned history for %s", id)
		}
		if cats, err := s.Categories().ListForMemory(ctx, id); err != nil || len(cats) != 0 {
			t.Fatalf("orphaned category links for %s", id)
		}
	}

	if _, err := s.Memories().Get(ctx, kept.ID); err != nil {
		t.Fatalf("unrelated memory purged: %v", err)
	}
	if err := s.Apps().Delete(ctx, app.ID); err != nil {
		t.Fatalf("app delete after purge: %v", err)
	}
}

func testCategories(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "cat-owner")
	m1 := mustMemory(t, s, owner.ID, nil, "pizza on fridays")
	m2 := mustMemory(t, s, owner.ID, nil, "standup at nine")

	if err := s.Categories().EnsureWithAssociations(ctx, m1.ID, []string{"food", "preferences"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	// Replays and overlapping sets must not duplicate anything.
	if err := s.Categories().EnsureWithAssociations(ctx, m1.ID, []string{"food", "preferences"}); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if err := s.Categories().EnsureWithAssociations(ctx, m2.ID, []string{"work", "food"}); err != nil {
		t.Fatalf("second memory: %v", err)
	}

	cats, err := s.Categories().ListForMemory(ctx, m1.ID)
	if err != nil || len(cats) != 2 {
		t.Fatalf("list for memory: %v len=%d", err, len(cats))
	}

	all, err := s.Categories().ListForUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("list for user: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 distinct categories, got %d", len(all))
	}

	// Related memories rank by category overlap.
	rel, err := s.Memories().ListRelated(ctx, owner.ID, m1.ID, 5)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(rel) != 1 || rel[0].ID != m2.ID {
		t.Fatalf("expected m2 related via food, got %+v", rel)
	}
}

func testAccessRules(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "acl-owner")
	app := mustApp(t, s, owner.ID, "acl-app")
	m := mustMemory(t, s, owner.ID, &app.ID, "restricted")

	if _, err := s.AccessRules().Create(ctx, &model.AccessRule{
		SubjectType: model.SubjectApp,
		SubjectID:   &app.ID,
		ObjectType:  model.ObjectMemory,
		ObjectID:    &m.ID,
		Effect:      model.EffectAllow,
	}); err != nil {
		t.Fatalf("create specific allow: %v", err)
	}
	if _, err := s.AccessRules().Create(ctx, &model.AccessRule{
		SubjectType: model.SubjectApp,
		SubjectID:   &app.ID,
		ObjectType:  model.ObjectMemory,
		Effect:      model.EffectDeny,
	}); err != nil {
		t.Fatalf("create wildcard deny: %v", err)
	}

	rules, err := s.AccessRules().ListForSubject(ctx, model.SubjectApp, app.ID, model.ObjectMemory)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	var wildcards, specifics int
	for _, r := range rules {
		if r.Wildcard() {
			wildcards++
		} else {
			specifics++
		}
	}
	if wildcards != 1 || specifics != 1 {
		t.Fatalf("wildcard classification wrong: %d/%d", wildcards, specifics)
	}

	other, err := s.AccessRules().ListForSubject(ctx, model.SubjectApp, "no-such-app", model.ObjectMemory)
	if err != nil || len(other) != 0 {
		t.Fatalf("foreign subject should have no rules: %v %d", err, len(other))
	}
}
