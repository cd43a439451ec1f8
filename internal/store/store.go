package store

import (
	"context"

	"github.com/openmem/openmem-server/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite).
//
// Operations that must be atomic (memory + history, memory + access log,
// cascade purge) are single methods here; adapters run them in one
// transaction.
type Store interface {
	Users() Users
	Apps() Apps
	Memories() Memories
	Categories() Categories
	AccessRules() AccessRules
}

type Users interface {
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	GetByHandle(ctx context.Context, handle string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	Update(ctx context.Context, u *model.User) (*model.User, error)
	Stats(ctx context.Context, userID string) (*model.UserStats, error)
}

type Apps interface {
	Create(ctx context.Context, a *model.App) (*model.App, error)
	Get(ctx context.Context, id string) (*model.App, error)
	GetByName(ctx context.Context, name string) (*model.App, error)
	GetByWebsocketURL(ctx context.Context, url string) (*model.App, error)
	GetByAgentID(ctx context.Context, agentID int64) (*model.App, error)
	// FirstNameContaining returns the oldest app whose name contains substr.
	FirstNameContaining(ctx context.Context, substr string) (*model.App, error)
	// ListByOwner returns the owner's apps newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]*model.App, error)
	ListWithCounts(ctx context.Context, ownerID *string) ([]*model.AppWithCounts, error)
	Update(ctx context.Context, a *model.App) (*model.App, error)
	// Delete removes the app row only; callers purge memories first.
	Delete(ctx context.Context, id string) error
}

type Memories interface {
	// CreateFromSync inserts a memory whose id was assigned by the vector
	// store. In the same transaction it writes the birth history row
	// (deleted -> active) and, when the memory has an app, an ADD access log
	// carrying logMeta. Returns model.ErrConflict if the id already exists.
	CreateFromSync(ctx context.Context, m *model.Memory, logMeta map[string]interface{}) (*model.Memory, error)

	// UpdateContentFromSync compares stored content under a row lock and,
	// when different, updates content/metadata and writes an UPDATE access
	// log (previous and new content in its metadata) atomically.
	// Returns false when content was identical (no writes).
	UpdateContentFromSync(ctx context.Context, id, content string, metadata, logMeta map[string]interface{}) (bool, error)

	Get(ctx context.Context, id string) (*model.Memory, error)
	List(ctx context.Context, req model.ListMemoriesRequest) ([]*model.Memory, error)

	// SetState transitions the memory and appends the history row in one
	// transaction, stamping archived_at/deleted_at as appropriate.
	SetState(ctx context.Context, id string, newState model.MemoryState, actingUserID string) (*model.Memory, error)

	// PurgeByApp hard-deletes every memory owned by the app together with
	// its category links, access logs and history. Returns the number of
	// memories removed.
	PurgeByApp(ctx context.Context, appID string) (int, error)

	History(ctx context.Context, memoryID string) ([]*model.StatusHistory, error)
	InsertAccessLog(ctx context.Context, e *model.AccessLogEntry) error
	AccessLogs(ctx context.Context, memoryID string, limit int) ([]*model.AccessLogEntry, error)

	// ListRelated returns the user's non-deleted memories sharing at least
	// one category with memoryID, ordered by overlap count.
	ListRelated(ctx context.Context, userID, memoryID string, limit int) ([]*model.Memory, error)
}

type Categories interface {
	// EnsureWithAssociations creates missing categories and missing
	// memory-category links for the given names; existing pairings are
	// skipped so replays are no-ops.
	EnsureWithAssociations(ctx context.Context, memoryID string, names []string) error
	ListForMemory(ctx context.Context, memoryID string) ([]*model.Category, error)
	ListForUser(ctx context.Context, userID string) ([]*model.Category, error)
}

type AccessRules interface {
	Create(ctx context.Context, r *model.AccessRule) (*model.AccessRule, error)
	ListForSubject(ctx context.Context, st model.SubjectType, subjectID string, ot model.ObjectType) ([]*model.AccessRule, error)
}
