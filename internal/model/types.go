package model

import "time"

// MemoryState is the lifecycle state of a memory. A memory is born active;
// "deleted" is a soft state, not a row removal.
type MemoryState string

const (
	StateActive   MemoryState = "active"
	StatePaused   MemoryState = "paused"
	StateArchived MemoryState = "archived"
	StateDeleted  MemoryState = "deleted"
)

// Valid reports whether s is one of the four lifecycle states.
func (s MemoryState) Valid() bool {
	switch s {
	case StateActive, StatePaused, StateArchived, StateDeleted:
		return true
	}
	return false
}

// User is the identity anchor. Handle is the external opaque user_id; ID is
// the internal row identifier.
type User struct {
	ID        string                 `json:"id"`
	Handle    string                 `json:"userId"`
	Name      *string                `json:"name,omitempty"`
	Email     *string                `json:"email,omitempty"`
	IsAdmin   bool                   `json:"isAdmin"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

// App is an API client or device bound to one owning user. Name is globally
// unique. WebsocketURL, DeviceName and AgentID are denormalized device
// identity used for request matching.
type App struct {
	ID           string                 `json:"id"`
	OwnerID      string                 `json:"ownerId"`
	Name         string                 `json:"name"`
	Description  *string                `json:"description,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	IsActive     bool                   `json:"isActive"`
	WebsocketURL *string                `json:"websocketUrl,omitempty"`
	DeviceName   *string                `json:"deviceName,omitempty"`
	AgentID      *int64                 `json:"agentId,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// AppWithCounts is an app plus usage counters for listing views.
type AppWithCounts struct {
	App
	MemoriesCreated  int `json:"totalMemoriesCreated"`
	MemoriesAccessed int `json:"totalMemoriesAccessed"`
}

// Memory is the central entity. ID equals the identifier assigned by the
// vector store and is immutable once set; it is the join key between the
// relational store and the vector index.
type Memory struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"userId"`
	AppID      *string                `json:"appId,omitempty"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	State      MemoryState            `json:"state"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
	ArchivedAt *time.Time             `json:"archivedAt,omitempty"`
	DeletedAt  *time.Time             `json:"deletedAt,omitempty"`
}

// Category is a label attached to memories, created on demand.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// SubjectType identifies who an access rule applies to.
type SubjectType string

// ObjectType identifies what an access rule protects.
type ObjectType string

// Effect is the rule outcome.
type Effect string

const (
	SubjectApp  SubjectType = "app"
	SubjectUser SubjectType = "user"

	ObjectMemory ObjectType = "memory"

	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// AccessRule is an allow/deny policy row. A nil ObjectID is the wildcard
// meaning "all objects of ObjectType".
type AccessRule struct {
	ID          string      `json:"id"`
	SubjectType SubjectType `json:"subjectType"`
	SubjectID   *string     `json:"subjectId,omitempty"`
	ObjectType  ObjectType  `json:"objectType"`
	ObjectID    *string     `json:"objectId,omitempty"`
	Effect      Effect      `json:"effect"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Wildcard reports whether the rule applies to every object of its type.
func (r *AccessRule) Wildcard() bool { return r.ObjectID == nil }

// StatusHistory is one append-only state transition record.
type StatusHistory struct {
	ID        string      `json:"id"`
	MemoryID  string      `json:"memoryId"`
	ChangedBy string      `json:"changedBy"`
	OldState  MemoryState `json:"oldState"`
	NewState  MemoryState `json:"newState"`
	ChangedAt time.Time   `json:"changedAt"`
}

// Access types recorded in memory_access_logs.
const (
	AccessAdd    = "ADD"
	AccessUpdate = "UPDATE"
	AccessSearch = "SEARCH"
	AccessList   = "LIST"
	AccessGet    = "GET"
	AccessDelete = "DELETE"
)

// AccessLogEntry is one append-only access record, attributed to an app.
type AccessLogEntry struct {
	ID         string                 `json:"id"`
	MemoryID   string                 `json:"memoryId"`
	AppID      string                 `json:"appId"`
	AccessType string                 `json:"accessType"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	AccessedAt time.Time              `json:"accessedAt"`
}

// Sync event kinds reported by the vector store.
const (
	SyncEventAdd    = "add"
	SyncEventUpdate = "update"
)

// SyncEvent is one result row from the vector store's add/update response.
// ID is the canonical memory identifier; Memory is the canonical content.
type SyncEvent struct {
	ID       string                 `json:"id"`
	Memory   string                 `json:"memory"`
	Event    string                 `json:"event"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SyncResult is the vector store's response to an add or update call.
type SyncResult struct {
	Results []SyncEvent `json:"results"`
}

// VectorHit is one semantic search result.
type VectorHit struct {
	ID       string                 `json:"id"`
	Memory   string                 `json:"memory"`
	Score    float64                `json:"score"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// AccessScope is the resolved visibility set for an app. When Unrestricted
// is true the IDs set is ignored and every memory is visible (ownership
// filtering still applies at the query site).
type AccessScope struct {
	Unrestricted bool
	IDs          map[string]struct{}
}

// UnrestrictedScope allows everything.
func UnrestrictedScope() AccessScope { return AccessScope{Unrestricted: true} }

// EmptyScope allows nothing.
func EmptyScope() AccessScope { return AccessScope{IDs: map[string]struct{}{}} }

// ScopeOf builds a restricted scope over the given memory ids.
func ScopeOf(ids ...string) AccessScope {
	s := AccessScope{IDs: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.IDs[id] = struct{}{}
	}
	return s
}

// Allows reports whether the scope permits access to the memory id.
func (s AccessScope) Allows(id string) bool {
	if s.Unrestricted {
		return true
	}
	_, ok := s.IDs[id]
	return ok
}

// ListMemoriesRequest captures filters used when listing memories.
// Deleted memories are always excluded; archived ones only when requested.
type ListMemoriesRequest struct {
	UserID          string
	AppID           *string
	IncludeArchived bool
	Limit           int
	Offset          int
}

// UserStats summarizes a user's footprint.
type UserStats struct {
	TotalMemories  int `json:"totalMemories"`
	ActiveMemories int `json:"activeMemories"`
	TotalApps      int `json:"totalApps"`
}
