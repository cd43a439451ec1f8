package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openmem/openmem-server/internal/model"
	"github.com/openmem/openmem-server/internal/store"
)

// New constructs a SQLite-backed store from an open connection.
func New(db *sql.DB) store.Store { return &sqStore{db: db} }

// NewAtPath opens (or creates) the database file, applies the schema and
// returns the store. Used by the local build target.
func NewAtPath(ctx context.Context, path string) (store.Store, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

type sqStore struct{ db *sql.DB }

func (s *sqStore) Users() store.Users             { return &users{db: s.db} }
func (s *sqStore) Apps() store.Apps               { return &apps{db: s.db} }
func (s *sqStore) Memories() store.Memories       { return &memories{db: s.db} }
func (s *sqStore) Categories() store.Categories   { return &categories{db: s.db} }
func (s *sqStore) AccessRules() store.AccessRules { return &accessRules{db: s.db} }

// HealthPing implements health probing for the SQLite-backed store.
func (s *sqStore) HealthPing(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// --- helpers ---

type rowScanner interface{ Scan(dest ...interface{}) error }

func nowUTC() time.Time { return time.Now().UTC() }

func toJSON(m map[string]interface{}) interface{} {
	if len(m) == 0 {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

func fromJSON(s sql.NullString) map[string]interface{} {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]interface{}
	_ = json.Unmarshal([]byte(s.String), &m)
	return m
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	if isUniqueViolation(err) {
		return model.ErrConflict
	}
	return model.Transient(err)
}

// --- Users ---

type users struct{ db *sql.DB }

const userCols = `id, handle, name, email, is_admin, metadata, created_at, updated_at`

func scanUser(r rowScanner) (*model.User, error) {
	var u model.User
	var meta sql.NullString
	if err := r.Scan(&u.ID, &u.Handle, &u.Name, &u.Email, &u.IsAdmin, &meta, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	u.Metadata = fromJSON(meta)
	return &u, nil
}

func (u *users) Create(ctx context.Context, m *model.User) (*model.User, error) {
	out := *m
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := nowUTC()
	out.CreatedAt, out.UpdatedAt = now, now
	_, err := u.db.ExecContext(ctx, `
        INSERT INTO users (id, handle, name, email, is_admin, metadata, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?)
    `, out.ID, out.Handle, out.Name, out.Email, out.IsAdmin, toJSON(out.Metadata), now, now)
	if err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (u *users) Get(ctx context.Context, id string) (*model.User, error) {
	return scanUser(u.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id))
}

func (u *users) GetByHandle(ctx context.Context, handle string) (*model.User, error) {
	return scanUser(u.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE handle = ?`, handle))
}

func (u *users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(u.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email))
}

func (u *users) Update(ctx context.Context, m *model.User) (*model.User, error) {
	now := nowUTC()
	res, err := u.db.ExecContext(ctx, `
        UPDATE users SET name = ?, email = ?, is_admin = ?, metadata = ?, updated_at = ?
        WHERE id = ?
    `, m.Name, m.Email, m.IsAdmin, toJSON(m.Metadata), now, m.ID)
	if err != nil {
		return nil, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return u.Get(ctx, m.ID)
}

func (u *users) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	var st model.UserStats
	row := u.db.QueryRowContext(ctx, `
        SELECT
            (SELECT COUNT(*) FROM memories WHERE user_id = ? AND state <> 'deleted'),
            (SELECT COUNT(*) FROM memories WHERE user_id = ? AND state = 'active'),
            (SELECT COUNT(*) FROM apps WHERE owner_id = ?)
    `, userID, userID, userID)
	if err := row.Scan(&st.TotalMemories, &st.ActiveMemories, &st.TotalApps); err != nil {
		return nil, mapErr(err)
	}
	return &st, nil
}

// --- Apps ---

type apps struct{ db *sql.DB }

const appCols = `id, owner_id, name, description, metadata, is_active, websocket_url, device_name, agent_id, created_at, updated_at`

func scanApp(r rowScanner) (*model.App, error) {
	var a model.App
	var meta sql.NullString
	if err := r.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Description, &meta, &a.IsActive,
		&a.WebsocketURL, &a.DeviceName, &a.AgentID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, mapErr(err)
	}
	a.Metadata = fromJSON(meta)
	return &a, nil
}

func (a *apps) Create(ctx context.Context, m *model.App) (*model.App, error) {
	out := *m
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := nowUTC()
	out.CreatedAt, out.UpdatedAt = now, now
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO apps (id, owner_id, name, description, metadata, is_active, websocket_url, device_name, agent_id, created_at, updated_at)
        VALUES (?,?,?,?,?,?,?,?,?,?,?)
    `, out.ID, out.OwnerID, out.Name, out.Description, toJSON(out.Metadata), out.IsActive,
		out.WebsocketURL, out.DeviceName, out.AgentID, now, now)
	if err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (a *apps) Get(ctx context.Context, id string) (*model.App, error) {
	return scanApp(a.db.QueryRowContext(ctx, `SELECT `+appCols+` FROM apps WHERE id = ?`, id))
}

func (a *apps) GetByName(ctx context.Context, name string) (*model.App, error) {
	return scanApp(a.db.QueryRowContext(ctx, `SELECT `+appCols+` FROM apps WHERE name = ?`, name))
}

func (a *apps) GetByWebsocketURL(ctx context.Context, url string) (*model.App, error) {
	return scanApp(a.db.QueryRowContext(ctx, `SELECT `+appCols+` FROM apps WHERE websocket_url = ?`, url))
}

func (a *apps) GetByAgentID(ctx context.Context, agentID int64) (*model.App, error) {
	return scanApp(a.db.QueryRowContext(ctx, `SELECT `+appCols+` FROM apps WHERE agent_id = ? ORDER BY created_at DESC LIMIT 1`, agentID))
}

func (a *apps) FirstNameContaining(ctx context.Context, substr string) (*model.App, error) {
	return scanApp(a.db.QueryRowContext(ctx, `
        SELECT `+appCols+` FROM apps
        WHERE instr(name, ?) > 0 ORDER BY created_at ASC LIMIT 1
    `, substr))
}

func (a *apps) ListByOwner(ctx context.Context, ownerID string) ([]*model.App, error) {
	rows, err := a.db.QueryContext(ctx, `
        SELECT `+appCols+` FROM apps WHERE owner_id = ? ORDER BY created_at DESC
    `, ownerID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.App
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, mapErr(rows.Err())
}

func (a *apps) ListWithCounts(ctx context.Context, ownerID *string) ([]*model.AppWithCounts, error) {
	query := `
        SELECT ` + qualify(appCols, "a") + `,
               COALESCE(mc.n, 0) AS memories_created,
               COALESCE(ac.n, 0) AS memories_accessed
        FROM apps a
        LEFT JOIN (SELECT app_id, COUNT(*) AS n FROM memories WHERE state <> 'deleted' GROUP BY app_id) mc ON mc.app_id = a.id
        LEFT JOIN (SELECT app_id, COUNT(DISTINCT memory_id) AS n FROM memory_access_logs GROUP BY app_id) ac ON ac.app_id = a.id`
	var args []interface{}
	if ownerID != nil {
		query += ` WHERE a.owner_id = ?`
		args = append(args, *ownerID)
	}
	query += ` ORDER BY a.name ASC`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.AppWithCounts
	for rows.Next() {
		var awc model.AppWithCounts
		var meta sql.NullString
		if err := rows.Scan(&awc.ID, &awc.OwnerID, &awc.Name, &awc.Description, &meta, &awc.IsActive,
			&awc.WebsocketURL, &awc.DeviceName, &awc.AgentID, &awc.CreatedAt, &awc.UpdatedAt,
			&awc.MemoriesCreated, &awc.MemoriesAccessed); err != nil {
			return nil, mapErr(err)
		}
		awc.Metadata = fromJSON(meta)
		out = append(out, &awc)
	}
	return out, mapErr(rows.Err())
}

func (a *apps) Update(ctx context.Context, m *model.App) (*model.App, error) {
	now := nowUTC()
	res, err := a.db.ExecContext(ctx, `
        UPDATE apps SET name = ?, description = ?, metadata = ?, is_active = ?,
               websocket_url = ?, device_name = ?, agent_id = ?, updated_at = ?
        WHERE id = ?
    `, m.Name, m.Description, toJSON(m.Metadata), m.IsActive,
		m.WebsocketURL, m.DeviceName, m.AgentID, now, m.ID)
	if err != nil {
		return nil, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrNotFound
	}
	return a.Get(ctx, m.ID)
}

func (a *apps) Delete(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, `DELETE FROM apps WHERE id = ?`, id)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// qualify prefixes each column in a comma-separated list with an alias.
func qualify(cols, alias string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// --- Memories ---

type memories struct{ db *sql.DB }

const memoryCols = `id, user_id, app_id, content, metadata, state, created_at, updated_at, archived_at, deleted_at`

func scanMemory(r rowScanner) (*model.Memory, error) {
	var m model.Memory
	var meta sql.NullString
	var state string
	if err := r.Scan(&m.ID, &m.UserID, &m.AppID, &m.Content, &meta, &state,
		&m.CreatedAt, &m.UpdatedAt, &m.ArchivedAt, &m.DeletedAt); err != nil {
		return nil, mapErr(err)
	}
	m.Metadata = fromJSON(meta)
	m.State = model.MemoryState(state)
	return &m, nil
}

func (m *memories) CreateFromSync(ctx context.Context, mm *model.Memory, logMeta map[string]interface{}) (*model.Memory, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, model.Transient(err)
	}
	defer func() { _ = tx.Rollback() }()

	out := *mm
	now := nowUTC()
	out.State = model.StateActive
	out.CreatedAt, out.UpdatedAt = now, now

	res, err := tx.ExecContext(ctx, `
        INSERT OR IGNORE INTO memories (id, user_id, app_id, content, metadata, state, created_at, updated_at)
        VALUES (?,?,?,?,?,'active',?,?)
    `, out.ID, out.UserID, out.AppID, out.Content, toJSON(out.Metadata), now, now)
	if err != nil {
		return nil, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, model.ErrConflict
	}

	// Birth marker: deleted -> active, attributed to the owner.
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO memory_status_history (id, memory_id, changed_by, old_state, new_state, changed_at)
        VALUES (?,?,?,?,?,?)
    `, uuid.New().String(), out.ID, out.UserID, string(model.StateDeleted), string(model.StateActive), now); err != nil {
		return nil, mapErr(err)
	}

	if out.AppID != nil {
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO memory_access_logs (id, memory_id, app_id, access_type, metadata, accessed_at)
            VALUES (?,?,?,?,?,?)
        `, uuid.New().String(), out.ID, *out.AppID, model.AccessAdd, toJSON(logMeta), now); err != nil {
			return nil, mapErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, model.Transient(err)
	}
	return &out, nil
}

func (m *memories) UpdateContentFromSync(ctx context.Context, id, content string, metadata, logMeta map[string]interface{}) (bool, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, model.Transient(err)
	}
	defer func() { _ = tx.Rollback() }()

	var prev string
	var appID *string
	row := tx.QueryRowContext(ctx, `SELECT content, app_id FROM memories WHERE id = ?`, id)
	if err := row.Scan(&prev, &appID); err != nil {
		return false, mapErr(err)
	}
	if prev == content {
		return false, tx.Commit()
	}

	now := nowUTC()
	set := `content = ?, updated_at = ?`
	args := []interface{}{content, now}
	if len(metadata) > 0 {
		set += `, metadata = ?`
		args = append(args, toJSON(metadata))
	}
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, `UPDATE memories SET `+set+` WHERE id = ?`, args...); err != nil {
		return false, mapErr(err)
	}

	if appID != nil {
		merged := map[string]interface{}{
			"previous_memory": prev,
			"new_memory":      content,
		}
		for k, v := range logMeta {
			merged[k] = v
		}
		if _, err := tx.ExecContext(ctx, `
            INSERT INTO memory_access_logs (id, memory_id, app_id, access_type, metadata, accessed_at)
            VALUES (?,?,?,?,?,?)
        `, uuid.New().String(), id, *appID, model.AccessUpdate, toJSON(merged), now); err != nil {
			return false, mapErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, model.Transient(err)
	}
	return true, nil
}

func (m *memories) Get(ctx context.Context, id string) (*model.Memory, error) {
	return scanMemory(m.db.QueryRowContext(ctx, `SELECT `+memoryCols+` FROM memories WHERE id = ?`, id))
}

func (m *memories) List(ctx context.Context, req model.ListMemoriesRequest) ([]*model.Memory, error) {
	query := `SELECT ` + memoryCols + ` FROM memories WHERE user_id = ? AND state <> 'deleted'`
	args := []interface{}{req.UserID}
	if !req.IncludeArchived {
		query += ` AND state <> 'archived'`
	}
	if req.AppID != nil {
		query += ` AND app_id = ?`
		args = append(args, *req.AppID)
	}
	query += ` ORDER BY created_at DESC`
	if req.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, req.Limit)
		if req.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, req.Offset)
		}
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Memory
	for rows.Next() {
		mm, err := scanMemory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, mm)
	}
	return out, mapErr(rows.Err())
}

func (m *memories) SetState(ctx context.Context, id string, newState model.MemoryState, actingUserID string) (*model.Memory, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, model.Transient(err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := scanMemory(tx.QueryRowContext(ctx, `SELECT `+memoryCols+` FROM memories WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	now := nowUTC()
	out := *cur
	out.State = newState
	out.UpdatedAt = now
	switch newState {
	case model.StateArchived:
		out.ArchivedAt = &now
	case model.StateDeleted:
		out.DeletedAt = &now
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE memories SET state = ?, updated_at = ?, archived_at = ?, deleted_at = ? WHERE id = ?
    `, string(out.State), now, out.ArchivedAt, out.DeletedAt, id); err != nil {
		return nil, mapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `
        INSERT INTO memory_status_history (id, memory_id, changed_by, old_state, new_state, changed_at)
        VALUES (?,?,?,?,?,?)
    `, uuid.New().String(), id, actingUserID, string(cur.State), string(newState), now); err != nil {
		return nil, mapErr(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, model.Transient(err)
	}
	return &out, nil
}

func (m *memories) PurgeByApp(ctx context.Context, appID string) (int, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, model.Transient(err)
	}
	defer func() { _ = tx.Rollback() }()

	// Children first so no orphaned foreign keys remain.
	if _, err := tx.ExecContext(ctx, `
        DELETE FROM memory_categories WHERE memory_id IN (SELECT id FROM memories WHERE app_id = ?)
    `, appID); err != nil {
		return 0, mapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `
        DELETE FROM memory_access_logs WHERE memory_id IN (SELECT id FROM memories WHERE app_id = ?)
    `, appID); err != nil {
		return 0, mapErr(err)
	}
	if _, err := tx.ExecContext(ctx, `
        DELETE FROM memory_status_history WHERE memory_id IN (SELECT id FROM memories WHERE app_id = ?)
    `, appID); err != nil {
		return 0, mapErr(err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE app_id = ?`, appID)
	if err != nil {
		return 0, mapErr(err)
	}
	n, _ := res.RowsAffected()
	if err := tx.Commit(); err != nil {
		return 0, model.Transient(err)
	}
	return int(n), nil
}

func (m *memories) History(ctx context.Context, memoryID string) ([]*model.StatusHistory, error) {
	rows, err := m.db.QueryContext(ctx, `
        SELECT id, memory_id, changed_by, old_state, new_state, changed_at
        FROM memory_status_history WHERE memory_id = ? ORDER BY changed_at ASC, id ASC
    `, memoryID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.StatusHistory
	for rows.Next() {
		var h model.StatusHistory
		var oldSt, newSt string
		if err := rows.Scan(&h.ID, &h.MemoryID, &h.ChangedBy, &oldSt, &newSt, &h.ChangedAt); err != nil {
			return nil, mapErr(err)
		}
		h.OldState, h.NewState = model.MemoryState(oldSt), model.MemoryState(newSt)
		out = append(out, &h)
	}
	return out, mapErr(rows.Err())
}

func (m *memories) InsertAccessLog(ctx context.Context, e *model.AccessLogEntry) error {
	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	at := e.AccessedAt
	if at.IsZero() {
		at = nowUTC()
	}
	_, err := m.db.ExecContext(ctx, `
        INSERT INTO memory_access_logs (id, memory_id, app_id, access_type, metadata, accessed_at)
        VALUES (?,?,?,?,?,?)
    `, id, e.MemoryID, e.AppID, e.AccessType, toJSON(e.Metadata), at)
	return mapErr(err)
}

func (m *memories) AccessLogs(ctx context.Context, memoryID string, limit int) ([]*model.AccessLogEntry, error) {
	query := `
        SELECT id, memory_id, app_id, access_type, metadata, accessed_at
        FROM memory_access_logs WHERE memory_id = ? ORDER BY accessed_at DESC`
	args := []interface{}{memoryID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.AccessLogEntry
	for rows.Next() {
		var e model.AccessLogEntry
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.AppID, &e.AccessType, &meta, &e.AccessedAt); err != nil {
			return nil, mapErr(err)
		}
		e.Metadata = fromJSON(meta)
		out = append(out, &e)
	}
	return out, mapErr(rows.Err())
}

func (m *memories) ListRelated(ctx context.Context, userID, memoryID string, limit int) ([]*model.Memory, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := m.db.QueryContext(ctx, `
        SELECT `+qualify(memoryCols, "m")+`, COUNT(mc.category_id) AS overlap
        FROM memories m
        JOIN memory_categories mc ON mc.memory_id = m.id
        WHERE mc.category_id IN (SELECT category_id FROM memory_categories WHERE memory_id = ?)
          AND m.user_id = ? AND m.id <> ? AND m.state <> 'deleted'
        GROUP BY m.id
        ORDER BY overlap DESC, m.created_at DESC
        LIMIT ?
    `, memoryID, userID, memoryID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Memory
	for rows.Next() {
		var mm model.Memory
		var meta sql.NullString
		var state string
		var overlap int
		if err := rows.Scan(&mm.ID, &mm.UserID, &mm.AppID, &mm.Content, &meta, &state,
			&mm.CreatedAt, &mm.UpdatedAt, &mm.ArchivedAt, &mm.DeletedAt, &overlap); err != nil {
			return nil, mapErr(err)
		}
		mm.Metadata = fromJSON(meta)
		mm.State = model.MemoryState(state)
		out = append(out, &mm)
	}
	return out, mapErr(rows.Err())
}

// --- Categories ---

type categories struct{ db *sql.DB }

func (c *categories) EnsureWithAssociations(ctx context.Context, memoryID string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return model.Transient(err)
	}
	defer func() { _ = tx.Rollback() }()

	now := nowUTC()
	for _, name := range names {
		var catID string
		err := tx.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&catID)
		if errors.Is(err, sql.ErrNoRows) {
			catID = uuid.New().String()
			desc := "Automatically created category for " + name
			if _, err := tx.ExecContext(ctx, `
                INSERT INTO categories (id, name, description, created_at, updated_at)
                VALUES (?,?,?,?,?)
            `, catID, name, desc, now, now); err != nil {
				return mapErr(err)
			}
		} else if err != nil {
			return mapErr(err)
		}

		if _, err := tx.ExecContext(ctx, `
            INSERT OR IGNORE INTO memory_categories (memory_id, category_id) VALUES (?,?)
        `, memoryID, catID); err != nil {
			return mapErr(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return model.Transient(err)
	}
	return nil
}

const categoryCols = `id, name, description, created_at, updated_at`

func (c *categories) ListForMemory(ctx context.Context, memoryID string) ([]*model.Category, error) {
	return c.query(ctx, `
        SELECT `+qualify(categoryCols, "c")+` FROM categories c
        JOIN memory_categories mc ON mc.category_id = c.id
        WHERE mc.memory_id = ? ORDER BY c.name ASC
    `, memoryID)
}

func (c *categories) ListForUser(ctx context.Context, userID string) ([]*model.Category, error) {
	return c.query(ctx, `
        SELECT DISTINCT `+qualify(categoryCols, "c")+` FROM categories c
        JOIN memory_categories mc ON mc.category_id = c.id
        JOIN memories m ON m.id = mc.memory_id
        WHERE m.user_id = ? AND m.state <> 'deleted' ORDER BY c.name ASC
    `, userID)
}

func (c *categories) query(ctx context.Context, q string, args ...interface{}) ([]*model.Category, error) {
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.Category
	for rows.Next() {
		var cat model.Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Description, &cat.CreatedAt, &cat.UpdatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, &cat)
	}
	return out, mapErr(rows.Err())
}

// --- AccessRules ---

type accessRules struct{ db *sql.DB }

func (a *accessRules) Create(ctx context.Context, r *model.AccessRule) (*model.AccessRule, error) {
	out := *r
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.CreatedAt = nowUTC()
	_, err := a.db.ExecContext(ctx, `
        INSERT INTO access_controls (id, subject_type, subject_id, object_type, object_id, effect, created_at)
        VALUES (?,?,?,?,?,?,?)
    `, out.ID, string(out.SubjectType), out.SubjectID, string(out.ObjectType), out.ObjectID, string(out.Effect), out.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (a *accessRules) ListForSubject(ctx context.Context, st model.SubjectType, subjectID string, ot model.ObjectType) ([]*model.AccessRule, error) {
	rows, err := a.db.QueryContext(ctx, `
        SELECT id, subject_type, subject_id, object_type, object_id, effect, created_at
        FROM access_controls
        WHERE subject_type = ? AND subject_id = ? AND object_type = ?
        ORDER BY created_at ASC
    `, string(st), subjectID, string(ot))
	if err != nil {
		return nil, mapErr(err)
	}
	defer func() { _ = rows.Close() }()
	var out []*model.AccessRule
	for rows.Next() {
		var r model.AccessRule
		var sTyp, oTyp, eff string
		if err := rows.Scan(&r.ID, &sTyp, &r.SubjectID, &oTyp, &r.ObjectID, &eff, &r.CreatedAt); err != nil {
			return nil, mapErr(err)
		}
		r.SubjectType, r.ObjectType, r.Effect = model.SubjectType(sTyp), model.ObjectType(oTyp), model.Effect(eff)
		out = append(out, &r)
	}
	return out, mapErr(rows.Err())
}
