package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/openmem/openmem-server/internal/categorize"
	"github.com/openmem/openmem-server/internal/store/sqlite"
	"github.com/openmem/openmem-server/internal/vector"
)

type apiEnv struct {
	server *httptest.Server
	index  *vector.Fake
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	st, err := sqlite.NewAtPath(context.Background(), filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)

	idx := vector.NewFake()
	log := zerolog.Nop()
	cat := &categorize.Fallback{Secondary: categorize.Keyword{}, Log: log}
	router := NewRouter(st, idx, cat, func() bool { return true }, log)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &apiEnv{server: server, index: idx}
}

func (e *apiEnv) do(t *testing.T, method, path string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var out map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e *apiEnv) createUser(t *testing.T, handle string) {
	t.Helper()
	resp, _ := e.do(t, http.MethodPost, "/api/v1/users", map[string]string{"userId": handle})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func (e *apiEnv) createMemory(t *testing.T, handle, content string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/v1/users/"+handle+"/memories",
		map[string]interface{}{"content": content})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	mems := body["memories"].([]interface{})
	require.Len(t, mems, 1)
	return mems[0].(map[string]interface{})["id"].(string)
}

func TestUserEndpoints(t *testing.T) {
	env := newAPIEnv(t)

	resp, first := env.do(t, http.MethodPost, "/api/v1/users", map[string]string{"userId": "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Idempotent: the same handle resolves to the same row.
	resp, second := env.do(t, http.MethodPost, "/api/v1/users", map[string]string{"userId": "alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, first["id"], second["id"])

	resp, got := env.do(t, http.MethodGet, "/api/v1/users/alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "alice", got["userId"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/users/nobody", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, updated := env.do(t, http.MethodPatch, "/api/v1/users/alice/metadata",
		map[string]interface{}{"metadata": map[string]interface{}{"tier": "pro"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "pro", updated["metadata"].(map[string]interface{})["tier"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/users", map[string]string{"userId": ""})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMemoryEndpoints(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "alice")

	memID := env.createMemory(t, "alice", "I love pizza on weekends")

	resp, body := env.do(t, http.MethodGet, "/api/v1/users/alice/memories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["memories"], 1)

	resp, body = env.do(t, http.MethodGet, "/api/v1/users/alice/memories/search?q=pizza", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["results"], 1)

	resp, got := env.do(t, http.MethodGet, "/api/v1/memories/"+memID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "I love pizza on weekends", got["content"])

	resp, upd := env.do(t, http.MethodPut, "/api/v1/memories/"+memID,
		map[string]interface{}{"userId": "alice", "content": "I love sushi now"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "I love sushi now", upd["content"])

	resp, st := env.do(t, http.MethodPost, "/api/v1/memories/"+memID+"/state",
		map[string]interface{}{"userId": "alice", "state": "archived"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "archived", st["state"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/memories/"+memID+"/state",
		map[string]interface{}{"userId": "alice", "state": "bogus"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Archived rows are hidden unless asked for.
	resp, body = env.do(t, http.MethodGet, "/api/v1/users/alice/memories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["memories"], 0)
	resp, body = env.do(t, http.MethodGet, "/api/v1/users/alice/memories?include_archived=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["memories"], 1)

	resp, hist := env.do(t, http.MethodGet, "/api/v1/memories/"+memID+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, hist["history"])

	resp, cats := env.do(t, http.MethodGet, "/api/v1/memories/"+memID+"/categories", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, cats["categories"])

	resp, del := env.do(t, http.MethodDelete, "/api/v1/memories/"+memID+"?user_id=alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "deleted", del["state"])
	require.Equal(t, 0, env.index.Len())
}

func TestMemoryPermissionMapping(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "alice")
	env.createUser(t, "mallory")

	memID := env.createMemory(t, "alice", "private note")

	resp, _ := env.do(t, http.MethodDelete, "/api/v1/memories/"+memID+"?user_id=mallory", nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestDeleteMemoriesBatch(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "alice")

	a := env.createMemory(t, "alice", "first note")
	b := env.createMemory(t, "alice", "second note")

	resp, body := env.do(t, http.MethodPost, "/api/v1/users/alice/memories/delete-batch",
		map[string]interface{}{"memoryIds": []string{a, b, "00000000-0000-0000-0000-000000000000"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(2), body["deleted"])
}

func TestBindEndpointAndAppLifecycle(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "alice")

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"agentId":42}`))
	endpoint := fmt.Sprintf("ws://robot.local/ws?token=hdr.%s.sig", payload)

	resp, bound := env.do(t, http.MethodPost, "/api/v1/users/alice/bind-endpoint",
		map[string]string{"endpointUrl": endpoint, "deviceName": "Robot"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	app := bound["app"].(map[string]interface{})
	require.Equal(t, float64(42), app["agentId"])

	// Second bind of the same endpoint is a no-op.
	resp, rebound := env.do(t, http.MethodPost, "/api/v1/users/alice/bind-endpoint",
		map[string]string{"endpointUrl": endpoint, "deviceName": "Robot"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, rebound["alreadyBound"])

	resp, apps := env.do(t, http.MethodGet, "/api/v1/users/alice/apps", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, apps["apps"], 1)

	appID := app["id"].(string)
	resp, resolved := env.do(t, http.MethodPost, "/api/v1/apps/resolve",
		map[string]interface{}{"agentId": 42})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, appID, resolved["id"])

	resp, renamed := env.do(t, http.MethodPut, "/api/v1/apps/"+appID+"/name",
		map[string]string{"userId": "alice", "name": "Kitchen Robot"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "Kitchen Robot", renamed["name"])

	resp, deleted := env.do(t, http.MethodDelete, "/api/v1/apps/"+appID+"?user_id=alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(0), deleted["memoriesPurged"])

	resp, _ = env.do(t, http.MethodGet, "/api/v1/apps/"+appID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAccessRulesAndScope(t *testing.T) {
	env := newAPIEnv(t)
	env.createUser(t, "alice")
	memID := env.createMemory(t, "alice", "scoped note")

	payload := base64.RawURLEncoding.EncodeToString([]byte(`{"agentId":7}`))
	endpoint := fmt.Sprintf("ws://robot.local/ws?token=hdr.%s.sig", payload)
	resp, bound := env.do(t, http.MethodPost, "/api/v1/users/alice/bind-endpoint",
		map[string]string{"endpointUrl": endpoint, "deviceName": "Robot"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	appID := bound["app"].(map[string]interface{})["id"].(string)

	resp, scope := env.do(t, http.MethodGet, "/api/v1/apps/"+appID+"/access-scope", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, scope["unrestricted"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/access-rules", map[string]interface{}{
		"subjectType": "app", "subjectId": appID,
		"objectType": "memory", "objectId": memID,
		"effect": "allow",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, scope = env.do(t, http.MethodGet, "/api/v1/apps/"+appID+"/access-scope", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, scope["unrestricted"])
	require.Equal(t, []interface{}{memID}, scope["memoryIds"])

	resp, _ = env.do(t, http.MethodPost, "/api/v1/access-rules", map[string]interface{}{
		"subjectType": "app", "subjectId": appID,
		"objectType": "memory", "objectId": memID,
		"effect": "shrug",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "healthy", body["status"])
}
