package http

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"note-sync/internal/clock"
	"note-sync/internal/config"
	"note-sync/internal/handlers"
	"note-sync/internal/logging"
	"note-sync/internal/migrations"
	"note-sync/internal/repos"
	"note-sync/internal/services"
)

func setupRouter(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.Migrations)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "."))

	log := logging.New("error")
	svc := services.NewSyncService(repos.NewSyncRepo(db), clock.System{})
	h := handlers.NewSyncHandler(svc, log)
	return NewRouter(cfg, log, h)
}

func doJSON(t *testing.T, r http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPushPullWireShapes(t *testing.T) {
	r := setupRouter(t, config.Config{})
	id := "c0000000-0000-0000-0000-000000000001"
	tagID := "c0000000-0000-0000-0000-0000000000aa"

	push := `{
		"items": [{"op":"upsert","id":"` + id + `","client_rev":1,"data":{"title":"Note A","content":"hello","metadata":{"pin":true},"tags":["` + tagID + `"]}}],
		"tags":  [{"op":"upsert","id":"` + tagID + `","client_rev":1,"data":{"name":"inbox","color":"#123456"}}]
	}`
	rec := doJSON(t, r, http.MethodPost, "/sync/push", push, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pushBody struct {
		Items []map[string]any `json:"items"`
		Tags  []map[string]any `json:"tags"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pushBody))
	require.Len(t, pushBody.Items, 1)
	assert.Equal(t, "applied", pushBody.Items[0]["status"])
	assert.EqualValues(t, 1, pushBody.Items[0]["rev"])
	assert.NotEmpty(t, pushBody.Items[0]["server_updated_at"])
	require.Len(t, pushBody.Tags, 1)
	assert.Equal(t, "applied", pushBody.Tags[0]["status"])

	rec = doJSON(t, r, http.MethodGet, "/sync/pull", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var pullBody struct {
		Cursor  string `json:"cursor"`
		Changes struct {
			Items struct {
				Upserts []map[string]any `json:"upserts"`
				Deletes []string         `json:"deletes"`
			} `json:"items"`
			Tags struct {
				Upserts []map[string]any `json:"upserts"`
				Deletes []string         `json:"deletes"`
			} `json:"tags"`
		} `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pullBody))
	assert.NotEmpty(t, pullBody.Cursor)
	require.Len(t, pullBody.Changes.Items.Upserts, 1)
	item := pullBody.Changes.Items.Upserts[0]
	assert.Equal(t, id, item["id"])
	assert.Equal(t, "note", item["type"])
	assert.Equal(t, "Note A", item["title"])
	assert.Equal(t, "hello", item["content"])
	assert.Nil(t, item["parent"])
	assert.Equal(t, map[string]any{"pin": true}, item["metadata"])
	assert.Equal(t, []any{tagID}, item["tags"])
	assert.EqualValues(t, 1, item["rev"])
	assert.NotEmpty(t, item["server_updated_at"])
	require.Len(t, pullBody.Changes.Tags.Upserts, 1)
	tag := pullBody.Changes.Tags.Upserts[0]
	assert.Equal(t, "inbox", tag["name"])
	assert.Equal(t, "#123456", tag["color"])

	// Pulling again with the returned cursor yields an empty delta.
	rec = doJSON(t, r, http.MethodGet, "/sync/pull?since="+strings.ReplaceAll(pullBody.Cursor, "+", "%2B"), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pullBody))
	assert.Empty(t, pullBody.Changes.Items.Upserts)
	assert.Empty(t, pullBody.Changes.Tags.Upserts)
}

func TestPushConflictRidesInside200(t *testing.T) {
	r := setupRouter(t, config.Config{})
	id := "c0000000-0000-0000-0000-000000000002"

	op := `{"items":[{"op":"upsert","id":"` + id + `","client_rev":1,"data":{"title":"v1"}}],"tags":[]}`
	rec := doJSON(t, r, http.MethodPost, "/sync/push", op, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/sync/push", op, nil)
	require.Equal(t, http.StatusOK, rec.Code, "conflicts are per-item, not transport-level")

	var body struct {
		Items []struct {
			Status         string         `json:"status"`
			ServerSnapshot map[string]any `json:"server_snapshot"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "conflict", body.Items[0].Status)
	require.NotNil(t, body.Items[0].ServerSnapshot)
	assert.EqualValues(t, 1, body.Items[0].ServerSnapshot["rev"])
	assert.Equal(t, "v1", body.Items[0].ServerSnapshot["title"])
}

func TestPushMalformedBodyIs400(t *testing.T) {
	r := setupRouter(t, config.Config{})
	rec := doJSON(t, r, http.MethodPost, "/sync/push", `{"items": "nope"`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	r := setupRouter(t, config.Config{})
	rec := doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthTokenGuardsSyncRoutes(t *testing.T) {
	r := setupRouter(t, config.Config{AuthToken: "s3cret"})

	rec := doJSON(t, r, http.MethodGet, "/sync/pull", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/sync/pull", "", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/sync/pull", "", map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health stays open for probes.
	rec = doJSON(t, r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
