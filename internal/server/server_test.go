package server

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhtasimTanmoy/corrosion/internal/actorid"
	"github.com/MuhtasimTanmoy/corrosion/internal/agent"
	"github.com/MuhtasimTanmoy/corrosion/internal/broadcast"
	"github.com/MuhtasimTanmoy/corrosion/internal/crr"
	"github.com/MuhtasimTanmoy/corrosion/internal/database"
)

// fakeCollaborator stands in for the CRR extension (not loadable in a
// plain modernc.org/sqlite test database), mirroring the same
// hand-rolled fake internal/writer's own tests use. Every transaction
// is reported as carrying local changes, so the handler tests exercise
// the full bookkeeping/dispatch path without depending on real
// crsql_changes rows.
type fakeCollaborator struct {
	mu   sync.Mutex
	next int64
	site actorid.ActorId
}

func newFakeCollaborator(site actorid.ActorId) *fakeCollaborator {
	return &fakeCollaborator{site: site}
}

func (f *fakeCollaborator) NextDBVersion(ctx context.Context, tx *sql.Tx) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return f.next, nil
}

func (f *fakeCollaborator) LocalChangeSummary(ctx context.Context, tx *sql.Tx, dbVersion int64) (int64, bool, error) {
	return 0, true, nil
}

func (f *fakeCollaborator) SiteID(ctx context.Context) (actorid.ActorId, error) {
	return f.site, nil
}

func (f *fakeCollaborator) QueryChanges(ctx context.Context, db *sql.DB, dbVersion int64) ([]broadcast.ChangeRecord, error) {
	return nil, nil
}

var _ crr.Collaborator = (*fakeCollaborator)(nil)

// newTestServer opens a real on-disk SQLite database (a shared path is
// required since the writer, reader, and dedicated pools are each
// separate connections), wires an Agent with a fakeCollaborator in
// place of the real CRR extension, and seeds a "widgets" table the
// handler tests read and write.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "corrosion.db")

	ctx := context.Background()
	db, err := database.Open(ctx, dbPath)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	actor := actorid.ActorId(uuid.New())
	a := agent.New(actor, db, 16)
	a.Collab = newFakeCollaborator(actor)

	_, err = a.DB.Writer.ExecContext(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	return New(a, ":0")
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, srv.a.ActorID.String(), body["actorId"])
}

func TestHandleExecuteValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/db/execute", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/db/execute", `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleExecuteSuccess(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/db/execute",
		`["INSERT INTO widgets (name) VALUES ('a')"]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Empty(t, resp.Results[0].Error)
	assert.Equal(t, int64(1), resp.Results[0].RowsAffected)

	var count int
	require.NoError(t, srv.a.DB.Readers.QueryRow(`SELECT count(*) FROM widgets`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestHandleExecuteNamedParams(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/db/execute",
		`[{"sql":"INSERT INTO widgets (name) VALUES (:name)","params":{"name":"bob"}}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var name string
	require.NoError(t, srv.a.DB.Readers.QueryRow(`SELECT name FROM widgets WHERE name = 'bob'`).Scan(&name))
	assert.Equal(t, "bob", name)
}

func TestHandleExecuteCapturesPerStatementFailure(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/db/execute",
		`["INSERT INTO widgets (name) VALUES ('ok')", "INSERT INTO nonexistent_table VALUES (1)"]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp executeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	assert.Empty(t, resp.Results[0].Error)
	assert.NotEmpty(t, resp.Results[1].Error)
}

func TestHandleSchemaValidation(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/db/schema", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, "/db/schema", `[]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSchemaAppliesDDL(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/db/schema",
		`["CREATE TABLE gizmos (id INTEGER PRIMARY KEY, label TEXT)"]`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Contains(t, srv.a.Schema.Current().Tables, "gizmos")

	_, err := srv.a.DB.Writer.Exec(`INSERT INTO gizmos (label) VALUES ('x')`)
	assert.NoError(t, err)
}

func TestHandleQueryValidation(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/db/query", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleQueryStreamsRows(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.a.DB.Writer.Exec(`INSERT INTO widgets (name) VALUES ('a'), ('b')`)
	require.NoError(t, err)

	httpSrv := httptest.NewServer(srv.Echo())
	defer httpSrv.Close()

	resp, err := http.Post(httpSrv.URL+"/db/query", "application/json",
		strings.NewReader(`"SELECT name FROM widgets ORDER BY name"`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	lines := readLines(t, resp.Body, 3)
	assertHasKey(t, lines[0], "columns")
	assertHasKey(t, lines[1], "row")
	assertHasKey(t, lines[2], "row")
}

func TestHandleWatchRejectsParameterizedStatement(t *testing.T) {
	srv := newTestServer(t)
	rec := doJSON(t, srv, http.MethodPost, "/watches", `["SELECT ? FROM widgets", 1]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAttachWatchUnknownID(t *testing.T) {
	srv := newTestServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/watches/not-a-uuid", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/watches/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleCreateWatchStreamsSnapshotThenAttaches(t *testing.T) {
	srv := newTestServer(t)

	_, err := srv.a.DB.Writer.Exec(`INSERT INTO widgets (name) VALUES ('a')`)
	require.NoError(t, err)

	httpSrv := httptest.NewServer(srv.Echo())
	defer httpSrv.Close()

	resp, err := http.Post(httpSrv.URL+"/watches", "application/json",
		strings.NewReader(`"SELECT name FROM widgets"`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	queryID := resp.Header.Get("corro-query-id")
	require.NotEmpty(t, queryID)
	_, parseErr := uuid.Parse(queryID)
	require.NoError(t, parseErr)

	lines := readLines(t, resp.Body, 3)
	assertHasKey(t, lines[0], "columns")
	assertHasKey(t, lines[1], "row")
	assert.Equal(t, `"end_of_query"`, lines[2])

	assert.Equal(t, 1, srv.a.Matchers.Len())

	// Attach reuses the same registered matcher without re-materializing.
	resp2, err := http.Get(httpSrv.URL + "/watches/" + queryID)
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusOK, resp2.StatusCode)

	lines2 := readLines(t, resp2.Body, 3)
	assertHasKey(t, lines2[0], "columns")
	assertHasKey(t, lines2[1], "row")
	assert.Equal(t, `"end_of_query"`, lines2[2])

	assert.Equal(t, 1, srv.a.Matchers.Len())
}

// readLines reads exactly n newline-delimited JSON values from r,
// failing the test if they don't arrive within a short deadline.
func readLines(t *testing.T, r io.Reader, n int) []string {
	t.Helper()
	type result struct {
		lines []string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		var lines []string
		for len(lines) < n && scanner.Scan() {
			lines = append(lines, scanner.Text())
		}
		done <- result{lines: lines, err: scanner.Err()}
	}()

	select {
	case res := <-done:
		require.NoError(t, res.err)
		require.Len(t, res.lines, n)
		return res.lines
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream lines")
		return nil
	}
}

func assertHasKey(t *testing.T, line, key string) {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(line), &m))
	_, ok := m[key]
	assert.True(t, ok, "expected line %q to have key %q", line, key)
}
