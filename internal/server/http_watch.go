package server

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/MuhtasimTanmoy/corrosion/internal/matcher"
	"github.com/MuhtasimTanmoy/corrosion/internal/rowresult"
	"github.com/MuhtasimTanmoy/corrosion/internal/statement"
)

const snapshotBufferSize = 512

// handleCreateOrAttachWatch is POST /watches (spec §4.4
// "Create-or-attach"). Input must be a Statement::Simple; anything
// else is rejected with 400.
func (s *Server) handleCreateOrAttachWatch(c echo.Context) error {
	var stmt statement.Statement
	if err := c.Bind(&stmt); err != nil {
		return c.JSON(http.StatusBadRequest, rowresult.Err("invalid request body: "+err.Error()))
	}
	if !stmt.IsSimple() {
		return c.JSON(http.StatusBadRequest, rowresult.Err("watch requires a simple statement with no parameters"))
	}

	ctx := c.Request().Context()

	m, ok := s.a.Matchers.Lookup(stmt.SQL)
	if !ok {
		created, err := s.createMatcher(ctx, stmt.SQL)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, rowresult.Err(err.Error()))
		}
		s.a.Matchers.Register(created)
		m = created
	}

	c.Response().Header().Set("corro-query-id", m.ID.String())
	return s.streamWatch(c, m)
}

// handleAttachWatch is GET /watches/{id} (spec §4.4 "Attach").
func (s *Server) handleAttachWatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, rowresult.Err("unknown matcher id"))
	}

	m, ok := s.a.Matchers.Get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, rowresult.Err("unknown matcher id"))
	}

	return s.streamWatch(c, m)
}

// createMatcher materializes a new query into its own table and
// registers column metadata. The translation of arbitrary SQL into an
// incrementally maintained view is the matcher engine's internals
// (spec §1, out of scope); this core materializes the query once as a
// plain table snapshot and relies on the writer's post-commit
// dispatch to publish subsequent changes (internal/matcher.Dispatcher).
func (s *Server) createMatcher(ctx context.Context, queryText string) (*matcher.Matcher, error) {
	conn, release, err := s.a.DB.Dedicated(ctx)
	if err != nil {
		return nil, fmt.Errorf("server: acquire dedicated connection: %w", err)
	}

	id := uuid.New()
	tableName := "watch_" + fmtID(id)

	sourceTables, err := sourceTablesOf(ctx, conn, queryText)
	if err != nil {
		release()
		return nil, fmt.Errorf("server: plan watch query: %w", err)
	}

	if _, err := conn.ExecContext(ctx,
		fmt.Sprintf(`CREATE TABLE %s AS SELECT row_number() OVER () AS __corro_rowid, * FROM (%s)`, tableName, queryText)); err != nil {
		release()
		return nil, fmt.Errorf("server: materialize watch query: %w", err)
	}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT 0`, tableName))
	if err != nil {
		release()
		return nil, fmt.Errorf("server: describe watch table: %w", err)
	}
	cols, err := rows.Columns()
	rows.Close()
	if err != nil {
		release()
		return nil, fmt.Errorf("server: read watch table columns: %w", err)
	}

	m := matcher.NewWithID(id, queryText, tableName, sourceTables, dataColumns(cols), snapshotBufferSize)
	m.SetRelease(release)
	return m, nil
}

// explainTableRef picks out the table name SQLite's query planner
// names in an EXPLAIN QUERY PLAN detail line, e.g. "SCAN tests" or
// "SEARCH tests USING INDEX ...".
var explainTableRef = regexp.MustCompile(`(?:SCAN|SEARCH)\s+(?:TABLE\s+)?(\w+)`)

// sourceTablesOf asks SQLite's own query planner which base tables a
// watch query reads from, the same catalog-as-parser idiom
// internal/schema.ParseDDL uses for DDL: the database engine already
// has a full SQL parser, so this package carries no separate one just
// to learn a query's table references for dispatch routing.
func sourceTablesOf(ctx context.Context, conn *sql.DB, queryText string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, "EXPLAIN QUERY PLAN "+queryText)
	if err != nil {
		return nil, fmt.Errorf("server: explain query plan: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("server: read explain columns: %w", err)
	}

	seen := make(map[string]struct{})
	var tables []string
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("server: scan explain row: %w", err)
		}

		detail, _ := vals[len(vals)-1].(string)
		m := explainTableRef.FindStringSubmatch(detail)
		if m == nil {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		tables = append(tables, m[1])
	}
	return tables, rows.Err()
}

// dataColumns drops the synthetic __corro_rowid column, keeping the
// user-visible column list the Columns row-result announces.
func dataColumns(cols []string) []string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == "__corro_rowid" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func fmtID(id uuid.UUID) string {
	s := id.String()
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r != '-' {
			out = append(out, byte(r))
		}
	}
	return string(out)
}

// streamWatch runs the snapshot task and streamer task for an attached
// matcher (spec §4.4 "Attach"): snapshot first, then incremental
// changes, one JSON row-result per line.
func (s *Server) streamWatch(c echo.Context, m *matcher.Matcher) error {
	ctx := c.Request().Context()

	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	w := bufio.NewWriter(c.Response())
	flusher, _ := c.Response().Writer.(http.Flusher)

	snapshot := make(chan rowresult.RowResult, snapshotBufferSize)
	go s.runSnapshot(ctx, m, snapshot)

	if runStreamer(ctx, m, snapshot, w, flusher) {
		s.a.Matchers.Remove(m.ID)
	}
	return nil
}

// runSnapshot emits Columns, the matcher's materialized rows, then
// EndOfQuery, closing the channel on completion (spec §4.4 step 4).
func (s *Server) runSnapshot(ctx context.Context, m *matcher.Matcher, out chan<- rowresult.RowResult) {
	defer close(out)

	out <- rowresult.Columns(m.Columns)

	conn, release, err := s.a.DB.Dedicated(ctx)
	if err != nil {
		out <- rowresult.Err(err.Error())
		return
	}
	defer release()

	selectCols := "__corro_rowid"
	for _, col := range m.Columns {
		selectCols += ", " + col
	}

	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s`, selectCols, m.TableName))
	if err != nil {
		out <- rowresult.Err(err.Error())
		return
	}
	defer rows.Close()

	for rows.Next() {
		var rowID int64
		values := make([]any, len(m.Columns))
		ptrs := make([]any, len(m.Columns)+1)
		ptrs[0] = &rowID
		for i := range values {
			ptrs[i+1] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			out <- rowresult.Err(err.Error())
			return
		}
		out <- rowresult.NewRow(rowID, rowresult.Upsert, values)
	}
	if err := rows.Err(); err != nil {
		out <- rowresult.Err(err.Error())
		return
	}

	out <- rowresult.EndOfQuery()
}

// runStreamer implements the streamer task state machine from spec
// §4.4: while init_done is false only the snapshot channel (and
// cancellation/keepalive) are live; once the snapshot closes or
// yields EndOfQuery, the change channel takes over. Cancellation is
// authoritative: runStreamer reports it so the caller removes the
// matcher from the registry; a plain disconnect only sends Unsubscribe.
func runStreamer(ctx context.Context, m *matcher.Matcher, snapshot <-chan rowresult.RowResult, w *bufio.Writer, flusher http.Flusher) (cancelled bool) {
	initDone := false
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	defer func() {
		if !cancelled {
			select {
			case m.Commands() <- matcher.Unsubscribe:
			default:
			}
		}
	}()

	snap := snapshot
	for {
		var changes <-chan rowresult.RowResult
		if initDone {
			changes = m.Changes()
		}

		select {
		case <-m.Cancelled():
			cancelled = true
			return
		case <-ctx.Done():
			return
		case r, ok := <-snap:
			if !ok {
				initDone = true
				snap = nil
				continue
			}
			if !writeRowResult(w, flusher, r) {
				return
			}
			if r.IsEndOfQuery() {
				initDone = true
				snap = nil
			}
		case r, ok := <-changes:
			if !ok {
				return
			}
			if !writeRowResult(w, flusher, r) {
				return
			}
		case <-ticker.C:
			if !probe(w, flusher) {
				return
			}
		}
	}
}
