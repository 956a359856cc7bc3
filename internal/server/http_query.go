package server

import (
	"bufio"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MuhtasimTanmoy/corrosion/internal/rowresult"
	"github.com/MuhtasimTanmoy/corrosion/internal/statement"
)

// handleQuery is POST /db/query: a one-shot read that streams
// Columns, then Row{Upsert} per row in source order, then closes
// (spec §4.5). Preparation failures respond 400; once streaming has
// started, failures are in-band Error row-results.
func (s *Server) handleQuery(c echo.Context) error {
	var stmt statement.Statement
	if err := c.Bind(&stmt); err != nil {
		return c.JSON(http.StatusBadRequest, rowresult.Err("invalid request body: "+err.Error()))
	}

	ctx := c.Request().Context()

	// Acquiring the connection is the "Pool" failure class (spec §7):
	// fatal to the request, surfaced as 500. Once a connection is in
	// hand, a bad statement is a "preparation failure", surfaced as 400.
	conn, err := s.a.DB.Readers.Conn(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, rowresult.Err(err.Error()))
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, stmt.SQL, bindArgs(stmt)...)
	if err != nil {
		return c.JSON(http.StatusBadRequest, rowresult.Err(err.Error()))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return c.JSON(http.StatusBadRequest, rowresult.Err(err.Error()))
	}

	c.Response().Header().Set(echo.HeaderContentType, "application/x-ndjson")
	c.Response().WriteHeader(http.StatusOK)
	w := bufio.NewWriter(c.Response())
	flusher, _ := c.Response().Writer.(http.Flusher)

	if !writeRowResult(w, flusher, rowresult.Columns(cols)) {
		return nil
	}

	out := make(chan rowresult.RowResult, 1)

	go func() {
		defer close(out)
		rowID := int64(0)
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		for rows.Next() {
			if err := rows.Scan(ptrs...); err != nil {
				out <- rowresult.Err(err.Error())
				return
			}
			rowID++
			cells := make([]any, len(values))
			copy(cells, values)
			out <- rowresult.NewRow(rowID, rowresult.Upsert, cells)
		}
		if err := rows.Err(); err != nil {
			out <- rowresult.Err(err.Error())
		}
	}()

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r, ok := <-out:
			if !ok {
				return nil
			}
			if !writeRowResult(w, flusher, r) {
				return nil
			}
		case <-ticker.C:
			if !probe(w, flusher) {
				return nil
			}
		}
	}
}
