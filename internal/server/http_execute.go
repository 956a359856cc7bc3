package server

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MuhtasimTanmoy/corrosion/internal/statement"
	"github.com/MuhtasimTanmoy/corrosion/internal/writer"
)

// statementResult is one entry of the execute response (spec §4.6):
// {rows_affected, time_seconds} on success, {error} on failure.
type statementResult struct {
	RowsAffected int64   `json:"rows_affected,omitempty"`
	Time         float64 `json:"time_seconds,omitempty"`
	Error        string  `json:"error,omitempty"`
}

type executeResponse struct {
	Results []statementResult `json:"results"`
	Time    float64           `json:"time_seconds"`
}

// handleExecute is POST /db/execute: runs a non-empty batch of
// statements sequentially inside one writer transaction. Per-statement
// failures are captured in the response, not thrown (spec §4.6).
func (s *Server) handleExecute(c echo.Context) error {
	var stmts []statement.Statement
	if err := c.Bind(&stmts); err != nil {
		return c.JSON(http.StatusBadRequest, rowErrorBody("invalid request body: "+err.Error()))
	}
	if len(stmts) == 0 {
		return c.JSON(http.StatusBadRequest, rowErrorBody("empty statement list"))
	}

	ctx := c.Request().Context()
	w := s.a.Writer(s.dispatcher())

	result, err := writer.Execute(ctx, w, func(tx *sql.Tx) ([]statementResult, error) {
		results := make([]statementResult, len(stmts))
		for i, stmt := range stmts {
			start := time.Now()
			res, execErr := tx.ExecContext(ctx, stmt.SQL, bindArgs(stmt)...)
			if execErr != nil {
				results[i] = statementResult{Error: execErr.Error()}
				continue
			}
			rows, _ := res.RowsAffected()
			results[i] = statementResult{RowsAffected: rows, Time: time.Since(start).Seconds()}
		}
		return results, nil
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, rowErrorBody(err.Error()))
	}

	return c.JSON(http.StatusOK, executeResponse{
		Results: result.Value,
		Time:    result.Elapsed.Seconds(),
	})
}

func rowErrorBody(message string) map[string]string {
	return map[string]string{"error": message}
}
