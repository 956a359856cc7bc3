package server

import (
	"database/sql"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/MuhtasimTanmoy/corrosion/internal/schema"
	"github.com/MuhtasimTanmoy/corrosion/internal/writer"
)

type schemaResponse struct {
	Results []statementResult `json:"results"`
	Time    float64           `json:"time_seconds"`
}

// handleSchema is POST /db/schema: parses a non-empty batch of DDL
// statements, merges them into the live schema under the writer lock,
// and applies the diff to the database (spec §4.3).
func (s *Server) handleSchema(c echo.Context) error {
	var stmts []string
	if err := c.Bind(&stmts); err != nil {
		return c.JSON(http.StatusBadRequest, rowErrorBody("invalid request body: "+err.Error()))
	}
	if len(stmts) == 0 {
		return c.JSON(http.StatusBadRequest, rowErrorBody("empty statement list"))
	}

	ctx := c.Request().Context()

	parsed, err := schema.ParseDDL(ctx, stmts)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, rowErrorBody(err.Error()))
	}

	merger := schema.NewMerger(s.a.Schema)
	w := s.a.Writer(s.dispatcher())

	result, err := writer.Execute(ctx, w, func(tx *sql.Tx) ([]statementResult, error) {
		if err := merger.Apply(ctx, tx, parsed); err != nil {
			return nil, err
		}
		return []statementResult{}, nil
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, rowErrorBody(err.Error()))
	}

	return c.JSON(http.StatusOK, schemaResponse{
		Results: result.Value,
		Time:    result.Elapsed.Seconds(),
	})
}
