// Package statement defines the Statement sum type accepted by the
// execute/query/watch HTTP endpoints (spec §6): a plain SQL string, a
// SQL string with positional parameters, or a SQL string with named
// parameters.
package statement

import (
	"encoding/json"
	"fmt"
)

// Statement is one of Simple, WithParams, or WithNamedParams. It is
// decoded from JSON by UnmarshalJSON, which dispatches on shape:
// a bare string is Simple; an array is [sql, params...]; an object
// {"sql": ..., "params": {...}} is WithNamedParams.
type Statement struct {
	SQL    string
	Params []any
	Named  map[string]any
	kind   kind
}

type kind int

const (
	kindSimple kind = iota
	kindParams
	kindNamed
)

// IsSimple reports whether s carries no parameters at all — the only
// shape accepted by POST /watches (spec §4.4).
func (s Statement) IsSimple() bool { return s.kind == kindSimple }

// Simple builds a parameter-free statement.
func Simple(sql string) Statement { return Statement{SQL: sql, kind: kindSimple} }

// WithParams builds a positional-parameter statement.
func WithParams(sql string, params []any) Statement {
	return Statement{SQL: sql, Params: params, kind: kindParams}
}

// WithNamedParams builds a named-parameter statement.
func WithNamedParams(sql string, named map[string]any) Statement {
	return Statement{SQL: sql, Named: named, kind: kindNamed}
}

// Args returns the positional parameter values of a WithParams
// statement, or nil for Simple and WithNamedParams. Named parameters
// are returned as a name->value map by NamedArgs instead; callers
// import database/sql themselves to wrap them in sql.NamedArg, so this
// package stays free of that dependency.
func (s Statement) Args() []any {
	if s.kind == kindParams {
		return s.Params
	}
	return nil
}

// NamedArgs returns the name->value map for a WithNamedParams
// statement, or nil otherwise.
func (s Statement) NamedArgs() map[string]any {
	if s.kind == kindNamed {
		return s.Named
	}
	return nil
}

// UnmarshalJSON decodes the three accepted shapes:
//
//	"select 1"                          -> Simple
//	["select ?", 1, "x"]                -> WithParams
//	{"sql":"select :x", "params":{...}} -> WithNamedParams
func (s *Statement) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		*s = Simple(asString)
		return nil
	}

	var asArray []json.RawMessage
	if err := json.Unmarshal(data, &asArray); err == nil {
		if len(asArray) == 0 {
			return fmt.Errorf("statement: empty array form")
		}
		var sql string
		if err := json.Unmarshal(asArray[0], &sql); err != nil {
			return fmt.Errorf("statement: array form sql: %w", err)
		}
		params := make([]any, 0, len(asArray)-1)
		for _, raw := range asArray[1:] {
			var v any
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("statement: array form param: %w", err)
			}
			params = append(params, v)
		}
		*s = WithParams(sql, params)
		return nil
	}

	var asObject struct {
		SQL    string         `json:"sql"`
		Params map[string]any `json:"params"`
	}
	if err := json.Unmarshal(data, &asObject); err != nil {
		return fmt.Errorf("statement: unrecognized shape: %w", err)
	}
	*s = WithNamedParams(asObject.SQL, asObject.Params)
	return nil
}

// MarshalJSON round-trips a Statement back to one of the three wire
// shapes.
func (s Statement) MarshalJSON() ([]byte, error) {
	switch s.kind {
	case kindSimple:
		return json.Marshal(s.SQL)
	case kindParams:
		arr := make([]any, 0, len(s.Params)+1)
		arr = append(arr, s.SQL)
		arr = append(arr, s.Params...)
		return json.Marshal(arr)
	case kindNamed:
		return json.Marshal(struct {
			SQL    string         `json:"sql"`
			Params map[string]any `json:"params"`
		}{s.SQL, s.Named})
	default:
		return json.Marshal(s.SQL)
	}
}
