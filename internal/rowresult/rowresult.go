// Package rowresult defines the over-the-wire unit streamed to
// clients of the one-shot query and live-query endpoints (spec §3,
// §6): one of Columns, Row, EndOfQuery, or Error, serialized as a
// single JSON value per line.
package rowresult

import "encoding/json"

// ChangeType tags whether a streamed row is new/updated data or a
// deletion.
type ChangeType string

const (
	Upsert ChangeType = "upsert"
	Delete ChangeType = "delete"
)

// RowResult is the sum type serialized on the wire. Exactly one of
// the typed accessors below should be used to build a value; the
// zero value is not itself meaningful.
type RowResult struct {
	columns    []string
	row        *Row
	endOfQuery bool
	errMsg     string
	kind       kind
}

type kind int

const (
	kindColumns kind = iota
	kindRow
	kindEndOfQuery
	kindError
)

// Row is one streamed row: its synthetic or database rowid, whether
// it is an upsert or a delete, and its cell values in column order.
type Row struct {
	RowID      int64      `json:"rowid"`
	ChangeType ChangeType `json:"change_type"`
	Cells      []any      `json:"cells"`
}

// Columns builds the column-name announcement, always the first value
// a stream emits.
func Columns(names []string) RowResult {
	return RowResult{columns: names, kind: kindColumns}
}

// NewRow builds an upsert or delete row-result.
func NewRow(rowID int64, ct ChangeType, cells []any) RowResult {
	return RowResult{row: &Row{RowID: rowID, ChangeType: ct, Cells: cells}, kind: kindRow}
}

// EndOfQuery marks the end of an initial snapshot or a one-shot query.
func EndOfQuery() RowResult {
	return RowResult{kind: kindEndOfQuery}
}

// Err builds a terminal error row-result.
func Err(message string) RowResult {
	return RowResult{errMsg: message, kind: kindError}
}

// IsEndOfQuery reports whether r is the EndOfQuery sentinel.
func (r RowResult) IsEndOfQuery() bool { return r.kind == kindEndOfQuery }

// IsError reports whether r carries a terminal error.
func (r RowResult) IsError() bool { return r.kind == kindError }

// MarshalJSON renders r in the wire form documented in spec §6:
//
//	{"columns":[name,...]}
//	{"row":{"rowid":N,"change_type":"upsert"|"delete","cells":[...]}}
//	"end_of_query"
//	{"error":"message"}
func (r RowResult) MarshalJSON() ([]byte, error) {
	switch r.kind {
	case kindColumns:
		return json.Marshal(struct {
			Columns []string `json:"columns"`
		}{r.columns})
	case kindRow:
		return json.Marshal(struct {
			Row *Row `json:"row"`
		}{r.row})
	case kindEndOfQuery:
		return json.Marshal("end_of_query")
	case kindError:
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.errMsg})
	default:
		return json.Marshal("end_of_query")
	}
}
