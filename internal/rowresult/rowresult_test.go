package rowresult

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalForms(t *testing.T) {
	cols, err := json.Marshal(Columns([]string{"id", "text"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":["id","text"]}`, string(cols))

	row, err := json.Marshal(NewRow(1, Upsert, []any{"a", "b"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"row":{"rowid":1,"change_type":"upsert","cells":["a","b"]}}`, string(row))

	eoq, err := json.Marshal(EndOfQuery())
	require.NoError(t, err)
	assert.JSONEq(t, `"end_of_query"`, string(eoq))

	errv, err := json.Marshal(Err("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"boom"}`, string(errv))
}

func TestIsEndOfQueryAndIsError(t *testing.T) {
	assert.True(t, EndOfQuery().IsEndOfQuery())
	assert.True(t, Err("x").IsError())
	assert.False(t, Columns(nil).IsEndOfQuery())
}
