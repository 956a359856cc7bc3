package statement

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalSimple(t *testing.T) {
	var s Statement
	require.NoError(t, json.Unmarshal([]byte(`"select 1"`), &s))
	assert.True(t, s.IsSimple())
	assert.Equal(t, "select 1", s.SQL)
	assert.Nil(t, s.Args())
}

func TestUnmarshalWithParams(t *testing.T) {
	var s Statement
	require.NoError(t, json.Unmarshal([]byte(`["select * from t where id = ?", 1, "x"]`), &s))
	assert.False(t, s.IsSimple())
	assert.Equal(t, "select * from t where id = ?", s.SQL)
	assert.Equal(t, []any{float64(1), "x"}, s.Args())
}

func TestUnmarshalWithNamedParams(t *testing.T) {
	var s Statement
	require.NoError(t, json.Unmarshal([]byte(`{"sql":"select :x", "params":{"x":1}}`), &s))
	assert.False(t, s.IsSimple())
	assert.Equal(t, map[string]any{"x": float64(1)}, s.NamedArgs())
}

func TestUnmarshalRejectsEmptyArray(t *testing.T) {
	var s Statement
	assert.Error(t, json.Unmarshal([]byte(`[]`), &s))
}

func TestMarshalRoundTrip(t *testing.T) {
	b, err := json.Marshal(WithParams("select ?", []any{1}))
	require.NoError(t, err)
	assert.JSONEq(t, `["select ?", 1]`, string(b))

	b, err = json.Marshal(Simple("select 1"))
	require.NoError(t, err)
	assert.JSONEq(t, `"select 1"`, string(b))
}
