package audit

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_MarshalIsTaggedAndSorted(t *testing.T) {
	m := Metadata{
		"retries":   Number(2),
		"consent":   String("c-100"),
		"encrypted": Bool(true),
		"sentAt":    Timestamp(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
	}

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"consent":   {"kind":"string","value":"c-100"},
		"encrypted": {"kind":"bool","value":true},
		"retries":   {"kind":"number","value":2},
		"sentAt":    {"kind":"timestamp","value":"2026-01-02T03:04:05Z"}
	}`, string(b))

	again, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, string(b), string(again))
	assert.Equal(t, []string{"consent", "encrypted", "retries", "sentAt"}, m.Keys())
}

func TestMetadata_UnmarshalTagged(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`{
		"hip":    {"kind":"string","value":"apollo"},
		"sentAt": {"kind":"timestamp","value":"2026-01-02T03:04:05Z"}
	}`), &m))

	assert.Equal(t, String("apollo"), m["hip"])
	assert.Equal(t, KindTimestamp, m["sentAt"].Kind)
	assert.True(t, m["sentAt"].Time.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestMetadata_UnmarshalBareScalars(t *testing.T) {
	var m Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"a":"x","b":1.5,"c":false}`), &m))
	assert.Equal(t, String("x"), m["a"])
	assert.Equal(t, Number(1.5), m["b"])
	assert.Equal(t, Bool(false), m["c"])
}

func TestMetadata_RejectsNonScalars(t *testing.T) {
	var m Metadata
	assert.Error(t, json.Unmarshal([]byte(`{"a":[1,2]}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"a":null}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"a":{"kind":"blob","value":"x"}}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`{"a":{"kind":"timestamp","value":"yesterday"}}`), &m))
}
