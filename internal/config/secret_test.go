package config

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_String(t *testing.T) {
	s := Secret("password123")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))

	empty := Secret("")
	assert.Equal(t, "", empty.String())
}

func TestSecret_GoString(t *testing.T) {
	s := Secret("password123")
	assert.Equal(t, `"[REDACTED]"`, fmt.Sprintf("%#v", s))

	empty := Secret("")
	assert.Equal(t, `""`, fmt.Sprintf("%#v", empty))
}

func TestSecret_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: "password123"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"[REDACTED]"}`, string(data))
}

func TestSecret_MarshalYAML(t *testing.T) {
	s := Secret("password123")
	val, err := s.MarshalYAML()
	assert.NoError(t, err)
	assert.Equal(t, "[REDACTED]", val)
	assert.Equal(t, "password123", s.Reveal())
}

func TestSecret_IsSet(t *testing.T) {
	assert.True(t, Secret("suiprivkey1abc").IsSet())
	assert.False(t, Secret("").IsSet())

	data, err := json.Marshal(Secret(""))
	require.NoError(t, err)
	assert.Equal(t, `""`, string(data))
}
