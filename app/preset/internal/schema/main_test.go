package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_writeSchema(t *testing.T) {
	out := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, writeSchema(out))

	data, err := os.ReadFile(out) //nolint:gosec // test file
	require.NoError(t, err)
	var got struct {
		Title string                     `json:"title"`
		Ref   string                     `json:"$ref"`
		Defs  map[string]json.RawMessage `json:"$defs"`
	}
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "Lorawiz Presets Schema", got.Title)
	assert.Equal(t, "#/$defs/YamlConfig", got.Ref)
	assert.Contains(t, got.Defs, "YamlConfig")
	assert.Contains(t, got.Defs, "YamlPreset")
}

func Test_writeSchemaBadPath(t *testing.T) {
	err := writeSchema(filepath.Join(t.TempDir(), "no-such-dir", "schema.json"))
	require.ErrorContains(t, err, "can't write presets schema")
}
