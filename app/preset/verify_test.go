package preset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAgainstEmbeddedSchema(t *testing.T) {
	tests := []struct {
		name    string
		cfg     YamlConfig
		wantErr string
	}{
		{name: "valid", cfg: YamlConfig{Presets: []YamlPreset{{Name: "a", BatchSize: "2", Rank: "16"}}}},
		{name: "valid without numbers", cfg: YamlConfig{Presets: []YamlPreset{{Name: "a"}}}},
		{name: "empty", cfg: YamlConfig{}, wantErr: "at least one preset is required"},
		{name: "no name", cfg: YamlConfig{Presets: []YamlPreset{{BaseModel: "m"}}}, wantErr: "preset 1: name is required"},
		{name: "blank name", cfg: YamlConfig{Presets: []YamlPreset{{Name: "  "}}}, wantErr: "preset 1: name is required"},
		{name: "duplicate", cfg: YamlConfig{Presets: []YamlPreset{{Name: "a"}, {Name: "a"}}}, wantErr: `preset 2: duplicate name "a"`},
		{name: "bad batch", cfg: YamlConfig{Presets: []YamlPreset{{Name: "a", BatchSize: "two"}}}, wantErr: `invalid batch_size value "two"`},
		{name: "negative rank", cfg: YamlConfig{Presets: []YamlPreset{{Name: "a", Rank: "-1"}}}, wantErr: "rank must not be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyAgainstEmbeddedSchema(&tt.cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEmbeddedSchema(t *testing.T) {
	var schema map[string]any
	require.NoError(t, json.Unmarshal(embeddedSchemaData, &schema))
	defs, ok := schema["$defs"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, defs, "YamlConfig")
	assert.Contains(t, defs, "YamlPreset")
}

func TestGenerateSchema(t *testing.T) {
	schema, err := GenerateSchema()
	require.NoError(t, err)
	data, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(data), "presets")
	assert.Contains(t, string(data), "batch_size")
}
