package preset

import (
	"fmt"
	"os"

	log "github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"
)

// YamlConfig is the presets file format
type YamlConfig struct {
	Presets []YamlPreset `yaml:"presets" json:"presets" jsonschema:"required,description=list of training presets"`
}

// YamlPreset is a single preset in the presets file
type YamlPreset struct {
	Name         string `yaml:"name" json:"name" jsonschema:"required,minLength=1,description=preset name shown in the wizard"`
	BaseModel    string `yaml:"base_model,omitempty" json:"base_model,omitempty" jsonschema:"description=base model identifier"`
	LearningRate string `yaml:"learning_rate,omitempty" json:"learning_rate,omitempty" jsonschema:"description=learning rate, e.g. 1e-4"`
	BatchSize    string `yaml:"batch_size,omitempty" json:"batch_size,omitempty" jsonschema:"pattern=^[0-9]+$,description=batch size"`
	Rank         string `yaml:"rank,omitempty" json:"rank,omitempty" jsonschema:"pattern=^[0-9]+$,description=network rank"`
}

// LoadFile reads presets file and returns the built-in table overlaid by file entries.
// File entries with a built-in name replace it in place, others are appended in file order.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from cli options
	if err != nil {
		return nil, fmt.Errorf("failed to read presets file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses presets yaml and returns the built-in table overlaid by parsed entries
func Parse(data []byte) (*Table, error) {
	var cfg YamlConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse presets yaml: %w", err)
	}
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		return nil, err
	}

	entries := append([]Entry{}, builtin...)
	for _, p := range cfg.Presets {
		log.Printf("[DEBUG] preset %q, model %q", p.Name, p.BaseModel)
		entries = append(entries, Entry{Name: p.Name, BaseModel: p.BaseModel, LearningRate: p.LearningRate,
			BatchSize: p.BatchSize, Rank: p.Rank})
	}
	return New(entries...), nil
}
