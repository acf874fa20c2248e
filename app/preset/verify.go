package preset

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
)

//go:generate go run ./internal/schema schema.json

//go:embed schema.json
var embeddedSchemaData []byte

// VerifyAgainstEmbeddedSchema validates presets config against the embedded JSON schema
func VerifyAgainstEmbeddedSchema(cfg *YamlConfig) error {
	var schema map[string]any
	if err := json.Unmarshal(embeddedSchemaData, &schema); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	if err := validateRequiredFields(cfg); err != nil {
		return fmt.Errorf("presets validation failed: %w", err)
	}
	return nil
}

// validateRequiredFields checks names and numeric fields of every preset
func validateRequiredFields(cfg *YamlConfig) error {
	if len(cfg.Presets) == 0 {
		return fmt.Errorf("at least one preset is required")
	}

	seen := make(map[string]bool, len(cfg.Presets))
	for i, p := range cfg.Presets {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("preset %d: name is required", i+1)
		}
		if seen[name] {
			return fmt.Errorf("preset %d: duplicate name %q", i+1, name)
		}
		seen[name] = true

		if err := validateCount(p.BatchSize, "batch_size"); err != nil {
			return fmt.Errorf("preset %d (%s): %w", i+1, name, err)
		}
		if err := validateCount(p.Rank, "rank"); err != nil {
			return fmt.Errorf("preset %d (%s): %w", i+1, name, err)
		}
	}
	return nil
}

// validateCount allows empty value or a non-negative integer
func validateCount(value, fieldName string) error {
	if value == "" {
		return nil
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid %s value %q", fieldName, value)
	}
	if v < 0 {
		return fmt.Errorf("%s must not be negative, got %d", fieldName, v)
	}
	return nil
}

// GenerateSchema generates a JSON schema for the YamlConfig struct
func GenerateSchema() (*jsonschema.Schema, error) {
	return jsonschema.Reflect(&YamlConfig{}), nil
}
