// Command schema generates the JSON schema of the presets file, see go:generate in the preset package.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/go-pkgz/lgr"
	"github.com/invopop/jsonschema"

	"github.com/umputun/lorawiz/app/preset"
)

func main() {
	out := "schema.json"
	if len(os.Args) > 1 {
		out = os.Args[1]
	}
	if err := writeSchema(out); err != nil {
		log.Fatalf("[ERROR] %v", err)
	}
	log.Printf("[INFO] presets schema written to %s", out)
}

func presetsSchema() *jsonschema.Schema {
	r := jsonschema.Reflector{}
	s := r.Reflect(&preset.YamlConfig{})
	s.Title = "Lorawiz Presets Schema"
	s.Description = "Schema for lorawiz presets YAML file"
	s.Version = "1.0.0"
	return s
}

func writeSchema(path string) error {
	data, err := json.MarshalIndent(presetsSchema(), "", "  ")
	if err != nil {
		return fmt.Errorf("can't marshal presets schema: %w", err)
	}
	if err = os.WriteFile(path, data, 0o600); err != nil { //nolint:gosec // schema file is not sensitive
		return fmt.Errorf("can't write presets schema to %s: %w", path, err)
	}
	return nil
}
