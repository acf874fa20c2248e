// Package preset provides the table of recommended training parameters per model family.
// The table is built once at startup, from the built-in entries optionally overlaid by a YAML file,
// and is read-only afterwards.
package preset

// Entry is a named bundle of default training parameters.
// All parameter fields are plain strings, the way the wizard shows them, and an empty string means "no default".
type Entry struct {
	Name         string `json:"name"`
	BaseModel    string `json:"base_model"`
	LearningRate string `json:"learning_rate"`
	BatchSize    string `json:"batch_size"`
	Rank         string `json:"rank"`
}

// Table is an immutable, ordered set of presets
type Table struct {
	entries map[string]Entry
	order   []string
}

// builtin presets, the first one is the default selection
var builtin = []Entry{
	{Name: "SD1.5", BaseModel: "runwayml/stable-diffusion-v1-5", LearningRate: "1e-4", BatchSize: "2", Rank: "32"},
	{Name: "SDXL", BaseModel: "stabilityai/stable-diffusion-xl-base-1.0", LearningRate: "3e-5", BatchSize: "1", Rank: "64"},
	{Name: "PonyXL", BaseModel: "civitai/pony-diffusion-v6-xl", LearningRate: "1.0", BatchSize: "3", Rank: "16"},
}

// New makes a table from the given entries. Later entries with the same name replace earlier ones
// but keep the position of the first occurrence.
func New(entries ...Entry) *Table {
	t := &Table{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, found := t.entries[e.Name]; !found {
			t.order = append(t.order, e.Name)
		}
		t.entries[e.Name] = e
	}
	return t
}

// Builtin returns the table of built-in presets
func Builtin() *Table {
	return New(builtin...)
}

// Lookup returns preset by name. Unknown name gives an entry with all fields empty, not an error,
// the caller should treat it as "no defaults".
func (t *Table) Lookup(name string) Entry {
	if t == nil {
		return Entry{}
	}
	e, ok := t.entries[name]
	if !ok {
		return Entry{}
	}
	return e
}

// Names returns preset names in table order
func (t *Table) Names() []string {
	if t == nil {
		return nil
	}
	res := make([]string, len(t.order))
	copy(res, t.order)
	return res
}

// List returns all entries in table order
func (t *Table) List() []Entry {
	if t == nil {
		return nil
	}
	res := make([]Entry, 0, len(t.order))
	for _, name := range t.order {
		res = append(res, t.entries[name])
	}
	return res
}

// Default returns the name of the first preset, used as the initial selection
func (t *Table) Default() string {
	if t == nil || len(t.order) == 0 {
		return ""
	}
	return t.order[0]
}

// Len returns number of presets
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}
