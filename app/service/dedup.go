package service

import (
	"path/filepath"
	"sync"
)

// DeDup is a set of dataset paths claimed by runs in progress, safe for concurrent use.
// Paths are cleaned, so "datasets/cat/" and "datasets/./cat" claim the same dataset.
type DeDup struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewDeDup makes an empty DeDup
func NewDeDup() *DeDup {
	return &DeDup{claimed: map[string]struct{}{}}
}

// Add claims path for a run, false if another run holds it
func (d *DeDup) Add(path string) bool {
	path = filepath.Clean(path)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.claimed[path]; busy {
		return false
	}
	d.claimed[path] = struct{}{}
	return true
}

// Remove releases path, releasing a free path does nothing
func (d *DeDup) Remove(path string) {
	d.mu.Lock()
	delete(d.claimed, filepath.Clean(path))
	d.mu.Unlock()
}
