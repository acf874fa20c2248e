package service

import (
	"bytes"
	"strings"
	"sync"
)

// OutputCapture keeps the last N lines of the run log. Thread safe, zero limit disables capture.
type OutputCapture struct {
	maxLines int
	lines    []string
	mu       sync.Mutex
}

// NewOutputCapture creates io.Writer that captures output limited to last max lines
func NewOutputCapture(maximum int) *OutputCapture {
	return &OutputCapture{maxLines: maximum}
}

// Write satisfies io.Writer, splits data by lines and drops the oldest lines over the limit
func (o *OutputCapture) Write(p []byte) (n int, err error) {
	if o.maxLines <= 0 {
		return len(p), nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for line := range bytes.SplitSeq(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if len(o.lines) >= o.maxLines {
			o.lines = o.lines[1:]
		}
		o.lines = append(o.lines, string(line))
	}
	return len(p), nil
}

// GetOutput returns captured lines joined with new line
func (o *OutputCapture) GetOutput() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return strings.Join(o.lines, "\n")
}
