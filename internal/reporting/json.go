package reporting

import (
	"fmt"
	"io"
	"sync"
)

// JSONReporter writes the indented run snapshot.
type JSONReporter struct {
	writer io.WriteCloser
	mu     sync.Mutex
}

// NewJSONReporter takes ownership of w.
func NewJSONReporter(w io.WriteCloser) *JSONReporter {
	return &JSONReporter{writer: w}
}

func (r *JSONReporter) Write(run *Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	enc := json.NewEncoder(r.writer)
	enc.SetIndent("", "    ")
	if err := enc.Encode(run); err != nil {
		return fmt.Errorf("encoding run snapshot: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.writer.Close()
}
