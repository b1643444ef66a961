package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// Reporter writes a finished run to an output.
type Reporter interface {
	// Write renders run.
	Write(run *Run) error
	// Close finalizes the report and closes any underlying file.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a reporter for format ("csv", "json" or "table") writing to
// outputPath. An empty path or "stdout" writes to standard output; missing
// parent directories are created.
func New(format, outputPath string) (Reporter, error) {
	switch format {
	case "csv", "json", "table":
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		writer = &nopWriteCloser{os.Stdout}
	} else {
		path, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory for %s: %w", path, err)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
		}
		writer = f
	}

	return newReporter(format, writer), nil
}

// NewWriter creates a reporter for format writing to w. Closing the reporter
// leaves w open.
func NewWriter(format string, w io.Writer) (Reporter, error) {
	switch format {
	case "csv", "json", "table":
		return newReporter(format, &nopWriteCloser{w}), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func newReporter(format string, w io.WriteCloser) Reporter {
	switch format {
	case "csv":
		return NewCSVReporter(w)
	case "json":
		return NewJSONReporter(w)
	default:
		return NewTableReporter(w)
	}
}
