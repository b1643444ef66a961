package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"
)

// Snapshotter writes the current document to fixed diagnostic file names.
// A zero Snapshotter writes into the working directory.
type Snapshotter struct {
	Dir string
}

// Write saves the page HTML as name inside s.Dir and returns the path.
func (s Snapshotter) Write(ctx context.Context, p Page, name string) (string, error) {
	html, err := p.Content(ctx)
	if err != nil {
		return "", fmt.Errorf("reading page content: %w", err)
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	dir, err = homedir.Expand(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating debug dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return path, nil
}
