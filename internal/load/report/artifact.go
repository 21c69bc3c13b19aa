package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/wesleyorama2/vuload/internal/load"
)

// RenderFunc produces an artifact from a summary. HTML and JSON are the
// built-in renderers.
type RenderFunc func(*Summary) ([]byte, error)

// WriteArtifact renders summary and writes it to path, creating parent
// directories as needed. Any failure wraps load.ErrRenderFailure; the summary
// itself is never modified.
func WriteArtifact(path string, render RenderFunc, summary *Summary) error {
	if render == nil {
		return fmt.Errorf("%w: no renderer for %s", load.ErrRenderFailure, path)
	}

	data, err := render(summary)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", load.ErrRenderFailure, path, err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("%w: failed to create directory for %s: %v", load.ErrRenderFailure, path, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", load.ErrRenderFailure, path, err)
	}
	return nil
}
