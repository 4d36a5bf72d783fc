// Package results writes and reads the per-site result files that hand a
// scrape outcome to later readers.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/use-agent/pricewatch/models"
)

// ErrNoResult is returned by Read when the site has no result file yet.
var ErrNoResult = errors.New("results: no result file")

// Sink stores one JSON object per site file under a directory.
type Sink struct {
	dir string
}

// NewSink returns a Sink rooted at dir.
func NewSink(dir string) *Sink {
	if dir == "" {
		dir = "."
	}
	return &Sink{dir: dir}
}

// Path returns the location of file inside the sink directory.
func (s *Sink) Path(file string) string {
	return filepath.Join(s.dir, filepath.Base(file))
}

// Write replaces the content of file with r. The file is truncated and
// rewritten in place, so a concurrent reader may observe a partial write.
func (s *Sink) Write(file string, r *models.ScrapeResult) error {
	r.Normalize()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("results: create dir: %w", err)
	}
	f, err := os.Create(s.Path(file))
	if err != nil {
		return fmt.Errorf("results: create %s: %w", file, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("results: encode %s: %w", file, err)
	}
	return f.Close()
}

// Read decodes the result stored in file.
func (s *Sink) Read(file string) (*models.ScrapeResult, error) {
	b, err := os.ReadFile(s.Path(file))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, fmt.Errorf("results: read %s: %w", file, err)
	}

	var r models.ScrapeResult
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("results: decode %s: %w", file, err)
	}
	return &r, nil
}
