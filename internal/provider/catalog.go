package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/opencode-ai/reasoner/pkg/types"
)

// DefaultPattern matches gguf files in the top level of the model directory.
const DefaultPattern = "*.gguf"

// Catalog discovers model files on disk.
type Catalog struct {
	dir     string
	pattern string
}

// NewCatalog creates a catalog over dir. An empty dir means the working
// directory and an empty pattern means DefaultPattern.
func NewCatalog(dir, pattern string) *Catalog {
	if dir == "" {
		dir = "."
	}
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &Catalog{dir: dir, pattern: pattern}
}

// Dir returns the scanned directory.
func (c *Catalog) Dir() string { return c.dir }

// Scan lists the model files matching the pattern, sorted by name.
func (c *Catalog) Scan() ([]types.ModelFile, error) {
	matches, err := doublestar.Glob(os.DirFS(c.dir), c.pattern)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", c.dir, err)
	}

	files := make([]types.ModelFile, 0, len(matches))
	for _, rel := range matches {
		path := filepath.Join(c.dir, filepath.FromSlash(rel))
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		files = append(files, types.ModelFile{
			Name: filepath.Base(rel),
			Path: path,
			Size: info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// Resolve turns a file name, a path relative to the catalog, or an absolute
// path into an existing model file path.
func (c *Catalog) Resolve(nameOrPath string) (string, error) {
	if strings.TrimSpace(nameOrPath) == "" {
		return "", fmt.Errorf("%w: empty path", ErrModelNotFound)
	}
	path := nameOrPath
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.dir, path)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrModelNotFound, nameOrPath)
	}
	return path, nil
}

// ModelID derives the model identifier from a model file path.
func ModelID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".gguf")
}

// Watch calls onChange with a fresh scan whenever a matching file is created,
// removed or renamed in the catalog directory. Bursts of changes within
// debounce are coalesced. Watch blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context, debounce time.Duration, onChange func([]types.ModelFile)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("watch %s: %w", c.dir, err)
	}

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if match, _ := doublestar.Match(c.pattern, filepath.ToSlash(mustRel(c.dir, ev.Name))); !match {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			if files, err := c.Scan(); err == nil {
				onChange(files)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch %s: %w", c.dir, err)
		}
	}
}

func mustRel(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.Base(path)
	}
	return rel
}
