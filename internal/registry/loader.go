package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"chatd/internal/common/fsutil"
	"chatd/pkg/types"
)

// ErrNoModels is returned by Resolve when the directory holds no *.gguf files.
var ErrNoModels = errors.New("no GGUF model files found")

// LoadDir scans a directory for *.gguf files and builds a registry from filenames.
// ID is the full filename (including extension); Path is the absolute file path.
// Results are sorted by ID so the first entry is stable across runs.
func LoadDir(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		var size int64
		if fi, err := e.Info(); err == nil {
			size = fi.Size()
		}
		models = append(models, types.Model{
			ID:        name,
			Name:      strings.TrimSuffix(name, filepath.Ext(name)),
			Path:      filepath.Join(abs, name),
			SizeBytes: size,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// Resolve picks the model to serve. With a file name it must exist in dir;
// without one the first *.gguf in dir is used.
func Resolve(dir, file string) (types.Model, error) {
	models, err := LoadDir(dir)
	if err != nil {
		return types.Model{}, err
	}
	if file == "" {
		if len(models) == 0 {
			return types.Model{}, fmt.Errorf("%w in %s", ErrNoModels, dir)
		}
		return models[0], nil
	}
	for _, m := range models {
		if m.ID == file {
			return m, nil
		}
	}
	return types.Model{}, fmt.Errorf("model %q not found in %s", file, dir)
}
