package pipeline

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
)

// Writer writes assets below one output directory. It is safe for
// concurrent use. Files whose contents did not change are left untouched so
// reload events only carry real changes.
type Writer struct {
	buildRoot string
	dir       string

	mu      sync.Mutex
	written []string
	changed []string
}

// NewWriter creates a writer for dir, which must lie inside buildRoot.
func NewWriter(buildRoot, dir string) *Writer {
	return &Writer{buildRoot: filepath.Clean(buildRoot), dir: filepath.Clean(dir)}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write stores the asset and, when it has one, its source map next to it as
// Path + ".map".
func (w *Writer) Write(a Asset) error {
	if err := w.WriteFile(a.Path, a.Contents); err != nil {
		return err
	}
	if a.Map != nil {
		return w.WriteFile(a.Path+".map", a.Map)
	}
	return nil
}

// WriteFile stores data at the slash separated path rel below the output
// directory.
func (w *Writer) WriteFile(rel string, data []byte) error {
	clean := path.Clean(rel)
	if clean == "." || path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return ferrors.NewIOError(ferrors.ErrCodeOutputEscape,
			fmt.Sprintf("output path %q escapes %s", rel, w.dir), nil)
	}

	target := filepath.Join(w.dir, filepath.FromSlash(clean))

	unchanged := sameContents(target, data)
	if !unchanged {
		if err := writeAtomic(target, data); err != nil {
			return ferrors.NewIOError(ferrors.ErrCodeWriteFailed, "failed to write output", err).
				WithFile(target)
		}
	}

	relToRoot, err := filepath.Rel(w.buildRoot, target)
	if err != nil {
		relToRoot = target
	}
	relToRoot = filepath.ToSlash(relToRoot)

	w.mu.Lock()
	w.written = append(w.written, relToRoot)
	if !unchanged {
		w.changed = append(w.changed, relToRoot)
	}
	w.mu.Unlock()

	return nil
}

// Written returns every path written, relative to the build root, sorted.
func (w *Writer) Written() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedCopy(w.written)
}

// Changed returns the written paths whose contents differ from what was on
// disk before, relative to the build root, sorted.
func (w *Writer) Changed() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedCopy(w.changed)
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

func sameContents(target string, data []byte) bool {
	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() || info.Size() != int64(len(data)) {
		return false
	}
	existing, err := os.ReadFile(target)
	if err != nil {
		return false
	}
	return xxhash.Sum64(existing) == xxhash.Sum64(data)
}

func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, target); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
