// Package paths maps every asset category to its source globs, output
// directory and watch globs.
//
// Patterns are slash separated and relative to the source root. A source
// pattern prefixed with "!" excludes what it matches. Output directories are
// relative to the build root.
package paths

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
)

// Category names a group of source files processed by one task.
type Category string

const (
	Templates Category = "templates"
	Styles    Category = "styles"
	Scripts   Category = "scripts"
	Images    Category = "images"
	Sprites   Category = "sprites"
	Fonts     Category = "fonts"
)

// order is the reporting order of categories.
var order = []Category{Templates, Styles, Scripts, Images, Sprites, Fonts}

// All returns every category in reporting order.
func All() []Category {
	out := make([]Category, len(order))
	copy(out, order)
	return out
}

// Parse returns the category with the given name.
func Parse(name string) (Category, error) {
	for _, c := range order {
		if string(c) == name {
			return c, nil
		}
	}
	return "", ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid,
		fmt.Sprintf("unknown category %q", name))
}

// Names converts categories to strings.
func Names(categories []Category) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}

// CommonDir holds template fragments that are only ever included.
const CommonDir = "html/common"

// PathSet describes one category.
type PathSet struct {
	Sources []string
	Output  string
	Watch   []string
}

// PathConfig is the resolved layout of a project. It is not modified after
// Resolve returns; tasks share it read-only.
type PathConfig struct {
	SourceRoot string
	BuildRoot  string
	sets       map[Category]PathSet
}

// Resolve builds the default layout for the given roots.
func Resolve(sourceRoot, buildRoot string) PathConfig {
	images := []string{"assets/images/**/*.{jpeg,jpg,png,svg,gif,ico,webp}"}
	sprites := []string{"assets/images/icons/sprites/*.svg"}

	return PathConfig{
		SourceRoot: filepath.Clean(sourceRoot),
		BuildRoot:  filepath.Clean(buildRoot),
		sets: map[Category]PathSet{
			Templates: {
				Sources: []string{"html/**/*.html", "!" + CommonDir + "/**/*.html"},
				Output:  ".",
				Watch:   []string{"html/**/*.html"},
			},
			Styles: {
				Sources: []string{"assets/styles/scss/styles.scss"},
				Output:  "assets/styles/css",
				Watch:   []string{"assets/styles/scss/**/*.scss"},
			},
			Fonts: {
				Sources: []string{"assets/styles/fonts/**/*"},
				Output:  "assets/styles/fonts",
				Watch:   []string{"assets/styles/fonts/**/*"},
			},
			Scripts: {
				Sources: []string{"assets/js/**/*.{js,ts}"},
				Output:  "assets/js",
				Watch:   []string{"assets/js/**/*.{js,ts}"},
			},
			Images: {
				Sources: images,
				Output:  "assets/images",
				Watch:   images,
			},
			// Nested in the images output, which also copies the icon
			// sources; the sprites task writes only below stack/.
			Sprites: {
				Sources: sprites,
				Output:  "assets/images/icons/sprites",
				Watch:   sprites,
			},
		},
	}
}

// New builds a PathConfig from explicit sets.
func New(sourceRoot, buildRoot string, sets map[Category]PathSet) PathConfig {
	copied := make(map[Category]PathSet, len(sets))
	for c, s := range sets {
		copied[c] = PathSet{
			Sources: append([]string(nil), s.Sources...),
			Output:  s.Output,
			Watch:   append([]string(nil), s.Watch...),
		}
	}
	return PathConfig{
		SourceRoot: filepath.Clean(sourceRoot),
		BuildRoot:  filepath.Clean(buildRoot),
		sets:       copied,
	}
}

// Set returns the path set of a category.
func (pc PathConfig) Set(c Category) (PathSet, bool) {
	s, ok := pc.sets[c]
	return s, ok
}

// Categories returns the configured categories in reporting order.
func (pc PathConfig) Categories() []Category {
	var out []Category
	for _, c := range order {
		if _, ok := pc.sets[c]; ok {
			out = append(out, c)
		}
	}
	return out
}

// OutputDir returns the absolute or root-relative output directory of a
// category.
func (pc PathConfig) OutputDir(c Category) string {
	return filepath.Join(pc.BuildRoot, filepath.FromSlash(pc.sets[c].Output))
}

// CommonRoot returns the directory of include-only template fragments.
func (pc PathConfig) CommonRoot() string {
	return filepath.Join(pc.SourceRoot, filepath.FromSlash(CommonDir))
}

// Validate reports malformed globs, watched categories without sources and
// outputs that escape the build root.
func (pc PathConfig) Validate() error {
	for _, c := range pc.Categories() {
		set := pc.sets[c]

		for _, p := range append(append([]string(nil), set.Sources...), set.Watch...) {
			if !doublestar.ValidatePattern(strings.TrimPrefix(p, "!")) {
				return ferrors.NewConfigError(ferrors.ErrCodeInvalidPattern,
					fmt.Sprintf("%s: malformed glob %q", c, p)).WithContext("category", string(c))
			}
		}

		if len(set.Watch) > 0 && len(includes(set.Sources)) == 0 {
			return ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid,
				fmt.Sprintf("%s: watched category has no sources", c)).WithContext("category", string(c))
		}

		out := path.Clean(set.Output)
		if path.IsAbs(out) || out == ".." || strings.HasPrefix(out, "../") {
			return ferrors.NewConfigError(ferrors.ErrCodeOutputEscape,
				fmt.Sprintf("%s: output %q escapes build root %s", c, set.Output, pc.BuildRoot)).
				WithContext("category", string(c))
		}
	}
	return nil
}

// Collect returns the sorted source files of a category, as paths joined to
// the source root. A missing directory yields no files.
func (pc PathConfig) Collect(c Category) ([]string, error) {
	set, ok := pc.sets[c]
	if !ok {
		return nil, nil
	}

	fsys := os.DirFS(pc.SourceRoot)
	excl := excludes(set.Sources)
	seen := make(map[string]bool)

	for _, pattern := range includes(set.Sources) {
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, ferrors.NewConfigError(ferrors.ErrCodeInvalidPattern,
				fmt.Sprintf("%s: glob %q: %v", c, pattern, err))
		}
		for _, m := range matches {
			if matchAny(excl, m) {
				continue
			}
			seen[m] = true
		}
	}

	files := make([]string, 0, len(seen))
	for m := range seen {
		files = append(files, m)
	}
	sort.Strings(files)

	for i, m := range files {
		files[i] = filepath.Join(pc.SourceRoot, filepath.FromSlash(m))
	}
	return files, nil
}

// CategoriesFor returns, in reporting order, the categories whose watch
// globs match file. Files outside the source root match nothing.
func (pc PathConfig) CategoriesFor(file string) []Category {
	rel, ok := pc.relative(file)
	if !ok {
		return nil
	}

	var out []Category
	for _, c := range pc.Categories() {
		set := pc.sets[c]
		if matchAny(includes(set.Watch), rel) && !matchAny(excludes(set.Watch), rel) {
			out = append(out, c)
		}
	}
	return out
}

// Base returns the slash separated path of file relative to the static base
// of the first source glob that matches it. Files no glob matches keep their
// path relative to the source root.
func (pc PathConfig) Base(c Category, file string) string {
	rel, ok := pc.relative(file)
	if !ok {
		return filepath.ToSlash(filepath.Base(file))
	}

	for _, pattern := range includes(pc.sets[c].Sources) {
		if !match(pattern, rel) {
			continue
		}
		base, _ := doublestar.SplitPattern(pattern)
		if base == "." {
			return rel
		}
		return strings.TrimPrefix(rel, base+"/")
	}
	return rel
}

// WatchRoots returns the directories to watch recursively, sorted, with
// directories nested in another root removed.
func (pc PathConfig) WatchRoots() []string {
	unique := make(map[string]bool)
	for _, c := range pc.Categories() {
		for _, pattern := range includes(pc.sets[c].Watch) {
			base, _ := doublestar.SplitPattern(pattern)
			unique[base] = true
		}
	}

	bases := make([]string, 0, len(unique))
	for b := range unique {
		bases = append(bases, b)
	}
	sort.Strings(bases)

	var roots []string
	for _, b := range bases {
		nested := false
		for _, r := range roots {
			if r == "." || strings.HasPrefix(b, r+"/") {
				nested = true
				break
			}
		}
		if !nested {
			roots = append(roots, b)
		}
	}

	for i, r := range roots {
		roots[i] = filepath.Join(pc.SourceRoot, filepath.FromSlash(r))
	}
	return roots
}

func (pc PathConfig) relative(file string) (string, bool) {
	root := pc.SourceRoot
	if filepath.IsAbs(file) != filepath.IsAbs(root) {
		var err error
		if file, err = filepath.Abs(file); err != nil {
			return "", false
		}
		if root, err = filepath.Abs(root); err != nil {
			return "", false
		}
	}

	rel, err := filepath.Rel(root, file)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

func includes(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if !strings.HasPrefix(p, "!") {
			out = append(out, p)
		}
	}
	return out
}

func excludes(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		if strings.HasPrefix(p, "!") {
			out = append(out, p[1:])
		}
	}
	return out
}

func match(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if match(p, name) {
			return true
		}
	}
	return false
}
