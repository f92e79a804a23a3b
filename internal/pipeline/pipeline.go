// Package pipeline carries one source file through an ordered chain of
// transform steps and writes the results into the build tree.
package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
)

// Asset is a file in flight. Path is the slash separated output path
// relative to the task's output directory; Source is the file it was read
// from.
type Asset struct {
	Path     string
	Source   string
	Contents []byte
	// Map is the source map of Contents, if a step produced one.
	Map []byte
}

// Ext returns the extension of the output path.
func (a Asset) Ext() string {
	return path.Ext(a.Path)
}

// WithExt returns a copy of a whose output path has the extension ext.
func (a Asset) WithExt(ext string) Asset {
	a.Path = a.Path[:len(a.Path)-len(path.Ext(a.Path))] + ext
	return a
}

// WithSuffix inserts suffix before the extension, turning styles.css into
// styles.min.css.
func (a Asset) WithSuffix(suffix string) Asset {
	ext := path.Ext(a.Path)
	a.Path = a.Path[:len(a.Path)-len(ext)] + suffix + ext
	return a
}

// Read loads a source file into an Asset with the given output path.
func Read(source, out string) (Asset, error) {
	data, err := os.ReadFile(source)
	if err != nil {
		return Asset{}, ferrors.NewIOError(ferrors.ErrCodeReadFailed, "failed to read source", err).
			WithFile(source)
	}
	return Asset{Path: out, Source: source, Contents: data}, nil
}

// StepFunc transforms an asset.
type StepFunc func(ctx context.Context, in Asset) (Asset, error)

// Step is a named transform.
type Step struct {
	Name string
	Fn   StepFunc
}

// Chain is an ordered list of steps.
type Chain []Step

// Then returns a new chain with step appended.
func (c Chain) Then(name string, fn StepFunc) Chain {
	out := make(Chain, len(c), len(c)+1)
	copy(out, c)
	return append(out, Step{Name: name, Fn: fn})
}

// Run applies every step in order and stops at the first error. Errors are
// tagged with the source file when the step did not set one.
func (c Chain) Run(ctx context.Context, in Asset) (Asset, error) {
	current := in
	for _, step := range c {
		if err := ctx.Err(); err != nil {
			return Asset{}, err
		}

		next, err := step.Fn(ctx, current)
		if err != nil {
			var fe *ferrors.ForgeError
			if stderrors.As(err, &fe) && fe.FilePath == "" {
				fe.WithFile(in.Source)
			}
			return Asset{}, fmt.Errorf("%s: %w", step.Name, err)
		}
		current = next
	}
	return current, nil
}
