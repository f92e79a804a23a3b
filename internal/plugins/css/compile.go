// Package css compiles stylesheets: SCSS through an external compiler,
// merging of duplicate media queries, and vendor prefixing with minification
// through esbuild.
package css

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/conneroisu/assetforge/internal/plugins"
)

// Runner runs an external command. *plugins.Command implements it.
type Runner interface {
	Run(ctx context.Context, inv plugins.Invocation) ([]byte, error)
}

// SassCompiler compiles .scss and .sass sources. Plain .css passes through.
type SassCompiler struct {
	runner Runner
}

// NewSassCompiler creates a compiler backed by runner.
func NewSassCompiler(runner Runner) *SassCompiler {
	return &SassCompiler{runner: runner}
}

// Compile returns the CSS for a source file. Imports resolve relative to the
// source's directory.
func (c *SassCompiler) Compile(ctx context.Context, source string, contents []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(source))
	if ext == ".css" {
		return contents, nil
	}

	return c.runner.Run(ctx, plugins.Invocation{
		Input:     contents,
		InputPath: source,
		InputExt:  ext,
		OutputExt: ".css",
		Dir:       filepath.Dir(source),
	})
}
