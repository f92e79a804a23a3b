// Package js lints, transpiles and minifies scripts with esbuild.
package js

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/plugins"
)

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

// ParseTarget maps a language level such as "es2015" to an esbuild target.
func ParseTarget(name string) (api.Target, error) {
	t, ok := targets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return api.DefaultTarget, ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unsupported script target %q", name))
	}
	return t, nil
}

func loaderFor(source string) api.Loader {
	switch strings.ToLower(filepath.Ext(source)) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}

// Output is transpiled code with its external source map.
type Output struct {
	Code []byte
	Map  []byte
}

// Transpiler lowers scripts to a fixed language level.
type Transpiler struct {
	target api.Target
}

// NewTranspiler creates a transpiler for target.
func NewTranspiler(target api.Target) *Transpiler {
	return &Transpiler{target: target}
}

// Transpile compiles contents. sourcefile names the input in the source map
// and selects the loader by extension.
func (t *Transpiler) Transpile(contents []byte, sourcefile string, minify bool) (Output, error) {
	result := api.Transform(string(contents), api.TransformOptions{
		Loader:            loaderFor(sourcefile),
		Target:            t.target,
		Sourcemap:         api.SourceMapExternal,
		Sourcefile:        sourcefile,
		MinifyWhitespace:  minify,
		MinifyIdentifiers: minify,
		MinifySyntax:      minify,
		LogLevel:          api.LogLevelSilent,
	})

	if err := plugins.EsbuildError(ferrors.ErrCodeCompileFailed, "script transform failed", result.Errors); err != nil {
		return Output{}, err
	}
	return Output{Code: result.Code, Map: result.Map}, nil
}

// Linter reports problems in a script without changing it.
type Linter interface {
	Lint(ctx context.Context, source string, contents []byte) ([]plugins.Diagnostic, error)
}

// EsbuildLinter reports esbuild's parse errors and warnings, such as
// duplicate keys, comparisons with -0 or assignments to constants.
type EsbuildLinter struct {
	target api.Target
}

// NewEsbuildLinter creates the built-in linter.
func NewEsbuildLinter(target api.Target) *EsbuildLinter {
	return &EsbuildLinter{target: target}
}

// Lint implements Linter.
func (l *EsbuildLinter) Lint(_ context.Context, source string, contents []byte) ([]plugins.Diagnostic, error) {
	result := api.Transform(string(contents), api.TransformOptions{
		Loader:     loaderFor(source),
		Target:     l.target,
		Sourcefile: source,
		LogLevel:   api.LogLevelSilent,
	})

	diags := plugins.Diagnostics(result.Errors)
	diags = append(diags, plugins.Diagnostics(result.Warnings)...)
	return diags, nil
}

// Runner runs an external command. *plugins.Command implements it.
type Runner interface {
	Run(ctx context.Context, inv plugins.Invocation) ([]byte, error)
}

// CommandLinter runs an external linter such as eslint. A non-zero exit is
// a finding; each non-empty output line becomes a diagnostic.
type CommandLinter struct {
	runner Runner
}

// NewCommandLinter creates a linter backed by runner.
func NewCommandLinter(runner Runner) *CommandLinter {
	return &CommandLinter{runner: runner}
}

// Lint implements Linter.
func (l *CommandLinter) Lint(ctx context.Context, source string, contents []byte) ([]plugins.Diagnostic, error) {
	_, err := l.runner.Run(ctx, plugins.Invocation{
		Input:     contents,
		InputPath: source,
		Dir:       filepath.Dir(source),
	})
	if err == nil {
		return nil, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !ferrors.IsTransformError(err) {
		return nil, err
	}

	var diags []plugins.Diagnostic
	for _, line := range strings.Split(err.Error(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			diags = append(diags, plugins.Diagnostic{File: source, Text: line})
		}
	}
	return diags, nil
}
