package js

import (
	"context"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/plugins"
)

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("ES2015")
	require.NoError(t, err)
	assert.Equal(t, api.ES2015, target)

	_, err = ParseTarget("es6")
	assert.True(t, ferrors.IsConfigError(err))
}

func TestTranspileLowersSyntax(t *testing.T) {
	tr := NewTranspiler(api.ES2015)

	out, err := tr.Transpile([]byte("const f = (a) => a ?? 1;\n"), "app.js", false)
	require.NoError(t, err)
	assert.NotContains(t, string(out.Code), "??")
	assert.Contains(t, string(out.Map), `"sources"`)
	assert.Contains(t, string(out.Map), "app.js")
}

func TestTranspileTypeScript(t *testing.T) {
	tr := NewTranspiler(api.ES2015)

	out, err := tr.Transpile([]byte("const n: number = 1;\nexport function id<T>(v: T): T { return v }\n"), "lib/util.ts", false)
	require.NoError(t, err)
	assert.NotContains(t, string(out.Code), ": number")
	assert.Contains(t, string(out.Code), "function id(v)")
}

func TestTranspileMinify(t *testing.T) {
	tr := NewTranspiler(api.ES2015)
	src := []byte("function add(first, second) {\n  return first + second;\n}\nconsole.log(add(1, 2));\n")

	debug, err := tr.Transpile(src, "app.js", false)
	require.NoError(t, err)
	min, err := tr.Transpile(src, "app.js", true)
	require.NoError(t, err)

	assert.Less(t, len(min.Code), len(debug.Code))
	assert.NotEmpty(t, min.Map)
}

func TestTranspileSyntaxError(t *testing.T) {
	_, err := NewTranspiler(api.ES2015).Transpile([]byte("let = ;\n"), "broken.js", false)
	require.Error(t, err)
	assert.True(t, ferrors.IsTransformError(err))

	var fe *ferrors.ForgeError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "broken.js", fe.FilePath)
	assert.Equal(t, 1, fe.Line)
}

func TestEsbuildLinter(t *testing.T) {
	l := NewEsbuildLinter(api.ES2015)

	clean, err := l.Lint(context.Background(), "ok.js", []byte("let a = 1;\n"))
	require.NoError(t, err)
	assert.Empty(t, clean)

	diags, err := l.Lint(context.Background(), "dup.js", []byte("const o = {a: 1, a: 2};\nif (o === -0) {}\n"))
	require.NoError(t, err)
	require.NotEmpty(t, diags)
	assert.Equal(t, "dup.js", diags[0].File)
	assert.True(t, strings.HasPrefix(diags[0].String(), "dup.js:1:"))
}

type fakeRunner struct {
	err error
	got plugins.Invocation
}

func (f *fakeRunner) Run(_ context.Context, inv plugins.Invocation) ([]byte, error) {
	f.got = inv
	return nil, f.err
}

func TestCommandLinter(t *testing.T) {
	ok := &fakeRunner{}
	diags, err := NewCommandLinter(ok).Lint(context.Background(), "/src/app.js", nil)
	require.NoError(t, err)
	assert.Empty(t, diags)
	assert.Equal(t, "/src/app.js", ok.got.InputPath)

	findings := &fakeRunner{err: ferrors.NewTransformError(ferrors.ErrCodeCommandFailed, "eslint failed: 1:5 no-unused-vars\n2:1 semi", nil)}
	diags, err = NewCommandLinter(findings).Lint(context.Background(), "/src/app.js", nil)
	require.NoError(t, err)
	assert.Len(t, diags, 2)

	broken := &fakeRunner{err: ferrors.NewIOError(ferrors.ErrCodeWriteFailed, "disk full", nil)}
	_, err = NewCommandLinter(broken).Lint(context.Background(), "/src/app.js", nil)
	assert.True(t, ferrors.IsIOError(err))
}
