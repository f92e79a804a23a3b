package css

import (
	"context"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/plugins"
)

type fakeRunner struct {
	got plugins.Invocation
	out []byte
	err error
}

func (f *fakeRunner) Run(_ context.Context, inv plugins.Invocation) ([]byte, error) {
	f.got = inv
	return f.out, f.err
}

func TestSassCompiler(t *testing.T) {
	runner := &fakeRunner{out: []byte("a{color:red}")}
	c := NewSassCompiler(runner)

	out, err := c.Compile(context.Background(), "/site/src/assets/styles/scss/styles.scss", []byte("$c: red; a{color:$c}"))
	require.NoError(t, err)
	assert.Equal(t, "a{color:red}", string(out))
	assert.Equal(t, "/site/src/assets/styles/scss/styles.scss", runner.got.InputPath)
	assert.Equal(t, "/site/src/assets/styles/scss", runner.got.Dir)
}

func TestSassCompilerPassesPlainCSS(t *testing.T) {
	runner := &fakeRunner{err: assert.AnError}
	out, err := NewSassCompiler(runner).Compile(context.Background(), "vendor.CSS", []byte("b{}"))
	require.NoError(t, err)
	assert.Equal(t, "b{}", string(out))
}

func TestGroupMediaQueries(t *testing.T) {
	input := `
a { color: red }
@media (max-width: 600px) { a { color: blue } }
b { color: green }
@media print { c { display: none } }
@media (max-width:  600px) { b { color: black } }
@supports (display: grid) { d { display: grid } }
`

	out, err := GroupMediaQueries([]byte(input))
	require.NoError(t, err)
	s := string(out)

	assert.Equal(t, 2, strings.Count(s, "@media"))
	assert.Contains(t, s, "@supports")

	plainEnd := strings.Index(s, "@media")
	assert.Contains(t, s[:plainEnd], "color:green")
	assert.Contains(t, s[:plainEnd], "display:grid")

	narrow := strings.Index(s, "600px")
	printAt := strings.Index(s, "@media print")
	require.Positive(t, narrow)
	require.Positive(t, printAt)
	assert.Less(t, narrow, printAt, "groups keep first appearance order")

	blue := strings.Index(s, "color:blue")
	black := strings.Index(s, "color:black")
	assert.True(t, blue > plainEnd && blue < black && black < printAt)
}

func TestGroupMediaQueriesIdempotent(t *testing.T) {
	input := `@import "base.css";
:root { --gap: 4px }
@media screen { a { margin: var(--gap) } }
p, li { padding: 0 !important }
@media screen { li { margin: 0 } }
@font-face { font-family: X; src: url(x.woff2) }`

	once, err := GroupMediaQueries([]byte(input))
	require.NoError(t, err)
	twice, err := GroupMediaQueries(once)
	require.NoError(t, err)
	assert.Equal(t, string(once), string(twice))
	assert.Contains(t, string(once), `@import "base.css";`)
	assert.Contains(t, string(once), "p,li{")
}

func TestParseTargets(t *testing.T) {
	targets, err := ParseTargets("chrome58, edge16,firefox57,safari11.1")
	require.NoError(t, err)
	assert.Equal(t, []api.Engine{
		{Name: api.EngineChrome, Version: "58"},
		{Name: api.EngineEdge, Version: "16"},
		{Name: api.EngineFirefox, Version: "57"},
		{Name: api.EngineSafari, Version: "11.1"},
	}, targets)

	for _, bad := range []string{"last 5 versions", "netscape4", "chrome"} {
		_, err := ParseTargets(bad)
		require.Error(t, err, bad)
		assert.True(t, ferrors.IsConfigError(err), bad)
	}
}

func TestPrefixer(t *testing.T) {
	targets, err := ParseTargets("chrome58,safari11")
	require.NoError(t, err)
	p := NewPrefixer(targets)

	debug, err := p.Process([]byte("a { user-select: none; color: #ff0000 }"), nil, "styles.css", false)
	require.NoError(t, err)
	assert.Contains(t, string(debug.Code), "-webkit-user-select")
	assert.NotEmpty(t, debug.Map)

	min, err := p.Process([]byte("a { user-select: none; color: #ff0000 }"), nil, "styles.css", true)
	require.NoError(t, err)
	assert.Less(t, len(min.Code), len(debug.Code))
	assert.NotContains(t, string(min.Code), "\n  ")
}

func TestPrefixerFoldsInputMap(t *testing.T) {
	scss := "$c: red;\na { color: $c; user-select: none }\n"
	content := scss
	input := pipeline.SourceMap{
		Version:        3,
		Sources:        []string{"../scss/styles.scss"},
		SourcesContent: []*string{&content},
		Mappings:       "AACA;EAAI",
	}
	inputMap, err := input.Marshal()
	require.NoError(t, err)

	p := NewPrefixer([]api.Engine{{Name: api.EngineChrome, Version: "58"}})
	for _, minify := range []bool{false, true} {
		out, err := p.Process([]byte("a {\n  color: red;\n  user-select: none;\n}\n"), inputMap, "styles.css", minify)
		require.NoError(t, err)

		m, err := pipeline.ParseSourceMap(out.Map)
		require.NoError(t, err)
		assert.Equal(t, []string{"../scss/styles.scss"}, m.Sources)
		require.Len(t, m.SourcesContent, 1)
		require.NotNil(t, m.SourcesContent[0])
		assert.Equal(t, scss, *m.SourcesContent[0])
		assert.NotContains(t, string(out.Code), "sourceMappingURL")
	}
}

func TestGroupMediaQueriesMappedAnchors(t *testing.T) {
	input := "a{color:red}\n@media print{b{color:blue}}\nc{color:green}\n"

	out, anchors, err := GroupMediaQueriesMapped([]byte(input))
	require.NoError(t, err)
	s := string(out)
	assert.Equal(t, "a{color:red;}c{color:green;}@media print{b{color:blue;}}", s)

	found := make(map[string]int)
	for _, a := range anchors {
		require.GreaterOrEqual(t, a.Output, 0)
		require.Less(t, a.Output, len(out))
		for _, piece := range []string{"c{", "color:green", "b{", "color:blue", "@media"} {
			if strings.HasPrefix(s[a.Output:], piece) {
				found[piece] = a.Input
			}
		}
	}
	for piece, at := range found {
		assert.True(t, strings.HasPrefix(input[at:], piece), "%s anchored at %d", piece, at)
	}
	assert.Len(t, found, 5)
}

func TestWebPCSS(t *testing.T) {
	input := `.hero { background-image: url("../img/hero.png?v=2"); color: red }
.logo, html.dark .mark { background: #fff url(logo.svg) no-repeat }
@media (min-width: 600px) { .wide { background-image: url(wide.jpg) } }
@keyframes pulse { from { background-image: url(a.png) } }
.icon { background-image: url(icon.webp) }
.inline { background-image: url(data:image/png;base64,AAAA) }
@font-face { font-family: X; src: url(x.woff2) }
`

	out, err := WebPCSS([]byte(input))
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, input), "existing rules are untouched")
	added := s[len(input):]
	assert.Contains(t, added, ".webp .hero{background-image:url(../img/hero.webp?v=2)}")
	assert.Contains(t, added, ".no-webp .hero{background-image:url(../img/hero.png?v=2)}")
	assert.Contains(t, added, ".webp .logo,html.webp.dark .mark{background-image:url(logo.webp)}")
	assert.Contains(t, added, "@media (min-width:600px){.webp .wide{background-image:url(wide.webp)}")
	assert.NotContains(t, added, "a.webp")
	assert.NotContains(t, added, "icon")
	assert.NotContains(t, added, "data:")
	assert.NotContains(t, added, "woff2")

	again, err := WebPCSS(out)
	require.NoError(t, err)
	assert.Equal(t, len(out)+len(added), len(again), "generated rules are not expanded again")
}

func TestWebPCSSWithoutImages(t *testing.T) {
	input := []byte("a{color:red}")
	out, err := WebPCSS(input)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}
