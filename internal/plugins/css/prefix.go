package css

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/plugins"
)

var engines = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"safari":  api.EngineSafari,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"ie":      api.EngineIE,
}

var targetPattern = regexp.MustCompile(`^([a-z]+)([0-9]+(?:\.[0-9]+){0,2})$`)

// ParseTargets parses a comma separated browser list such as
// "chrome58,safari11".
func ParseTargets(list string) ([]api.Engine, error) {
	var out []api.Engine
	for _, raw := range strings.Split(list, ",") {
		target := strings.ToLower(strings.TrimSpace(raw))
		if target == "" {
			continue
		}
		m := targetPattern.FindStringSubmatch(target)
		if m == nil {
			return nil, ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid,
				fmt.Sprintf("malformed browser target %q", raw))
		}
		name, ok := engines[m[1]]
		if !ok {
			return nil, ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid,
				fmt.Sprintf("unknown browser %q in target %q", m[1], raw))
		}
		out = append(out, api.Engine{Name: name, Version: m[2]})
	}
	return out, nil
}

// Prefixer adds vendor prefixes and lowers syntax the targets do not
// support.
type Prefixer struct {
	engines []api.Engine
}

// NewPrefixer creates a prefixer for the given targets.
func NewPrefixer(targets []api.Engine) *Prefixer {
	return &Prefixer{engines: targets}
}

// Output is CSS with its external source map.
type Output struct {
	Code []byte
	Map  []byte
}

// Process prefixes stylesheet. sourceMap, when set, is the map of
// stylesheet back to its own sources and is folded into the output map;
// otherwise sourcefile names the input. minify selects the compressed form.
func (p *Prefixer) Process(stylesheet, sourceMap []byte, sourcefile string, minify bool) (Output, error) {
	if sourceMap != nil {
		stylesheet = pipeline.InlineMap(stylesheet, sourceMap)
	}
	result := api.Transform(string(stylesheet), api.TransformOptions{
		Loader:            api.LoaderCSS,
		Engines:           p.engines,
		Sourcemap:         api.SourceMapExternal,
		Sourcefile:        sourcefile,
		MinifyWhitespace:  minify,
		MinifySyntax:      minify,
		MinifyIdentifiers: minify,
		LogLevel:          api.LogLevelSilent,
	})

	if err := plugins.EsbuildError(ferrors.ErrCodeCompileFailed, "css transform failed", result.Errors); err != nil {
		return Output{}, err
	}
	return Output{Code: result.Code, Map: result.Map}, nil
}
