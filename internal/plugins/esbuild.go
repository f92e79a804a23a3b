package plugins

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
)

// Diagnostic is a compiler message with its location.
type Diagnostic struct {
	File   string
	Line   int
	Column int
	Text   string
}

// String formats the diagnostic as file:line:col: text.
func (d Diagnostic) String() string {
	if d.File == "" {
		return d.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.File, d.Line, d.Column, d.Text)
}

// Diagnostics converts esbuild messages. esbuild columns are 0-based.
func Diagnostics(messages []api.Message) []Diagnostic {
	out := make([]Diagnostic, 0, len(messages))
	for _, m := range messages {
		d := Diagnostic{Text: m.Text}
		if m.Location != nil {
			d.File = m.Location.File
			d.Line = m.Location.Line
			d.Column = m.Location.Column + 1
		}
		out = append(out, d)
	}
	return out
}

// EsbuildError turns esbuild errors into a transform error located at the
// first message.
func EsbuildError(code, what string, messages []api.Message) error {
	diags := Diagnostics(messages)
	if len(diags) == 0 {
		return nil
	}

	texts := make([]string, len(diags))
	for i, d := range diags {
		texts[i] = d.String()
	}

	err := ferrors.NewTransformError(code, fmt.Sprintf("%s: %s", what, strings.Join(texts, "; ")), nil)
	if first := diags[0]; first.File != "" {
		err.WithLocation(first.File, first.Line, first.Column)
	}
	return err
}
