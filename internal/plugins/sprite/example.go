package sprite

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Title turns an icon id such as "arrow-left" into "Arrow Left".
func Title(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' || r == '.' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// ExamplePage lists every icon of the sprite named spriteName, each shown
// through its fragment URL.
func ExamplePage(spriteName string, icons []Icon) templ.Component {
	ids := make([]string, len(icons))
	for i, icon := range icons {
		ids[i] = icon.ID
	}
	sort.Strings(ids)

	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\">")
		b.WriteString("<title>" + templ.EscapeString(spriteName) + " stack sprite</title>")
		b.WriteString("<style>body{font-family:sans-serif}ul{display:flex;flex-wrap:wrap;list-style:none;padding:0}")
		b.WriteString("li{margin:1em;text-align:center}img{width:48px;height:48px}code{display:block;font-size:.8em}</style>")
		b.WriteString("</head><body><h1>" + templ.EscapeString(spriteName) + "</h1><ul>")
		for _, id := range ids {
			src := templ.EscapeString(spriteName + "#" + id)
			b.WriteString(`<li><img src="` + src + `" alt="` + templ.EscapeString(Title(id)) + `">`)
			b.WriteString("<span>" + templ.EscapeString(Title(id)) + "</span>")
			b.WriteString("<code>" + src + "</code></li>")
		}
		b.WriteString("</ul></body></html>\n")

		_, err := io.WriteString(w, b.String())
		return err
	})
}

// RenderExample renders ExamplePage to bytes.
func RenderExample(ctx context.Context, spriteName string, icons []Icon) ([]byte, error) {
	var buf bytes.Buffer
	if err := ExamplePage(spriteName, icons).Render(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
