package server

import (
	"context"
	"io"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/a-h/templ"
)

// listPages returns the HTML files below root as slash paths, sorted.
func listPages(root string) []string {
	var pages []string
	_ = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() || filepath.Ext(p) != ".html" {
			return nil
		}
		if rel, err := filepath.Rel(root, p); err == nil {
			pages = append(pages, filepath.ToSlash(rel))
		}
		return nil
	})
	sort.Strings(pages)
	return pages
}

// IndexPage links every built page. It is served at / when the build root
// has no index.html of its own.
func IndexPage(pages []string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html lang=\"en\"><head><meta charset=\"utf-8\"><title>assetforge</title>")
		b.WriteString("<style>body{font-family:sans-serif;margin:2em}li{margin:.3em 0}</style></head><body>")
		b.WriteString("<h1>assetforge</h1>")
		if len(pages) == 0 {
			b.WriteString("<p>Nothing has been built yet.</p>")
		} else {
			b.WriteString("<ul>")
			for _, p := range pages {
				href := templ.EscapeString("/" + p)
				b.WriteString(`<li><a href="` + href + `">` + templ.EscapeString(p) + "</a></li>")
			}
			b.WriteString("</ul>")
		}
		b.WriteString("</body></html>\n")

		_, err := io.WriteString(w, b.String())
		return err
	})
}
