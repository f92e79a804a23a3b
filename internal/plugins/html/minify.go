package html

import (
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/tdewolff/minify/v2/svg"
)

// Minifier minifies whole documents, including inline styles and scripts.
type Minifier struct {
	m *minify.M
}

// NewMinifier creates a minifier that keeps document and end tags so the
// live-reload script can still be injected before </body>.
func NewMinifier() *Minifier {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc("text/css", css.Minify)
	m.AddFunc("image/svg+xml", svg.Minify)
	m.AddFunc("application/javascript", js.Minify)
	m.AddFunc("text/javascript", js.Minify)
	return &Minifier{m: m}
}

// Minify returns the minified document.
func (mf *Minifier) Minify(doc []byte) ([]byte, error) {
	return mf.m.Bytes("text/html", doc)
}
