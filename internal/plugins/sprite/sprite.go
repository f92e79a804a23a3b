// Package sprite combines SVG icons into a stack-mode sprite: every icon is a
// nested <svg> element with an id, and a :target rule shows only the one
// named in the URL fragment.
package sprite

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
)

// Output layout below the sprites output directory.
const (
	StackDir    = "stack"
	ExampleName = "sprite.stack.html"
)

const (
	header     = `<?xml version="1.0" encoding="utf-8"?>`
	svgNS      = "http://www.w3.org/2000/svg"
	xlinkNS    = "http://www.w3.org/1999/xlink"
	stackStyle = `:root>svg{display:none}:root>svg:target{display:block}`
)

// Icon is one parsed source icon.
type Icon struct {
	ID      string
	ViewBox string
	Width   string
	Height  string
	// Body is the raw markup between the root <svg> tags.
	Body []byte
}

// IconID derives the fragment id from a file name.
func IconID(file string) string {
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	return strings.Join(strings.Fields(name), "-")
}

// ParseIcon reads an SVG document. A missing viewBox is derived from the
// width and height attributes.
func ParseIcon(file string, data []byte) (Icon, error) {
	icon := Icon{ID: IconID(file)}
	fail := func(msg string, cause error) (Icon, error) {
		return Icon{}, ferrors.NewTransformError(ferrors.ErrCodeSpriteFailed, msg, cause).WithFile(file)
	}

	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false

	depth := 0
	var start int64
	for {
		offset := d.InputOffset()
		tok, err := d.Token()
		if err == io.EOF {
			return fail("unterminated svg document", nil)
		}
		if err != nil {
			return fail("invalid svg", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				if t.Name.Local != "svg" {
					return fail(fmt.Sprintf("root element is <%s>, want <svg>", t.Name.Local), nil)
				}
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "viewBox":
						icon.ViewBox = strings.TrimSpace(a.Value)
					case "width":
						icon.Width = a.Value
					case "height":
						icon.Height = a.Value
					}
				}
				start = d.InputOffset()
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				icon.Body = bytes.TrimSpace(data[start:offset])
				if icon.ViewBox == "" {
					w, h := strings.TrimSuffix(icon.Width, "px"), strings.TrimSuffix(icon.Height, "px")
					if w == "" || h == "" {
						return fail("svg has neither viewBox nor width and height", nil)
					}
					icon.ViewBox = "0 0 " + w + " " + h
				}
				return icon, nil
			}
		}
	}
}

// Stack renders the sprite document. Icons are ordered by id.
func Stack(icons []Icon) ([]byte, error) {
	sorted := make([]Icon, len(icons))
	copy(sorted, icons)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	var b bytes.Buffer
	b.WriteString(header)
	b.WriteString(`<svg xmlns="` + svgNS + `" xmlns:xlink="` + xlinkNS + `">`)
	b.WriteString("<style>" + stackStyle + "</style>")

	for i, icon := range sorted {
		if i > 0 && sorted[i-1].ID == icon.ID {
			return nil, ferrors.NewTransformError(ferrors.ErrCodeSpriteFailed,
				fmt.Sprintf("duplicate icon id %q", icon.ID), nil)
		}
		b.WriteString("<svg")
		attr(&b, "id", icon.ID)
		attr(&b, "viewBox", icon.ViewBox)
		if icon.Width != "" {
			attr(&b, "width", icon.Width)
		}
		if icon.Height != "" {
			attr(&b, "height", icon.Height)
		}
		b.WriteByte('>')
		b.Write(icon.Body)
		b.WriteString("</svg>")
	}

	b.WriteString("</svg>")
	return b.Bytes(), nil
}

func attr(b *bytes.Buffer, name, value string) {
	b.WriteString(" " + name + `="`)
	_ = xml.EscapeText(b, []byte(value))
	b.WriteByte('"')
}
