package html

import (
	"bytes"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"
)

var webpSourceExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// WrapWebP wraps every <img> whose source is a raster image, and that is not
// already inside a <picture>, in a <picture> offering the webp copy first.
// Everything else is copied through byte for byte.
func WrapWebP(doc []byte) ([]byte, error) {
	z := html.NewTokenizer(bytes.NewReader(doc))
	var out bytes.Buffer
	out.Grow(len(doc) + len(doc)/8)

	pictureDepth := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if err := z.Err(); err != io.EOF {
				return nil, err
			}
			return out.Bytes(), nil
		}

		// TagName lowercases the raw buffer in place.
		raw := append([]byte(nil), z.Raw()...)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "picture":
				if tt == html.StartTagToken {
					pictureDepth++
				}
			case "img":
				if pictureDepth == 0 && hasAttr {
					if src := attr(z, "src"); webpCandidate(src) {
						out.WriteString(`<picture><source srcset="`)
						out.WriteString(html.EscapeString(webpName(src)))
						out.WriteString(`" type="image/webp">`)
						out.Write(raw)
						out.WriteString(`</picture>`)
						continue
					}
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "picture" && pictureDepth > 0 {
				pictureDepth--
			}
		}

		out.Write(raw)
	}
}

func attr(z *html.Tokenizer, key string) string {
	for {
		k, v, more := z.TagAttr()
		if string(k) == key {
			return string(v)
		}
		if !more {
			return ""
		}
	}
}

func webpCandidate(src string) bool {
	if src == "" || strings.HasPrefix(src, "data:") {
		return false
	}
	return webpSourceExts[strings.ToLower(path.Ext(stripQuery(src)))]
}

func stripQuery(src string) string {
	if i := strings.IndexAny(src, "?#"); i >= 0 {
		return src[:i]
	}
	return src
}

func webpName(src string) string {
	clean := stripQuery(src)
	suffix := src[len(clean):]
	return clean[:len(clean)-len(path.Ext(clean))] + ".webp" + suffix
}
