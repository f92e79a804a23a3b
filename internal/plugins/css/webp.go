package css

import (
	"bytes"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/plugins/image"
)

// Class names set on the root element by the page's WebP detection.
const (
	WebPClass   = "webp"
	NoWebPClass = "no-webp"
)

type frame struct {
	ruleset   bool
	prelude   string
	selectors []string
}

type webpRule struct {
	contexts  []string
	selectors []string
	original  []string
}

// WebPCSS appends WebP variants of background images. For a rule whose
// background or background-image points at an image that gets a WebP copy
// it adds
//
//	.webp sel{background-image:url(x.webp)}
//	.no-webp sel{background-image:url(x.png)}
//
// inside the same at-rule blocks. The original declaration is left as the
// fallback, and the existing bytes of stylesheet are not touched.
func WebPCSS(stylesheet []byte) ([]byte, error) {
	p := css.NewParser(parse.NewInput(bytes.NewReader(stylesheet)), false)

	var (
		stack   []frame
		pending []string
		rules   []webpRule
	)
	for {
		gt, _, data := p.Next()
		if gt == css.ErrorGrammar {
			if err := p.Err(); err != io.EOF {
				return nil, ferrors.NewTransformError(ferrors.ErrCodeCompileFailed, "failed to parse stylesheet", err)
			}
			break
		}
		values := p.Values()

		switch gt {
		case css.BeginAtRuleGrammar:
			prelude := string(data)
			if q := tokensString(values); q != "" {
				prelude += " " + q
			}
			stack = append(stack, frame{prelude: prelude})
		case css.QualifiedRuleGrammar:
			pending = append(pending, tokensString(values))
		case css.BeginRulesetGrammar:
			selectors := append(pending, tokensString(values))
			pending = nil
			stack = append(stack, frame{ruleset: true, selectors: selectors})
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case css.DeclarationGrammar:
			if len(stack) == 0 || !stack[len(stack)-1].ruleset {
				continue
			}
			prop := strings.ToLower(string(data))
			if prop != "background" && prop != "background-image" {
				continue
			}
			urls := imageURLs(values)
			if len(urls) == 0 {
				continue
			}
			rule, ok := newWebPRule(stack, urls)
			if ok {
				rules = append(rules, rule)
			}
		}
	}

	if len(rules) == 0 {
		return stylesheet, nil
	}

	out := make([]byte, 0, len(stylesheet)+len(rules)*64)
	out = append(out, stylesheet...)
	out = append(out, '\n')
	for _, r := range rules {
		for _, c := range r.contexts {
			out = append(out, c...)
			out = append(out, '{')
		}
		out = appendRule(out, WebPClass, r.selectors, r.original, true)
		out = appendRule(out, NoWebPClass, r.selectors, r.original, false)
		for range r.contexts {
			out = append(out, '}')
		}
	}
	return out, nil
}

func newWebPRule(stack []frame, urls []string) (webpRule, bool) {
	var contexts []string
	for _, f := range stack[:len(stack)-1] {
		if f.ruleset {
			return webpRule{}, false
		}
		name := strings.ToLower(strings.SplitN(f.prelude, " ", 2)[0])
		if strings.HasSuffix(name, "keyframes") {
			return webpRule{}, false
		}
		contexts = append(contexts, f.prelude)
	}

	selectors := stack[len(stack)-1].selectors
	for _, sel := range selectors {
		if hasClass(sel, WebPClass) || hasClass(sel, NoWebPClass) {
			return webpRule{}, false
		}
	}
	return webpRule{contexts: contexts, selectors: selectors, original: urls}, true
}

func appendRule(out []byte, class string, selectors, urls []string, webp bool) []byte {
	for i, sel := range selectors {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, scopeSelector(class, sel)...)
	}
	out = append(out, "{background-image:"...)
	for i, u := range urls {
		if i > 0 {
			out = append(out, ',')
		}
		if webp {
			u = webpName(u)
		}
		out = appendURL(out, u)
	}
	return append(out, '}')
}

func appendURL(out []byte, u string) []byte {
	if !strings.ContainsAny(u, " \t\n\"'()\\") {
		out = append(out, "url("...)
		out = append(out, u...)
		return append(out, ')')
	}
	out = append(out, "url(\""...)
	out = append(out, strings.ReplaceAll(strings.ReplaceAll(u, `\`, `\\`), `"`, `\"`)...)
	return append(out, "\")"...)
}

// scopeSelector limits sel to documents whose root carries class.
func scopeSelector(class, sel string) string {
	for _, root := range []string{"html", ":root"} {
		if !strings.HasPrefix(strings.ToLower(sel), root) {
			continue
		}
		rest := sel[len(root):]
		if rest == "" || strings.ContainsRune(".#:[ >+~", rune(rest[0])) {
			return sel[:len(root)] + "." + class + rest
		}
	}
	return "." + class + " " + sel
}

func hasClass(sel, class string) bool {
	for i := strings.Index(sel, "."+class); i >= 0; {
		end := i + 1 + len(class)
		if end == len(sel) || !isNameByte(sel[end]) {
			return true
		}
		next := strings.Index(sel[end:], "."+class)
		if next < 0 {
			break
		}
		i = end + next
	}
	return false
}

func isNameByte(c byte) bool {
	return c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c >= 0x80
}

// imageURLs returns the targets of url() tokens pointing at images that get
// a WebP copy.
func imageURLs(values []css.Token) []string {
	var urls []string
	for _, t := range values {
		if t.TokenType != css.URLToken {
			continue
		}
		target := urlTarget(t.Data)
		if target == "" || strings.HasPrefix(strings.ToLower(target), "data:") {
			continue
		}
		if image.NeedsWebP(stripQuery(target)) {
			urls = append(urls, target)
		}
	}
	return urls
}

// urlTarget unwraps url(x), url('x') and url("x").
func urlTarget(data []byte) string {
	s := string(data)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return ""
	}
	s = strings.TrimSpace(s[open+1 : len(s)-1])
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	}
	return s
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

// webpName swaps the extension of u for .webp, keeping any query or
// fragment.
func webpName(u string) string {
	p := stripQuery(u)
	suffix := u[len(p):]
	dot := strings.LastIndexByte(p, '.')
	if dot < 0 || strings.ContainsRune(p[dot:], '/') {
		return u
	}
	return p[:dot] + ".webp" + suffix
}
