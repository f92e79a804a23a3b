// Package html expands template includes, wraps images in webp <picture>
// elements and minifies HTML documents.
package html

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
)

// MaxIncludeDepth bounds nested includes.
const MaxIncludeDepth = 32

// Includer expands include directives:
//
//	@@include('path/to/file.html', {"title": "Home"})
//	@@header.html
//
// Paths resolve against the including file's directory first, then against
// CommonDir. Inside an included fragment, @@key is replaced by the matching
// parameter; parameters are inherited by nested includes.
type Includer struct {
	Prefix    string
	CommonDir string
	MaxDepth  int
}

// NewIncluder creates an includer using the given directive prefix.
func NewIncluder(prefix, commonDir string) *Includer {
	if prefix == "" {
		prefix = "@@"
	}
	return &Includer{Prefix: prefix, CommonDir: commonDir, MaxDepth: MaxIncludeDepth}
}

// Expand returns contents of file with every include expanded.
func (inc *Includer) Expand(file string, contents []byte) ([]byte, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		abs = file
	}
	return inc.expand(abs, contents, nil, []string{abs})
}

func (inc *Includer) maxDepth() int {
	if inc.MaxDepth <= 0 {
		return MaxIncludeDepth
	}
	return inc.MaxDepth
}

func (inc *Includer) expand(file string, contents []byte, params map[string]interface{}, stack []string) ([]byte, error) {
	prefix := []byte(inc.Prefix)
	var out bytes.Buffer
	out.Grow(len(contents))

	rest := contents
	offset := 0
	for {
		idx := bytes.Index(rest, prefix)
		if idx < 0 {
			out.Write(rest)
			break
		}
		out.Write(rest[:idx])
		at := rest[idx+len(prefix):]
		pos := offset + idx

		consumed, text, err := inc.directive(file, contents, pos, at, params, stack)
		if err != nil {
			return nil, err
		}
		if consumed == 0 {
			out.Write(prefix)
			rest = at
			offset = pos + len(prefix)
			continue
		}
		out.Write(text)
		rest = at[consumed:]
		offset = pos + len(prefix) + consumed
	}

	return out.Bytes(), nil
}

// directive interprets what follows a prefix. It returns how many bytes it
// consumed (0 leaves the prefix as literal text) and the replacement.
func (inc *Includer) directive(file string, contents []byte, pos int, at []byte, params map[string]interface{}, stack []string) (int, []byte, error) {
	if bytes.HasPrefix(at, []byte("include(")) {
		target, args, n, perr := parseIncludeCall(at[len("include("):])
		if perr != nil {
			return 0, nil, inc.locate(ferrors.NewTransformError(ferrors.ErrCodeCompileFailed,
				"malformed include directive", perr), file, contents, pos)
		}
		text, err := inc.include(file, contents, pos, target, merge(params, args), stack)
		return len("include(") + n, text, err
	}

	if name := shortInclude(at); name != "" {
		text, err := inc.include(file, contents, pos, name, params, stack)
		return len(name), text, err
	}

	if key := variableName(at); key != "" {
		if value, ok := lookup(params, key); ok {
			return len(key), []byte(format(value)), nil
		}
	}

	return 0, nil, nil
}

func (inc *Includer) include(file string, contents []byte, pos int, target string, params map[string]interface{}, stack []string) ([]byte, error) {
	if len(stack) > inc.maxDepth() {
		return nil, inc.locate(ferrors.NewTransformError(ferrors.ErrCodeIncludeCycle,
			fmt.Sprintf("include depth exceeds %d at %q", inc.maxDepth(), target), nil), file, contents, pos)
	}

	resolved, data, err := inc.resolve(file, target)
	if err != nil {
		return nil, inc.locate(ferrors.NewTransformError(ferrors.ErrCodeIncludeNotFound,
			fmt.Sprintf("include %q not found", target), err), file, contents, pos)
	}

	for _, seen := range stack {
		if seen == resolved {
			chain := append(append([]string(nil), stack...), resolved)
			for i := range chain {
				chain[i] = filepath.Base(chain[i])
			}
			return nil, inc.locate(ferrors.NewTransformError(ferrors.ErrCodeIncludeCycle,
				"include cycle: "+strings.Join(chain, " -> "), nil), file, contents, pos)
		}
	}

	return inc.expand(resolved, data, params, append(stack, resolved))
}

func (inc *Includer) resolve(file, target string) (string, []byte, error) {
	candidates := []string{filepath.Join(filepath.Dir(file), filepath.FromSlash(target))}
	if inc.CommonDir != "" {
		candidates = append(candidates, filepath.Join(inc.CommonDir, filepath.FromSlash(target)))
	}

	var firstErr error
	for _, candidate := range candidates {
		abs, err := filepath.Abs(candidate)
		if err != nil {
			abs = candidate
		}
		data, err := os.ReadFile(abs)
		if err == nil {
			return abs, data, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return "", nil, firstErr
}

func (inc *Includer) locate(err *ferrors.ForgeError, file string, contents []byte, pos int) error {
	line := bytes.Count(contents[:pos], []byte("\n")) + 1
	col := pos - bytes.LastIndexByte(contents[:pos], '\n')
	return err.WithLocation(file, line, col)
}

// parseIncludeCall parses `'path'[, {json}])` and returns how many bytes it
// consumed, closing parenthesis included.
func parseIncludeCall(b []byte) (string, map[string]interface{}, int, error) {
	i := skipSpace(b, 0)
	if i >= len(b) || (b[i] != '\'' && b[i] != '"') {
		return "", nil, 0, fmt.Errorf("expected quoted path")
	}
	quote := b[i]
	end := bytes.IndexByte(b[i+1:], quote)
	if end < 0 {
		return "", nil, 0, fmt.Errorf("unterminated path")
	}
	target := string(b[i+1 : i+1+end])
	i = skipSpace(b, i+end+2)

	var params map[string]interface{}
	if i < len(b) && b[i] == ',' {
		i = skipSpace(b, i+1)
		n, err := objectLength(b[i:])
		if err != nil {
			return "", nil, 0, err
		}
		if err := json.Unmarshal(b[i:i+n], &params); err != nil {
			return "", nil, 0, fmt.Errorf("invalid parameters: %w", err)
		}
		i = skipSpace(b, i+n)
	}

	if i >= len(b) || b[i] != ')' {
		return "", nil, 0, fmt.Errorf("expected )")
	}
	if target == "" {
		return "", nil, 0, fmt.Errorf("empty path")
	}
	return target, params, i + 1, nil
}

// objectLength returns the length of the balanced JSON object at the start
// of b.
func objectLength(b []byte) (int, error) {
	if len(b) == 0 || b[0] != '{' {
		return 0, fmt.Errorf("expected parameter object")
	}
	depth := 0
	inString := false
	for i := 0; i < len(b); i++ {
		c := b[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated parameter object")
}

func skipSpace(b []byte, i int) int {
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return i
}

func isNameByte(c byte) bool {
	return c == '_' || c == '-' || c == '.' || c == '/' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// shortInclude matches `name.html` or `dir/name.html` directly after the
// prefix.
func shortInclude(b []byte) string {
	n := 0
	for n < len(b) && isNameByte(b[n]) {
		n++
	}
	name := string(b[:n])
	for strings.HasSuffix(name, ".") {
		name = name[:len(name)-1]
	}
	if strings.HasSuffix(name, ".html") && len(name) > len(".html") {
		return name
	}
	return ""
}

// variableName matches an identifier, optionally dotted, directly after the
// prefix.
func variableName(b []byte) string {
	n := 0
	for n < len(b) {
		c := b[n]
		ident := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (n > 0 && c >= '0' && c <= '9')
		dot := c == '.' && n > 0 && n+1 < len(b) && b[n-1] != '.'
		if !ident && !dot {
			break
		}
		n++
	}
	return strings.TrimRight(string(b[:n]), ".")
}

func lookup(params map[string]interface{}, key string) (interface{}, bool) {
	if params == nil {
		return nil, false
	}
	if v, ok := params[key]; ok {
		return v, true
	}
	parts := strings.Split(key, ".")
	var current interface{} = params
	for _, p := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if current, ok = m[p]; !ok {
			return nil, false
		}
	}
	return current, true
}

func format(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func merge(parent, child map[string]interface{}) map[string]interface{} {
	if len(child) == 0 {
		return parent
	}
	out := make(map[string]interface{}, len(parent)+len(child))
	for k, v := range parent {
		out[k] = v
	}
	for k, v := range child {
		out[k] = v
	}
	return out
}
