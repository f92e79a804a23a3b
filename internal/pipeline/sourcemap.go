package pipeline

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
)

var mappingURLPattern = regexp.MustCompile(`(?m)\n?(/\*# sourceMappingURL=[^*]*\*/|//# sourceMappingURL=\S*)\s*$`)

var inlineMapPattern = regexp.MustCompile(`\n?/\*# sourceMappingURL=data:application/json(?:;charset=[-\w]+)?(;base64)?,([^*\s]+)\s*\*/\s*$`)

// LinkSourceMap appends a sourceMappingURL comment pointing at the map file
// written next to a, replacing any existing one. CSS and JS comment styles
// are chosen from the output extension.
func LinkSourceMap(a Asset) Asset {
	if a.Map == nil {
		return a
	}

	name := path.Base(a.Path) + ".map"
	body := mappingURLPattern.ReplaceAll(a.Contents, nil)
	body = bytes.TrimRight(body, "\n")

	var comment string
	if a.Ext() == ".css" {
		comment = "\n/*# sourceMappingURL=" + name + " */\n"
	} else {
		comment = "\n//# sourceMappingURL=" + name + "\n"
	}

	out := make([]byte, 0, len(body)+len(comment))
	out = append(out, body...)
	out = append(out, comment...)
	a.Contents = out
	return a
}

// ExtractInlineMap splits a trailing data URL source map comment off a
// stylesheet. Both base64 and percent encoded payloads are read. Code
// without one, or with one that does not decode, comes back unchanged with
// a nil map.
func ExtractInlineMap(code []byte) ([]byte, []byte) {
	m := inlineMapPattern.FindSubmatchIndex(code)
	if m == nil {
		return code, nil
	}

	payload := string(code[m[4]:m[5]])
	var data []byte
	if m[2] >= 0 {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return code, nil
		}
		data = decoded
	} else {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return code, nil
		}
		data = []byte(decoded)
	}
	if !json.Valid(data) {
		return code, nil
	}
	return code[:m[0]], data
}

// InlineMap appends sourceMap to a stylesheet as a base64 data URL comment.
func InlineMap(code, sourceMap []byte) []byte {
	comment := "\n/*# sourceMappingURL=data:application/json;base64," +
		base64.StdEncoding.EncodeToString(sourceMap) + " */\n"
	out := make([]byte, 0, len(code)+len(comment))
	out = append(out, bytes.TrimRight(code, "\n")...)
	return append(out, comment...)
}

// SourceMap is a version 3 source map.
type SourceMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file,omitempty"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
}

// ParseSourceMap decodes a JSON source map.
func ParseSourceMap(data []byte) (*SourceMap, error) {
	var m SourceMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, ferrors.NewTransformError(ferrors.ErrCodeCompileFailed, "invalid source map", err)
	}
	if m.Version != 3 {
		return nil, ferrors.NewTransformError(ferrors.ErrCodeCompileFailed,
			fmt.Sprintf("unsupported source map version %d", m.Version), nil)
	}
	return &m, nil
}

// Marshal encodes m as JSON.
func (m *SourceMap) Marshal() ([]byte, error) {
	if m.Names == nil {
		m.Names = []string{}
	}
	if m.Sources == nil {
		m.Sources = []string{}
	}
	return json.Marshal(m)
}

// RelativizeSources rewrites file URLs and absolute paths in the sources of
// sourceMap so they are relative to dir, the directory the map is written
// to.
func RelativizeSources(sourceMap []byte, dir string) ([]byte, error) {
	m, err := ParseSourceMap(sourceMap)
	if err != nil {
		return nil, err
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, ferrors.NewIOError(ferrors.ErrCodeWriteFailed, "failed to resolve map directory", err)
	}

	for i, source := range m.Sources {
		p := source
		if u, err := url.Parse(source); err == nil && u.Scheme == "file" {
			p = filepath.FromSlash(u.Path)
		}
		if !filepath.IsAbs(p) {
			continue
		}
		if rel, err := filepath.Rel(absDir, p); err == nil {
			m.Sources[i] = filepath.ToSlash(rel)
		}
	}
	return m.Marshal()
}

// Anchor ties a byte offset in rewritten code to the byte offset in the
// code it was derived from.
type Anchor struct {
	Output int
	Input  int
}

type segment struct {
	genCol int
	source int
	line   int
	col    int
	name   int
}

// RemapSourceMap turns sourceMap, a map of in, into a map of out. Every
// anchor takes the original position in effect at its input offset, so
// precision is that of the anchors.
func RemapSourceMap(sourceMap, in, out []byte, anchors []Anchor) ([]byte, error) {
	m, err := ParseSourceMap(sourceMap)
	if err != nil {
		return nil, err
	}
	lines, err := decodeMappings(m.Mappings)
	if err != nil {
		return nil, err
	}

	inIndex, outIndex := newLineIndex(in), newLineIndex(out)
	var remapped [][]segment
	for _, a := range anchors {
		if a.Input < 0 || a.Input > len(in) || a.Output < 0 || a.Output > len(out) {
			continue
		}
		line, col := inIndex.position(in, a.Input)
		seg, ok := originalAt(lines, line, col)
		if !ok {
			continue
		}
		outLine, outCol := outIndex.position(out, a.Output)
		for len(remapped) <= outLine {
			remapped = append(remapped, nil)
		}
		seg.genCol = outCol
		remapped[outLine] = append(remapped[outLine], seg)
	}
	for _, line := range remapped {
		sort.SliceStable(line, func(i, j int) bool { return line[i].genCol < line[j].genCol })
	}

	m.Mappings = encodeMappings(remapped)
	return m.Marshal()
}

// originalAt finds the last mapped segment at or before line:col.
func originalAt(lines [][]segment, line, col int) (segment, bool) {
	if line >= len(lines) {
		line, col = len(lines)-1, int(^uint(0)>>1)
	}
	for l := line; l >= 0; l-- {
		segs := lines[l]
		for i := len(segs) - 1; i >= 0; i-- {
			if l == line && segs[i].genCol > col {
				continue
			}
			if segs[i].source >= 0 {
				return segs[i], true
			}
		}
	}
	return segment{}, false
}

type lineIndex []int

func newLineIndex(b []byte) lineIndex {
	idx := lineIndex{0}
	for i, c := range b {
		if c == '\n' {
			idx = append(idx, i+1)
		}
	}
	return idx
}

// position converts a byte offset into a zero based line and UTF-16 column.
func (idx lineIndex) position(b []byte, off int) (int, int) {
	line := sort.Search(len(idx), func(i int) bool { return idx[i] > off }) - 1
	col := 0
	for rest := b[idx[line]:off]; len(rest) > 0; {
		r, size := utf8.DecodeRune(rest)
		if r >= 0x10000 {
			col += 2
		} else {
			col++
		}
		rest = rest[size:]
	}
	return line, col
}

const vlqDigits = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

func decodeMappings(mappings string) ([][]segment, error) {
	var (
		lines                   [][]segment
		source, line, col, name int
	)
	for _, group := range strings.Split(mappings, ";") {
		var segs []segment
		genCol := 0
		for _, field := range strings.Split(group, ",") {
			if field == "" {
				continue
			}
			values, err := decodeVLQ(field)
			if err != nil {
				return nil, err
			}
			seg := segment{source: -1, name: -1}
			switch len(values) {
			case 1, 4, 5:
			default:
				return nil, ferrors.NewTransformError(ferrors.ErrCodeCompileFailed,
					fmt.Sprintf("source map segment %q has %d fields", field, len(values)), nil)
			}
			genCol += values[0]
			seg.genCol = genCol
			if len(values) >= 4 {
				source += values[1]
				line += values[2]
				col += values[3]
				seg.source, seg.line, seg.col = source, line, col
			}
			if len(values) == 5 {
				name += values[4]
				seg.name = name
			}
			segs = append(segs, seg)
		}
		lines = append(lines, segs)
	}
	return lines, nil
}

func decodeVLQ(field string) ([]int, error) {
	var (
		values      []int
		value, bits int
	)
	for i := 0; i < len(field); i++ {
		digit := strings.IndexByte(vlqDigits, field[i])
		if digit < 0 {
			return nil, ferrors.NewTransformError(ferrors.ErrCodeCompileFailed,
				fmt.Sprintf("invalid character %q in source map mappings", field[i]), nil)
		}
		value |= (digit & 31) << bits
		bits += 5
		if digit&32 != 0 {
			continue
		}
		if value&1 != 0 {
			values = append(values, -(value >> 1))
		} else {
			values = append(values, value>>1)
		}
		value, bits = 0, 0
	}
	if bits != 0 {
		return nil, ferrors.NewTransformError(ferrors.ErrCodeCompileFailed, "truncated source map mappings", nil)
	}
	return values, nil
}

func encodeMappings(lines [][]segment) string {
	var (
		b                       strings.Builder
		source, line, col, name int
	)
	for i, segs := range lines {
		if i > 0 {
			b.WriteByte(';')
		}
		genCol := 0
		for j, seg := range segs {
			if j > 0 {
				b.WriteByte(',')
			}
			encodeVLQ(&b, seg.genCol-genCol)
			genCol = seg.genCol
			encodeVLQ(&b, seg.source-source)
			encodeVLQ(&b, seg.line-line)
			encodeVLQ(&b, seg.col-col)
			source, line, col = seg.source, seg.line, seg.col
			if seg.name >= 0 {
				encodeVLQ(&b, seg.name-name)
				name = seg.name
			}
		}
	}
	return b.String()
}

func encodeVLQ(b *strings.Builder, v int) {
	u := v << 1
	if v < 0 {
		u = (-v << 1) | 1
	}
	for {
		digit := u & 31
		u >>= 5
		if u > 0 {
			digit |= 32
		}
		b.WriteByte(vlqDigits[digit])
		if u == 0 {
			return
		}
	}
}
