package css

import (
	"bytes"
	"io"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/pipeline"
)

// GroupMediaQueries merges top-level @media blocks that share a query and
// moves them after all other rules. Groups keep the order in which their
// query first appeared; rules inside a group keep source order.
func GroupMediaQueries(stylesheet []byte) ([]byte, error) {
	out, _, err := GroupMediaQueriesMapped(stylesheet)
	return out, err
}

// GroupMediaQueriesMapped is GroupMediaQueries that also reports where each
// rule, selector and declaration of the output came from, for carrying a
// source map across the rewrite.
func GroupMediaQueriesMapped(stylesheet []byte) ([]byte, []pipeline.Anchor, error) {
	p := css.NewParser(parse.NewInput(bytes.NewReader(stylesheet)), false)

	plain := &chunk{}
	groups := make(map[string]*chunk)
	var order []string
	var queries []string

	depth := 0
	var capture *chunk
	captureDepth := 0
	prev := 0

	for {
		gt, _, data := p.Next()
		if gt == css.ErrorGrammar {
			if err := p.Err(); err != io.EOF {
				return nil, nil, ferrors.NewTransformError(ferrors.ErrCodeCompileFailed, "failed to parse stylesheet", err)
			}
			break
		}

		values := p.Values()
		at := skipTrivia(stylesheet, prev)
		prev = p.Offset()

		if gt == css.BeginAtRuleGrammar && depth == 0 && capture == nil && strings.EqualFold(string(data), "@media") {
			query := tokensString(values)
			key := normalizeQuery(query)
			c, ok := groups[key]
			if !ok {
				c = &chunk{at: at}
				groups[key] = c
				order = append(order, key)
				queries = append(queries, query)
			}
			capture = c
			captureDepth = depth
			depth++
			continue
		}

		out := plain
		if capture != nil {
			out = capture
		}

		switch gt {
		case css.BeginAtRuleGrammar:
			out.mark(at)
			out.buf.Write(data)
			if len(values) > 0 {
				out.buf.WriteByte(' ')
				writeTokens(&out.buf, values)
			}
			out.buf.WriteByte('{')
			depth++
		case css.BeginRulesetGrammar:
			out.mark(at)
			writeTokens(&out.buf, values)
			out.buf.WriteByte('{')
			depth++
		case css.EndAtRuleGrammar, css.EndRulesetGrammar:
			depth--
			if capture != nil && depth == captureDepth {
				capture = nil
				continue
			}
			out.buf.WriteByte('}')
		case css.AtRuleGrammar:
			out.mark(at)
			out.buf.Write(data)
			if len(values) > 0 {
				out.buf.WriteByte(' ')
				writeTokens(&out.buf, values)
			}
			out.buf.WriteByte(';')
		case css.QualifiedRuleGrammar:
			out.mark(at)
			writeTokens(&out.buf, values)
			out.buf.WriteByte(',')
		case css.DeclarationGrammar, css.CustomPropertyGrammar:
			out.mark(at)
			out.buf.Write(data)
			out.buf.WriteByte(':')
			writeTokens(&out.buf, values)
			out.buf.WriteByte(';')
		case css.CommentGrammar:
			// dropped
		default:
			out.buf.Write(data)
		}
	}

	result := plain.buf.Bytes()
	anchors := plain.anchors
	for i, key := range order {
		g := groups[key]
		anchors = append(anchors, pipeline.Anchor{Output: len(result), Input: g.at})
		result = append(result, "@media "...)
		result = append(result, queries[i]...)
		result = append(result, '{')
		base := len(result)
		for _, a := range g.anchors {
			anchors = append(anchors, pipeline.Anchor{Output: base + a.Output, Input: a.Input})
		}
		result = append(result, g.buf.Bytes()...)
		result = append(result, '}')
	}
	return result, anchors, nil
}

// chunk is one run of output with the input offsets its pieces came from.
type chunk struct {
	buf     bytes.Buffer
	anchors []pipeline.Anchor
	at      int
}

func (c *chunk) mark(at int) {
	c.anchors = append(c.anchors, pipeline.Anchor{Output: c.buf.Len(), Input: at})
}

// skipTrivia returns the offset of the first byte at or after off that is
// neither whitespace nor inside a comment.
func skipTrivia(b []byte, off int) int {
	for off < len(b) {
		switch {
		case b[off] == ' ' || b[off] == '\t' || b[off] == '\n' || b[off] == '\r' || b[off] == '\f':
			off++
		case bytes.HasPrefix(b[off:], []byte("/*")):
			end := bytes.Index(b[off+2:], []byte("*/"))
			if end < 0 {
				return len(b)
			}
			off += end + 4
		default:
			return off
		}
	}
	return off
}

func writeTokens(w *bytes.Buffer, tokens []css.Token) {
	for len(tokens) > 0 && tokens[0].TokenType == css.WhitespaceToken {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].TokenType == css.WhitespaceToken {
		tokens = tokens[:len(tokens)-1]
	}
	for _, t := range tokens {
		w.Write(t.Data)
	}
}

func tokensString(tokens []css.Token) string {
	var b bytes.Buffer
	writeTokens(&b, tokens)
	return strings.TrimSpace(b.String())
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
