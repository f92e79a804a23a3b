//go:build property
// +build property

package css

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

type block struct {
	Query    int
	Selector string
	Width    int
}

func blockGen() gopter.Gen {
	return gopter.CombineGens(
		gen.IntRange(0, 3),
		gen.OneConstOf("a", "b", ".btn", "#main", "ul li"),
		gen.IntRange(1, 99),
	).Map(func(v []interface{}) block {
		return block{Query: v[0].(int), Selector: v[1].(string), Width: v[2].(int)}
	})
}

// render writes query 0 as a plain rule and the others as @media blocks.
func render(blocks []block) string {
	var b strings.Builder
	for _, bl := range blocks {
		rule := fmt.Sprintf("%s{width:%dpx}", bl.Selector, bl.Width)
		if bl.Query == 0 {
			b.WriteString(rule + "\n")
			continue
		}
		fmt.Fprintf(&b, "@media (min-width:%dpx){%s}\n", bl.Query*100, rule)
	}
	return b.String()
}

func TestMediaGroupingProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("grouping is idempotent", prop.ForAll(
		func(blocks []block) bool {
			once, err := GroupMediaQueries([]byte(render(blocks)))
			if err != nil {
				return false
			}
			twice, err := GroupMediaQueries(once)
			return err == nil && string(once) == string(twice)
		},
		gen.SliceOf(blockGen()),
	))

	properties.Property("each query appears at most once", prop.ForAll(
		func(blocks []block) bool {
			out, err := GroupMediaQueries([]byte(render(blocks)))
			if err != nil {
				return false
			}
			for q := 1; q <= 3; q++ {
				if strings.Count(string(out), fmt.Sprintf("%dpx)", q*100)) > 1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(blockGen()),
	))

	properties.TestingRun(t)
}
