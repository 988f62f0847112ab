package annotation

import (
	"strconv"
	"strings"
)

// maxRangeSpan bounds how many indexes a single range expands to. Callers
// reject selections far below this size, so the cut never changes an outcome.
const maxRangeSpan = 10000

// ParsePages turns a page selection such as "0-7" or "0,2,5" into explicit
// zero-based page indexes. An empty result means no restriction.
//
// Ranges are inclusive; an inverted or unparsable range yields nothing.
// In lists, tokens that are not integers are dropped while order and
// duplicates are kept.
func ParsePages(expr string) []int {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return []int{}
	}

	if strings.Contains(expr, "-") {
		bounds := strings.SplitN(expr, "-", 2)
		start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
		if err != nil {
			return []int{}
		}
		end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
		if err != nil || end < start {
			return []int{}
		}
		if end-start >= maxRangeSpan {
			end = start + maxRangeSpan - 1
		}
		pages := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			pages = append(pages, p)
		}
		return pages
	}

	tokens := strings.Split(expr, ",")
	pages := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		n, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			continue
		}
		pages = append(pages, n)
	}
	return pages
}
