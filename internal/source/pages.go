package source

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// maxPage bounds page numbers so a range never expands into more entries
// than any real document has pages.
const maxPage = 100_000

// ParsePageRange parses "1-3,5" into sorted, de-duplicated page numbers.
// An empty string selects all pages and yields nil.
func ParsePageRange(pageRange string) ([]int, error) {
	if strings.TrimSpace(pageRange) == "" {
		return nil, nil
	}

	seen := map[int]struct{}{}
	var pages []int
	for part := range strings.SplitSeq(pageRange, ",") {
		tokenPages, err := parseRangeToken(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		for _, p := range tokenPages {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				pages = append(pages, p)
			}
		}
	}
	sort.Ints(pages)
	return pages, nil
}

// parseRangeToken parses either a single page ("3") or a range ("1-5").
func parseRangeToken(part string) ([]int, error) {
	if part == "" {
		return nil, errors.New("empty page token")
	}
	if startStr, endStr, ok := strings.Cut(part, "-"); ok {
		start, err := parsePage(startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid start page %q: %w", startStr, err)
		}
		end, err := parsePage(endStr)
		if err != nil {
			return nil, fmt.Errorf("invalid end page %q: %w", endStr, err)
		}
		if start > end {
			return nil, fmt.Errorf("start page %d greater than end page %d", start, end)
		}
		out := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			out = append(out, i)
		}
		return out, nil
	}
	page, err := parsePage(part)
	if err != nil {
		return nil, fmt.Errorf("invalid page number: %s", part)
	}
	return []int{page}, nil
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n < 1 || n > maxPage {
		return 0, fmt.Errorf("page %d out of range 1-%d", n, maxPage)
	}
	return n, nil
}
