package render

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseProblemIDs expands comma separated list of problem ids and inclusive
// ranges, "1-3,7" gives 1, 2, 3, 7. Empty list is not an error.
func ParseProblemIDs(list string) ([]int, error) {
	var ids []int
	for group := range strings.SplitSeq(list, ",") {
		group = strings.TrimSpace(group)
		if group == "" {
			continue
		}
		from, to, isRange := strings.Cut(group, "-")
		start, err := parseProblemID(from)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = parseProblemID(to); err != nil {
				return nil, err
			}
			if end < start {
				return nil, fmt.Errorf("bad problem range %q", group)
			}
		}
		for id := start; id <= end; id++ {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func parseProblemID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("bad problem id %q", s)
	}
	return id, nil
}
