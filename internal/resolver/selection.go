package resolver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mangafetch/mangafetch/internal/apperr"
)

// ParseSelection 解析 "1,3-5,7" 形式的章节选择，max 为章节数量。
// 区间两端包含；越界的编号或区间、格式不对的片段被忽略并记入 warnings；
// 区间端点不是数字时返回 Parsing 错误。结果升序且去重。
func ParseSelection(input string, max int) (selected []int, warnings []string, err error) {
	seen := map[int]struct{}{}
	add := func(i int) {
		if _, ok := seen[i]; !ok {
			seen[i] = struct{}{}
			selected = append(selected, i)
		}
	}

	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") {
			bounds := strings.Split(part, "-")
			if len(bounds) != 2 {
				warnings = append(warnings, fmt.Sprintf("invalid range format %q, ignoring", part))
				continue
			}
			start, err := strconv.Atoi(strings.TrimSpace(bounds[0]))
			if err != nil || start < 0 {
				return nil, warnings, apperr.Parsing(err, "invalid range start: %s", bounds[0])
			}
			end, err := strconv.Atoi(strings.TrimSpace(bounds[1]))
			if err != nil || end < 0 {
				return nil, warnings, apperr.Parsing(err, "invalid range end: %s", bounds[1])
			}
			if start > end || end >= max {
				warnings = append(warnings, fmt.Sprintf("range %d-%d is invalid or out of bounds, ignoring", start, end))
				continue
			}
			for i := start; i <= end; i++ {
				add(i)
			}
			continue
		}

		index, convErr := strconv.Atoi(part)
		switch {
		case convErr != nil || index < 0:
			warnings = append(warnings, fmt.Sprintf("invalid chapter number %q, ignoring", part))
		case index >= max:
			warnings = append(warnings, fmt.Sprintf("chapter index %d is out of bounds, ignoring", index))
		default:
			add(index)
		}
	}

	sort.Ints(selected)
	return selected, warnings, nil
}

// All 返回 0..n-1。
func All(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
