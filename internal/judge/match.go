package judge

import (
	"regexp"
	"strconv"
	"strings"
)

var itemLabelRe = regexp.MustCompile(`(?i)^item\s+(\d+)$`)

// matchEntries pairs model output entries with input items. The returned
// slice is parallel to items; a nil slot means no entry matched and the
// item needs fallback grading.
//
// Matching runs in three passes, each consuming entries the earlier passes
// left unused:
//  1. exact item_id match
//  2. "Item {n}" labels against the item's 1-based order
//  3. leftover entries assigned positionally to leftover items
func matchEntries(items []Item, entries []modelEvaluation) []*modelEvaluation {
	matched := make([]*modelEvaluation, len(items))
	used := make([]bool, len(entries))

	byID := make(map[string]int, len(items))
	byOrder := make(map[int]int, len(items))
	for i, it := range items {
		byID[it.ID] = i
		byOrder[it.ItemOrder] = i
	}

	for e := range entries {
		id := strings.TrimSpace(entries[e].ItemID)
		if i, ok := byID[id]; ok && matched[i] == nil {
			matched[i] = &entries[e]
			used[e] = true
		}
	}

	for e := range entries {
		if used[e] {
			continue
		}
		m := itemLabelRe.FindStringSubmatch(strings.TrimSpace(entries[e].ItemID))
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if i, ok := byOrder[n]; ok && matched[i] == nil {
			matched[i] = &entries[e]
			used[e] = true
		}
	}

	e := 0
	for i := range items {
		if matched[i] != nil {
			continue
		}
		for e < len(entries) && used[e] {
			e++
		}
		if e >= len(entries) {
			break
		}
		matched[i] = &entries[e]
		used[e] = true
	}

	return matched
}
