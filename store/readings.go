package store

import "sort"

// RecentLimit is how many readings a station popup lists.
const RecentLimit = 3

// SortNewestFirst orders readings by timestamp descending. Readings without a
// timestamp go last; ties keep their input order.
func SortNewestFirst(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		a, b := readings[i].Time, readings[j].Time
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
}

// GroupByCode indexes readings by station code, each group newest first.
func GroupByCode(readings []Reading) map[string][]Reading {
	groups := make(map[string][]Reading)
	for _, r := range readings {
		groups[r.Code] = append(groups[r.Code], r)
	}
	for code := range groups {
		SortNewestFirst(groups[code])
	}
	return groups
}

// Latest returns at most n readings for a station code, newest first. Codes
// match by exact, case-sensitive equality.
func Latest(readings []Reading, code string, n int) []Reading {
	matched := make([]Reading, 0)
	for _, r := range readings {
		if r.Code == code {
			matched = append(matched, r)
		}
	}
	SortNewestFirst(matched)
	return Head(matched, n)
}

// Head returns the first n elements of an already sorted group.
func Head(readings []Reading, n int) []Reading {
	if n < 0 {
		n = 0
	}
	if len(readings) > n {
		return readings[:n]
	}
	return readings
}
