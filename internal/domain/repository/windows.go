package repository

import (
	"fmt"
	"sort"
)

// MaxWindowHours bounds on-demand window sizes to one month of hours.
const MaxWindowHours = 24 * 31

// NormalizeWindows validates, de-duplicates and sorts window sizes ascending.
// An empty input yields def.
func NormalizeWindows(ws []int, def []int) ([]int, error) {
	if len(ws) == 0 {
		ws = def
	}
	seen := make(map[int]struct{}, len(ws))
	out := make([]int, 0, len(ws))
	for _, w := range ws {
		if w <= 0 || w > MaxWindowHours {
			return nil, fmt.Errorf("%w: window %d outside [1,%d]", ErrInvalidInput, w, MaxWindowHours)
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	sort.Ints(out)
	return out, nil
}

// MaxWindow returns the largest size in ws, 0 for none.
func MaxWindow(ws []int) int {
	m := 0
	for _, w := range ws {
		if w > m {
			m = w
		}
	}
	return m
}
