// Package features derives rolling statistics and scorer inputs from stored history.
package features

import (
	"BazaarPull/internal/domain/models"
)

// Window averages the w most recent summaries of history, which must be ordered
// newest first. ok is false when history is empty.
func Window(productID string, history []models.HourSummary, w int) (models.FinanceMetricsWindow, bool) {
	n := min(w, len(history))
	if n <= 0 {
		return models.FinanceMetricsWindow{}, false
	}

	var acc models.HourMetrics
	for i := 0; i < n; i++ {
		acc.Add(&history[i].HourMetrics)
	}
	acc.Scale(1 / float64(n))

	return models.FinanceMetricsWindow{
		ProductID:    productID,
		WindowHours:  w,
		Observations: n,
		HourMetrics:  acc,
	}, true
}

// Windows computes one row per window size from a single history slice fetched for
// the largest size; smaller windows use a prefix of it. Products without history
// produce no rows.
func Windows(productID string, history []models.HourSummary, windows []int) []models.FinanceMetricsWindow {
	if len(history) == 0 {
		return nil
	}
	out := make([]models.FinanceMetricsWindow, 0, len(windows))
	for _, w := range windows {
		if row, ok := Window(productID, history, w); ok {
			out = append(out, row)
		}
	}
	return out
}

// Aggregate runs Windows for every product of a LatestN result, in the order of ids.
func Aggregate(ids []string, histories map[string][]models.HourSummary, windows []int) []models.FinanceMetricsWindow {
	var out []models.FinanceMetricsWindow
	for _, id := range ids {
		out = append(out, Windows(id, histories[id], windows)...)
	}
	return out
}
