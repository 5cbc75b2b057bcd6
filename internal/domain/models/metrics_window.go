package models

// FinanceMetricsWindow holds the arithmetic means of HourMetrics over the
// Observations most recent hours (at most WindowHours) of one product.
// It has no wall-clock field, so recomputing from the same history is byte-identical.
type FinanceMetricsWindow struct {
	ProductID    string `json:"product_id"`
	WindowHours  int    `json:"window_hours"`
	Observations int    `json:"observations"`
	HourMetrics
}

// WindowKey identifies a metrics row.
type WindowKey struct {
	ProductID   string
	WindowHours int
}

func (w *FinanceMetricsWindow) Key() WindowKey {
	return WindowKey{ProductID: w.ProductID, WindowHours: w.WindowHours}
}
