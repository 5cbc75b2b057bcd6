package usecase

// Paging bounds list requests.
type Paging struct {
	DefaultLimit int
	MaxLimit     int
}

func (p Paging) limit(n int) int {
	switch {
	case n <= 0:
		return p.DefaultLimit
	case p.MaxLimit > 0 && n > p.MaxLimit:
		return p.MaxLimit
	default:
		return n
	}
}

// window returns the [lo, hi) slice bounds for page over total items.
func (p Paging) window(total, page, limit int) (lo, hi int) {
	if page < 1 {
		page = 1
	}
	lo = min((page-1)*limit, total)
	hi = min(lo+limit, total)
	return lo, hi
}
