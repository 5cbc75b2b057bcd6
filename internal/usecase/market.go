package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	"BazaarPull/internal/service/cache"
	apimetrics "BazaarPull/internal/service/metrics"
	pkgcache "BazaarPull/pkg/cache"
)

// ProductPage is one page of the latest-snapshot listing.
type ProductPage struct {
	Rows  []*models.RawSnapshot `json:"rows"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// MarketService serves the latest snapshot per product.
type MarketService struct {
	snaps  domrepo.SnapshotStore
	cache  *cache.ReadThrough
	ttl    time.Duration
	paging Paging
}

func NewMarketService(snaps domrepo.SnapshotStore, c *cache.ReadThrough, ttl time.Duration, paging Paging) *MarketService {
	return &MarketService{snaps: snaps, cache: c, ttl: ttl, paging: paging}
}

// List filters by a case-insensitive product id substring, sorts and paginates.
func (s *MarketService) List(ctx context.Context, req models.ProductListRequest) (ProductPage, error) {
	req.Limit = s.paging.limit(req.Limit)
	if s.cache == nil {
		return s.list(ctx, req)
	}

	key := s.cache.Key(pkgcache.HashKey(fmt.Sprintf("%s|%s|%s|%d|%d", strings.ToLower(req.Q), req.Sort, req.Order, req.Page, req.Limit)))
	var page ProductPage
	hit, err := s.cache.GetOrCompute(ctx, key, s.ttl, &page, func(ctx context.Context) (interface{}, error) {
		return s.list(ctx, req)
	})
	if err != nil {
		return ProductPage{}, err
	}
	apimetrics.ObserveCache("latest", hit)
	return page, nil
}

func (s *MarketService) list(ctx context.Context, req models.ProductListRequest) (ProductPage, error) {
	all, err := s.snaps.Latest(ctx)
	if err != nil {
		return ProductPage{}, fmt.Errorf("latest snapshots: %w", err)
	}
	rows := filterByID(all, req.Q)
	sortSnapshots(rows, req.Sort, req.Order == "desc")

	lo, hi := s.paging.window(len(rows), req.Page, req.Limit)
	return ProductPage{Rows: rows[lo:hi], Total: len(rows), Page: max(req.Page, 1), Limit: req.Limit}, nil
}

// Get returns ErrNotFound for an unknown product.
func (s *MarketService) Get(ctx context.Context, id string) (*models.RawSnapshot, error) {
	snap, err := s.snaps.LatestOne(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", id, err)
	}
	return snap, nil
}

func filterByID(snaps []*models.RawSnapshot, q string) []*models.RawSnapshot {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]*models.RawSnapshot, 0, len(snaps))
	for _, s := range snaps {
		if q == "" || strings.Contains(strings.ToLower(s.ProductID), q) {
			out = append(out, s)
		}
	}
	return out
}

func sortSnapshots(rows []*models.RawSnapshot, key string, desc bool) {
	val := func(s *models.RawSnapshot) float64 {
		switch key {
		case "buy_price":
			return s.InstantBuyPrice
		case "sell_price":
			return s.InstantSellPrice
		case "spread":
			return s.Spread()
		case "buy_volume":
			return float64(s.BuyVolume)
		case "sell_volume":
			return float64(s.SellVolume)
		}
		return 0
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if key == "" || key == "product_id" {
			if desc {
				return a.ProductID > b.ProductID
			}
			return a.ProductID < b.ProductID
		}
		va, vb := val(a), val(b)
		if va == vb {
			return a.ProductID < b.ProductID
		}
		if desc {
			return va > vb
		}
		return va < vb
	})
}
