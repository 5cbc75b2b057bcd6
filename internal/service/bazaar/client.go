// Package bazaar polls the market feed and maps each product to a RawSnapshot.
package bazaar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"BazaarPull/internal/domain/models"
	drepo "BazaarPull/internal/domain/repository"
	pkghttp "BazaarPull/pkg/http"
)

type summaryEntry struct {
	Amount       int64   `json:"amount"`
	PricePerUnit float64 `json:"pricePerUnit"`
	Orders       int64   `json:"orders"`
}

type quickStatus struct {
	ProductID      string  `json:"productId"`
	SellPrice      float64 `json:"sellPrice"`
	SellVolume     int64   `json:"sellVolume"`
	SellMovingWeek int64   `json:"sellMovingWeek"`
	SellOrders     int64   `json:"sellOrders"`
	BuyPrice       float64 `json:"buyPrice"`
	BuyVolume      int64   `json:"buyVolume"`
	BuyMovingWeek  int64   `json:"buyMovingWeek"`
	BuyOrders      int64   `json:"buyOrders"`
}

type product struct {
	ProductID   string         `json:"product_id"`
	SellSummary []summaryEntry `json:"sell_summary"`
	BuySummary  []summaryEntry `json:"buy_summary"`
	QuickStatus quickStatus    `json:"quick_status"`
}

type response struct {
	Success     bool               `json:"success"`
	Cause       string             `json:"cause"`
	LastUpdated int64              `json:"lastUpdated"` // ms
	Products    map[string]product `json:"products"`
}

// Client implements SnapshotFeed over the bazaar HTTP endpoint.
type Client struct {
	http *pkghttp.Client
	url  string
	now  func() time.Time
}

var _ drepo.SnapshotFeed = (*Client)(nil)

// Option configures Client.
type Option func(*Client)

// WithClock overrides the fetch-time source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(httpClient *pkghttp.Client, url string, opts ...Option) *Client {
	c := &Client{http: httpClient, url: url, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch performs one poll. Transient failures are retried inside the HTTP client.
// Snapshots are returned sorted by product id and share one FetchedAt.
func (c *Client) Fetch(ctx context.Context) ([]*models.RawSnapshot, error) {
	var resp response
	if err := c.http.GetJSON(ctx, c.url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch bazaar: %w", err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("fetch bazaar: unsuccessful response: %s", resp.Cause)
	}

	fetchedAt := c.now().UTC().Truncate(time.Millisecond)
	apiTS := time.UnixMilli(resp.LastUpdated).UTC()

	out := make([]*models.RawSnapshot, 0, len(resp.Products))
	for id, p := range resp.Products {
		if p.ProductID == "" {
			p.ProductID = id
		}
		out = append(out, toSnapshot(&p, fetchedAt, apiTS))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out, nil
}

// toSnapshot maps one product. The instant buy price is the best sell offer and
// the instant sell price the best buy order; an empty side falls back to the
// quick-status average.
func toSnapshot(p *product, fetchedAt, apiTS time.Time) *models.RawSnapshot {
	qs := p.QuickStatus
	s := &models.RawSnapshot{
		ProductID:         p.ProductID,
		FetchedAt:         fetchedAt,
		APITimestamp:      apiTS,
		InstantBuyPrice:   qs.BuyPrice,
		InstantSellPrice:  qs.SellPrice,
		WeightedBuyPrice:  qs.BuyPrice,
		WeightedSellPrice: qs.SellPrice,
		BuyMovingWeek:     qs.BuyMovingWeek,
		SellMovingWeek:    qs.SellMovingWeek,
		ActiveBuyOrders:   qs.BuyOrders,
		ActiveSellOrders:  qs.SellOrders,
		BuyVolume:         qs.BuyVolume,
		SellVolume:        qs.SellVolume,
		BuyLadder:         ladder(models.SideBuy, p.BuySummary),
		SellLadder:        ladder(models.SideSell, p.SellSummary),
	}
	if len(p.SellSummary) > 0 {
		s.InstantBuyPrice = p.SellSummary[0].PricePerUnit
	}
	if len(p.BuySummary) > 0 {
		s.InstantSellPrice = p.BuySummary[0].PricePerUnit
	}
	return s
}

func ladder(side models.Side, entries []summaryEntry) []models.OrderLevel {
	if len(entries) == 0 {
		return nil
	}
	out := make([]models.OrderLevel, len(entries))
	for i, e := range entries {
		out[i] = models.OrderLevel{Side: side, Price: e.PricePerUnit, Quantity: e.Amount, Orders: e.Orders}
	}
	return out
}
