package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"BazaarPull/internal/domain/models"
	"BazaarPull/internal/repository/memory"
	"BazaarPull/internal/services/analytics"
	"BazaarPull/internal/usecase"
	"BazaarPull/pkg/scheduler"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type nopMetrics struct{}

func (nopMetrics) RecordMessageSent(string, int)          {}
func (nopMetrics) RecordError(string)                     {}
func (nopMetrics) RecordLastPrice(string, string, float64) {}
func (nopMetrics) RecordLatency(string, float64)          {}
func (nopMetrics) RecordJobRun(string, string, float64)   {}
func (nopMetrics) RecordJobSkipped(string)                {}
func (nopMetrics) RecordCompaction(int, int, int)         {}
func (nopMetrics) RecordAggregation(int)                  {}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*echo.Echo, *StreamHub) {
	t.Helper()
	ctx := context.Background()
	snaps := memory.NewSnapshotStore()
	require.NoError(t, snaps.StoreBatch(ctx, []*models.RawSnapshot{
		{ProductID: "ENCHANTED_GOLD", FetchedAt: now, InstantBuyPrice: 120, InstantSellPrice: 100, BuyMovingWeek: 1680, SellMovingWeek: 1680},
		{ProductID: "WHEAT", FetchedAt: now, InstantBuyPrice: 10, InstantSellPrice: 10, BuyMovingWeek: 1680, SellMovingWeek: 1680},
	}))
	sums := memory.NewSummaryStore()
	require.NoError(t, sums.UpsertSummary(ctx, &models.HourSummary{ProductID: "WHEAT", HourStart: now.Add(-time.Hour), HourMetrics: models.HourMetrics{CloseInstantBuyPrice: 9}}))
	windows := memory.NewMetricsWindowStore()

	paging := usecase.Paging{DefaultLimit: 50, MaxLimit: 500}
	agg := usecase.NewAggregator(sums, windows, nil, nopMetrics{}, usecase.AggregationConfig{}, nil)
	runner := scheduler.NewRunner(agg, time.Hour, nil)
	hub := NewStreamHub(nil)

	h := NewBazaarEchoHandler(nil,
		usecase.NewMarketService(snaps, nil, 0, paging),
		usecase.NewHistoryService(sums),
		agg,
		usecase.NewOpportunityService(snaps, windows, nil, analytics.NewScorer(analytics.DefaultScorerConfig()), usecase.OpportunityConfig{Paging: paging}, nil),
		usecase.NewAdminService(usecase.NewRecomputeJob(nil, runner), nil, nil),
		hub,
		nil,
	)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, hub
}

func do(t *testing.T, e *echo.Echo, method, target, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestProductsEndpoints(t *testing.T) {
	e, _ := newTestServer(t)

	code, env := do(t, e, http.MethodGet, "/api/v1/products?sort=spread&order=desc", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.RawSnapshot `json:"rows"`
		Total int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, "ENCHANTED_GOLD", list.Rows[0].ProductID)

	code, _ = do(t, e, http.MethodGet, "/api/v1/products/WHEAT", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, e, http.MethodGet, "/api/v1/products/NOPE", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, e, http.MethodGet, "/api/v1/products?sort=color", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHistoryEndpoint(t *testing.T) {
	e, _ := newTestServer(t)
	from := now.Add(-2 * time.Hour).Format(time.RFC3339)
	to := now.Format(time.RFC3339)

	code, env := do(t, e, http.MethodGet, "/api/v1/products/WHEAT/history?from="+from+"&to="+to, "")
	require.Equal(t, http.StatusOK, code)
	var sums []models.HourSummary
	require.NoError(t, json.Unmarshal(env.Data, &sums))
	assert.Len(t, sums, 1)

	code, _ = do(t, e, http.MethodGet, "/api/v1/products/ENCHANTED_GOLD/history?from="+from+"&to="+to, "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, e, http.MethodGet, "/api/v1/products/WHEAT/history?from=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestOpportunityEndpoints(t *testing.T) {
	e, _ := newTestServer(t)

	code, env := do(t, e, http.MethodGet, "/api/v1/opportunities?min_score=0.000001", "")
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Rows  []models.Opportunity `json:"rows"`
		Total int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "ENCHANTED_GOLD", list.Rows[0].ProductID)

	code, env = do(t, e, http.MethodGet, "/api/v1/opportunities/WHEAT", "")
	require.Equal(t, http.StatusOK, code)
	var o models.Opportunity
	require.NoError(t, json.Unmarshal(env.Data, &o))
	assert.Zero(t, o.Score)

	code, _ = do(t, e, http.MethodGet, "/api/v1/opportunities/NOPE", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, e, http.MethodGet, "/api/v1/opportunities?horizon=0", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestWindowsAndRecompute(t *testing.T) {
	e, _ := newTestServer(t)

	code, env := do(t, e, http.MethodGet, "/api/v1/metrics/windows?products=WHEAT,NOPE&windows=1,6", "")
	require.Equal(t, http.StatusOK, code)
	var rows []models.FinanceMetricsWindow
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, 9.0, rows[0].CloseInstantBuyPrice)

	code, _ = do(t, e, http.MethodGet, "/api/v1/metrics/windows?products=WHEAT&windows=1,x", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = do(t, e, http.MethodGet, "/api/v1/metrics/windows?products=WHEAT&windows=0", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, http.MethodPost, "/api/v1/admin/recompute", `{"task":"aggregation"}`)
	assert.Equal(t, http.StatusAccepted, code)
	code, _ = do(t, e, http.MethodPost, "/api/v1/admin/recompute", `{"task":"compaction"}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStreamHubDeliversFrames(t *testing.T) {
	e, hub := newTestServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/snapshots", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	hub.Broadcast([]*models.RawSnapshot{{ProductID: "WHEAT", FetchedAt: now, InstantBuyPrice: 10, InstantSellPrice: 9}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	assert.Equal(t, "quick_status", f.Type)
	require.Len(t, f.Products, 1)
	assert.Equal(t, 10.0, f.Products[0].InstantBuyPrice)

	hub.Close()
	assert.Zero(t, hub.Subscribers())
}
