package api

import (
	"errors"
	"strings"
	"time"

	models "BazaarPull/internal/domain/models"
	domrepo "BazaarPull/internal/domain/repository"
	apimetrics "BazaarPull/internal/service/metrics"
	"BazaarPull/internal/usecase"
	xhttp "BazaarPull/pkg/http"
	xlogger "BazaarPull/pkg/logger"
	"BazaarPull/pkg/util"

	"github.com/labstack/echo/v4"
)

// BazaarEchoHandler serves the read API and the admin trigger.
type BazaarEchoHandler struct {
	logger  *xlogger.Logger
	market  *usecase.MarketService
	history *usecase.HistoryService
	agg     *usecase.Aggregator
	opps    *usecase.OpportunityService
	admin   *usecase.AdminService
	hub     *StreamHub
	limit   echo.MiddlewareFunc
}

func NewBazaarEchoHandler(
	logger *xlogger.Logger,
	market *usecase.MarketService,
	history *usecase.HistoryService,
	agg *usecase.Aggregator,
	opps *usecase.OpportunityService,
	admin *usecase.AdminService,
	hub *StreamHub,
	limit echo.MiddlewareFunc,
) *BazaarEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &BazaarEchoHandler{
		logger:  logger,
		market:  market,
		history: history,
		agg:     agg,
		opps:    opps,
		admin:   admin,
		hub:     hub,
		limit:   limit,
	}
}

func (h *BazaarEchoHandler) RegisterRoutes(e *echo.Echo) {
	var mw []echo.MiddlewareFunc
	if h.limit != nil {
		mw = append(mw, h.limit)
	}
	g := e.Group("/api/v1", mw...)
	g.GET("/products", h.Products)
	g.GET("/products/:id", h.Product)
	g.GET("/products/:id/history", h.History)
	g.GET("/metrics/windows", h.Windows)
	g.GET("/opportunities", h.Opportunities)
	g.GET("/opportunities/:id", h.Opportunity)
	g.POST("/admin/recompute", h.Recompute)

	if h.hub != nil {
		e.GET("/ws/snapshots", h.hub.Serve)
	}
}

func (h *BazaarEchoHandler) Products(c echo.Context) error {
	req := &models.ProductListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	page, err := h.market.List(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "products", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.ListResponse(c, page.Rows, int64(page.Total), page.Page, page.Limit)
}

func (h *BazaarEchoHandler) Product(c echo.Context) error {
	req := &models.ProductRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap, err := h.market.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "product", err)
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *BazaarEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, ok := optionalTime(req.From)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid from: %q", req.From))
	}
	to, ok := optionalTime(req.To)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid to: %q", req.To))
	}

	sums, err := h.history.Range(c.Request().Context(), req.ID, from, to, req.Detail)
	if err != nil {
		return h.fail(c, "history", err)
	}
	return xhttp.SuccessResponse(c, sums)
}

func (h *BazaarEchoHandler) Windows(c echo.Context) error {
	start := time.Now()
	req := &models.WindowsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	windows, err := util.ParseInts(req.Windows)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid windows: %v", err))
	}

	rows, err := h.agg.Windows(c.Request().Context(), xhttp.SplitCSV(req.Products), windows)
	if err != nil {
		return h.fail(c, "windows", err)
	}
	apimetrics.APILatency.WithLabelValues("windows").Observe(time.Since(start).Seconds())
	return xhttp.SuccessResponse(c, rows)
}

func (h *BazaarEchoHandler) Opportunities(c echo.Context) error {
	req := &models.OpportunityListRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	page, err := h.opps.List(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "opportunities", err)
	}
	return xhttp.ListResponse(c, page.Rows, int64(page.Total), page.Page, page.Limit)
}

func (h *BazaarEchoHandler) Opportunity(c echo.Context) error {
	req := &models.OpportunityRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	o, err := h.opps.Get(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "opportunity", err)
	}
	return xhttp.SuccessResponse(c, o)
}

func (h *BazaarEchoHandler) Recompute(c echo.Context) error {
	req := &models.RecomputeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.admin.Recompute(c.Request().Context(), *req); err != nil {
		return h.fail(c, "recompute", err)
	}
	return xhttp.AcceptedResponse(c, map[string]string{"task": req.Task})
}

// fail maps domain errors onto the HTTP envelope.
func (h *BazaarEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	switch {
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundError(err.Error()))
	case errors.Is(err, domrepo.ErrInvalidInput):
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError(err.Error()))
	}
	apimetrics.APIErrors.WithLabelValues(endpoint).Inc()
	h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalError("internal error").WithError(err))
}

// optionalTime accepts an empty string as the zero time.
func optionalTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, true
	}
	return util.ParseTime(s)
}
