package api

import (
	"errors"
	"time"

	"TradeSim/internal/domain/models"
	drepo "TradeSim/internal/domain/repository"
	"TradeSim/internal/service/ratelimit"
	"TradeSim/internal/service/stream"
	"TradeSim/internal/signal"
	"TradeSim/internal/usecase"
	xhttp "TradeSim/pkg/http"
	xlogger "TradeSim/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DashboardEchoHandler exposes the challenge dashboard over HTTP: holdings,
// signals, trade plans, risk alerts and order placement.
type DashboardEchoHandler struct {
	logger    *xlogger.Logger
	dashboard *usecase.Dashboard
	orders    *usecase.OrderPlacer
	trades    drepo.TradeStore
	hub       *stream.Hub
	rl        *ratelimit.Limiter
}

func NewDashboardEchoHandler(
	logger *xlogger.Logger,
	dashboard *usecase.Dashboard,
	orders *usecase.OrderPlacer,
	trades drepo.TradeStore,
	hub *stream.Hub,
) *DashboardEchoHandler {
	return &DashboardEchoHandler{
		logger:    logger,
		dashboard: dashboard,
		orders:    orders,
		trades:    trades,
		hub:       hub,
		rl:        ratelimit.New(),
	}
}

func (h *DashboardEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/challenges/:id/dashboard", h.Dashboard)
	g.GET("/challenges/:id/holdings", h.Holdings)
	g.GET("/challenges/:id/trades", h.Trades)
	g.POST("/challenges/:id/orders", h.PlaceOrder)
	g.PUT("/challenges/:id/instrument", h.SelectInstrument)
	g.GET("/signals", h.Signals)
	g.GET("/signals/opportunities", h.Opportunities)
	g.GET("/signals/:symbol/plan", h.Plan)
	g.GET("/signals/:symbol/alert", h.Alert)
	g.GET("/ws", h.Stream)
	e.GET("/healthz", h.Health)
}

// ensureChallenge switches the dashboard when the requested challenge differs
// from the current one. The switch paints from cache first, so the snapshot
// returned right after may still be converging.
func (h *DashboardEchoHandler) ensureChallenge(c echo.Context, id string) error {
	snap := h.dashboard.Snapshot()
	if snap != nil && snap.ChallengeID == id {
		return nil
	}
	return h.dashboard.SelectChallenge(c.Request().Context(), id)
}

func (h *DashboardEchoHandler) Dashboard(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "challenge id required")
	}
	if err := h.ensureChallenge(c, id); err != nil {
		h.logger.Error("dashboard load error", xlogger.String("challenge_id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, h.dashboard.Snapshot())
}

func (h *DashboardEchoHandler) Holdings(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "challenge id required")
	}
	if err := h.ensureChallenge(c, id); err != nil {
		h.logger.Error("holdings load error", xlogger.String("challenge_id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	snap := h.dashboard.Snapshot()
	return xhttp.ListResponse(c, snap.Holdings, int64(len(snap.Holdings)))
}

func (h *DashboardEchoHandler) Trades(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "challenge id required")
	}
	req := &models.ListTradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, err := parseTradeWindow(req.From, req.To)
	if err != nil {
		return xhttp.BadRequestResponse(c, err.Error())
	}

	ctx := c.Request().Context()
	rows, err := h.trades.List(ctx, id, from, to, req.Limit)
	if err != nil {
		h.logger.Error("trade list error", xlogger.String("challenge_id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	total, err := h.trades.Count(ctx, id)
	if err != nil {
		total = int64(len(rows))
	}
	return xhttp.ListResponse(c, rows, total)
}

func (h *DashboardEchoHandler) PlaceOrder(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "challenge id required")
	}
	if !h.rl.Allow(c.RealIP()+":orders", 10, 2) {
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("rate_limited", "", "too many orders", 429))
	}
	req := &models.PlaceOrderRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.ensureChallenge(c, id); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}

	ch := h.dashboard.Challenge()
	ticks := h.dashboard.Ticks()
	var tick *models.PriceTick
	if t, ok := ticks[req.Symbol]; ok {
		tick = &t
	}

	trade, updated, err := h.orders.Place(c.Request().Context(), ch, tick, req)
	if err != nil {
		h.logger.Warn("order rejected",
			xlogger.String("challenge_id", id),
			xlogger.String("symbol", req.Symbol),
			xlogger.Error(err))
		return orderErrorResponse(c, err)
	}
	h.dashboard.SetChallenge(updated)
	h.dashboard.OnTrade(c.Request().Context(), trade)
	return xhttp.CreatedResponse(c, trade)
}

func (h *DashboardEchoHandler) SelectInstrument(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return xhttp.BadRequestResponse(c, "challenge id required")
	}
	req := &models.SelectInstrumentRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.ensureChallenge(c, id); err != nil {
		return xhttp.AppErrorResponse(c, err)
	}
	h.dashboard.SelectInstrument(c.Request().Context(), req.Symbol)
	return xhttp.SuccessResponse(c, h.dashboard.Snapshot())
}

func (h *DashboardEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	snap := h.dashboard.Snapshot()
	if snap == nil {
		return xhttp.ListResponse(c, []models.Signal{}, 0)
	}
	if req.Symbol == "" {
		return xhttp.ListResponse(c, snap.Signals, int64(len(snap.Signals)))
	}
	for _, s := range snap.Signals {
		if s.Symbol == req.Symbol {
			return xhttp.SuccessResponse(c, s)
		}
	}
	return xhttp.NotFoundResponse(c, "no signal for symbol "+req.Symbol)
}

func (h *DashboardEchoHandler) Opportunities(c echo.Context) error {
	snap := h.dashboard.Snapshot()
	if snap == nil {
		return xhttp.ListResponse(c, []models.Signal{}, 0)
	}
	return xhttp.ListResponse(c, snap.Opportunities, int64(len(snap.Opportunities)))
}

func (h *DashboardEchoHandler) Plan(c echo.Context) error {
	tick, eng, ok := h.symbolEngine(c.Param("symbol"))
	if !ok {
		return xhttp.NotFoundResponse(c, "no market data for symbol "+c.Param("symbol"))
	}
	return xhttp.SuccessResponse(c, eng.Plan(tick))
}

func (h *DashboardEchoHandler) Alert(c echo.Context) error {
	tick, eng, ok := h.symbolEngine(c.Param("symbol"))
	if !ok {
		return xhttp.NotFoundResponse(c, "no market data for symbol "+c.Param("symbol"))
	}
	return xhttp.SuccessResponse(c, eng.Alert(tick))
}

// symbolEngine resolves a symbol to its latest tick and builds a signal
// engine sized to the active challenge's daily loss limit.
func (h *DashboardEchoHandler) symbolEngine(symbol string) (*models.PriceTick, *signal.Engine, bool) {
	t, ok := h.dashboard.Ticks()[symbol]
	if !ok {
		return nil, nil, false
	}
	limit := 5.0
	if ch := h.dashboard.Challenge(); ch != nil {
		limit = ch.DailyLossLimit()
	}
	return &t, signal.New(limit), true
}

func (h *DashboardEchoHandler) Stream(c echo.Context) error {
	return h.hub.Serve(c.Request().Context(), c.Response(), c.Request())
}

func (h *DashboardEchoHandler) Health(c echo.Context) error {
	if err := h.trades.Health(c.Request().Context()); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("trade store unavailable"))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func parseTradeWindow(from, to string) (time.Time, time.Time, error) {
	var f, t time.Time
	if from != "" {
		v, ok := xhttp.ParseTime(from)
		if !ok {
			return f, t, errors.New("from must be RFC3339 or unix seconds")
		}
		f = v
	}
	if to != "" {
		v, ok := xhttp.ParseTime(to)
		if !ok {
			return f, t, errors.New("to must be RFC3339 or unix seconds")
		}
		t = v
	}
	return f, t, nil
}

// orderErrorResponse maps order placement failures to HTTP statuses.
func orderErrorResponse(c echo.Context, err error) error {
	switch {
	case errors.Is(err, usecase.ErrNoChallenge):
		return xhttp.NotFoundResponse(c, "challenge not found")
	case errors.Is(err, usecase.ErrUnknownSymbol):
		return xhttp.BadRequestResponse(c, "unknown symbol")
	case errors.Is(err, usecase.ErrInvalidSide),
		errors.Is(err, usecase.ErrInvalidQuantity),
		errors.Is(err, usecase.ErrInsufficientBalance):
		return xhttp.BadRequestResponse(c, err.Error())
	default:
		return xhttp.AppErrorResponse(c, err)
	}
}
