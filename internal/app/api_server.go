package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"order-splitter/internal/config"
	"order-splitter/internal/execution"
	"order-splitter/internal/index"
	"order-splitter/internal/monitor"
	"order-splitter/internal/order"
)

const (
	defaultEventLimit = 200
	maxEventLimit     = 1000
)

type eventLister interface {
	ListEvents(ctx context.Context, eventType monitor.EventType, limit int) ([]monitor.Event, error)
}

type assetPayload struct {
	Symbol     string           `json:"symbol"`
	AssetClass string           `json:"assetClass"`
	Allocation *decimal.Decimal `json:"allocation"`
	Amount     *decimal.Decimal `json:"amount"`
	Price      *decimal.Decimal `json:"price"`
}

type orderPayload struct {
	TotalAmount *decimal.Decimal `json:"totalAmount"`
	Portfolio   []assetPayload   `json:"portfolio"`
}

type precisionPayload struct {
	SharePrecision *int `json:"sharePrecision"`
}

// requestError 表示查询参数等请求格式错误，统一返回 400 invalid_request。
type requestError struct {
	message string
}

func (e *requestError) Error() string {
	return e.message
}

func invalidRequest(format string, args ...interface{}) error {
	return &requestError{message: fmt.Sprintf(format, args...)}
}

type apiHandler struct {
	coord  execution.Creator
	events eventLister
	logger *zap.Logger
}

func newRouter(coord execution.Creator, events eventLister, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &apiHandler{coord: coord, events: events, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery(), accessLog(logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.POST("/orders/buy", h.createOrder(order.SideBuy))
	api.POST("/orders/sell", h.createOrder(order.SideSell))
	api.GET("/orders", h.queryOrders)
	api.DELETE("/orders", h.resetOrders)
	api.GET("/orders/stats", h.stats)
	api.GET("/orders/:id", h.getOrder)
	api.GET("/market/status", h.marketStatus)
	api.GET("/settings/precision", h.getPrecision)
	api.PUT("/settings/precision", h.setPrecision)
	api.GET("/events", h.listEvents)

	return r
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP 请求",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (h *apiHandler) createOrder(side order.Side) gin.HandlerFunc {
	return func(c *gin.Context) {
		var payload orderPayload
		if err := c.ShouldBindJSON(&payload); err != nil {
			respondError(c, order.InvalidPortfolio("invalid request body: "+err.Error()))
			return
		}

		inputs := make([]order.AssetInput, len(payload.Portfolio))
		for i, asset := range payload.Portfolio {
			inputs[i] = order.AssetInput{
				Symbol:            asset.Symbol,
				AssetClass:        asset.AssetClass,
				AllocationPercent: asset.Allocation,
				DollarAmount:      asset.Amount,
				UnitPrice:         asset.Price,
			}
		}

		o, err := h.coord.Submit(c.Request.Context(), side, payload.TotalAmount, inputs)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, o)
	}
}

func (h *apiHandler) getOrder(c *gin.Context) {
	o, err := h.coord.GetOrder(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (h *apiHandler) queryOrders(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	offset, err := intQuery(c, "offset")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.coord.QueryOrders(filter, limit, offset))
}

func (h *apiHandler) resetOrders(c *gin.Context) {
	cleared := h.coord.Reset(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (h *apiHandler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.Stats())
}

func (h *apiHandler) marketStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.coord.MarketStatus())
}

func (h *apiHandler) getPrecision(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sharePrecision": h.coord.Precision()})
}

func (h *apiHandler) setPrecision(c *gin.Context) {
	var payload precisionPayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.SharePrecision == nil {
		respondError(c, invalidRequest("sharePrecision is required"))
		return
	}
	if err := h.coord.SetPrecision(c.Request.Context(), *payload.SharePrecision); err != nil {
		respondError(c, invalidRequest("%s", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sharePrecision": h.coord.Precision()})
}

func (h *apiHandler) listEvents(c *gin.Context) {
	limit := defaultEventLimit
	if qs := c.Query("limit"); qs != "" {
		if v, err := strconv.Atoi(qs); err == nil && v > 0 {
			if v > maxEventLimit {
				v = maxEventLimit
			}
			limit = v
		}
	}

	eventType := monitor.EventType(strings.ToLower(strings.TrimSpace(c.Query("type"))))
	events, err := h.events.ListEvents(c.Request.Context(), eventType, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *apiHandler) fail(c *gin.Context, err error) {
	var domainErr *order.Error
	if !errors.As(err, &domainErr) {
		h.logger.Error("请求处理失败", zap.String("path", c.FullPath()), zap.Error(err))
	}
	respondError(c, err)
}

func respondError(c *gin.Context, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": reqErr.message})
		return
	}

	var domainErr *order.Error
	if !errors.As(err, &domainErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": "internal server error"})
		return
	}

	status := http.StatusBadRequest
	if domainErr.Kind == order.KindNotFound {
		status = http.StatusNotFound
	}
	body := gin.H{"error": string(domainErr.Kind), "message": domainErr.Message}
	if len(domainErr.Symbols) > 0 {
		body["symbols"] = domainErr.Symbols
	}
	if domainErr.ID != "" {
		body["id"] = domainErr.ID
	}
	c.JSON(status, body)
}

func parseFilter(c *gin.Context) (index.Filter, error) {
	var f index.Filter

	if raw := c.Query("side"); raw != "" {
		side, err := order.ParseSide(raw)
		if err != nil {
			return f, invalidRequest("unknown side %q", raw)
		}
		f.Side = side
	}
	if raw := c.Query("symbol"); raw != "" {
		f.Symbol = order.NormalizeSymbol(raw)
	}
	if raw := c.Query("assetClass"); raw != "" {
		class, ok := order.ParseAssetClass(raw)
		if !ok {
			return f, invalidRequest("unknown asset class %q", raw)
		}
		f.AssetClass = class
	}

	from, err := timeQuery(c, "from", false)
	if err != nil {
		return f, err
	}
	f.From = from

	to, err := timeQuery(c, "to", true)
	if err != nil {
		return f, err
	}
	f.To = to

	return f, nil
}

// timeQuery 接受 RFC3339 或纯日期；纯日期作为上界时取当天结束。
func timeQuery(c *gin.Context, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return &ts, nil
	}
	day, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, invalidRequest("invalid %s date %q", key, raw)
	}
	if endOfDay {
		day = day.Add(24*time.Hour - time.Nanosecond)
	}
	return &day, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidRequest("invalid %s %q", key, raw)
	}
	return v, nil
}

// serveHTTP 阻塞运行 HTTP 服务，ctx 结束后优雅关闭。
func serveHTTP(ctx context.Context, handler http.Handler, cfg config.ServerConfig, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("订单接口已启动", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("订单接口异常: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("关闭订单接口失败: %w", err)
		}
		return nil
	})

	return group.Wait()
}
