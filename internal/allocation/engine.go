package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"order-splitter/internal/order"
)

// Config 控制拆单引擎参数。
type Config struct {
	DefaultUnitPrice decimal.Decimal
	SumTolerance     decimal.Decimal
	DriftTolerance   decimal.Decimal
}

// DefaultConfig 返回默认拆单参数。
func DefaultConfig() Config {
	return Config{
		DefaultUnitPrice: decimal.NewFromInt(100),
		SumTolerance:     decimal.RequireFromString("0.01"),
		DriftTolerance:   decimal.RequireFromString("0.01"),
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if !c.DefaultUnitPrice.IsPositive() {
		c.DefaultUnitPrice = def.DefaultUnitPrice
	}
	if c.SumTolerance.IsNegative() || c.SumTolerance.IsZero() {
		c.SumTolerance = def.SumTolerance
	}
	if c.DriftTolerance.IsNegative() || c.DriftTolerance.IsZero() {
		c.DriftTolerance = def.DriftTolerance
	}
	return c
}

// Result 为一次拆单的计算结果。
type Result struct {
	Mode           order.Mode
	RequestedTotal decimal.Decimal
	Lines          []order.Line
	SharePrecision int
	CostTotal      decimal.Decimal
	// Drift = RequestedTotal - CostTotal，仅记录不修正。
	Drift decimal.Decimal
}

// Engine 将总金额按比例拆分到各资产。
type Engine struct {
	cfg    Config
	logger *zap.Logger
}

// NewEngine 创建拆单引擎。
func NewEngine(cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg.normalize(),
		logger: logger,
	}
}

// DefaultUnitPrice 返回未提供价格时使用的单价。
func (e *Engine) DefaultUnitPrice() decimal.Decimal {
	return e.cfg.DefaultUnitPrice
}

// DriftTolerance 返回成本对账容差。
func (e *Engine) DriftTolerance() decimal.Decimal {
	return e.cfg.DriftTolerance
}

// Split 计算各资产的金额、份额与成本，最后一个资产吸收舍入余数。
func (e *Engine) Split(side order.Side, req order.Request, precision int) (Result, error) {
	if precision < MinPrecision || precision > MaxPrecision {
		return Result{}, fmt.Errorf("allocation: share precision %d out of range [%d,%d]", precision, MinPrecision, MaxPrecision)
	}
	if req == nil || len(req.Items()) == 0 {
		return Result{}, order.InvalidPortfolio("portfolio must contain at least one asset")
	}

	assets := req.Items()
	total, percents, err := e.normalize(req)
	if err != nil {
		return Result{}, err
	}
	if err := e.validate(assets, percents); err != nil {
		return Result{}, err
	}

	lines := make([]order.Line, len(assets))
	allocated := decimal.Zero
	costTotal := decimal.Zero
	last := len(assets) - 1

	for i, a := range assets {
		dollar := RoundCents(percents[i].Mul(total).Div(hundred))
		if i == last {
			dollar = total.Sub(allocated)
		}
		allocated = allocated.Add(dollar)

		price := e.cfg.DefaultUnitPrice
		if a.UnitPrice != nil {
			price = *a.UnitPrice
		}
		units := Round(dollar.Div(price), precision)
		cost := RoundCents(units.Mul(price))
		costTotal = costTotal.Add(cost)

		lines[i] = order.Line{
			Symbol:            a.Symbol,
			AssetClass:        a.AssetClass,
			AllocationPercent: percents[i],
			UnitPrice:         price,
			DollarAmount:      dollar,
			Units:             units,
			Cost:              cost,
		}
	}

	result := Result{
		Mode:           req.Mode(),
		RequestedTotal: total,
		Lines:          lines,
		SharePrecision: precision,
		CostTotal:      costTotal,
		Drift:          total.Sub(costTotal),
	}

	if result.Drift.Abs().GreaterThan(e.cfg.DriftTolerance) {
		e.logger.Warn("拆单成本与请求总额存在偏差",
			zap.String("side", string(side)),
			zap.String("mode", string(result.Mode)),
			zap.String("requested_total", total.StringFixed(centPlaces)),
			zap.String("cost_total", costTotal.StringFixed(centPlaces)),
			zap.String("drift", result.Drift.StringFixed(centPlaces)),
			zap.Int("share_precision", precision),
		)
	}

	return result, nil
}

// validate 校验百分比：不得为 0，合计与 100 的偏差不得超过容差。
func (e *Engine) validate(assets []order.Asset, percents []decimal.Decimal) error {
	var zero []string
	sum := decimal.Zero
	for i, a := range assets {
		if percents[i].IsZero() {
			zero = append(zero, a.Symbol)
		}
		sum = sum.Add(percents[i])
	}
	if len(zero) > 0 {
		return order.InvalidPortfolio("allocation must be greater than 0", zero...)
	}
	if sum.Sub(hundred).Abs().GreaterThan(e.cfg.SumTolerance) {
		symbols := make([]string, len(assets))
		for i, a := range assets {
			symbols[i] = a.Symbol
		}
		return order.InvalidPortfolio(fmt.Sprintf("allocation sum is %s, must be 100", sum.String()), symbols...)
	}
	return nil
}

// normalize 返回总额与各资产百分比；按金额模式以金额合计为总额、按占比折算百分比。
func (e *Engine) normalize(req order.Request) (decimal.Decimal, []decimal.Decimal, error) {
	assets := req.Items()
	percents := make([]decimal.Decimal, len(assets))

	switch r := req.(type) {
	case order.AllocationRequest:
		for i, a := range r.Assets {
			percents[i] = a.Percent
		}
		return r.Total, percents, nil

	case order.AmountRequest:
		amounts := make([]decimal.Decimal, len(r.Assets))
		total := decimal.Zero
		var vanished []string
		for i, a := range r.Assets {
			amounts[i] = RoundCents(a.Amount)
			if !amounts[i].IsPositive() {
				vanished = append(vanished, a.Symbol)
			}
			total = total.Add(amounts[i])
		}
		if len(vanished) > 0 {
			return decimal.Zero, nil, order.InvalidPortfolio("amount rounds to zero cents", vanished...)
		}
		for i := range amounts {
			percents[i] = percentOf(amounts[i], total)
		}
		return total, percents, nil

	default:
		return decimal.Zero, nil, order.InvalidPortfolio(fmt.Sprintf("unsupported request type %T", req))
	}
}
