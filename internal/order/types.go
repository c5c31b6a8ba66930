package order

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide 解析下单方向，大小写不敏感。
func ParseSide(raw string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(raw))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	default:
		return "", InvalidPortfolio("unknown order side " + strings.TrimSpace(raw))
	}
}

// AssetClass 表示资产类别。
type AssetClass string

const (
	AssetClassStock     AssetClass = "stock"
	AssetClassETF       AssetClass = "etf"
	AssetClassCrypto    AssetClass = "crypto"
	AssetClassCommodity AssetClass = "commodity"
	AssetClassBond      AssetClass = "bond"
	AssetClassFund      AssetClass = "fund"
)

var knownAssetClasses = map[AssetClass]struct{}{
	AssetClassStock:     {},
	AssetClassETF:       {},
	AssetClassCrypto:    {},
	AssetClassCommodity: {},
	AssetClassBond:      {},
	AssetClassFund:      {},
}

// ParseAssetClass 归一化资产类别，空字符串表示未标注。
func ParseAssetClass(raw string) (AssetClass, bool) {
	class := AssetClass(strings.ToLower(strings.TrimSpace(raw)))
	if class == "" {
		return "", true
	}
	_, ok := knownAssetClasses[class]
	return class, ok
}

// Mode 表示金额的提供方式：按比例或按金额。
type Mode string

const (
	ModeAllocation Mode = "allocation"
	ModeAmount     Mode = "amount"
)

// Line 是单个资产的拆单结果。
type Line struct {
	Symbol            string          `json:"symbol"`
	AssetClass        AssetClass      `json:"assetClass,omitempty"`
	AllocationPercent decimal.Decimal `json:"allocationPercent"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	DollarAmount      decimal.Decimal `json:"dollarAmount"`
	Units             decimal.Decimal `json:"units"`
	Cost              decimal.Decimal `json:"cost"`
}

// Order 为计算完成并入库的订单，入库后不可修改。
type Order struct {
	ID                   string          `json:"id"`
	Side                 Side            `json:"side"`
	RequestedTotal       decimal.Decimal `json:"requestedTotal"`
	Lines                []Line          `json:"assets"`
	ExecutionInstant     time.Time       `json:"executionInstant"`
	ExecutableNow        bool            `json:"executableNow"`
	NextAvailableInstant *time.Time      `json:"nextAvailableInstant,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	SharePrecision       int             `json:"sharePrecision"`
	Mode                 Mode            `json:"mode"`
}

// Clone 返回深拷贝。
func (o Order) Clone() Order {
	cp := o
	if o.Lines != nil {
		cp.Lines = make([]Line, len(o.Lines))
		copy(cp.Lines, o.Lines)
	}
	if o.NextAvailableInstant != nil {
		next := *o.NextAvailableInstant
		cp.NextAvailableInstant = &next
	}
	return cp
}

// Symbols 按明细顺序返回去重后的标的。
func (o Order) Symbols() []string {
	seen := make(map[string]struct{}, len(o.Lines))
	out := make([]string, 0, len(o.Lines))
	for _, line := range o.Lines {
		if _, ok := seen[line.Symbol]; ok {
			continue
		}
		seen[line.Symbol] = struct{}{}
		out = append(out, line.Symbol)
	}
	return out
}

// AssetClasses 返回去重后的非空资产类别。
func (o Order) AssetClasses() []AssetClass {
	seen := make(map[AssetClass]struct{}, len(o.Lines))
	out := make([]AssetClass, 0, len(o.Lines))
	for _, line := range o.Lines {
		if line.AssetClass == "" {
			continue
		}
		if _, ok := seen[line.AssetClass]; ok {
			continue
		}
		seen[line.AssetClass] = struct{}{}
		out = append(out, line.AssetClass)
	}
	return out
}

// TotalCost 汇总各明细成本。
func (o Order) TotalCost() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.Cost)
	}
	return total
}
