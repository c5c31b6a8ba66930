package order

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// AssetInput 为调用方提交的单个资产原始参数。
type AssetInput struct {
	Symbol            string
	AssetClass        string
	AllocationPercent *decimal.Decimal
	DollarAmount      *decimal.Decimal
	UnitPrice         *decimal.Decimal
}

// Asset 为归一化后的资产参数。
type Asset struct {
	Symbol     string
	AssetClass AssetClass
	// Percent 仅在按比例模式下有效。
	Percent decimal.Decimal
	// Amount 仅在按金额模式下有效。
	Amount    decimal.Decimal
	UnitPrice *decimal.Decimal
}

// Request 是按比例或按金额两种请求的封闭联合类型。
type Request interface {
	Mode() Mode
	Items() []Asset
	sealed()
}

// AllocationRequest 按总金额与百分比拆分。
type AllocationRequest struct {
	Total  decimal.Decimal
	Assets []Asset
}

func (AllocationRequest) Mode() Mode       { return ModeAllocation }
func (r AllocationRequest) Items() []Asset { return r.Assets }
func (AllocationRequest) sealed()          {}

// AmountRequest 按各资产金额下单，总额由金额汇总得出。
type AmountRequest struct {
	Assets []Asset
}

func (AmountRequest) Mode() Mode       { return ModeAmount }
func (r AmountRequest) Items() []Asset { return r.Assets }
func (AmountRequest) sealed()          {}

// NormalizeSymbol 去除空白并转为大写。
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Resolve 在边界处一次性确定请求模式并完成参数校验。
func Resolve(total *decimal.Decimal, inputs []AssetInput) (Request, error) {
	if len(inputs) == 0 {
		return nil, InvalidPortfolio("portfolio must contain at least one asset")
	}

	assets := make([]Asset, 0, len(inputs))
	seen := make(map[string]int, len(inputs))
	var (
		missing    int
		duplicates []string
		badClasses []string
		badPrices  []string
	)
	withPercent, withAmount := 0, 0

	for _, in := range inputs {
		symbol := NormalizeSymbol(in.Symbol)
		if symbol == "" {
			missing++
			continue
		}
		seen[symbol]++
		if seen[symbol] == 2 {
			duplicates = append(duplicates, symbol)
		}

		class, ok := ParseAssetClass(in.AssetClass)
		if !ok {
			badClasses = append(badClasses, symbol)
		}
		if in.UnitPrice != nil && !in.UnitPrice.IsPositive() {
			badPrices = append(badPrices, symbol)
		}
		if in.AllocationPercent != nil {
			withPercent++
		}
		if in.DollarAmount != nil {
			withAmount++
		}

		asset := Asset{Symbol: symbol, AssetClass: class, UnitPrice: in.UnitPrice}
		if in.AllocationPercent != nil {
			asset.Percent = *in.AllocationPercent
		}
		if in.DollarAmount != nil {
			asset.Amount = *in.DollarAmount
		}
		assets = append(assets, asset)
	}

	switch {
	case missing > 0:
		return nil, InvalidPortfolio("symbol is required")
	case len(duplicates) > 0:
		sort.Strings(duplicates)
		return nil, InvalidPortfolio("duplicate symbols in portfolio", duplicates...)
	case len(badClasses) > 0:
		return nil, InvalidPortfolio("unknown asset class", badClasses...)
	case len(badPrices) > 0:
		return nil, InvalidPortfolio("unit price must be positive", badPrices...)
	}

	n := len(assets)
	switch {
	case withPercent == n && withAmount == 0 && total != nil:
		if !total.IsPositive() {
			return nil, InvalidPortfolio("total amount must be positive")
		}
		var outOfRange []string
		for _, a := range assets {
			if a.Percent.IsNegative() || a.Percent.GreaterThan(hundred) {
				outOfRange = append(outOfRange, a.Symbol)
			}
		}
		if len(outOfRange) > 0 {
			return nil, InvalidPortfolio("allocation must be between 0 and 100", outOfRange...)
		}
		return AllocationRequest{Total: *total, Assets: assets}, nil
	case withAmount == n && withPercent == 0 && total == nil:
		var nonPositive []string
		for _, a := range assets {
			if !a.Amount.IsPositive() {
				nonPositive = append(nonPositive, a.Symbol)
			}
		}
		if len(nonPositive) > 0 {
			return nil, InvalidPortfolio("amount must be positive", nonPositive...)
		}
		return AmountRequest{Assets: assets}, nil
	default:
		return nil, InvalidPortfolio("mixed or missing mode: supply totalAmount with allocation on every asset, or amount on every asset without totalAmount")
	}
}
