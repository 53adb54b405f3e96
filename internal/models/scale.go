package models

import "github.com/shopspring/decimal"

// Decimal places kept by the database columns. Values are rounded to these
// before they are written so that a snapshot hashes what is actually stored.
const (
	MoneyScale    int32 = 2
	NavScale      int32 = 6
	SharesScale   int32 = 0
	RatioScale    int32 = 4
	WeightScale   int32 = 6
	QuantityScale int32 = 6
)

// RoundToStorage rounds every decimal field to the scale of its column
func (p *Portfolio) RoundToStorage() {
	p.TotalMarketValue = roundTo(p.TotalMarketValue, MoneyScale)
	p.NavPerShare = roundTo(p.NavPerShare, NavScale)
	p.TotalSharesOutstanding = roundTo(p.TotalSharesOutstanding, SharesScale)
	p.MinimumInvestment = roundTo(p.MinimumInvestment, MoneyScale)
	p.MaxIndividualWeight = roundTo(p.MaxIndividualWeight, RatioScale)
	p.MinIndividualWeight = roundTo(p.MinIndividualWeight, RatioScale)
	p.CashTargetPercentage = roundTo(p.CashTargetPercentage, RatioScale)
	p.ManagementFee = roundTo(p.ManagementFee, RatioScale)
	p.PerformanceFee = roundTo(p.PerformanceFee, RatioScale)
	p.ExpenseRatio = roundTo(p.ExpenseRatio, RatioScale)
}

// RoundToStorage rounds every decimal field to the scale of its column
func (c *Constituent) RoundToStorage() {
	c.Weight = c.Weight.Round(WeightScale)
	c.TargetWeight = roundTo(c.TargetWeight, WeightScale)
	c.Units = c.Units.Round(QuantityScale)
	c.MarketPrice = c.MarketPrice.Round(QuantityScale)
}

// roundTo returns a rounded copy so callers sharing the pointer are not affected
func roundTo(d *decimal.Decimal, places int32) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := d.Round(places)
	return &r
}
