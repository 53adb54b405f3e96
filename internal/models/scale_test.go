package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestPortfolio_RoundToStorage(t *testing.T) {
	fee := decPtr("0.00125")
	p := &Portfolio{
		ManagementFee:          fee,
		NavPerShare:            decPtr("101.1234567"),
		TotalSharesOutstanding: decPtr("1000.5"),
		MinimumInvestment:      decPtr("2500.005"),
		CashTargetPercentage:   decPtr("0.02"),
	}
	p.RoundToStorage()

	assert.Equal(t, "0.0013", p.ManagementFee.String())
	assert.Equal(t, "101.123457", p.NavPerShare.String())
	assert.Equal(t, "1001", p.TotalSharesOutstanding.String())
	assert.Equal(t, "2500.01", p.MinimumInvestment.String())
	assert.Equal(t, "0.02", p.CashTargetPercentage.String())
	assert.Nil(t, p.PerformanceFee)
	assert.Equal(t, "0.00125", fee.String(), "the caller's value is left alone")
}

func TestConstituent_RoundToStorage(t *testing.T) {
	c := &Constituent{
		Weight:       decimal.RequireFromString("0.33333333"),
		TargetWeight: decPtr("0.1234565"),
		Units:        decimal.RequireFromString("12.0000004"),
		MarketPrice:  decimal.RequireFromString("98.5"),
	}
	c.RoundToStorage()

	assert.Equal(t, "0.333333", c.Weight.String())
	assert.Equal(t, "0.123457", c.TargetWeight.String())
	assert.Equal(t, "12", c.Units.String())
	assert.Equal(t, "98.5", c.MarketPrice.String())
}
