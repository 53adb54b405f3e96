package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnumValidation(t *testing.T) {
	t.Run("asset class", func(t *testing.T) {
		assert.True(t, AssetClassEquity.IsValid())
		assert.True(t, AssetClassMultiAsset.IsValid())
		assert.False(t, AssetClass("BOND").IsValid())
		assert.False(t, AssetClass("").IsValid())
	})

	t.Run("holding asset classes exclude multi asset", func(t *testing.T) {
		assert.True(t, AssetClassEquity.IsHolding())
		assert.True(t, AssetClassFixedIncome.IsHolding())
		assert.False(t, AssetClassMultiAsset.IsHolding())
	})

	t.Run("operation type", func(t *testing.T) {
		for _, op := range []OperationType{
			OperationCreate, OperationUpdate, OperationDelete, OperationRebalance,
			OperationAddConstituent, OperationRemoveConstituent, OperationRollback, OperationManualEdit,
		} {
			assert.True(t, op.IsValid(), string(op))
		}
		assert.False(t, OperationType("create").IsValid())
	})

	t.Run("currency", func(t *testing.T) {
		assert.True(t, CurrencyUSD.IsValid())
		assert.True(t, Currency("NOK").IsValid())
		assert.False(t, Currency("usd").IsValid())
		assert.False(t, Currency("US").IsValid())
	})

	t.Run("status and risk", func(t *testing.T) {
		assert.True(t, StatusClosedToNewInvestors.IsValid())
		assert.False(t, PortfolioStatus("OPEN").IsValid())
		assert.True(t, RiskExtreme.IsValid())
		assert.False(t, RiskLevel("MEDIUM").IsValid())
	})
}

func TestRebalanceFrequencyPeriod(t *testing.T) {
	tests := []struct {
		freq                RebalanceFrequency
		years, months, days int
		ok                  bool
	}{
		{RebalanceDaily, 0, 0, 1, true},
		{RebalanceBiWeekly, 0, 0, 14, true},
		{RebalanceQuarterly, 0, 3, 0, true},
		{RebalanceAnnually, 1, 0, 0, true},
		{RebalanceOnDemand, 0, 0, 0, false},
		{RebalanceNever, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.freq), func(t *testing.T) {
			y, m, d, ok := tt.freq.Period()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.years, y)
			assert.Equal(t, tt.months, m)
			assert.Equal(t, tt.days, d)
		})
	}
}
