package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/types"
)

func TestTargetWeights(t *testing.T) {
	holdings := func() []*models.Constituent {
		a := holding(types.AssetClassEquity, "A", "0.5", "10", "30")
		a.TargetWeight = decPtr("0.4")
		b := holding(types.AssetClassEquity, "B", "0.5", "20", "35")
		c := holding(types.AssetClassEquity, "C", "0", "5", "70")
		c.IsActive = false
		return []*models.Constituent{a, b, c}
	}

	tests := []struct {
		method types.WeightingMethodology
		want   []string
	}{
		{types.WeightingEqual, []string{"0.5", "0.5", "0"}},
		{types.WeightingMarketCap, []string{"0.3", "0.7", "0"}},
		{types.WeightingPrice, []string{"0.461538", "0.538462", "0"}},
		{types.WeightingFixed, []string{"0.4", "0.5", "0"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			got, err := targetWeights(tt.method, holdings())
			require.NoError(t, err)
			require.Len(t, got, len(tt.want))
			for i, w := range tt.want {
				assert.Equal(t, w, got[i].String(), "constituent %d", i)
			}
		})
	}

	t.Run("zero market value", func(t *testing.T) {
		cs := []*models.Constituent{holding(types.AssetClassEquity, "A", "1", "0", "10")}
		_, err := targetWeights(types.WeightingMarketCap, cs)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("no active constituents", func(t *testing.T) {
		got, err := targetWeights(types.WeightingEqual, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown methodology", func(t *testing.T) {
		_, err := targetWeights("RISK_PARITY", holdings())
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestNormalizeWeights(t *testing.T) {
	cs := []*models.Constituent{equity("A", "0.6"), equity("B", "0.4"), equity("C", "0.2")}
	normalizeWeights(cs)
	assert.Equal(t, map[string]string{"A": "0.5", "B": "0.333333", "C": "0.166667"}, weightsOf(cs))
	for _, c := range cs {
		assert.True(t, c.Weight.Equal(*c.TargetWeight))
	}

	zero := []*models.Constituent{equity("A", "0")}
	normalizeWeights(zero)
	assert.True(t, zero[0].Weight.IsZero())
	assert.Nil(t, zero[0].TargetWeight)
}

func TestNextRebalanceDate(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	tests := []struct {
		name string
		from time.Time
		freq types.RebalanceFrequency
		cal  types.Calendar
		conv types.BusinessDayConvention
		want *time.Time
	}{
		{"monthly clamps to month end", date(2024, 1, 31), types.RebalanceMonthly, types.CalendarWeekdays, types.ConventionFollowing, ptr(date(2024, 2, 29))},
		{"annual from leap day", date(2024, 2, 29), types.RebalanceAnnually, types.CalendarWeekdays, types.ConventionFollowing, ptr(date(2025, 2, 28))},
		{"quarterly onto a weekend", date(2024, 6, 28), types.RebalanceQuarterly, types.CalendarNYSE, types.ConventionFollowing, ptr(date(2024, 9, 30))},
		{"following crosses month", date(2024, 3, 30), types.RebalanceDaily, types.CalendarWeekdays, types.ConventionFollowing, ptr(date(2024, 4, 1))},
		{"modified following stays in month", date(2024, 3, 30), types.RebalanceDaily, types.CalendarWeekdays, types.ConventionModifiedFollowing, ptr(date(2024, 3, 29))},
		{"preceding", date(2024, 3, 30), types.RebalanceDaily, types.CalendarWeekdays, types.ConventionPreceding, ptr(date(2024, 3, 29))},
		{"unadjusted", date(2024, 3, 30), types.RebalanceDaily, types.CalendarWeekdays, types.ConventionUnadjusted, ptr(date(2024, 3, 31))},
		{"null calendar has no holidays", date(2024, 3, 30), types.RebalanceDaily, types.CalendarNull, types.ConventionFollowing, ptr(date(2024, 3, 31))},
		{"weekly", date(2024, 6, 3), types.RebalanceWeekly, types.CalendarWeekdays, types.ConventionFollowing, ptr(date(2024, 6, 10))},
		{"on demand has no schedule", date(2024, 6, 3), types.RebalanceOnDemand, types.CalendarWeekdays, types.ConventionFollowing, nil},
		{"never has no schedule", date(2024, 6, 3), types.RebalanceNever, types.CalendarWeekdays, types.ConventionFollowing, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextRebalanceDate(tt.from, tt.freq, tt.cal, tt.conv)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }
