package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/types"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestPortfolio(symbol string) *models.Portfolio {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Portfolio{
		ID:                    uuid.New(),
		Symbol:                symbol,
		Name:                  symbol + " Portfolio",
		PortfolioType:         types.PortfolioTypeIndex,
		BaseCurrency:          types.CurrencyUSD,
		AssetClass:            types.AssetClassEquity,
		WeightingMethodology:  types.WeightingEqual,
		RebalanceFrequency:    types.RebalanceQuarterly,
		InceptionDate:         time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:                types.StatusActive,
		Calendar:              types.CalendarWeekdays,
		BusinessDayConvention: types.ConventionFollowing,
		IsActive:              true,
		AllowFractionalShares: true,
		CustomFields:          map[string]interface{}{"region": "US"},
		Tags:                  []string{"core"},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func newTestConstituent(portfolioID uuid.UUID, assetID string, weight string) *models.Constituent {
	return &models.Constituent{
		ID:          uuid.New(),
		PortfolioID: portfolioID,
		AssetID:     assetID,
		AssetClass:  types.AssetClassEquity,
		Currency:    types.CurrencyUSD,
		Weight:      decimal.RequireFromString(weight),
		Units:       decimal.NewFromInt(100),
		MarketPrice: decimal.RequireFromString("10.5"),
		IsActive:    true,
		AddedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func newTestVersion(portfolioID uuid.UUID, number int, previous *uuid.UUID) *models.PortfolioVersion {
	return &models.PortfolioVersion{
		ID:                uuid.New(),
		PortfolioID:       portfolioID,
		VersionNumber:     number,
		PortfolioState:    map[string]interface{}{"symbol": "TEST", "version_marker": number},
		ConstituentsState: []map[string]interface{}{{"asset_id": "AAPL", "weight": "0.5"}},
		OperationType:     types.OperationUpdate,
		CreatedBy:         "tester",
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
		StateHash:         "0000000000000000000000000000000000000000000000000000000000000000",
		PreviousVersionID: previous,
	}
}
