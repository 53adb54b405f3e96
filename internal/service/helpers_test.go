package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-versioning/internal/config"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/types"
	"github.com/portfolio-versioning/internal/versioning"
)

const testActor = "pm@example.com"

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestService(t *testing.T) (*PortfolioService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	engine := versioning.NewEngine(store, nil, config.VersioningConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, prometheus.NewRegistry(), logging.Nop())
	return NewPortfolioService(store, engine, logging.Nop()), store
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func newPortfolio(symbol string) *models.Portfolio {
	return &models.Portfolio{
		Symbol:               symbol,
		Name:                 symbol + " Core",
		PortfolioType:        types.PortfolioTypeIndex,
		BaseCurrency:         types.CurrencyUSD,
		AssetClass:           types.AssetClassMultiAsset,
		WeightingMethodology: types.WeightingFixed,
		RebalanceFrequency:   types.RebalanceQuarterly,
		InceptionDate:        time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:               types.StatusActive,
		ManagementFee:        decPtr("0.0075"),
		IsActive:             true,
		Tags:                 []string{"core"},
	}
}

func holding(class types.AssetClass, assetID, weight, units, price string) *models.Constituent {
	return &models.Constituent{
		AssetID:     assetID,
		AssetClass:  class,
		Weight:      dec(weight),
		Units:       dec(units),
		MarketPrice: dec(price),
		IsActive:    true,
	}
}

func equity(assetID, weight string) *models.Constituent {
	return holding(types.AssetClassEquity, assetID, weight, "100", "10")
}

// createAlpha stores ALPHA holding AAPL and MSFT at 0.6 and 0.4
func createAlpha(t *testing.T, svc *PortfolioService) *MutationResult {
	t.Helper()
	in := newPortfolio("alpha")
	in.Name = "ALPHA Core"
	res, err := svc.CreatePortfolio(testContext(t), CreatePortfolioInput{
		Portfolio:    in,
		Constituents: []*models.Constituent{equity("AAPL", "0.6"), equity("MSFT", "0.4")},
		Actor:        testActor,
	})
	require.NoError(t, err)
	return res
}

func weightsOf(cs []*models.Constituent) map[string]string {
	out := make(map[string]string, len(cs))
	for _, c := range cs {
		out[c.AssetID] = c.Weight.String()
	}
	return out
}
