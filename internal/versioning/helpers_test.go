package versioning

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-versioning/internal/config"
	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/types"
)

const testActor = "analyst@example.com"

func testConfig(attempts int) config.VersioningConfig {
	return config.VersioningConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestEngine(t *testing.T, store storage.Store, attempts int) *Engine {
	t.Helper()
	return NewEngine(store, nil, testConfig(attempts), prometheus.NewRegistry(), logging.Nop())
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string { return &s }

func newPortfolio(symbol string) *models.Portfolio {
	created := time.Date(2024, 3, 1, 9, 30, 0, 123456789, time.UTC)
	return &models.Portfolio{
		ID:                    uuid.New(),
		Symbol:                symbol,
		Name:                  symbol + " Growth",
		Description:           strPtr("Large cap growth"),
		PortfolioType:         types.PortfolioTypeIndex,
		BaseCurrency:          types.CurrencyUSD,
		AssetClass:            types.AssetClassMultiAsset,
		WeightingMethodology:  types.WeightingFixed,
		RebalanceFrequency:    types.RebalanceQuarterly,
		InceptionDate:         time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Status:                types.StatusActive,
		TotalMarketValue:      decPtr("1000000.00"),
		ManagementFee:         decPtr("0.0075"),
		Calendar:              types.CalendarWeekdays,
		BusinessDayConvention: types.ConventionFollowing,
		IsActive:              true,
		AllowFractionalShares: true,
		CustomFields:          map[string]interface{}{"region": "US", "score": 1.50},
		ComplianceRules:       []interface{}{map[string]interface{}{"rule": "max_weight", "limit": 0.25}},
		Tags:                  []string{"growth", "core"},
		CreatedAt:             created,
		UpdatedAt:             created,
	}
}

func newConstituent(portfolioID uuid.UUID, class types.AssetClass, assetID, weight string) *models.Constituent {
	return &models.Constituent{
		ID:           uuid.New(),
		PortfolioID:  portfolioID,
		AssetID:      assetID,
		AssetClass:   class,
		Currency:     types.CurrencyUSD,
		Weight:       dec(weight),
		TargetWeight: decPtr(weight),
		Units:        dec("100"),
		MarketPrice:  dec("25.50"),
		IsActive:     true,
		AddedAt:      time.Now().UTC(),
	}
}

// seed stores a portfolio with constituents directly, without a version
func seed(t *testing.T, store storage.Store, p *models.Portfolio, cs ...*models.Constituent) {
	t.Helper()
	err := store.RunInTx(testContext(t), func(ctx context.Context, tx storage.Tx) error {
		if err := tx.InsertPortfolio(ctx, p); err != nil {
			return err
		}
		for _, c := range cs {
			if err := tx.InsertConstituent(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

// faultyStore injects storage failures into transactions
type faultyStore struct {
	storage.Store

	mu                      sync.Mutex
	versionFailures         int
	failConstituentInsertAt int // 1-based, 0 disables
	constituentInserts      int
	skipLocks               bool
}

func (f *faultyStore) RunInTx(ctx context.Context, fn storage.TxFunc) error {
	return f.Store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, f: f})
	})
}

type faultyTx struct {
	storage.Tx
	f *faultyStore
}

func (t *faultyTx) LockPortfolio(ctx context.Context, id uuid.UUID) error {
	if t.f.skipLocks {
		return nil
	}
	return t.Tx.LockPortfolio(ctx, id)
}

func (t *faultyTx) InsertVersion(ctx context.Context, v *models.PortfolioVersion) error {
	t.f.mu.Lock()
	fail := t.f.versionFailures > 0
	if fail {
		t.f.versionFailures--
	}
	t.f.mu.Unlock()
	if fail {
		return apperrors.NewIntegrityError("uq_portfolio_versions_number", nil)
	}
	return t.Tx.InsertVersion(ctx, v)
}

func (t *faultyTx) InsertConstituent(ctx context.Context, c *models.Constituent) error {
	t.f.mu.Lock()
	t.f.constituentInserts++
	fail := t.f.failConstituentInsertAt > 0 && t.f.constituentInserts == t.f.failConstituentInsertAt
	t.f.mu.Unlock()
	if fail {
		return apperrors.NewDatabaseError("insert constituent", context.DeadlineExceeded)
	}
	return t.Tx.InsertConstituent(ctx, c)
}

func decodeJSONForTest(data []byte, dest interface{}) error {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	return d.Decode(dest)
}

func assertCanonicalEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	a, err := CanonicalJSON(expected)
	require.NoError(t, err)
	b, err := CanonicalJSON(actual)
	require.NoError(t, err)
	assert.JSONEq(t, string(a), string(b))
	assert.Equal(t, string(a), string(b))
}

func decFromFloat(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
