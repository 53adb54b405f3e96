package service

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portfolio-versioning/internal/config"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/versioning"
)

// numericStore rounds decimals on write the way fixed-scale NUMERIC columns do
type numericStore struct {
	*storage.MemoryStore
}

func (s numericStore) RunInTx(ctx context.Context, fn storage.TxFunc) error {
	return s.MemoryStore.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, numericTx{tx})
	})
}

type numericTx struct {
	storage.Tx
}

func (t numericTx) InsertPortfolio(ctx context.Context, p *models.Portfolio) error {
	stored := p.Clone()
	stored.RoundToStorage()
	return t.Tx.InsertPortfolio(ctx, stored)
}

func (t numericTx) UpdatePortfolio(ctx context.Context, p *models.Portfolio) error {
	stored := p.Clone()
	stored.RoundToStorage()
	return t.Tx.UpdatePortfolio(ctx, stored)
}

func (t numericTx) InsertConstituent(ctx context.Context, c *models.Constituent) error {
	stored := c.Clone()
	stored.RoundToStorage()
	return t.Tx.InsertConstituent(ctx, stored)
}

func (t numericTx) UpdateConstituent(ctx context.Context, c *models.Constituent) error {
	stored := c.Clone()
	stored.RoundToStorage()
	return t.Tx.UpdateConstituent(ctx, stored)
}

func newNumericService(t *testing.T) *PortfolioService {
	t.Helper()
	store := numericStore{storage.NewMemoryStore()}
	engine := versioning.NewEngine(store, nil, config.VersioningConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}, prometheus.NewRegistry(), logging.Nop())
	return NewPortfolioService(store, engine, logging.Nop())
}

func TestOverScaleDecimals_HashWhatIsStored(t *testing.T) {
	ctx := testContext(t)
	svc := newNumericService(t)

	in := newPortfolio("scale")
	in.ManagementFee = decPtr("0.00125")
	in.NavPerShare = decPtr("10.1234567")
	created, err := svc.CreatePortfolio(ctx, CreatePortfolioInput{
		Portfolio:    in,
		Constituents: []*models.Constituent{equity("AAPL", "0.33333333"), equity("MSFT", "0.66666667")},
		Actor:        testActor,
	})
	require.NoError(t, err)
	v1 := created.Version
	id := created.Portfolio.ID
	assert.Equal(t, "0.0013", v1.PortfolioState["management_fee"])
	assert.Equal(t, "10.123457", v1.PortfolioState["nav_per_share"])

	edit, err := svc.RecordManualEdit(ctx, id, testActor, "audit checkpoint", nil)
	require.NoError(t, err)
	assert.Equal(t, v1.StateHash, edit.Version.StateHash)

	diff, err := svc.Compare(ctx, id, 1, 2)
	require.NoError(t, err)
	assert.Empty(t, diff.PortfolioChanges)
	assert.Empty(t, diff.ConstituentsChanges.Modified)

	_, err = svc.UpdatePortfolio(ctx, id, UpdatePortfolioInput{ExpenseRatio: decPtr("0.000049"), Actor: testActor})
	require.NoError(t, err)

	rolled, err := svc.Rollback(ctx, id, 1, testActor, nil)
	require.NoError(t, err)
	assert.Equal(t, v1.StateHash, rolled.Version.StateHash)

	after, err := svc.RecordManualEdit(ctx, id, testActor, "post-rollback checkpoint", nil)
	require.NoError(t, err)
	assert.Equal(t, v1.StateHash, after.Version.StateHash)

	report, err := svc.VerifyIntegrity(ctx, id)
	require.NoError(t, err)
	assert.True(t, report.Valid)
}
