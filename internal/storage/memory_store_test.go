package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
)

func seedPortfolio(t *testing.T, s *MemoryStore, symbol string) *models.Portfolio {
	t.Helper()
	p := newTestPortfolio(symbol)
	err := s.RunInTx(testContext(t), func(ctx context.Context, tx Tx) error {
		return tx.InsertPortfolio(ctx, p)
	})
	require.NoError(t, err)
	return p
}

func TestMemoryStore_PortfolioLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := testContext(t)
	p := seedPortfolio(t, s, "ALPHA")

	got, err := s.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", got.Symbol)

	// Returned values are copies
	got.Symbol = "MUTATED"
	again, err := s.GetPortfolio(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "ALPHA", again.Symbol)

	err = s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeletePortfolio(ctx, p.ID)
	})
	require.NoError(t, err)

	_, err = s.GetPortfolio(ctx, p.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStore_DuplicateSymbol(t *testing.T) {
	s := NewMemoryStore()
	seedPortfolio(t, s, "ALPHA")

	dup := newTestPortfolio("alpha")
	err := s.RunInTx(testContext(t), func(ctx context.Context, tx Tx) error {
		return tx.InsertPortfolio(ctx, dup)
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestMemoryStore_RollbackDiscardsWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := testContext(t)
	p := seedPortfolio(t, s, "ALPHA")
	boom := errors.New("boom")

	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertConstituent(ctx, newTestConstituent(p.ID, "AAPL", "0.5")); err != nil {
			return err
		}
		if err := tx.InsertVersion(ctx, newTestVersion(p.ID, 1, nil)); err != nil {
			return err
		}
		// Reads inside the transaction see staged writes
		cs, err := tx.ListConstituents(ctx, p.ID)
		if err != nil {
			return err
		}
		assert.Len(t, cs, 1)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	cs, err := s.ListConstituents(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, cs)

	_, err = s.LatestVersion(ctx, p.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryStore_Constituents(t *testing.T) {
	s := NewMemoryStore()
	ctx := testContext(t)
	p := seedPortfolio(t, s, "ALPHA")

	msft := newTestConstituent(p.ID, "MSFT", "0.4")
	aapl := newTestConstituent(p.ID, "AAPL", "0.6")
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertConstituent(ctx, msft); err != nil {
			return err
		}
		return tx.InsertConstituent(ctx, aapl)
	})
	require.NoError(t, err)

	cs, err := s.ListConstituents(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, "AAPL", cs[0].AssetID)
	assert.Equal(t, "MSFT", cs[1].AssetID)

	t.Run("duplicate asset key is rejected", func(t *testing.T) {
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.InsertConstituent(ctx, newTestConstituent(p.ID, "AAPL", "0.1"))
		})
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("delete unknown constituent", func(t *testing.T) {
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.DeleteConstituent(ctx, p.ID, uuid.New())
		})
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("delete all", func(t *testing.T) {
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.DeleteConstituents(ctx, p.ID)
		})
		require.NoError(t, err)
		cs, err := s.ListConstituents(ctx, p.ID)
		require.NoError(t, err)
		assert.Empty(t, cs)
	})
}

func TestMemoryStore_Versions(t *testing.T) {
	s := NewMemoryStore()
	ctx := testContext(t)
	p := seedPortfolio(t, s, "ALPHA")

	v1 := newTestVersion(p.ID, 1, nil)
	v2 := newTestVersion(p.ID, 2, &v1.ID)
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.InsertVersion(ctx, v1); err != nil {
			return err
		}
		return tx.InsertVersion(ctx, v2)
	})
	require.NoError(t, err)

	latest, err := s.LatestVersion(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.VersionNumber)
	assert.Equal(t, v1.ID, *latest.PreviousVersionID)

	history, err := s.ListVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, 2, history[0].VersionNumber)
	assert.Equal(t, 1, history[1].VersionNumber)

	_, err = s.GetVersion(ctx, p.ID, 7)
	assert.True(t, apperrors.IsNotFound(err))

	t.Run("stored records cannot be mutated through returned copies", func(t *testing.T) {
		got, err := s.GetVersion(ctx, p.ID, 1)
		require.NoError(t, err)
		got.PortfolioState["symbol"] = "HACKED"
		got.StateHash = "ffff"

		again, err := s.GetVersion(ctx, p.ID, 1)
		require.NoError(t, err)
		assert.Equal(t, "TEST", again.PortfolioState["symbol"])
		assert.Equal(t, v1.StateHash, again.StateHash)
	})

	t.Run("duplicate version number is an integrity error", func(t *testing.T) {
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.InsertVersion(ctx, newTestVersion(p.ID, 2, &v1.ID))
		})
		assert.True(t, apperrors.IsIntegrity(err))
	})
}

func TestMemoryStore_CommitDetectsUnlockedVersionRace(t *testing.T) {
	s := NewMemoryStore()
	ctx := testContext(t)
	p := seedPortfolio(t, s, "ALPHA")

	staged := make(chan struct{})
	proceed := make(chan struct{})
	var firstErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		firstErr = s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := tx.InsertVersion(ctx, newTestVersion(p.ID, 1, nil)); err != nil {
				return err
			}
			close(staged)
			<-proceed
			return nil
		})
	}()

	<-staged
	err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertVersion(ctx, newTestVersion(p.ID, 1, nil))
	})
	require.NoError(t, err)
	close(proceed)
	wg.Wait()

	assert.True(t, apperrors.IsIntegrity(firstErr))
}

func TestMemoryStore_LockPortfolio(t *testing.T) {
	s := NewMemoryStore()
	p := seedPortfolio(t, s, "ALPHA")
	other := seedPortfolio(t, s, "BETA")

	locked := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.RunInTx(context.Background(), func(ctx context.Context, tx Tx) error {
			if err := tx.LockPortfolio(ctx, p.ID); err != nil {
				return err
			}
			// Reentrant
			if err := tx.LockPortfolio(ctx, p.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	t.Run("other portfolios are not blocked", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.LockPortfolio(ctx, other.ID)
		})
		assert.NoError(t, err)
	})

	t.Run("waiting on a held lock honours the context", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.LockPortfolio(ctx, p.ID)
		})
		assert.True(t, apperrors.IsConflict(err))
	})

	close(release)

	t.Run("lock is released on commit", func(t *testing.T) {
		ctx := testContext(t)
		err := s.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
			return tx.LockPortfolio(ctx, p.ID)
		})
		assert.NoError(t, err)
	})

	t.Run("unknown portfolio", func(t *testing.T) {
		err := s.RunInTx(testContext(t), func(ctx context.Context, tx Tx) error {
			return tx.LockPortfolio(ctx, uuid.New())
		})
		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestMemoryStore_ListPortfolios(t *testing.T) {
	s := NewMemoryStore()
	ctx := testContext(t)
	seedPortfolio(t, s, "GAMMA")
	seedPortfolio(t, s, "ALPHA")
	seedPortfolio(t, s, "BETA")

	all, err := s.ListPortfolios(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "ALPHA", all[0].Symbol)

	page, err := s.ListPortfolios(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "BETA", page[0].Symbol)

	empty, err := s.ListPortfolios(ctx, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
