package versioning

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/portfolio-versioning/internal/config"
	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/retry"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/types"
)

// VersionInput is what a caller supplies to record a new version
type VersionInput struct {
	OperationType types.OperationType
	Snapshot      models.Snapshot
	// StateHash is computed from Snapshot when empty
	StateHash    string
	CreatedBy    string
	ChangeReason *string
	ApprovedBy   *string
}

// VersionStore persists append-only version records. Numbers are assigned
// under the portfolio lock as latest+1, and the storage uniqueness
// constraint on (portfolio, number) backs that up.
type VersionStore struct {
	store    storage.Store
	cache    *storage.VersionCache
	retryCfg retry.RetryConfig
	metrics  *Metrics
	logger   *logging.Logger
}

// NewVersionStore creates a version store. cache and metrics may be nil.
func NewVersionStore(
	store storage.Store,
	cache *storage.VersionCache,
	cfg config.VersioningConfig,
	metrics *Metrics,
	logger *logging.Logger,
) *VersionStore {
	if logger == nil {
		logger = logging.Nop()
	}
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &VersionStore{
		store: store,
		cache: cache,
		retryCfg: retry.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: cfg.InitialBackoff,
			MaxDelay:     cfg.MaxBackoff,
			Multiplier:   2.0,
			ShouldRetry:  apperrors.IsRetryable,
		},
		metrics: metrics,
		logger:  logger.WithField("component", "version_store"),
	}
}

// trackingTx records the versions created through it so they can be
// counted and cached once the transaction commits.
type trackingTx struct {
	storage.Tx
	created []*models.PortfolioVersion
}

// RunInTx runs fn in one transaction and re-runs the whole transaction when
// it fails with a conflict or a constraint violation. fn must derive all of
// its writes from what it reads through tx. When every attempt conflicts
// the result is a ConcurrencyConflict error.
func (s *VersionStore) RunInTx(ctx context.Context, portfolioID uuid.UUID, fn storage.TxFunc) error {
	var committed []*models.PortfolioVersion

	cfg := s.retryCfg
	result := retry.WithExponentialBackoff(ctx, &cfg, func(ctx context.Context, attempt int) error {
		committed = nil
		err := s.store.RunInTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			tt := &trackingTx{Tx: tx}
			if err := fn(ctx, tt); err != nil {
				return err
			}
			committed = tt.created
			return nil
		})
		if err != nil && apperrors.IsRetryable(err) {
			s.metrics.conflict()
			s.logger.WithFields(map[string]interface{}{
				"portfolioId": portfolioID.String(),
				"attempt":     attempt,
			}).WithError(err).Warn("Version transaction conflicted")
		}
		return err
	})

	if !result.Success {
		if result.Exhausted && apperrors.IsRetryable(result.LastError) {
			return apperrors.NewConcurrencyConflictError(portfolioID.String(), result.Attempts, result.LastError)
		}
		return result.LastError
	}

	for _, v := range committed {
		s.metrics.versionCreated(v.OperationType)
		s.cacheVersion(ctx, v)
	}
	return nil
}

// Create records a new version in its own transaction
func (s *VersionStore) Create(ctx context.Context, portfolioID uuid.UUID, in VersionInput) (*models.PortfolioVersion, error) {
	var created *models.PortfolioVersion
	err := s.RunInTx(ctx, portfolioID, func(ctx context.Context, tx storage.Tx) error {
		v, err := s.CreateTx(ctx, tx, portfolioID, in)
		if err != nil {
			return err
		}
		created = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateTx records a new version inside an existing transaction. It locks
// the portfolio, numbers the record latest+1 and links it to the latest.
func (s *VersionStore) CreateTx(ctx context.Context, tx storage.Tx, portfolioID uuid.UUID, in VersionInput) (*models.PortfolioVersion, error) {
	if !in.OperationType.IsValid() {
		return nil, apperrors.NewInvalidParameterError("operationType", "unknown operation type "+string(in.OperationType))
	}
	if in.CreatedBy == "" {
		return nil, apperrors.NewInvalidParameterError("createdBy", "actor is required")
	}
	if in.Snapshot.Portfolio == nil {
		return nil, apperrors.NewValidationError("snapshot has no portfolio state")
	}

	hash := in.StateHash
	if hash == "" {
		var err error
		if hash, err = ComputeStateHash(in.Snapshot); err != nil {
			return nil, err
		}
	}

	if err := tx.LockPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}

	number := 1
	var previousID *uuid.UUID
	latest, err := tx.LatestVersion(ctx, portfolioID)
	switch {
	case err == nil:
		number = latest.VersionNumber + 1
		id := latest.ID
		previousID = &id
	case apperrors.IsNotFound(err):
	default:
		return nil, err
	}

	constituents := in.Snapshot.Constituents
	if constituents == nil {
		constituents = []map[string]interface{}{}
	}

	v := &models.PortfolioVersion{
		ID:                uuid.New(),
		PortfolioID:       portfolioID,
		VersionNumber:     number,
		PortfolioState:    in.Snapshot.Portfolio,
		ConstituentsState: constituents,
		OperationType:     in.OperationType,
		ChangeReason:      in.ChangeReason,
		ApprovedBy:        in.ApprovedBy,
		CreatedBy:         in.CreatedBy,
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
		StateHash:         hash,
		PreviousVersionID: previousID,
	}
	if err := tx.InsertVersion(ctx, v); err != nil {
		return nil, err
	}

	if tt, ok := tx.(*trackingTx); ok {
		tt.created = append(tt.created, v.Clone())
	}
	return v, nil
}

// Get returns one version. Records are immutable, so cached copies are
// served without revalidation.
func (s *VersionStore) Get(ctx context.Context, portfolioID uuid.UUID, versionNumber int) (*models.PortfolioVersion, error) {
	if versionNumber < 1 {
		return nil, apperrors.NewInvalidParameterError("versionNumber", "must be at least 1")
	}

	if s.cache != nil {
		v, found, err := s.cache.Get(ctx, portfolioID, versionNumber)
		if err != nil {
			s.logger.WithError(err).Warn("Version cache read failed")
		} else if found {
			return v, nil
		}
	}

	v, err := s.store.GetVersion(ctx, portfolioID, versionNumber)
	if err != nil {
		return nil, err
	}
	s.cacheVersion(ctx, v)
	return v, nil
}

// Latest returns the version with the highest number
func (s *VersionStore) Latest(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioVersion, error) {
	return s.store.LatestVersion(ctx, portfolioID)
}

// History returns every version of a portfolio, newest first
func (s *VersionStore) History(ctx context.Context, portfolioID uuid.UUID) ([]*models.PortfolioVersion, error) {
	versions, err := s.store.ListVersions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []*models.PortfolioVersion{}
	}
	return versions, nil
}

// Verify recomputes the hash of every stored version of a portfolio and
// checks that numbers run 1..N with each record linked to its predecessor.
func (s *VersionStore) Verify(ctx context.Context, portfolioID uuid.UUID) (*models.IntegrityReport, error) {
	versions, err := s.store.ListVersions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].VersionNumber < versions[j].VersionNumber })

	report := &models.IntegrityReport{
		PortfolioID:     portfolioID,
		VersionsChecked: len(versions),
		CheckedAt:       time.Now().UTC(),
	}

	var prev *models.PortfolioVersion
	for i, v := range versions {
		computed, err := ComputeStateHash(v.Snapshot())
		if err != nil {
			report.ChainErrors = append(report.ChainErrors, models.ChainError{
				VersionNumber: v.VersionNumber,
				Reason:        "snapshot cannot be re-serialized: " + err.Error(),
			})
		} else if computed != v.StateHash {
			report.Mismatches = append(report.Mismatches, models.HashMismatch{
				VersionNumber: v.VersionNumber,
				StoredHash:    v.StateHash,
				ComputedHash:  computed,
			})
		}

		if v.VersionNumber != i+1 {
			report.ChainErrors = append(report.ChainErrors, models.ChainError{
				VersionNumber: v.VersionNumber,
				Reason:        "version number out of sequence",
			})
		}
		switch {
		case prev == nil && v.PreviousVersionID != nil:
			report.ChainErrors = append(report.ChainErrors, models.ChainError{
				VersionNumber: v.VersionNumber,
				Reason:        "first version links to a predecessor",
			})
		case prev != nil && (v.PreviousVersionID == nil || *v.PreviousVersionID != prev.ID):
			report.ChainErrors = append(report.ChainErrors, models.ChainError{
				VersionNumber: v.VersionNumber,
				Reason:        "previous version link does not match version " + strconv.Itoa(prev.VersionNumber),
			})
		}
		prev = v
	}

	failures := len(report.Mismatches) + len(report.ChainErrors)
	report.Valid = failures == 0
	if !report.Valid {
		s.metrics.integrityFailures(failures)
		s.logger.WithFields(map[string]interface{}{
			"portfolioId": portfolioID.String(),
			"mismatches":  len(report.Mismatches),
			"chainErrors": len(report.ChainErrors),
		}).Warn("Version history failed integrity verification")
	}
	return report, nil
}

// InvalidateCache drops cached versions of a deleted portfolio
func (s *VersionStore) InvalidateCache(ctx context.Context, portfolioID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidatePortfolio(ctx, portfolioID); err != nil {
		s.logger.WithError(err).Warn("Version cache invalidation failed")
	}
}

func (s *VersionStore) cacheVersion(ctx context.Context, v *models.PortfolioVersion) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, v); err != nil {
		s.logger.WithError(err).Warn("Version cache write failed")
	}
}
