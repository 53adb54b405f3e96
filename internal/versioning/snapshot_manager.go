package versioning

import (
	"context"
	"time"

	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/types"
)

// SnapshotOptions carries the optional audit fields of a snapshot
type SnapshotOptions struct {
	ChangeReason *string
	ApprovedBy   *string
}

// SnapshotManager captures the current state of a portfolio as a new version
type SnapshotManager struct {
	serializer *Serializer
	versions   *VersionStore
	metrics    *Metrics
	logger     *logging.Logger
}

// NewSnapshotManager creates a snapshot manager
func NewSnapshotManager(serializer *Serializer, versions *VersionStore, metrics *Metrics, logger *logging.Logger) *SnapshotManager {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SnapshotManager{
		serializer: serializer,
		versions:   versions,
		metrics:    metrics,
		logger:     logger.WithField("component", "snapshot_manager"),
	}
}

// Snapshot records the given portfolio and its stored constituents as a
// new version in its own transaction. The portfolio's current version
// pointer is not touched.
func (m *SnapshotManager) Snapshot(
	ctx context.Context,
	portfolio *models.Portfolio,
	op types.OperationType,
	actor string,
	opts SnapshotOptions,
) (*models.PortfolioVersion, error) {
	var created *models.PortfolioVersion
	err := m.versions.RunInTx(ctx, portfolio.ID, func(ctx context.Context, tx storage.Tx) error {
		v, err := m.SnapshotTx(ctx, tx, portfolio, op, actor, opts)
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

// SnapshotTx serializes portfolio together with the constituents visible in
// tx, hashes the result and appends it to the version history.
func (m *SnapshotManager) SnapshotTx(
	ctx context.Context,
	tx storage.Tx,
	portfolio *models.Portfolio,
	op types.OperationType,
	actor string,
	opts SnapshotOptions,
) (*models.PortfolioVersion, error) {
	start := time.Now()
	defer m.metrics.observeSnapshot(start)

	constituents, err := tx.ListConstituents(ctx, portfolio.ID)
	if err != nil {
		return nil, err
	}

	snapshot, err := m.serializer.Snapshot(portfolio, constituents)
	if err != nil {
		m.logger.WithField("portfolioId", portfolio.ID.String()).WithError(err).Error("Snapshot serialization failed")
		return nil, err
	}
	hash, err := ComputeStateHash(snapshot)
	if err != nil {
		return nil, err
	}

	v, err := m.versions.CreateTx(ctx, tx, portfolio.ID, VersionInput{
		OperationType: op,
		Snapshot:      snapshot,
		StateHash:     hash,
		CreatedBy:     actor,
		ChangeReason:  opts.ChangeReason,
		ApprovedBy:    opts.ApprovedBy,
	})
	if err != nil {
		return nil, err
	}

	m.logger.WithFields(map[string]interface{}{
		"portfolioId":   portfolio.ID.String(),
		"versionNumber": v.VersionNumber,
		"operation":     string(op),
		"stateHash":     v.StateHash,
	}).Debug("Snapshot recorded")
	return v, nil
}
