package versioning

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/types"
)

// RollbackEngine restores a portfolio to the content of an earlier version.
// History is never truncated: the restore is recorded as a new version.
type RollbackEngine struct {
	serializer *Serializer
	versions   *VersionStore
	snapshots  *SnapshotManager
	logger     *logging.Logger
}

// NewRollbackEngine creates a rollback engine
func NewRollbackEngine(serializer *Serializer, versions *VersionStore, snapshots *SnapshotManager, logger *logging.Logger) *RollbackEngine {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RollbackEngine{
		serializer: serializer,
		versions:   versions,
		snapshots:  snapshots,
		logger:     logger.WithField("component", "rollback_engine"),
	}
}

// Rollback restores portfolioID to version target in one retried
// transaction and returns the updated portfolio with the new version.
func (e *RollbackEngine) Rollback(
	ctx context.Context,
	portfolioID uuid.UUID,
	target int,
	actor string,
	changeReason *string,
) (*models.Portfolio, *models.PortfolioVersion, error) {
	var (
		portfolio *models.Portfolio
		version   *models.PortfolioVersion
	)
	err := e.versions.RunInTx(ctx, portfolioID, func(ctx context.Context, tx storage.Tx) error {
		p, v, err := e.RollbackTx(ctx, tx, portfolioID, target, actor, changeReason)
		if err != nil {
			return err
		}
		portfolio, version = p, v
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	e.logger.WithFields(map[string]interface{}{
		"portfolioId":   portfolioID.String(),
		"targetVersion": target,
		"newVersion":    version.VersionNumber,
		"actor":         actor,
	}).Info("Portfolio rolled back")
	return portfolio, version, nil
}

// RollbackTx performs the rollback inside an existing transaction
func (e *RollbackEngine) RollbackTx(
	ctx context.Context,
	tx storage.Tx,
	portfolioID uuid.UUID,
	target int,
	actor string,
	changeReason *string,
) (*models.Portfolio, *models.PortfolioVersion, error) {
	if target < 1 {
		return nil, nil, apperrors.NewInvalidParameterError("targetVersion", "must be at least 1")
	}
	if err := tx.LockPortfolio(ctx, portfolioID); err != nil {
		return nil, nil, err
	}

	portfolio, err := tx.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, nil, err
	}
	record, err := tx.GetVersion(ctx, portfolioID, target)
	if err != nil {
		return nil, nil, err
	}
	if record.PortfolioID != portfolioID {
		return nil, nil, apperrors.NewValidationError(
			fmt.Sprintf("version %d belongs to portfolio %s", target, record.PortfolioID))
	}

	now := time.Now().UTC()
	if err := e.serializer.ApplyPortfolioState(portfolio, record.PortfolioState); err != nil {
		return nil, nil, err
	}
	portfolio.RoundToStorage()
	portfolio.UpdatedAt = now

	restored, err := e.serializer.RestoreConstituents(portfolioID, record.ConstituentsState, now)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.DeleteConstituents(ctx, portfolioID); err != nil {
		return nil, nil, err
	}
	for _, c := range restored {
		c.RoundToStorage()
		if err := tx.InsertConstituent(ctx, c); err != nil {
			return nil, nil, err
		}
	}

	if changeReason == nil || *changeReason == "" {
		reason := fmt.Sprintf("Rollback to version %d", target)
		changeReason = &reason
	}
	version, err := e.snapshots.SnapshotTx(ctx, tx, portfolio, types.OperationRollback, actor, SnapshotOptions{
		ChangeReason: changeReason,
	})
	if err != nil {
		return nil, nil, err
	}

	portfolio.SetCurrentVersion(version)
	if err := tx.UpdatePortfolio(ctx, portfolio); err != nil {
		return nil, nil, err
	}
	return portfolio, version, nil
}
