package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/portfolio-versioning/internal/models"
)

// Reader exposes the read side of portfolio and version persistence.
// Missing portfolios and versions are reported as NotFound errors.
type Reader interface {
	GetPortfolio(ctx context.Context, id uuid.UUID) (*models.Portfolio, error)
	ListPortfolios(ctx context.Context, limit, offset int) ([]*models.Portfolio, error)
	ListConstituents(ctx context.Context, portfolioID uuid.UUID) ([]*models.Constituent, error)

	GetVersion(ctx context.Context, portfolioID uuid.UUID, versionNumber int) (*models.PortfolioVersion, error)
	LatestVersion(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioVersion, error)
	// ListVersions returns versions in descending version number order
	ListVersions(ctx context.Context, portfolioID uuid.UUID) ([]*models.PortfolioVersion, error)
}

// Tx is a unit of work. Reads observe the transaction's own writes.
type Tx interface {
	Reader

	// LockPortfolio serializes mutating work on one portfolio until the
	// transaction ends. Locking the same portfolio twice in one transaction
	// is allowed.
	LockPortfolio(ctx context.Context, id uuid.UUID) error

	InsertPortfolio(ctx context.Context, p *models.Portfolio) error
	UpdatePortfolio(ctx context.Context, p *models.Portfolio) error
	// DeletePortfolio removes the portfolio with its constituents and versions
	DeletePortfolio(ctx context.Context, id uuid.UUID) error

	InsertConstituent(ctx context.Context, c *models.Constituent) error
	UpdateConstituent(ctx context.Context, c *models.Constituent) error
	DeleteConstituent(ctx context.Context, portfolioID, constituentID uuid.UUID) error
	DeleteConstituents(ctx context.Context, portfolioID uuid.UUID) error

	// InsertVersion fails with an IntegrityError when the portfolio already
	// has a version with the same number.
	InsertVersion(ctx context.Context, v *models.PortfolioVersion) error
}

// TxFunc is the body of a transaction
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a transactional portfolio store
type Store interface {
	Reader

	// RunInTx commits when fn returns nil and rolls back every write otherwise
	RunInTx(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close()
}
