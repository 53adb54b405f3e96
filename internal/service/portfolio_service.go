package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/types"
	"github.com/portfolio-versioning/internal/versioning"
)

// PortfolioService applies portfolio mutations and records every one of
// them as a version in the same transaction.
type PortfolioService struct {
	store  storage.Store
	engine *versioning.Engine
	logger *logging.Logger
	now    func() time.Time
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(store storage.Store, engine *versioning.Engine, logger *logging.Logger) *PortfolioService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PortfolioService{
		store:  store,
		engine: engine,
		logger: logger.WithField("component", "portfolio_service"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Input types

// CreatePortfolioInput represents input for creating a portfolio
type CreatePortfolioInput struct {
	Portfolio    *models.Portfolio
	Constituents []*models.Constituent
	Actor        string
	ChangeReason *string
	ApprovedBy   *string
}

// UpdatePortfolioInput is a partial update. Nil fields are left unchanged.
type UpdatePortfolioInput struct {
	Name                   *string
	Description            *string
	Status                 *types.PortfolioStatus
	RiskLevel              *types.RiskLevel
	BenchmarkSymbol        *string
	StrategyDescription    *string
	WeightingMethodology   *types.WeightingMethodology
	RebalanceFrequency     *types.RebalanceFrequency
	TerminationDate        *time.Time
	TotalSharesOutstanding *decimal.Decimal
	NavPerShare            *decimal.Decimal
	MinimumInvestment      *decimal.Decimal
	MaxIndividualWeight    *decimal.Decimal
	MinIndividualWeight    *decimal.Decimal
	CashTargetPercentage   *decimal.Decimal
	Calendar               *types.Calendar
	BusinessDayConvention  *types.BusinessDayConvention
	ManagementFee          *decimal.Decimal
	PerformanceFee         *decimal.Decimal
	ExpenseRatio           *decimal.Decimal
	IsActive               *bool
	IsLocked               *bool
	AllowFractionalShares  *bool
	AutoRebalanceEnabled   *bool
	CustomFields           map[string]interface{}
	ComplianceRules        []interface{}
	Tags                   []string
	PortfolioManager       *string
	Administrator          *string
	Custodian              *string

	Actor        string
	ChangeReason *string
	ApprovedBy   *string
}

// Output types

// PortfolioDetail is a portfolio together with its current holdings
type PortfolioDetail struct {
	Portfolio    *models.Portfolio     `json:"portfolio"`
	Constituents []*models.Constituent `json:"constituents"`
}

// MutationResult is the outcome of a versioned mutation
type MutationResult struct {
	Portfolio *models.Portfolio        `json:"portfolio"`
	Version   *models.PortfolioVersion `json:"version"`
}

// CreatePortfolio stores a new portfolio with its initial holdings as version 1
func (s *PortfolioService) CreatePortfolio(ctx context.Context, in CreatePortfolioInput) (*MutationResult, error) {
	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}
	if in.Portfolio == nil {
		return nil, apperrors.NewValidationError("portfolio is required")
	}
	if len(in.Constituents) > MaxConstituents {
		return nil, tooManyConstituents()
	}

	now := s.now()
	p := in.Portfolio.Clone()
	p.ID = uuid.New()
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	applyPortfolioDefaults(p)
	p.RoundToStorage()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Version = 0
	p.CurrentVersionID = nil
	p.VersionHash = nil

	if err := validatePortfolio(p); err != nil {
		return nil, err
	}

	constituents := models.CloneConstituents(in.Constituents)
	seen := make(map[models.AssetKey]bool, len(constituents))
	for _, c := range constituents {
		c.ID = uuid.New()
		c.PortfolioID = p.ID
		c.AddedAt = now
		applyConstituentDefaults(c, p)
		c.RoundToStorage()
		if err := validateConstituent(c); err != nil {
			return nil, err
		}
		if seen[c.Key()] {
			return nil, apperrors.NewAlreadyExistsError("constituent", c.Key().String())
		}
		seen[c.Key()] = true
	}
	refreshMarketValue(p, constituents)

	var result *MutationResult
	err := s.engine.Versions.RunInTx(ctx, p.ID, func(ctx context.Context, tx storage.Tx) error {
		created := p.Clone()
		if err := tx.InsertPortfolio(ctx, created); err != nil {
			return err
		}
		for _, c := range constituents {
			if err := tx.InsertConstituent(ctx, c); err != nil {
				return err
			}
		}

		v, err := s.engine.Snapshots.SnapshotTx(ctx, tx, created, types.OperationCreate, in.Actor, versioning.SnapshotOptions{
			ChangeReason: in.ChangeReason,
			ApprovedBy:   in.ApprovedBy,
		})
		if err != nil {
			return err
		}
		created.SetCurrentVersion(v)
		if err := tx.UpdatePortfolio(ctx, created); err != nil {
			return err
		}
		result = &MutationResult{Portfolio: created, Version: v}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"portfolioId":  p.ID.String(),
		"symbol":       p.Symbol,
		"constituents": len(constituents),
		"actor":        in.Actor,
	}).Info("Portfolio created")
	return result, nil
}

// UpdatePortfolio applies a partial update and records it as an UPDATE version.
// A locked portfolio only accepts an update that unlocks it.
func (s *PortfolioService) UpdatePortfolio(ctx context.Context, id uuid.UUID, in UpdatePortfolioInput) (*MutationResult, error) {
	if err := requireActor(in.Actor); err != nil {
		return nil, err
	}

	opts := versioning.SnapshotOptions{ChangeReason: in.ChangeReason, ApprovedBy: in.ApprovedBy}
	return s.mutate(ctx, id, types.OperationUpdate, in.Actor, opts, func(ctx context.Context, tx storage.Tx, p *models.Portfolio) error {
		unlocking := in.IsLocked != nil && !*in.IsLocked
		if p.IsLocked && !unlocking {
			return portfolioLocked(p)
		}
		in.apply(p)
		p.RoundToStorage()
		return validatePortfolio(p)
	})
}

func (in UpdatePortfolioInput) apply(p *models.Portfolio) {
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Description != nil {
		p.Description = in.Description
	}
	if in.Status != nil {
		p.Status = *in.Status
	}
	if in.RiskLevel != nil {
		p.RiskLevel = in.RiskLevel
	}
	if in.BenchmarkSymbol != nil {
		p.BenchmarkSymbol = in.BenchmarkSymbol
	}
	if in.StrategyDescription != nil {
		p.StrategyDescription = in.StrategyDescription
	}
	if in.WeightingMethodology != nil {
		p.WeightingMethodology = *in.WeightingMethodology
	}
	if in.RebalanceFrequency != nil {
		p.RebalanceFrequency = *in.RebalanceFrequency
	}
	if in.TerminationDate != nil {
		p.TerminationDate = in.TerminationDate
	}
	if in.TotalSharesOutstanding != nil {
		p.TotalSharesOutstanding = in.TotalSharesOutstanding
	}
	if in.NavPerShare != nil {
		p.NavPerShare = in.NavPerShare
	}
	if in.MinimumInvestment != nil {
		p.MinimumInvestment = in.MinimumInvestment
	}
	if in.MaxIndividualWeight != nil {
		p.MaxIndividualWeight = in.MaxIndividualWeight
	}
	if in.MinIndividualWeight != nil {
		p.MinIndividualWeight = in.MinIndividualWeight
	}
	if in.CashTargetPercentage != nil {
		p.CashTargetPercentage = in.CashTargetPercentage
	}
	if in.Calendar != nil {
		p.Calendar = *in.Calendar
	}
	if in.BusinessDayConvention != nil {
		p.BusinessDayConvention = *in.BusinessDayConvention
	}
	if in.ManagementFee != nil {
		p.ManagementFee = in.ManagementFee
	}
	if in.PerformanceFee != nil {
		p.PerformanceFee = in.PerformanceFee
	}
	if in.ExpenseRatio != nil {
		p.ExpenseRatio = in.ExpenseRatio
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	if in.IsLocked != nil {
		p.IsLocked = *in.IsLocked
	}
	if in.AllowFractionalShares != nil {
		p.AllowFractionalShares = *in.AllowFractionalShares
	}
	if in.AutoRebalanceEnabled != nil {
		p.AutoRebalanceEnabled = *in.AutoRebalanceEnabled
	}
	if in.CustomFields != nil {
		p.CustomFields = in.CustomFields
	}
	if in.ComplianceRules != nil {
		p.ComplianceRules = in.ComplianceRules
	}
	if in.Tags != nil {
		p.Tags = in.Tags
	}
	if in.PortfolioManager != nil {
		p.PortfolioManager = in.PortfolioManager
	}
	if in.Administrator != nil {
		p.Administrator = in.Administrator
	}
	if in.Custodian != nil {
		p.Custodian = in.Custodian
	}
}

// RecordManualEdit records the current state as a MANUAL_EDIT version. It is
// used after out-of-band corrections that need an audit entry.
func (s *PortfolioService) RecordManualEdit(ctx context.Context, id uuid.UUID, actor string, reason string, approvedBy *string) (*MutationResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.NewInvalidParameterError("changeReason", "manual edits require a reason")
	}

	opts := versioning.SnapshotOptions{ChangeReason: &reason, ApprovedBy: approvedBy}
	return s.mutate(ctx, id, types.OperationManualEdit, actor, opts, func(ctx context.Context, tx storage.Tx, p *models.Portfolio) error {
		return nil
	})
}

// DeletePortfolio removes a portfolio. Its constituents and version history
// go with it.
func (s *PortfolioService) DeletePortfolio(ctx context.Context, id uuid.UUID, actor string) error {
	if err := requireActor(actor); err != nil {
		return err
	}

	err := s.engine.Versions.RunInTx(ctx, id, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.LockPortfolio(ctx, id); err != nil {
			return err
		}
		return tx.DeletePortfolio(ctx, id)
	})
	if err != nil {
		return err
	}

	s.engine.Versions.InvalidateCache(ctx, id)
	s.logger.WithFields(map[string]interface{}{
		"portfolioId": id.String(),
		"actor":       actor,
	}).Info("Portfolio deleted")
	return nil
}

// GetPortfolio returns a portfolio with its constituents
func (s *PortfolioService) GetPortfolio(ctx context.Context, id uuid.UUID) (*PortfolioDetail, error) {
	p, err := s.store.GetPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}
	cs, err := s.store.ListConstituents(ctx, id)
	if err != nil {
		return nil, err
	}
	if cs == nil {
		cs = []*models.Constituent{}
	}
	return &PortfolioDetail{Portfolio: p, Constituents: cs}, nil
}

// ListPortfolios returns a page of portfolios ordered by symbol
func (s *PortfolioService) ListPortfolios(ctx context.Context, limit, offset int) ([]*models.Portfolio, error) {
	if limit < 0 || offset < 0 {
		return nil, apperrors.NewInvalidParameterError("limit", "limit and offset must not be negative")
	}
	portfolios, err := s.store.ListPortfolios(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if portfolios == nil {
		portfolios = []*models.Portfolio{}
	}
	return portfolios, nil
}

// mutateFunc changes the locked portfolio and its holdings through tx
type mutateFunc func(ctx context.Context, tx storage.Tx, p *models.Portfolio) error

// mutate locks the portfolio, applies fn, snapshots the result and moves the
// current version pointer, all in one retried transaction.
func (s *PortfolioService) mutate(
	ctx context.Context,
	id uuid.UUID,
	op types.OperationType,
	actor string,
	opts versioning.SnapshotOptions,
	fn mutateFunc,
) (*MutationResult, error) {
	var result *MutationResult
	err := s.engine.Versions.RunInTx(ctx, id, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.LockPortfolio(ctx, id); err != nil {
			return err
		}
		p, err := tx.GetPortfolio(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, p); err != nil {
			return err
		}
		p.RoundToStorage()
		p.UpdatedAt = s.now()

		v, err := s.engine.Snapshots.SnapshotTx(ctx, tx, p, op, actor, opts)
		if err != nil {
			return err
		}
		p.SetCurrentVersion(v)
		if err := tx.UpdatePortfolio(ctx, p); err != nil {
			return err
		}
		result = &MutationResult{Portfolio: p, Version: v}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"portfolioId":   id.String(),
		"operation":     string(op),
		"versionNumber": result.Version.VersionNumber,
		"actor":         actor,
	}).Info("Portfolio mutated")
	return result, nil
}

func applyPortfolioDefaults(p *models.Portfolio) {
	if p.Status == "" {
		p.Status = types.StatusDraft
	}
	if p.BaseCurrency == "" {
		p.BaseCurrency = types.CurrencyUSD
	}
	if p.WeightingMethodology == "" {
		p.WeightingMethodology = types.WeightingFixed
	}
	if p.RebalanceFrequency == "" {
		p.RebalanceFrequency = types.RebalanceOnDemand
	}
	if p.Calendar == "" {
		p.Calendar = types.CalendarWeekdays
	}
	if p.BusinessDayConvention == "" {
		p.BusinessDayConvention = types.ConventionFollowing
	}
	if p.InceptionDate.IsZero() {
		p.InceptionDate = dateOf(p.CreatedAt)
	}
}

func applyConstituentDefaults(c *models.Constituent, p *models.Portfolio) {
	if c.Currency == "" {
		c.Currency = p.BaseCurrency
	}
	if c.TargetWeight == nil {
		w := c.Weight
		c.TargetWeight = &w
	}
}

// refreshMarketValue sets the portfolio market value to the sum of its holdings
func refreshMarketValue(p *models.Portfolio, cs []*models.Constituent) {
	total := decimal.Zero
	for _, c := range cs {
		total = total.Add(c.MarketValue())
	}
	total = total.Round(2)
	p.TotalMarketValue = &total
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return apperrors.NewInvalidParameterError("actor", "actor is required")
	}
	return checkText("actor", actor, MaxPartyLength)
}

func portfolioLocked(p *models.Portfolio) error {
	return apperrors.NewValidationError("portfolio " + p.Symbol + " is locked and cannot be modified")
}

func tooManyConstituents() error {
	return apperrors.NewValidationError(fmt.Sprintf("a portfolio may hold at most %d constituents", MaxConstituents))
}
