package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/portfolio-versioning/internal/errors"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/storage"
	"github.com/portfolio-versioning/internal/types"
	"github.com/portfolio-versioning/internal/versioning"
)

// ConstituentMutation carries the audit fields of a holdings change
type ConstituentMutation struct {
	Actor        string
	ChangeReason *string
	ApprovedBy   *string
}

func (m ConstituentMutation) options(defaultReason string) versioning.SnapshotOptions {
	reason := m.ChangeReason
	if reason == nil || *reason == "" {
		reason = &defaultReason
	}
	return versioning.SnapshotOptions{ChangeReason: reason, ApprovedBy: m.ApprovedBy}
}

// AddConstituent adds a holding, rescales all weights proportionally to sum
// to one and records an ADD_CONSTITUENT version.
func (s *PortfolioService) AddConstituent(ctx context.Context, portfolioID uuid.UUID, c *models.Constituent, m ConstituentMutation) (*MutationResult, error) {
	if err := requireActor(m.Actor); err != nil {
		return nil, err
	}
	if c == nil {
		return nil, apperrors.NewValidationError("constituent is required")
	}

	added := c.Clone()
	opts := m.options(fmt.Sprintf("Add constituent %s", added.Key()))
	return s.mutate(ctx, portfolioID, types.OperationAddConstituent, m.Actor, opts, func(ctx context.Context, tx storage.Tx, p *models.Portfolio) error {
		if p.IsLocked {
			return portfolioLocked(p)
		}
		existing, err := tx.ListConstituents(ctx, p.ID)
		if err != nil {
			return err
		}
		if len(existing)+1 > MaxConstituents {
			return tooManyConstituents()
		}
		for _, e := range existing {
			if e.Key() == added.Key() {
				return apperrors.NewAlreadyExistsError("constituent", added.Key().String())
			}
		}

		added.ID = uuid.New()
		added.PortfolioID = p.ID
		added.AddedAt = s.now()
		applyConstituentDefaults(added, p)
		added.RoundToStorage()
		if err := validateConstituent(added); err != nil {
			return err
		}
		if err := tx.InsertConstituent(ctx, added); err != nil {
			return err
		}

		return s.rescale(ctx, tx, p, append(existing, added))
	})
}

// RemoveConstituent removes the holding identified by key, rescales the
// remaining weights and records a REMOVE_CONSTITUENT version.
func (s *PortfolioService) RemoveConstituent(ctx context.Context, portfolioID uuid.UUID, key models.AssetKey, m ConstituentMutation) (*MutationResult, error) {
	if err := requireActor(m.Actor); err != nil {
		return nil, err
	}

	opts := m.options(fmt.Sprintf("Remove constituent %s", key))
	return s.mutate(ctx, portfolioID, types.OperationRemoveConstituent, m.Actor, opts, func(ctx context.Context, tx storage.Tx, p *models.Portfolio) error {
		if p.IsLocked {
			return portfolioLocked(p)
		}
		existing, err := tx.ListConstituents(ctx, p.ID)
		if err != nil {
			return err
		}

		remaining := make([]*models.Constituent, 0, len(existing))
		var removed *models.Constituent
		for _, e := range existing {
			if e.Key() == key {
				removed = e
				continue
			}
			remaining = append(remaining, e)
		}
		if removed == nil {
			return apperrors.NewNotFoundError("constituent", key.String())
		}
		if err := tx.DeleteConstituent(ctx, p.ID, removed.ID); err != nil {
			return err
		}

		return s.rescale(ctx, tx, p, remaining)
	})
}

// rescale normalizes weights, writes every constituent back and refreshes
// the portfolio market value.
func (s *PortfolioService) rescale(ctx context.Context, tx storage.Tx, p *models.Portfolio, cs []*models.Constituent) error {
	normalizeWeights(cs)
	for _, c := range cs {
		c.RoundToStorage()
		if err := tx.UpdateConstituent(ctx, c); err != nil {
			return err
		}
	}
	refreshMarketValue(p, cs)
	return nil
}

// Rebalance sets every weight to the target derived from the weighting
// methodology and schedules the next rebalance.
func (s *PortfolioService) Rebalance(ctx context.Context, portfolioID uuid.UUID, m ConstituentMutation) (*MutationResult, error) {
	if err := requireActor(m.Actor); err != nil {
		return nil, err
	}

	opts := m.options("Periodic rebalance")
	return s.mutate(ctx, portfolioID, types.OperationRebalance, m.Actor, opts, func(ctx context.Context, tx storage.Tx, p *models.Portfolio) error {
		if p.IsLocked {
			return portfolioLocked(p)
		}
		if !p.AutoRebalanceEnabled {
			return apperrors.NewValidationError("auto-rebalance is disabled for portfolio " + p.Symbol)
		}

		cs, err := tx.ListConstituents(ctx, p.ID)
		if err != nil {
			return err
		}
		targets, err := targetWeights(p.WeightingMethodology, cs)
		if err != nil {
			return err
		}

		now := s.now()
		for i, c := range cs {
			target := targets[i]
			c.TargetWeight = &target
			c.Weight = target
			c.LastRebalancedAt = &now
			c.RoundToStorage()
			if err := tx.UpdateConstituent(ctx, c); err != nil {
				return err
			}
		}

		today := dateOf(now)
		p.LastRebalanceDate = &today
		p.NextRebalanceDate = nextRebalanceDate(today, p.RebalanceFrequency, p.Calendar, p.BusinessDayConvention)
		refreshMarketValue(p, cs)
		return nil
	})
}
