package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/portfolio-versioning/internal/models"
)

// History returns the version summaries of a portfolio, newest first
func (s *PortfolioService) History(ctx context.Context, portfolioID uuid.UUID) ([]models.VersionSummary, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	versions, err := s.engine.Versions.History(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	out := make([]models.VersionSummary, len(versions))
	for i, v := range versions {
		out[i] = v.Summary()
	}
	return out, nil
}

// GetVersion returns one version record with its snapshot
func (s *PortfolioService) GetVersion(ctx context.Context, portfolioID uuid.UUID, versionNumber int) (*models.PortfolioVersion, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.engine.Versions.Get(ctx, portfolioID, versionNumber)
}

// LatestVersion returns the newest version record of a portfolio
func (s *PortfolioService) LatestVersion(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioVersion, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.engine.Versions.Latest(ctx, portfolioID)
}

// Compare diffs two versions of a portfolio in the direction from -> to
func (s *PortfolioService) Compare(ctx context.Context, portfolioID uuid.UUID, from, to int) (*models.VersionDiff, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.engine.Diffs.CompareVersions(ctx, portfolioID, from, to)
}

// Rollback restores a portfolio to an earlier version, recorded as a new version
func (s *PortfolioService) Rollback(ctx context.Context, portfolioID uuid.UUID, target int, actor string, reason *string) (*MutationResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	p, v, err := s.engine.Rollbacks.Rollback(ctx, portfolioID, target, actor, reason)
	if err != nil {
		return nil, err
	}
	return &MutationResult{Portfolio: p, Version: v}, nil
}

// VerifyIntegrity recomputes and checks the stored hashes and chain of a portfolio
func (s *PortfolioService) VerifyIntegrity(ctx context.Context, portfolioID uuid.UUID) (*models.IntegrityReport, error) {
	if _, err := s.store.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.engine.Versions.Verify(ctx, portfolioID)
}

// IntegritySummary aggregates the verification of many portfolios
type IntegritySummary struct {
	PortfoliosChecked int                       `json:"portfoliosChecked"`
	VersionsChecked   int                       `json:"versionsChecked"`
	Invalid           []*models.IntegrityReport `json:"invalid"`
	Errors            map[string]string         `json:"errors,omitempty"`
	CheckedAt         time.Time                 `json:"checkedAt"`
	Duration          time.Duration             `json:"duration"`
}

// Valid reports whether every checked portfolio verified cleanly
func (s *IntegritySummary) Valid() bool {
	return len(s.Invalid) == 0 && len(s.Errors) == 0
}

// verifyPageSize is the number of portfolios listed per page during a full check
const verifyPageSize = 100

// VerifyAll verifies every portfolio, running up to concurrency checks at once
func (s *PortfolioService) VerifyAll(ctx context.Context, concurrency int) (*IntegritySummary, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	start := time.Now()
	summary := &IntegritySummary{
		Invalid:   []*models.IntegrityReport{},
		CheckedAt: start.UTC(),
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(concurrency)
	for offset := 0; ; offset += verifyPageSize {
		page, err := s.store.ListPortfolios(ctx, verifyPageSize, offset)
		if err != nil {
			_ = g.Wait()
			return nil, err
		}

		for _, p := range page {
			p := p
			if err := ctx.Err(); err != nil {
				_ = g.Wait()
				return nil, err
			}

			g.Go(func() error {
				report, err := s.engine.Versions.Verify(ctx, p.ID)

				mu.Lock()
				defer mu.Unlock()
				summary.PortfoliosChecked++
				if err != nil {
					if summary.Errors == nil {
						summary.Errors = make(map[string]string)
					}
					summary.Errors[p.ID.String()] = err.Error()
					return nil
				}
				summary.VersionsChecked += report.VersionsChecked
				if !report.Valid {
					summary.Invalid = append(summary.Invalid, report)
				}
				return nil
			})
		}

		if len(page) < verifyPageSize {
			break
		}
	}
	_ = g.Wait()

	summary.Duration = time.Since(start)
	s.logger.WithFields(map[string]interface{}{
		"portfolios": summary.PortfoliosChecked,
		"versions":   summary.VersionsChecked,
		"invalid":    len(summary.Invalid),
		"errors":     len(summary.Errors),
		"duration":   summary.Duration.String(),
	}).Info("Integrity verification completed")
	return summary, nil
}
