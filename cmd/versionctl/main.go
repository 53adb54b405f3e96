// Package main provides versionctl, an operator CLI for inspecting and
// restoring portfolio version history.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/portfolio-versioning/internal/app"
	"github.com/portfolio-versioning/internal/config"
	"github.com/portfolio-versioning/internal/logging"
	"github.com/portfolio-versioning/internal/models"
	"github.com/portfolio-versioning/internal/service"
)

// versionService is the part of the portfolio service the CLI drives
type versionService interface {
	History(ctx context.Context, portfolioID uuid.UUID) ([]models.VersionSummary, error)
	GetVersion(ctx context.Context, portfolioID uuid.UUID, versionNumber int) (*models.PortfolioVersion, error)
	LatestVersion(ctx context.Context, portfolioID uuid.UUID) (*models.PortfolioVersion, error)
	Compare(ctx context.Context, portfolioID uuid.UUID, from, to int) (*models.VersionDiff, error)
	Rollback(ctx context.Context, portfolioID uuid.UUID, target int, actor string, reason *string) (*service.MutationResult, error)
	VerifyIntegrity(ctx context.Context, portfolioID uuid.UUID) (*models.IntegrityReport, error)
	VerifyAll(ctx context.Context, concurrency int) (*service.IntegritySummary, error)
}

// openFunc connects the service; the returned func releases it
type openFunc func(ctx context.Context) (versionService, func(), error)

// cli holds the state shared by every subcommand
type cli struct {
	open    openFunc
	svc     versionService
	close   func()
	format  string
	timeout time.Duration
}

func main() {
	if err := newRootCmd(openFromEnv).Execute(); err != nil {
		os.Exit(1)
	}
}

func openFromEnv(ctx context.Context) (versionService, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.NewLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))
	logger.SetOutput(os.Stderr)

	a, err := app.New(ctx, cfg, nil, logger)
	if err != nil {
		return nil, nil, err
	}
	return a.Service, a.Close, nil
}

func newRootCmd(open openFunc) *cobra.Command {
	c := &cli{open: open}

	rootCmd := &cobra.Command{
		Use:   "versionctl",
		Short: "Inspect, compare, verify and roll back portfolio versions",
		Long: `versionctl works directly against the configured store. Connection
settings are read from the environment and an optional .env file, the same
way the API server reads them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.format != "table" && c.format != "json" {
				return fmt.Errorf("unknown output format %q", c.format)
			}
			svc, closeFn, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			c.svc, c.close = svc, closeFn
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.close != nil {
				c.close()
			}
		},
	}
	rootCmd.PersistentFlags().StringVar(&c.format, "format", "table", "Output format: table or json")
	rootCmd.PersistentFlags().DurationVar(&c.timeout, "timeout", time.Minute, "Timeout for the whole command")

	rootCmd.AddCommand(
		c.historyCmd(),
		c.showCmd(),
		c.diffCmd(),
		c.verifyCmd(),
		c.rollbackCmd(),
	)
	return rootCmd
}

func (c *cli) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *cli) printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePortfolioID(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid portfolio id %q: %w", arg, err)
	}
	return id, nil
}

func parseVersion(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid version number %q", arg)
	}
	return n, nil
}
