package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/portfolio-versioning/internal/models"
)

func (c *cli) historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <portfolio-id>",
		Short: "List the versions of a portfolio, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePortfolioID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			versions, err := c.svc.History(ctx, id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.format == "json" {
				return c.printJSON(out, versions)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tOPERATION\tCREATED BY\tCREATED AT\tHASH\tREASON")
			for _, v := range versions {
				reason := ""
				if v.ChangeReason != nil {
					reason = *v.ChangeReason
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					v.VersionNumber, v.OperationType, v.CreatedBy,
					v.CreatedAt.Format(time.RFC3339), shortHash(v.StateHash), reason)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <portfolio-id> <version|latest>",
		Short: "Print one version with its snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePortfolioID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			var v *models.PortfolioVersion
			if args[1] == "latest" {
				v, err = c.svc.LatestVersion(ctx, id)
			} else {
				n, perr := parseVersion(args[1])
				if perr != nil {
					return perr
				}
				v, err = c.svc.GetVersion(ctx, id, n)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.format == "json" {
				return c.printJSON(out, v)
			}
			fmt.Fprintf(out, "Version:     %d\n", v.VersionNumber)
			fmt.Fprintf(out, "Operation:   %s\n", v.OperationType)
			fmt.Fprintf(out, "Created by:  %s at %s\n", v.CreatedBy, v.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "State hash:  %s\n", v.StateHash)
			if v.PreviousVersionID != nil {
				fmt.Fprintf(out, "Previous:    %s\n", v.PreviousVersionID)
			}
			if v.ChangeReason != nil {
				fmt.Fprintf(out, "Reason:      %s\n", *v.ChangeReason)
			}
			fmt.Fprintln(out)
			return c.printJSON(out, v.Snapshot())
		},
	}
}

func (c *cli) diffCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diff <portfolio-id> <from> <to>",
		Short: "Show what changed between two versions",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePortfolioID(args[0])
			if err != nil {
				return err
			}
			from, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			to, err := parseVersion(args[2])
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			diff, err := c.svc.Compare(ctx, id, from, to)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.format == "json" {
				return c.printJSON(out, diff)
			}
			printDiff(out, diff)
			return nil
		},
	}
}

func printDiff(out io.Writer, diff *models.VersionDiff) {
	fmt.Fprintf(out, "Version %d -> %d\n", diff.FromVersion, diff.ToVersion)

	fields := make([]string, 0, len(diff.PortfolioChanges))
	for f := range diff.PortfolioChanges {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		ch := diff.PortfolioChanges[f]
		fmt.Fprintf(out, "  ~ %s: %v -> %v\n", f, ch.From, ch.To)
	}

	for _, c := range diff.ConstituentsChanges.Added {
		fmt.Fprintf(out, "  + %v:%v\n", c["asset_class"], c["asset_id"])
	}
	for _, c := range diff.ConstituentsChanges.Removed {
		fmt.Fprintf(out, "  - %v:%v\n", c["asset_class"], c["asset_id"])
	}
	for _, m := range diff.ConstituentsChanges.Modified {
		keys := make([]string, 0, len(m.Changes))
		for k := range m.Changes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  ~ %s %s: %v -> %v\n", m.AssetKey, k, m.Changes[k].From, m.Changes[k].To)
		}
	}

	if len(fields) == 0 && len(diff.ConstituentsChanges.Added) == 0 &&
		len(diff.ConstituentsChanges.Removed) == 0 && len(diff.ConstituentsChanges.Modified) == 0 {
		fmt.Fprintln(out, "  no changes")
	}
}

func (c *cli) verifyCmd() *cobra.Command {
	var (
		all         bool
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "verify [portfolio-id]",
		Short: "Recompute state hashes and check the version chain",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := c.context(cmd)
			defer cancel()
			out := cmd.OutOrStdout()

			if all {
				summary, err := c.svc.VerifyAll(ctx, concurrency)
				if err != nil {
					return err
				}
				if c.format == "json" {
					if err := c.printJSON(out, summary); err != nil {
						return err
					}
				} else {
					fmt.Fprintf(out, "Checked %d portfolios, %d versions in %s\n",
						summary.PortfoliosChecked, summary.VersionsChecked, summary.Duration.Round(time.Millisecond))
					for _, r := range summary.Invalid {
						printReport(out, r)
					}
					for id, msg := range summary.Errors {
						fmt.Fprintf(out, "  %s: %s\n", id, msg)
					}
				}
				if !summary.Valid() {
					return fmt.Errorf("integrity check failed")
				}
				return nil
			}

			id, err := parsePortfolioID(args[0])
			if err != nil {
				return err
			}
			report, err := c.svc.VerifyIntegrity(ctx, id)
			if err != nil {
				return err
			}
			if c.format == "json" {
				if err := c.printJSON(out, report); err != nil {
					return err
				}
			} else {
				printReport(out, report)
			}
			if !report.Valid {
				return fmt.Errorf("integrity check failed for %s", id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Verify every portfolio")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Portfolios verified in parallel with --all")
	return cmd
}

func printReport(out io.Writer, r *models.IntegrityReport) {
	status := "OK"
	if !r.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(out, "%s: %s (%d versions)\n", r.PortfolioID, status, r.VersionsChecked)
	for _, m := range r.Mismatches {
		fmt.Fprintf(out, "  version %d: stored %s, computed %s\n", m.VersionNumber, shortHash(m.StoredHash), shortHash(m.ComputedHash))
	}
	for _, e := range r.ChainErrors {
		fmt.Fprintf(out, "  version %d: %s\n", e.VersionNumber, e.Reason)
	}
}

func (c *cli) rollbackCmd() *cobra.Command {
	var (
		actor  string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "rollback <portfolio-id> <version>",
		Short: "Restore an earlier version as a new ROLLBACK version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parsePortfolioID(args[0])
			if err != nil {
				return err
			}
			target, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			ctx, cancel := c.context(cmd)
			defer cancel()

			var reasonPtr *string
			if reason != "" {
				reasonPtr = &reason
			}
			result, err := c.svc.Rollback(ctx, id, target, actor, reasonPtr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.format == "json" {
				return c.printJSON(out, result.Version)
			}
			fmt.Fprintf(out, "Rolled back %s to version %d as version %d (%s)\n",
				id, target, result.Version.VersionNumber, shortHash(result.Version.StateHash))
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Identity recorded as the author of the rollback")
	cmd.Flags().StringVar(&reason, "reason", "", "Change reason (defaults to \"Rollback to version N\")")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
