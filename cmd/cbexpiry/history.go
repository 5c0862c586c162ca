package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/cbexpiry/internal/domain/history"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent expiry runs recorded in the history database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHistory(cmd.Context(), cmd)
		},
	}
	cmd.Flags().String("bucket", "", "only show runs for this bucket")
	cmd.Flags().Int("limit", 20, "maximum number of runs to show")
	return cmd
}

func runHistory(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return err
	}
	if cfg.History.DatabaseURL == "" {
		return errors.New("history.database_url (or --database-url) is required")
	}

	bucket, _ := cmd.Flags().GetString("bucket")
	limit, _ := cmd.Flags().GetInt("limit")
	if limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", limit)
	}

	rt, err := newApp(cfg, "history")
	if err != nil {
		return err
	}
	defer rt.Close()

	repo, err := rt.historyRepository(ctx)
	if err != nil {
		return err
	}

	runs, err := repo.ListRuns(ctx, bucket, limit)
	if errors.Is(err, history.ErrNoRuns) {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
		return nil
	}
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), runs)
	return nil
}
