package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ahrav/cbexpiry/internal/app/expiry"
	"github.com/ahrav/cbexpiry/internal/app/expiry/metrics"
	"github.com/ahrav/cbexpiry/internal/config"
	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/timeutil"
)

func newExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Set the expiry of every document listed by the view",
		Example: `  cbexpiry expire --host cb1 --buckets sessions:secret,carts \
    --username admin --password pw --view expiring --expiry 60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExpire(ctx, cmd)
		},
	}
}

func runExpire(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.LoadValidated(ctx, configLoader(cmd))
	if err != nil {
		return err
	}

	rt, err := newApp(cfg, "expire")
	if err != nil {
		return err
	}
	defer rt.Close()

	targets, err := cfg.Targets(rt.creds)
	if err != nil {
		return err
	}
	factory, err := rt.backendFactory()
	if err != nil {
		return err
	}

	runID := uuid.New()
	sink, err := rt.detailSink(runID, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	repo, err := rt.historyRepository(ctx)
	if err != nil {
		return err
	}
	scanMetrics, err := metrics.New(rt.meter)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	svc := expiry.NewService(factory, sink, repo, expiry.ServiceConfig{
		PageTimeout:        cfg.Scan.PageTimeout,
		OperationTimeout:   cfg.Scan.OperationTimeout,
		MutationsPerSecond: cfg.Scan.MutationsPerSecond,
		BucketConcurrency:  cfg.Scan.BucketConcurrency,
		RunID:              runID,
	}, timeutil.Default(), scanMetrics, rt.log, rt.tracer)

	ttl, err := domain.TTLFromMinutes(cfg.Scan.ExpiryMinutes)
	if err != nil {
		return err
	}
	rt.log.Info(ctx, "Starting expiry run",
		"run_id", runID.String(),
		"buckets", len(targets),
		"view", cfg.Scan.View,
		"ttl", ttl.String(),
		"backend", string(cfg.Cluster.Backend),
	)

	report, runErr := svc.Run(ctx, targets, expiry.ScanOptions{
		BatchSize:     cfg.Scan.BatchSize,
		DocumentLimit: cfg.Scan.DocumentLimit,
		TTL:           ttl,
	})
	printReport(cmd.OutOrStdout(), report)
	if n := rt.loggedErrors.Load(); n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d error(s) logged\n", n)
	}
	return runErr
}
