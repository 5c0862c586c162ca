package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ahrav/cbexpiry/internal/app/provisioning"
	"github.com/ahrav/cbexpiry/internal/config"
	"github.com/ahrav/cbexpiry/pkg/common/timeutil"
)

func newProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision-view",
		Short: "Create the map/reduce view on each bucket unless it already exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runProvision(cmd.Context(), cmd)
		},
	}
}

func runProvision(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.LoadValidated(ctx, configLoader(cmd))
	if err != nil {
		return err
	}

	rt, err := newApp(cfg, "provision-view")
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

	def, err := provisioning.NewViewDefinition(cfg.Scan.View, cfg.Provision.MapFunction, cfg.Provision.ReduceFunction)
	if err != nil {
		return err
	}

	svc := provisioning.NewService(factory, timeutil.Default(), rt.log, rt.tracer)
	results, err := svc.EnsureViews(ctx, targets, def)
	printProvisionResults(cmd.OutOrStdout(), results)
	return err
}
