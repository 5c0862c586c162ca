package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ahrav/cbexpiry/internal/config"
	"github.com/ahrav/cbexpiry/internal/config/fileloader"
	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
)

func newCheckConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate a config file on its own, rejecting unknown keys",
		Long: `Reads the file given by --config without environment or flag overrides.
Misspelt keys and invalid values are reported; nothing connects to the cluster.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.LoadValidated(cmd.Context(), fileloader.NewStrictLoader(path))
			if err != nil {
				return err
			}
			return printConfigSummary(cmd.OutOrStdout(), path, cfg)
		},
	}
}

func printConfigSummary(w io.Writer, path string, cfg *config.Config) error {
	ttl, err := domain.TTLFromMinutes(cfg.Scan.ExpiryMinutes)
	if err != nil {
		return err
	}
	limit := "unbounded"
	if cfg.Scan.DocumentLimit != nil {
		limit = fmt.Sprint(*cfg.Scan.DocumentLimit)
	}
	fmt.Fprintf(w, "%s is valid: %d bucket(s), view %s, backend %s, ttl %s, batch %d, limit %s\n",
		path, len(cfg.Buckets), cfg.Scan.View, cfg.Cluster.Backend, ttl, cfg.Scan.BatchSize, limit)
	return nil
}
