package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ahrav/cbexpiry/internal/config"
	"github.com/ahrav/cbexpiry/internal/config/viperloader"
)

// flagBindings maps config keys to the persistent flags that override them.
var flagBindings = map[string]string{
	"cluster.host":              "host",
	"cluster.connection_string": "connection-string",
	"cluster.username":          "username",
	"cluster.password":          "password",
	"cluster.backend":           "backend",
	"cluster.rest_port":         "api-port",
	"buckets":                   "buckets",
	"scan.view":                 "view",
	"scan.batch_size":           "batch-size",
	"scan.document_limit":       "document-limit",
	"scan.expiry_minutes":       "expiry",
	"scan.bucket_concurrency":   "concurrency",
	"scan.mutations_per_second": "mutations-per-second",
	"detail.show_details":       "show-details",
	"detail.log_file":           "log-file",
	"detail.kafka.brokers":      "kafka-brokers",
	"detail.kafka.topic":        "kafka-topic",
	"history.database_url":      "database-url",
	"telemetry.endpoint":        "otel-endpoint",
	"telemetry.metrics_addr":    "metrics-addr",
	"logging.level":             "log-level",
	"provision.map_function":    "map-function",
	"provision.reduce_function": "reduce-function",
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cbexpiry",
		Short: "Bulk update Couchbase document expiry through map/reduce views",
		Long: `cbexpiry pages through a map/reduce view on each bucket and rewrites the
expiration of every document the view lists. It can also install the view and
show the history of past runs.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	def := config.Default()
	pf := root.PersistentFlags()
	pf.String("config", "", "path to a YAML config file")

	pf.String("host", "", "hostname of a Couchbase node; do not include a port")
	pf.String("connection-string", "", "full connection string; overrides --host for the SDK")
	pf.String("username", "", "Couchbase username")
	pf.String("password", "", "password for the Couchbase username")
	pf.String("backend", string(def.Cluster.Backend), "view query backend: sdk or rest")
	pf.Int("api-port", def.Cluster.RESTPort, "port of the view REST API")

	pf.String("buckets", "", "bucket(s) to process, eg: bucket1:password1,bucket2:password2")
	pf.String("view", "", "map/reduce view used to list document ids")
	pf.Int("batch-size", def.Scan.BatchSize, "number of ids requested per view page")
	pf.Int("document-limit", 0, "maximum number of documents to update per bucket (default all)")
	pf.Int64("expiry", 0, "expiry in minutes to set on each document; 0 means never expire")
	pf.Int("concurrency", def.Scan.BucketConcurrency, "number of buckets processed at once")
	pf.Float64("mutations-per-second", 0, "throttle document updates across all buckets; 0 disables")

	pf.Bool("show-details", false, "print the id and ttl of each updated document")
	pf.String("log-file", "", "append the ids of updated documents to this file")
	pf.StringSlice("kafka-brokers", nil, "publish per-document results to these Kafka brokers")
	pf.String("kafka-topic", "", "topic for per-document results")

	pf.String("database-url", "", "Postgres URL for run history")
	pf.String("otel-endpoint", "", "OTLP gRPC endpoint for traces and metrics")
	pf.String("metrics-addr", "", "serve Prometheus metrics on this address, eg :9090")
	pf.String("log-level", def.Logging.Level, "debug, info, warn or error")

	pf.String("map-function", "", "map function installed by provision-view")
	pf.String("reduce-function", "", "reduce function installed by provision-view")

	root.AddCommand(newExpireCmd(), newProvisionCmd(), newHistoryCmd(), newCheckConfigCmd())
	return root
}

// configLoader layers the config file, environment and flags for cmd.
func configLoader(cmd *cobra.Command) config.Loader {
	path, _ := cmd.Flags().GetString("config")
	return viperloader.New(
		viperloader.WithFile(path),
		viperloader.WithFlags(cmd.Flags(), flagBindings),
	)
}

// loadConfig resolves the configuration for cmd without validating it.
func loadConfig(ctx context.Context, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := configLoader(cmd).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
