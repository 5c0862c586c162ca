package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/cbexpiry/internal/config"
	"github.com/ahrav/cbexpiry/internal/config/credentials/memory"
	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/internal/domain/history"
	"github.com/ahrav/cbexpiry/internal/infra/couchbase"
	"github.com/ahrav/cbexpiry/internal/infra/couchbase/rest"
	"github.com/ahrav/cbexpiry/internal/infra/detailsink"
	"github.com/ahrav/cbexpiry/internal/infra/detailsink/kafka"
	"github.com/ahrav/cbexpiry/internal/infra/storage"
	historyStore "github.com/ahrav/cbexpiry/internal/infra/storage/history/postgres"
	"github.com/ahrav/cbexpiry/pkg/common"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
	"github.com/ahrav/cbexpiry/pkg/common/otel"
)

// app holds what every subcommand needs once the config is loaded.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	tracer trace.Tracer
	meter  metric.MeterProvider
	creds  *memory.CredentialStore

	// loggedErrors counts error records, reported when the command ends.
	loggedErrors *atomic.Int64
	teardown     []func(context.Context)
}

func newApp(cfg *config.Config, command string) (*app, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	loggedErrors := new(atomic.Int64)
	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			loggedErrors.Add(1)

			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	var reg *prometheus.Registry
	if cfg.Telemetry.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
	}

	svcName := cfg.Telemetry.ServiceName
	metadata := map[string]string{
		"hostname": hostname,
		"command":  command,
		"app":      "cbexpiry",
	}
	log := logger.NewWithMetadata(os.Stderr, logger.ParseLevel(cfg.Logging.Level), svcName, traceIDFn, logEvents, metadata)

	telemetryCfg := otel.Config{
		ServiceName:      svcName,
		ExporterEndpoint: cfg.Telemetry.Endpoint,
		Probability:      cfg.Telemetry.SampleRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        hostname,
			"cbexpiry.command": command,
		},
		InsecureExporter: cfg.Telemetry.Insecure,
	}
	if reg != nil {
		telemetryCfg.Prometheus = reg
	}
	providers, telemetryTeardown, err := otel.InitTelemetry(log, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	creds, err := memory.NewCredentialStore(cfg.Auth)
	if err != nil {
		telemetryTeardown(context.Background())
		return nil, err
	}

	a := &app{
		cfg:          cfg,
		log:          log,
		tracer:       providers.Tracer.Tracer(svcName),
		meter:        providers.Meter,
		creds:        creds,
		loggedErrors: loggedErrors,
		teardown:     []func(context.Context){telemetryTeardown},
	}

	if reg != nil {
		srv := common.NewMetricsServer(cfg.Telemetry.MetricsAddr, reg, log)
		srv.Start(context.Background())
		a.onClose(srv.Shutdown)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (r *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for i := len(r.teardown) - 1; i >= 0; i-- {
		r.teardown[i](ctx)
	}
}

func (r *app) onClose(f func(context.Context)) { r.teardown = append(r.teardown, f) }

// backendFactory builds the per-bucket connection factory. With the rest
// backend, view pages come from the HTTP view API while documents still go
// through the SDK.
func (r *app) backendFactory() (*couchbase.Factory, error) {
	cluster := r.cfg.Cluster
	user, err := r.cfg.ClusterCredentials(r.creds)
	if err != nil {
		return nil, err
	}

	cbCfg := couchbase.Config{
		ConnectionString: cluster.ConnectionStringOrHost(),
		Username:         user.Username,
		Password:         user.Password,
		ConnectTimeout:   cluster.ConnectTimeout,
		KVTimeout:        cluster.KVTimeout,
		ViewTimeout:      cluster.ViewTimeout,
		ReadyTimeout:     cluster.ReadyTimeout,
	}

	var views domain.ViewQuerier
	if cluster.Backend == config.BackendREST {
		client, err := rest.NewClient(rest.Config{
			Host:              cluster.Host,
			Port:              cluster.RESTPort,
			Username:          user.Username,
			Password:          user.Password,
			RequestsPerSecond: r.cfg.Scan.PagesPerSecond,
		}, rest.NewHTTPClient(r.cfg.Scan.PageTimeout), r.log, r.tracer)
		if err != nil {
			return nil, err
		}
		views = client
	}

	return couchbase.NewFactory(cbCfg, views, r.log, r.tracer), nil
}

// detailSink combines every configured detail destination. Console records
// go to out. It returns nil when none is configured.
func (r *app) detailSink(runID uuid.UUID, out io.Writer) (domain.DetailSink, error) {
	var sinks []domain.DetailSink

	if r.cfg.Detail.ShowDetails {
		sinks = append(sinks, detailsink.NewConsoleSink(out))
	}
	if path := r.cfg.Detail.LogFile; path != "" {
		fileSink, err := detailsink.NewFileSink(path)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}
	if kcfg := r.cfg.Detail.Kafka; kcfg.Enabled() {
		kafkaSink, err := kafka.ConnectWithRetry(kafka.Config{
			Brokers:  kcfg.Brokers,
			Topic:    kcfg.Topic,
			ClientID: kcfg.ClientID,
		}, runID.String(), r.log, r.tracer)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, kafkaSink)
	}

	sink := detailsink.Combine(sinks...)
	if sink != nil {
		r.onClose(func(ctx context.Context) {
			if err := sink.Close(); err != nil {
				r.log.Warn(ctx, "failed to close detail sink", "error", err)
			}
		})
	}
	return sink, nil
}

// historyRepository connects to the history database and migrates it. It
// returns nil when no database is configured.
func (r *app) historyRepository(ctx context.Context) (history.Repository, error) {
	dsn := r.cfg.History.DatabaseURL
	if dsn == "" {
		return nil, nil
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db config: %w", err)
	}
	poolCfg.MaxConns = 4
	poolCfg.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	r.onClose(func(context.Context) { pool.Close() })

	if err := storage.RunMigrations(pool); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	r.log.Debug(ctx, "History migrations applied")

	return historyStore.NewRunStore(pool, r.tracer), nil
}
