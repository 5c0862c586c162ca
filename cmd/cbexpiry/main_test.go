package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/cbexpiry/internal/app/provisioning"
	"github.com/ahrav/cbexpiry/internal/config"
	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/internal/domain/history"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
)

func TestFlagBindingsReferToRegisteredFlags(t *testing.T) {
	root := newRootCmd()
	for key, name := range flagBindings {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), "flag %s for %s", name, key)
	}
}

func TestLoadConfig_FromFlags(t *testing.T) {
	root := newRootCmd()
	expire, _, err := root.Find([]string{"expire"})
	require.NoError(t, err)

	require.NoError(t, expire.ParseFlags([]string{
		"--host", "cb1",
		"--buckets", "sessions:pw,carts",
		"--username", "admin",
		"--password", "secret",
		"--view", "expiring",
		"--expiry", "15",
		"--document-limit", "150",
		"--backend", "rest",
	}))

	cfg, err := loadConfig(context.Background(), expire)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "cb1", cfg.Cluster.Host)
	assert.Equal(t, config.BackendREST, cfg.Cluster.Backend)
	assert.Equal(t, config.DefaultRESTPort, cfg.Cluster.RESTPort)
	assert.Equal(t, []config.BucketSpec{{Name: "sessions", Password: "pw"}, {Name: "carts"}}, cfg.Buckets)
	assert.Equal(t, int64(15), cfg.Scan.ExpiryMinutes)
	assert.Equal(t, 2000, cfg.Scan.BatchSize)
	require.NotNil(t, cfg.Scan.DocumentLimit)
	assert.Equal(t, 150, *cfg.Scan.DocumentLimit)
}

func TestLoadConfig_DocumentLimitUnsetIsUnbounded(t *testing.T) {
	root := newRootCmd()
	expire, _, err := root.Find([]string{"expire"})
	require.NoError(t, err)
	require.NoError(t, expire.ParseFlags([]string{"--host", "cb1", "--buckets", "b", "--view", "v"}))

	cfg, err := loadConfig(context.Background(), expire)
	require.NoError(t, err)
	assert.Nil(t, cfg.Scan.DocumentLimit)
}

func TestPrintReport(t *testing.T) {
	report := domain.RunReport{
		RunID: "run-1",
		Summaries: []domain.RunSummary{
			{Bucket: "sessions", Processed: 10, Pages: 1, Elapsed: 1500 * time.Millisecond},
			{Bucket: "carts", Failed: 1, Err: errors.New("view not found")},
		},
	}

	var buf bytes.Buffer
	printReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "sessions")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "view not found")
	assert.Contains(t, out, "Run run-1: 2 bucket(s), 10 updated, 1 failed, 1 page(s) in 1.50 seconds")
}

func TestPrintProvisionResultsAndHistory(t *testing.T) {
	var buf bytes.Buffer
	printProvisionResults(&buf, []provisioning.Result{
		{Bucket: "sessions", View: "expiring", Outcome: provisioning.OutcomeCreated},
		{Bucket: "carts", View: "expiring", Outcome: provisioning.OutcomeFailed, Err: errors.New("boom")},
	})
	assert.Contains(t, buf.String(), "created")
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	limit := 150
	printHistory(&buf, []history.RunRecord{{
		RunID:         uuid.New(),
		Bucket:        "sessions",
		View:          "expiring",
		TTLSeconds:    0,
		DocumentLimit: &limit,
		Status:        domain.RunStatusInterrupted,
	}})
	assert.Contains(t, buf.String(), "never expires")
	assert.Contains(t, buf.String(), "150")
	assert.Contains(t, buf.String(), "interrupted")
}

func TestCheckConfigCmd(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`
cluster:
  host: cb1
buckets:
  - name: sessions
scan:
  view: expiring
  expiry_minutes: 60
`), 0o600))
	misspelt := filepath.Join(dir, "misspelt.yaml")
	require.NoError(t, os.WriteFile(misspelt, []byte("cluster:\n  hots: cb1\n"), 0o600))
	outOfRange := filepath.Join(dir, "range.yaml")
	require.NoError(t, os.WriteFile(outOfRange, []byte(`
cluster:
  host: cb1
buckets:
  - name: sessions
scan:
  view: expiring
  expiry_minutes: 200000000
`), 0o600))

	tests := []struct {
		name    string
		path    string
		wantOut string
		wantErr string
	}{
		{name: "valid", path: valid, wantOut: "1 bucket(s), view expiring, backend sdk, ttl 3600s, batch 2000, limit unbounded"},
		{name: "unknown key", path: misspelt, wantErr: "hots"},
		{name: "expiry out of range", path: outOfRange, wantErr: "scan.expiry_minutes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			root := newRootCmd()
			root.SetOut(&out)
			root.SetArgs([]string{"check-config", "--config", tt.path})

			err := root.Execute()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out.String(), tt.wantOut)
		})
	}
}

func TestDetailSink_WritesToCommandOutput(t *testing.T) {
	cfg := config.Default()
	cfg.Detail.ShowDetails = true
	cfg.Detail.LogFile = filepath.Join(t.TempDir(), "updated.log")
	a := &app{cfg: &cfg, log: logger.Noop()}

	var out bytes.Buffer
	sink, err := a.detailSink(uuid.New(), &out)
	require.NoError(t, err)
	require.NotNil(t, sink)

	rec := domain.DetailRecord{Bucket: "sessions", ID: "doc-1", TTL: 60, Success: true}
	require.NoError(t, sink.WriteDetail(context.Background(), rec))
	a.Close()

	assert.Equal(t, "bucket=sessions id=doc-1 ttl=60s status=updated\n", out.String())
	logged, err := os.ReadFile(cfg.Detail.LogFile)
	require.NoError(t, err)
	assert.Equal(t, out.String(), string(logged))
}

func TestDetailSink_NoneConfigured(t *testing.T) {
	cfg := config.Default()
	a := &app{cfg: &cfg, log: logger.Noop()}

	sink, err := a.detailSink(uuid.New(), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Nil(t, sink)
}
