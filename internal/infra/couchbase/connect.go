// Package couchbase adapts the Couchbase Go SDK to the expiry domain ports:
// view paging, CAS-guarded TTL rewrites and design document management.
package couchbase

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/couchbase/gocb/v2"

	domain "github.com/ahrav/cbexpiry/internal/domain/expiry"
	"github.com/ahrav/cbexpiry/pkg/common/logger"
)

// Config holds cluster connection settings shared by every bucket.
type Config struct {
	// ConnectionString is a couchbase:// or http:// URI naming one or more
	// nodes.
	ConnectionString string
	Username         string
	Password         string

	ConnectTimeout    time.Duration
	KVTimeout         time.Duration
	ViewTimeout       time.Duration
	ManagementTimeout time.Duration
	// ReadyTimeout bounds WaitUntilReady for each bucket.
	ReadyTimeout time.Duration
	// MaxRetryElapsed caps the total time spent retrying a connection.
	MaxRetryElapsed time.Duration
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.KVTimeout == 0 {
		c.KVTimeout = 2500 * time.Millisecond
	}
	if c.ViewTimeout == 0 {
		c.ViewTimeout = 75 * time.Second
	}
	if c.ManagementTimeout == 0 {
		c.ManagementTimeout = 75 * time.Second
	}
	if c.ReadyTimeout == 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.MaxRetryElapsed == 0 {
		c.MaxRetryElapsed = 5 * time.Minute
	}
	return c
}

// credentialsFor picks the bucket's own credentials when present and falls
// back to the cluster user otherwise.
func credentialsFor(cfg Config, target domain.BucketTarget) gocb.PasswordAuthenticator {
	if target.Credentials.Username != "" {
		return gocb.PasswordAuthenticator{Username: target.Credentials.Username, Password: target.Credentials.Password}
	}
	return gocb.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
}

// ConnectWithRetry opens a cluster connection for target and waits for the
// bucket's key/value and view services, retrying with exponential backoff. It
// starts at 5 second intervals and gives up after cfg.MaxRetryElapsed.
func ConnectWithRetry(
	ctx context.Context,
	cfg Config,
	target domain.BucketTarget,
	logger *logger.Logger,
) (*gocb.Cluster, *gocb.Bucket, error) {
	cfg = cfg.withDefaults()

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = cfg.MaxRetryElapsed
	expBackoff.InitialInterval = 5 * time.Second

	var (
		cluster *gocb.Cluster
		bucket  *gocb.Bucket
		attempt int
	)
	operation := func() error {
		attempt++
		c, err := gocb.Connect(cfg.ConnectionString, gocb.ClusterOptions{
			Authenticator: credentialsFor(cfg, target),
			TimeoutsConfig: gocb.TimeoutsConfig{
				ConnectTimeout:    cfg.ConnectTimeout,
				KVTimeout:         cfg.KVTimeout,
				ViewTimeout:       cfg.ViewTimeout,
				ManagementTimeout: cfg.ManagementTimeout,
			},
		})
		if err != nil {
			logger.Warn(ctx, "Cluster connect failed", "bucket", target.Name, "attempt", attempt, "error", err)
			return fmt.Errorf("connecting to %s: %w", cfg.ConnectionString, err)
		}

		b := c.Bucket(target.Name)
		err = b.WaitUntilReady(cfg.ReadyTimeout, &gocb.WaitUntilReadyOptions{
			Context:      ctx,
			ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue, gocb.ServiceTypeViews},
		})
		if err != nil {
			_ = c.Close(nil)
			logger.Warn(ctx, "Bucket not ready", "bucket", target.Name, "attempt", attempt, "error", err)
			return fmt.Errorf("waiting for bucket %s: %w", target.Name, err)
		}

		cluster, bucket = c, b
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to bucket %s after retries: %w", target.Name, err)
	}

	logger.Info(ctx, "Connected to bucket", "bucket", target.Name, "attempts", attempt)
	return cluster, bucket, nil
}
