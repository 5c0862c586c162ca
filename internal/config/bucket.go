package config

import (
	"fmt"
	"strings"

	"github.com/ahrav/cbexpiry/internal/domain/expiry"
)

// ParseBucketSpec parses "name" or "name:password".
func ParseBucketSpec(s string) (BucketSpec, error) {
	name, password, _ := strings.Cut(strings.TrimSpace(s), ":")
	if name == "" {
		return BucketSpec{}, fmt.Errorf("invalid bucket %q: name is empty", s)
	}
	return BucketSpec{Name: name, Password: password}, nil
}

// ParseBucketList parses a comma separated list of bucket specs.
func ParseBucketList(s string) ([]BucketSpec, error) {
	var specs []BucketSpec
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		spec, err := ParseBucketSpec(part)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no buckets in %q", s)
	}
	return specs, nil
}

// CredentialLookup resolves an auth_ref.
type CredentialLookup interface {
	GetCredentials(authRef string) (expiry.Credentials, error)
}

// Targets builds one BucketTarget per configured bucket. A bucket password is
// paired with the bucket name as the user; an auth_ref is resolved through
// lookup; otherwise the credentials are left empty and the cluster user is
// used at connect time.
func (c *Config) Targets(lookup CredentialLookup) ([]expiry.BucketTarget, error) {
	targets := make([]expiry.BucketTarget, 0, len(c.Buckets))
	for _, b := range c.Buckets {
		var creds expiry.Credentials
		switch {
		case b.AuthRef != "":
			if lookup == nil {
				return nil, fmt.Errorf("bucket %s: no credential store for auth_ref %s", b.Name, b.AuthRef)
			}
			resolved, err := lookup.GetCredentials(b.AuthRef)
			if err != nil {
				return nil, fmt.Errorf("bucket %s: %w", b.Name, err)
			}
			creds = resolved
		case b.Password != "":
			creds = expiry.Credentials{Username: b.Name, Password: b.Password}
		}

		target, err := expiry.NewBucketTarget(b.Name, c.Scan.View, creds)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// ClusterCredentials returns the cluster user, resolving cluster.auth_ref
// when set.
func (c *Config) ClusterCredentials(lookup CredentialLookup) (expiry.Credentials, error) {
	if c.Cluster.AuthRef == "" {
		return expiry.Credentials{Username: c.Cluster.Username, Password: c.Cluster.Password}, nil
	}
	if lookup == nil {
		return expiry.Credentials{}, fmt.Errorf("cluster: no credential store for auth_ref %s", c.Cluster.AuthRef)
	}
	creds, err := lookup.GetCredentials(c.Cluster.AuthRef)
	if err != nil {
		return expiry.Credentials{}, fmt.Errorf("cluster: %w", err)
	}
	return creds, nil
}
