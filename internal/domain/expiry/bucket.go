// Package expiry holds the domain model for bulk document expiry updates:
// bucket targets, page requests, per-document mutation outcomes and the
// per-bucket run summary, along with the ports the scan engine depends on.
package expiry

import "fmt"

// Credentials authenticate against a single bucket.
type Credentials struct {
	Username string
	Password string
}

// BucketTarget identifies one logical document collection to process.
// It is immutable for the duration of a run.
type BucketTarget struct {
	Name        string
	View        string
	Credentials Credentials
}

// NewBucketTarget validates and constructs a BucketTarget.
func NewBucketTarget(name, view string, creds Credentials) (BucketTarget, error) {
	if name == "" {
		return BucketTarget{}, fmt.Errorf("bucket name is required")
	}
	if view == "" {
		return BucketTarget{}, fmt.Errorf("view name is required for bucket %s", name)
	}
	return BucketTarget{Name: name, View: view, Credentials: creds}, nil
}

// String returns "bucket/view" for logging.
func (t BucketTarget) String() string { return t.Name + "/" + t.View }
