package expiry

import "fmt"

// FailureKind classifies a failed document mutation.
type FailureKind string

const (
	// FailureNotFound means the document vanished between listing and mutation.
	FailureNotFound FailureKind = "not_found"
	// FailurePrecondition means the conditional write kept losing to
	// concurrent modifications.
	FailurePrecondition FailureKind = "precondition_failed"
	// FailureRead means the document could not be read for any other reason.
	FailureRead FailureKind = "read_error"
	// FailureWrite means the store rejected the write.
	FailureWrite FailureKind = "write_error"
)

// MutationOutcome is the tagged result of updating one document's TTL.
// Exactly one of Success/Failed holds, as reported by Succeeded.
type MutationOutcome struct {
	ID       string
	TTL      TTL
	Attempts int

	failed bool
	kind   FailureKind
	cause  error
}

// Success constructs a successful outcome.
func Success(id string, ttl TTL, attempts int) MutationOutcome {
	return MutationOutcome{ID: id, TTL: ttl, Attempts: attempts}
}

// Failed constructs a failed outcome.
func Failed(id string, ttl TTL, attempts int, kind FailureKind, cause error) MutationOutcome {
	return MutationOutcome{ID: id, TTL: ttl, Attempts: attempts, failed: true, kind: kind, cause: cause}
}

// Succeeded reports whether the new TTL was written.
func (o MutationOutcome) Succeeded() bool { return !o.failed }

// Kind returns the failure classification; empty on success.
func (o MutationOutcome) Kind() FailureKind { return o.kind }

// Cause returns the underlying error; nil on success.
func (o MutationOutcome) Cause() error { return o.cause }

func (o MutationOutcome) String() string {
	if o.Succeeded() {
		return fmt.Sprintf("updated %s ttl=%s", o.ID, o.TTL)
	}
	return fmt.Sprintf("failed %s kind=%s: %v", o.ID, o.kind, o.cause)
}
