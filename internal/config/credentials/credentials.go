// Package credentials resolves auth_ref names from the configuration into
// bucket credentials.
package credentials

import (
	"github.com/ahrav/cbexpiry/internal/domain/expiry"
)

// CredentialType enumerates the supported auth types.
type CredentialType string

// CredentialTypeBasic is a username and password pair.
const CredentialTypeBasic CredentialType = "basic"

type Store interface {
	GetCredentials(authRef string) (expiry.Credentials, error)
}
