package memory

import (
	"fmt"

	"github.com/ahrav/cbexpiry/internal/config"
	"github.com/ahrav/cbexpiry/internal/config/credentials"
	"github.com/ahrav/cbexpiry/internal/domain/expiry"
)

var _ credentials.Store = (*CredentialStore)(nil)

// CredentialStore provides centralized access to authentication configurations.
// It maps auth references to their corresponding credentials.
type CredentialStore struct {
	credentials map[string]expiry.Credentials
}

// NewCredentialStore initializes a store from a map of auth configurations.
// It validates and transforms each config into concrete credentials.
func NewCredentialStore(authConfigs map[string]config.AuthConfig) (*CredentialStore, error) {
	store := &CredentialStore{
		credentials: make(map[string]expiry.Credentials, len(authConfigs)),
	}

	for name, auth := range authConfigs {
		creds, err := createCredentials(credentials.CredentialType(auth.Type), auth.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to create credentials for %s: %w", name, err)
		}
		store.credentials[name] = creds
	}

	return store, nil
}

func createCredentials(typ credentials.CredentialType, values map[string]any) (expiry.Credentials, error) {
	switch typ {
	case credentials.CredentialTypeBasic:
		username, err := stringValue(values, "username")
		if err != nil {
			return expiry.Credentials{}, err
		}
		password, err := stringValue(values, "password")
		if err != nil {
			return expiry.Credentials{}, err
		}
		return expiry.Credentials{Username: username, Password: password}, nil
	default:
		return expiry.Credentials{}, fmt.Errorf("unsupported credential type: %q", typ)
	}
}

func stringValue(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%s must be a non-empty string", key)
	}
	return s, nil
}

// GetCredentials looks up credentials by their reference name.
// Returns an error if the reference doesn't exist.
func (s *CredentialStore) GetCredentials(authRef string) (expiry.Credentials, error) {
	creds, ok := s.credentials[authRef]
	if !ok {
		return expiry.Credentials{}, fmt.Errorf("no credentials found for auth_ref: %s", authRef)
	}
	return creds, nil
}
