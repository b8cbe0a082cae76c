package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringService is the service name secrets are stored under in the OS keychain.
const KeyringService = "flowctl"

// SecretSource lists the places a Connected App client secret may come from.
// The first non-empty source wins.
type SecretSource struct {
	Value   string
	Env     string
	File    string
	Keyring bool
	// InstanceURL and ClientID form the keychain account name.
	InstanceURL string
	ClientID    string
}

func keyringAccount(instanceURL, clientID string) string {
	return clientID + "@" + strings.TrimRight(instanceURL, "/")
}

// ResolveClientSecret returns the secret from the configured source. An
// unconfigured source yields an empty secret, which public Connected Apps
// accept with PKCE.
func ResolveClientSecret(src SecretSource) (string, error) {
	if src.Value != "" {
		return src.Value, nil
	}
	if src.Env != "" {
		value := strings.TrimSpace(os.Getenv(src.Env))
		if value == "" {
			return "", fmt.Errorf("client secret env var not set: %s", src.Env)
		}
		return value, nil
	}
	if src.File != "" {
		bytes, err := os.ReadFile(src.File)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret file: %w", err)
		}
		return strings.TrimSpace(string(bytes)), nil
	}
	if src.Keyring {
		value, err := keyring.Get(KeyringService, keyringAccount(src.InstanceURL, src.ClientID))
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("no client secret stored in keychain for %s", keyringAccount(src.InstanceURL, src.ClientID))
		}
		if err != nil {
			return "", fmt.Errorf("failed to read client secret from keychain: %w", err)
		}
		return value, nil
	}
	return "", nil
}

// StoreClientSecret saves a client secret in the OS keychain.
func StoreClientSecret(instanceURL, clientID, secret string) error {
	if clientID == "" {
		return errors.New("client id is required")
	}
	if secret == "" {
		return errors.New("client secret is empty")
	}
	if err := keyring.Set(KeyringService, keyringAccount(instanceURL, clientID), secret); err != nil {
		return fmt.Errorf("failed to store client secret: %w", err)
	}
	return nil
}

// DeleteClientSecret removes a stored client secret. A missing entry is not an error.
func DeleteClientSecret(instanceURL, clientID string) error {
	err := keyring.Delete(KeyringService, keyringAccount(instanceURL, clientID))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete client secret: %w", err)
	}
	return nil
}
