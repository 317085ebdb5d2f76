package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

// Credential resolves a secret from the OS keyring first, then from the
// environment variable envKey. The keyring entry is stored under
// KeyringService with user as the account name.
func Credential(user, envKey string) (string, error) {
	secret, err := keyring.Get(KeyringService, user)
	if err == nil && secret != "" {
		return secret, nil
	}
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		slog.Debug(MsgCredFallback,
			LogKeyComponent, CompSettings,
			LogKeyUser, user,
			LogKeyError, err)
	}

	if v := os.Getenv(envKey); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s: %s/%s", ErrCredentialMissing, user, envKey)
}
