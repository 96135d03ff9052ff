package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/mobile-next/devicebridge/utils"
	"github.com/zalando/go-keyring"
)

const KeyringService = "devicebridge"

// Keyring users. Each maps to an environment variable that takes precedence.
const (
	CloudTokenUser    = "cloud-token"
	FarmAccessKeyUser = "farm-access-key"
)

var secretEnv = map[string]string{
	CloudTokenUser:    "DEVICEBRIDGE_CLOUD_TOKEN",
	FarmAccessKeyUser: "DEVICEBRIDGE_FARM_ACCESS_KEY",
}

// SecretUsers lists the known keyring users.
func SecretUsers() []string {
	return []string{CloudTokenUser, FarmAccessKeyUser}
}

// Secrets reads credentials from the environment first and the OS keyring second.
type Secrets struct {
	service string
	getenv  func(string) string
}

func NewSecrets() *Secrets {
	return &Secrets{service: KeyringService, getenv: os.Getenv}
}

func knownUser(user string) error {
	if _, ok := secretEnv[user]; !ok {
		return fmt.Errorf("unknown secret %q", user)
	}
	return nil
}

// Lookup returns the secret for user. An absent secret is an empty string.
func (s *Secrets) Lookup(user string) (string, error) {
	if err := knownUser(user); err != nil {
		return "", err
	}
	if v := s.getenv(secretEnv[user]); v != "" {
		return v, nil
	}

	value, err := keyring.Get(s.service, user)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		// no secret service on this host
		utils.Verbose("keyring unavailable for %s: %v", user, err)
		return "", nil
	}
	return value, nil
}

// Set stores the secret in the keyring.
func (s *Secrets) Set(user, value string) error {
	if err := knownUser(user); err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("refusing to store an empty %s", user)
	}
	if err := keyring.Set(s.service, user, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", user, err)
	}
	return nil
}

// Delete removes the secret. Deleting an absent secret succeeds.
func (s *Secrets) Delete(user string) error {
	if err := knownUser(user); err != nil {
		return err
	}
	err := keyring.Delete(s.service, user)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete %s: %w", user, err)
	}
	return nil
}

// Source reports where Lookup would find user: "env", "keyring" or "".
func (s *Secrets) Source(user string) string {
	if err := knownUser(user); err != nil {
		return ""
	}
	if s.getenv(secretEnv[user]) != "" {
		return "env"
	}
	if _, err := keyring.Get(s.service, user); err == nil {
		return "keyring"
	}
	return ""
}
