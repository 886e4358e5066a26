// Package config – keyring.go resolves the AI API key from the OS keyring,
// environment, or config, in that order.
package config

import (
	"fmt"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "atendebot"
	keyringUser    = "api_key"
)

// ResolveAPIKey returns the AI API key from the first available source:
// OS keyring, ATENDEBOT_API_KEY, GEMINI_API_KEY, OPENAI_API_KEY, then the
// config value. Empty when no source has one.
func ResolveAPIKey(cfg *Config) string {
	if key, err := keyring.Get(keyringService, keyringUser); err == nil && key != "" {
		return key
	}
	for _, env := range []string{"ATENDEBOT_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY"} {
		if key := os.Getenv(env); key != "" {
			return key
		}
	}
	return cfg.AI.APIKey
}

// StoreAPIKey saves the key in the OS keyring.
func StoreAPIKey(key string) error {
	if err := keyring.Set(keyringService, keyringUser, key); err != nil {
		return fmt.Errorf("storing API key in keyring: %w", err)
	}
	return nil
}

// DeleteAPIKey removes the key from the OS keyring. Missing keys are not an
// error.
func DeleteAPIKey() error {
	err := keyring.Delete(keyringService, keyringUser)
	if err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("deleting API key from keyring: %w", err)
	}
	return nil
}
