package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
)

const (
	secretFileName = ".hsm_secret"
	secretEnvVar   = "HSM_SECRET_KEY"
)

// LoadOrGenerateSecret returns the API token. The environment variable wins;
// otherwise a random token is read from, or written to, the config dir.
func LoadOrGenerateSecret(configDir string) string {
	if v := os.Getenv(secretEnvVar); v != "" {
		return v
	}

	secretPath := filepath.Join(configDir, secretFileName)
	if data, err := os.ReadFile(secretPath); err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return s
		}
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	secret := hex.EncodeToString(buf)

	_ = os.MkdirAll(configDir, 0755)
	_ = os.WriteFile(secretPath, []byte(secret), 0600)
	return secret
}

// ReadSecret returns the API token without creating one. It is empty when
// neither the environment nor the config dir has a token.
func ReadSecret(configDir string) string {
	if v := os.Getenv(secretEnvVar); v != "" {
		return v
	}
	data, err := os.ReadFile(filepath.Join(configDir, secretFileName))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
