package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
}

func TestLoadDefaults(t *testing.T) { //nolint:paralleltest // mutates global viper
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.HTTPAddress)
	assert.Equal(t, "sqlite", cfg.DatabaseDriver)
	assert.Equal(t, "resalt.db", cfg.DatabasePath)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionLifespan)
	assert.False(t, cfg.AuthForwardEnabled)
	assert.Equal(t, "X-Forwarded-User", cfg.AuthForwardHeader)
	assert.False(t, cfg.LDAP.Enabled)
	assert.True(t, cfg.UpdatesEnabled)
}

func TestLoadTrimsSaltURL(t *testing.T) { //nolint:paralleltest // mutates global viper
	resetViper(t)
	viper.Set(KeySaltAPIURL, "https://salt.example.com:8080/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://salt.example.com:8080", cfg.SaltAPIURL)
}

func TestLoadSecretFromFile(t *testing.T) { //nolint:paralleltest // mutates global viper
	resetViper(t)

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("svc-token-123\n"), 0o600))
	viper.Set(KeySaltAPITokenFile, tokenFile)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "svc-token-123", cfg.SaltAPIToken)
}

func TestLoadInlineSecretWins(t *testing.T) { //nolint:paralleltest // mutates global viper
	resetViper(t)

	tokenFile := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("from-file"), 0o600))
	viper.Set(KeySaltAPIToken, "inline")
	viper.Set(KeySaltAPITokenFile, tokenFile)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.SaltAPIToken)
}

func TestLoadValidation(t *testing.T) { //nolint:paralleltest // mutates global viper
	tests := []struct {
		name string
		set  map[string]any
	}{
		{"bad driver", map[string]any{KeyDatabaseDriver: "postgres"}},
		{"zero lifespan", map[string]any{KeySessionLifespan: 0}},
		{"ldap without url", map[string]any{KeyLDAPEnabled: true}},
		{"empty address", map[string]any{KeyHTTPAddress: ""}},
	}

	for _, tt := range tests { //nolint:paralleltest // mutates global viper
		t.Run(tt.name, func(t *testing.T) {
			resetViper(t)
			for k, v := range tt.set {
				viper.Set(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadMissingSecretFile(t *testing.T) { //nolint:paralleltest // mutates global viper
	resetViper(t)
	viper.Set(KeySaltAPITokenFile, filepath.Join(t.TempDir(), "does-not-exist"))

	_, err := Load()
	require.Error(t, err)
}
