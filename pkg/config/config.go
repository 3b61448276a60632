// Package config loads runtime configuration from viper-bound flags and
// RESALT_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Dots map to underscores in the environment, so
// "salt.api.url" is RESALT_SALT_API_URL.
const (
	KeyHTTPAddress       = "http.address"
	KeyDatabaseDriver    = "database.driver"
	KeyDatabasePath      = "database.path"
	KeySessionLifespan   = "auth.session.lifespan"
	KeyForwardEnabled    = "auth.forward.enabled"
	KeyForwardHeader     = "auth.forward.header"
	KeySaltAPIURL        = "salt.api.url"
	KeySaltAPISkipVerify = "salt.api.skipverify"
	KeySaltAPIToken      = "salt.api.token"
	KeySaltAPITokenFile  = "salt.api.tokenfile"
	KeyLDAPEnabled       = "auth.ldap.enabled"
	KeyLDAPURL           = "auth.ldap.url"
	KeyLDAPStartTLS      = "auth.ldap.starttls"
	KeyLDAPSkipVerify    = "auth.ldap.skipverify"
	KeyLDAPBaseDN        = "auth.ldap.basedn"
	KeyLDAPBindDN        = "auth.ldap.binddn"
	KeyLDAPBindPassword  = "auth.ldap.bindpassword"
	KeyLDAPBindPassFile  = "auth.ldap.bindpasswordfile"
	KeyLDAPUserFilter    = "auth.ldap.userfilter"
	KeyLDAPUserAttribute = "auth.ldap.userattribute"
	KeyLDAPSyncInterval  = "auth.ldap.syncinterval"
	KeyUpdatesEnabled    = "updates.enabled"
	KeyUpdatesURL        = "updates.url"
)

// LDAP holds the directory connection settings.
type LDAP struct {
	Enabled       bool
	URL           string
	StartTLS      bool
	SkipTLSVerify bool
	BaseDN        string
	BindDN        string
	BindPassword  string
	UserFilter    string
	UserAttribute string
	SyncInterval  time.Duration
}

// Config is the resolved runtime configuration.
type Config struct {
	HTTPAddress          string
	DatabaseDriver       string
	DatabasePath         string
	SessionLifespan      time.Duration
	AuthForwardEnabled   bool
	AuthForwardHeader    string
	SaltAPIURL           string
	SaltAPITLSSkipVerify bool
	SaltAPIToken         string
	LDAP                 LDAP
	UpdatesEnabled       bool
	UpdatesURL           string
}

// SetDefaults registers default values and wires the RESALT_ environment
// prefix onto the global viper instance.
func SetDefaults() {
	viper.SetEnvPrefix("RESALT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault(KeyHTTPAddress, ":8000")
	viper.SetDefault(KeyDatabaseDriver, "sqlite")
	viper.SetDefault(KeyDatabasePath, "resalt.db")
	viper.SetDefault(KeySessionLifespan, 604800)
	viper.SetDefault(KeyForwardEnabled, false)
	viper.SetDefault(KeyForwardHeader, "X-Forwarded-User")
	viper.SetDefault(KeySaltAPIURL, "https://localhost:8080")
	viper.SetDefault(KeySaltAPISkipVerify, false)
	viper.SetDefault(KeyLDAPEnabled, false)
	viper.SetDefault(KeyLDAPStartTLS, false)
	viper.SetDefault(KeyLDAPSkipVerify, false)
	viper.SetDefault(KeyLDAPUserFilter, "(&(objectClass=user)(sAMAccountName=%s))")
	viper.SetDefault(KeyLDAPUserAttribute, "sAMAccountName")
	viper.SetDefault(KeyLDAPSyncInterval, 3600)
	viper.SetDefault(KeyUpdatesEnabled, true)
	viper.SetDefault(KeyUpdatesURL, "https://secure.resalt.dev/RELEASE.json")
}

// Load resolves the configuration from viper, reading secret files where
// configured.
func Load() (*Config, error) {
	saltToken, err := resolveSecret(viper.GetString(KeySaltAPIToken), viper.GetString(KeySaltAPITokenFile))
	if err != nil {
		return nil, fmt.Errorf("resolving salt api token: %w", err)
	}
	ldapPassword, err := resolveSecret(viper.GetString(KeyLDAPBindPassword), viper.GetString(KeyLDAPBindPassFile))
	if err != nil {
		return nil, fmt.Errorf("resolving ldap bind password: %w", err)
	}

	cfg := &Config{
		HTTPAddress:          viper.GetString(KeyHTTPAddress),
		DatabaseDriver:       viper.GetString(KeyDatabaseDriver),
		DatabasePath:         viper.GetString(KeyDatabasePath),
		SessionLifespan:      time.Duration(viper.GetInt64(KeySessionLifespan)) * time.Second,
		AuthForwardEnabled:   viper.GetBool(KeyForwardEnabled),
		AuthForwardHeader:    viper.GetString(KeyForwardHeader),
		SaltAPIURL:           strings.TrimRight(viper.GetString(KeySaltAPIURL), "/"),
		SaltAPITLSSkipVerify: viper.GetBool(KeySaltAPISkipVerify),
		SaltAPIToken:         saltToken,
		LDAP: LDAP{
			Enabled:       viper.GetBool(KeyLDAPEnabled),
			URL:           viper.GetString(KeyLDAPURL),
			StartTLS:      viper.GetBool(KeyLDAPStartTLS),
			SkipTLSVerify: viper.GetBool(KeyLDAPSkipVerify),
			BaseDN:        viper.GetString(KeyLDAPBaseDN),
			BindDN:        viper.GetString(KeyLDAPBindDN),
			BindPassword:  ldapPassword,
			UserFilter:    viper.GetString(KeyLDAPUserFilter),
			UserAttribute: viper.GetString(KeyLDAPUserAttribute),
			SyncInterval:  time.Duration(viper.GetInt64(KeyLDAPSyncInterval)) * time.Second,
		},
		UpdatesEnabled: viper.GetBool(KeyUpdatesEnabled),
		UpdatesURL:     viper.GetString(KeyUpdatesURL),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddress == "" {
		return fmt.Errorf("http address must not be empty")
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "memory" {
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if c.SessionLifespan <= 0 {
		return fmt.Errorf("session lifespan must be positive")
	}
	if c.LDAP.Enabled && c.LDAP.URL == "" {
		return fmt.Errorf("ldap is enabled but no url is configured")
	}
	return nil
}

// resolveSecret prefers the inline value; otherwise it reads the file,
// trimming surrounding whitespace.
func resolveSecret(inline, file string) (string, error) {
	if inline != "" || file == "" {
		return inline, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
