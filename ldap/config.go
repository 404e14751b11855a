// Package ldap implements the directory-facing core of the broker
// authentication and authorization hooks: configuration, connection
// lifecycle, the credential and membership caches, and the two
// orchestrators (Authenticator, Authorizer) built on top of them.
package ldap

import (
	"fmt"
	"os"
	"time"

	ldapv3 "github.com/go-ldap/ldap/v3"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the environment variable holding the configuration
// file path for production deployments. Tests and tools load by explicit
// path instead.
const EnvConfigFile = "LDAP_CONFIG"

const defaultConfigFile = "ldapconfig.yaml"

const (
	defaultConnTimeoutMillis = 3000
	defaultUserCacheExpire   = 2 // minutes
	defaultGroupCacheExpire  = 4 // minutes
	defaultUserCacheSize     = 1_000
	defaultGroupCacheSize    = 10_000
)

// Config holds all directory parameters. It is loaded once at startup and
// never mutated afterwards, so concurrent reads need no synchronization.
// The yaml keys match the original broker-side configuration file.
type Config struct {
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	ConnTimeoutMillis int    `yaml:"connTimeout"`

	// NoTLS disables TLS on the directory connection. Only the in-memory
	// test directory listens in plaintext; production always uses LDAPS.
	NoTLS bool `yaml:"noTLS"`

	UsrBaseDN string `yaml:"usrBaseDN"`
	UsrUid    string `yaml:"usrUid"`

	// UsrAltBaseDNs lists alternate user branches (e.g. a sub-OU where
	// service-style accounts are provisioned). Each branch yields one more
	// candidate DN per username.
	UsrAltBaseDNs []string `yaml:"usrAltBaseDNs"`

	GrpBaseDN   string `yaml:"grpBaseDN"`
	GrpUid      string `yaml:"grpUid"`
	GrpAttrName string `yaml:"grpAttrName"`

	UsrCacheExpire int `yaml:"usrCacheExpire"` // minutes
	GrpCacheExpire int `yaml:"grpCacheExpire"` // minutes
	UsrCacheSize   int `yaml:"usrCacheSize"`
	GrpCacheSize   int `yaml:"grpCacheSize"`
}

// Load reads and decodes a configuration file by explicit path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading ldap config: %w", err)
	}
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decoding ldap config %s: %w", path, err)
	}
	c.applyDefaults()
	return c, nil
}

// LoadDefault loads the configuration from $LDAP_CONFIG, falling back to
// ldapconfig.yaml in the working directory.
func LoadDefault() (*Config, error) {
	path := os.Getenv(EnvConfigFile)
	if path == "" {
		path = defaultConfigFile
	}
	return Load(path)
}

func (c *Config) applyDefaults() {
	if c.ConnTimeoutMillis <= 0 {
		c.ConnTimeoutMillis = defaultConnTimeoutMillis
	}
	if c.UsrCacheExpire <= 0 {
		c.UsrCacheExpire = defaultUserCacheExpire
	}
	if c.GrpCacheExpire <= 0 {
		c.GrpCacheExpire = defaultGroupCacheExpire
	}
	if c.UsrCacheSize <= 0 {
		c.UsrCacheSize = defaultUserCacheSize
	}
	if c.GrpCacheSize <= 0 {
		c.GrpCacheSize = defaultGroupCacheSize
	}
}

// UserDN returns the candidate DN for a username in the primary user branch.
func (c *Config) UserDN(user string) string {
	return fmt.Sprintf("%s=%s,%s", c.UsrUid, ldapv3.EscapeDN(user), c.UsrBaseDN)
}

// UserDNs returns every candidate DN for a username: the primary branch
// first, then one per configured alternate branch. Order is significant;
// callers OR their outcome over the list.
func (c *Config) UserDNs(user string) []string {
	dns := make([]string, 0, 1+len(c.UsrAltBaseDNs))
	dns = append(dns, c.UserDN(user))
	for _, base := range c.UsrAltBaseDNs {
		dns = append(dns, fmt.Sprintf("%s=%s,%s", c.UsrUid, ldapv3.EscapeDN(user), base))
	}
	return dns
}

// ConnTimeout returns the connection-establishment timeout.
func (c *Config) ConnTimeout() time.Duration {
	return time.Duration(c.ConnTimeoutMillis) * time.Millisecond
}

// UserCacheTTL returns the credential cache entry lifetime.
func (c *Config) UserCacheTTL() time.Duration {
	return time.Duration(c.UsrCacheExpire) * time.Minute
}

// GroupCacheTTL returns the membership cache entry lifetime.
func (c *Config) GroupCacheTTL() time.Duration {
	return time.Duration(c.GrpCacheExpire) * time.Minute
}

func (c *Config) address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
