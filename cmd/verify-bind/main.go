// One-off: verify that a username/password pair authenticates against the
// directory named in the configuration file, through the same code path the
// broker hook uses (cache included, so a second run within the TTL window
// should report a cache hit in the logs).
// Usage: go run ./cmd/verify-bind --config ldapconfig.yaml --user alice --password secret1
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/christian-2/broker-ldap-auth/ldap"
)

func main() {
	configPath := pflag.String("config", "", "configuration file (default $LDAP_CONFIG, then ldapconfig.yaml)")
	user := pflag.String("user", "", "username to authenticate")
	password := pflag.String("password", "", "password to authenticate with")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	if *user == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "set --user and --password")
		os.Exit(1)
	}

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(zerolog.InfoLevel).With().Timestamp().Logger()
	if *verbose {
		log = log.Level(zerolog.DebugLevel)
	}

	var cfg *ldap.Config
	var err error
	if *configPath != "" {
		cfg, err = ldap.Load(*configPath)
	} else {
		cfg, err = ldap.LoadDefault()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	binds := ldap.NewCredentialCache(cfg.UserCacheTTL(), cfg.UsrCacheSize, &log)
	res := ldap.NewAuthenticator(cfg, binds, &log).Authenticate(*user, *password)

	switch res.Status {
	case ldap.SuccessfulBind:
		fmt.Printf("bind: success (candidate DNs: %v)\n", cfg.UserDNs(*user))
	case ldap.NoConnection:
		fmt.Fprintf(os.Stderr, "bind: no directory connection (%s:%d)\n", cfg.Host, cfg.Port)
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "bind: rejected (%s)\n", res.Reason)
		os.Exit(1)
	}
}
