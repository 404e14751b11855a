// One-off: verify group membership resolution against the directory named
// in the configuration file, through the same code path the broker hook
// uses. With --compare, additionally probe each resolved group with an LDAP
// compare request, which some directories disallow.
// Usage: go run ./cmd/verify-membership --config ldapconfig.yaml \
//   --bind-user srvbroker --bind-password secret --user alice --group eng --group ops
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
	bindUser := pflag.String("bind-user", "", "service account username for the search bind")
	bindPassword := pflag.String("bind-password", "", "service account password")
	user := pflag.String("user", "", "username whose memberships to check")
	groups := pflag.StringArray("group", nil, "group name to check (repeatable)")
	compare := pflag.Bool("compare", false, "also probe each group with an LDAP compare request")
	verbose := pflag.BoolP("verbose", "v", false, "debug logging")
	pflag.Parse()

	if *bindUser == "" || *bindPassword == "" || *user == "" || len(*groups) == 0 {
		fmt.Fprintln(os.Stderr, "set --bind-user, --bind-password, --user and at least one --group")
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

	memberships := ldap.NewMembershipCache(cfg.GroupCacheTTL(), cfg.GrpCacheSize, &log)
	svc := ldap.ServiceIdentity{Username: *bindUser, Password: *bindPassword}
	authorizer := ldap.NewAuthorizer(cfg, memberships, svc, "", &log)
	defer authorizer.Close()

	res := authorizer.IsMemberOfAny(*user, *groups)
	if !res.Connected {
		fmt.Fprintf(os.Stderr, "membership: directory unavailable (%s:%d)\n", cfg.Host, cfg.Port)
		os.Exit(1)
	}
	for _, m := range res.Members {
		fmt.Printf("member: %s in %s\n", m.UserDN, m.Group)
	}
	if !res.Authorized() {
		fmt.Fprintf(os.Stderr, "membership: %s is in none of %v\n", *user, *groups)
		os.Exit(1)
	}

	if *compare {
		probeCompare(cfg, svc, *user, *groups, &log)
	}
}

// probeCompare cross-checks each group via the compare operation on its
// member attribute, reporting directories that reject compare requests.
func probeCompare(cfg *ldap.Config, svc ldap.ServiceIdentity, user string, groups []string, log *zerolog.Logger) {
	conn := ldap.Connect(cfg, log)
	defer conn.Close()
	if !conn.IsConnected() {
		fmt.Fprintln(os.Stderr, "compare: no directory connection")
		return
	}
	if outcome := conn.Bind(cfg.UserDN(svc.Username), svc.Password); !outcome.OK {
		fmt.Fprintf(os.Stderr, "compare: service bind failed (%s)\n", outcome.Reason)
		return
	}

	for _, group := range groups {
		groupDN, found := conn.SearchOne(cfg.GrpBaseDN, cfg.GrpUid, group)
		if !found {
			fmt.Printf("compare: %s unresolved\n", group)
			continue
		}
		for _, dn := range cfg.UserDNs(user) {
			fmt.Printf("compare: %s member %s -> %v\n", groupDN, dn, conn.CompareMatch(groupDN, cfg.GrpAttrName, dn))
		}
	}
}
