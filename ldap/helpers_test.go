package ldap

import (
	"github.com/rs/zerolog"

	"github.com/christian-2/broker-ldap-auth/ldaptest"
)

var nopLogger = zerolog.Nop()

const (
	testUserBaseDN    = "ou=users,dc=example,dc=org"
	testAltUserBaseDN = "ou=serviceaccounts,ou=users,dc=example,dc=org"
	testGroupBaseDN   = "ou=groups,dc=example,dc=org"

	aliceDN  = "uid=alice,ou=users,dc=example,dc=org"
	bobDN    = "uid=bob,ou=users,dc=example,dc=org"
	brokerDN = "uid=broker,ou=users,dc=example,dc=org"
	robotDN  = "uid=robot,ou=serviceaccounts,ou=users,dc=example,dc=org"

	engDN   = "cn=eng,ou=groups,dc=example,dc=org"
	salesDN = "cn=sales,ou=groups,dc=example,dc=org"
)

// testConfig targets the in-memory directory. The alternate branch mirrors
// the separately provisioned service-account sub-OU.
func testConfig(d *ldaptest.Directory) *Config {
	c := &Config{
		Host:          d.Host(),
		Port:          d.Port(),
		NoTLS:         true,
		UsrBaseDN:     testUserBaseDN,
		UsrUid:        "uid",
		UsrAltBaseDNs: []string{testAltUserBaseDN},
		GrpBaseDN:     testGroupBaseDN,
		GrpUid:        "cn",
		GrpAttrName:   "member",
	}
	c.applyDefaults()
	return c
}

// disconnectedDial stands in for a directory that is unreachable.
func disconnectedDial(_ *Config, log *zerolog.Logger) *Connection {
	return &Connection{log: log}
}
