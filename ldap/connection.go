package ldap

import (
	"crypto/tls"
	"fmt"
	"net"

	ldapv3 "github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"
)

// BindOutcome is the result of a simple bind. Reason distinguishes invalid
// credentials from transport faults in its text, but both map to OK=false
// for caller logic.
type BindOutcome struct {
	OK     bool
	Reason string
}

// Connection wraps exactly one directory session, owned by a single
// Authenticator or Authorizer for the duration of one logical operation.
//
// Construction is fail-soft: Connect always returns a Connection, and a
// failed dial yields one that reports IsConnected() == false. Every
// operation on a disconnected Connection short-circuits to its negative
// outcome without touching the network, which is the safety rail that
// prevents mis-authenticating on a broken session.
type Connection struct {
	conn      *ldapv3.Conn
	connected bool
	log       *zerolog.Logger
}

// Connect opens a session to the configured directory within the connect
// timeout. Production connections use LDAPS; certificate verification is
// skipped, a known relaxation acceptable only inside the closed network
// perimeter (the directory and brokers share it).
func Connect(cfg *Config, log *zerolog.Logger) *Connection {
	c := &Connection{log: log}

	dialer := ldapv3.DialWithDialer(&net.Dialer{Timeout: cfg.ConnTimeout()})

	var conn *ldapv3.Conn
	var err error
	if cfg.NoTLS {
		conn, err = ldapv3.DialURL(fmt.Sprintf("ldap://%s", cfg.address()), dialer)
	} else {
		conn, err = ldapv3.DialURL(
			fmt.Sprintf("ldaps://%s", cfg.address()),
			dialer,
			ldapv3.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true}),
		)
	}
	if err != nil {
		log.Error().Err(err).Str("address", cfg.address()).Msg(msgConnectFailed)
		return c
	}

	conn.SetTimeout(cfg.ConnTimeout())
	c.conn = conn
	c.connected = true
	log.Debug().Str("address", cfg.address()).Msg(msgConnected)
	return c
}

// IsConnected reports whether the session is usable. Callers must check
// before relying on positive outcomes.
func (c *Connection) IsConnected() bool {
	return c.connected
}

// Bind attempts a simple bind of dn with the secret.
func (c *Connection) Bind(dn, secret string) BindOutcome {
	if !c.connected {
		return BindOutcome{Reason: "no directory connection"}
	}
	if err := c.conn.Bind(dn, secret); err != nil {
		c.observe(err)
		return BindOutcome{Reason: err.Error()}
	}
	return BindOutcome{OK: true}
}

// SearchOne resolves the DN of the single entry under baseDN whose attr
// equals value. Zero matches and ambiguous (multiple) matches both yield
// found=false; ambiguity is never resolved by picking the first entry and
// never escalated to an error.
func (c *Connection) SearchOne(baseDN, attr, value string) (dn string, found bool) {
	if !c.connected {
		return "", false
	}
	filter := fmt.Sprintf("(%s=%s)", attr, ldapv3.EscapeFilter(value))
	req := ldapv3.NewSearchRequest(
		baseDN,
		ldapv3.ScopeWholeSubtree, ldapv3.NeverDerefAliases, 0, 0, false,
		filter,
		[]string{"1.1"}, // DNs only
		nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		c.observe(err)
		c.log.Debug().Err(err).Str("filter", filter).Str("baseDN", baseDN).Msg("search failed")
		return "", false
	}
	if len(res.Entries) != 1 {
		c.log.Debug().Int("entries", len(res.Entries)).Str("filter", filter).Msg("search did not resolve a single entry")
		return "", false
	}
	return res.Entries[0].DN, true
}

// AttributeValues reads a multi-valued attribute from an entry by DN.
// Returns nil if the entry or attribute is absent or the read fails.
func (c *Connection) AttributeValues(dn, attr string) []string {
	if !c.connected {
		return nil
	}
	req := ldapv3.NewSearchRequest(
		dn,
		ldapv3.ScopeBaseObject, ldapv3.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)",
		[]string{attr},
		nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		c.observe(err)
		c.log.Debug().Err(err).Str("dn", dn).Str("attr", attr).Msg("attribute read failed")
		return nil
	}
	if len(res.Entries) == 0 {
		return nil
	}
	return res.Entries[0].GetAttributeValues(attr)
}

// CompareMatch tests whether the entry's attribute holds the value, via the
// directory compare operation. Any error (invalid DN, absent attribute,
// transport fault) is logged and reported as a non-match.
func (c *Connection) CompareMatch(dn, attr, value string) bool {
	if !c.connected {
		return false
	}
	matched, err := c.conn.Compare(dn, attr, value)
	if err != nil {
		c.observe(err)
		c.log.Debug().Err(err).Str("dn", dn).Str("attr", attr).Msg("compare failed")
		return false
	}
	return matched
}

// Close releases the session. Idempotent.
func (c *Connection) Close() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// observe flips the connection to disconnected on network-level errors so
// that subsequent operations short-circuit instead of re-hitting a dead
// transport.
func (c *Connection) observe(err error) {
	if ldapv3.IsErrorWithCode(err, ldapv3.ErrorNetwork) {
		c.connected = false
	}
}
