// Package authentication exposes the SASL/PLAIN-facing entry point: the
// broker's callback handler passes an already-parsed username/password pair
// and receives a bare allow/deny. Diagnostic detail stays in operator logs;
// nothing beyond the boolean ever reaches the remote party.
package authentication

import (
	"github.com/rs/zerolog"

	"github.com/christian-2/broker-ldap-auth/ldap"
)

// Request is the typed authentication request handed over by the SASL
// callback collaborator.
type Request struct {
	Username string
	Password string
}

// SimpleAuthenticator verifies requests against the directory through the
// shared credential cache. Safe for concurrent use; each verification that
// reaches the directory opens its own scoped connection.
type SimpleAuthenticator struct {
	cfg   *ldap.Config
	binds *ldap.CredentialCache
	log   *zerolog.Logger
}

// New builds the entry point around the process-wide credential cache.
func New(cfg *ldap.Config, binds *ldap.CredentialCache, log *zerolog.Logger) *SimpleAuthenticator {
	return &SimpleAuthenticator{cfg: cfg, binds: binds, log: log}
}

// Authenticate maps the tri-state directory outcome onto the allow/deny the
// broker callback needs.
func (s *SimpleAuthenticator) Authenticate(req Request) bool {
	result := ldap.NewAuthenticator(s.cfg, s.binds, s.log).Authenticate(req.Username, req.Password)
	switch result.Status {
	case ldap.SuccessfulBind:
		s.log.Debug().Str("user", req.Username).Msg("authentication successful")
		return true
	case ldap.NoConnection:
		s.log.Error().Str("user", req.Username).Msg("authentication failed - no directory connection")
		return false
	default:
		s.log.Error().Str("user", req.Username).Str("reason", result.Reason).Msg("authentication failed")
		return false
	}
}
