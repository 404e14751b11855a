package ldap

import (
	"github.com/rs/zerolog"
)

// dialFunc opens the directory session for one logical operation. Tests
// substitute it to force disconnected sessions and to count round trips.
type dialFunc func(cfg *Config, log *zerolog.Logger) *Connection

// Authenticator verifies username/password pairs through simple bind
// against every candidate DN for the username. The credential cache is
// consulted before any directory work; a fresh connection is opened only on
// a full cache miss and closed before returning.
type Authenticator struct {
	cfg   *Config
	binds *CredentialCache
	dial  dialFunc
	log   *zerolog.Logger
}

// NewAuthenticator builds an authenticator sharing the process-wide
// credential cache.
func NewAuthenticator(cfg *Config, binds *CredentialCache, log *zerolog.Logger) *Authenticator {
	return &Authenticator{cfg: cfg, binds: binds, dial: Connect, log: log}
}

// Authenticate verifies the pair and returns exactly one of NoConnection,
// SuccessfulBind or UnsuccessfulBind.
//
// Empty usernames and passwords are rejected before the cache is consulted,
// so they can neither reach the directory nor poison the cache with empty
// keys. Candidate DNs are ORed: a cache hit or successful bind on any one
// of them authenticates the user.
func (a *Authenticator) Authenticate(username, password string) AuthenticationResult {
	if username == "" || password == "" {
		return AuthenticationResult{Status: UnsuccessfulBind, Reason: "empty username or password"}
	}

	candidates := a.cfg.UserDNs(username)

	for _, dn := range candidates {
		if a.binds.Exists(dn, password) {
			a.log.Debug().Str("user", username).Msg(msgAuthnCacheHit)
			return AuthenticationResult{Status: SuccessfulBind}
		}
	}

	conn := a.dial(a.cfg, a.log)
	defer conn.Close()

	if !conn.IsConnected() {
		a.log.Error().Str("user", username).Msg(msgAuthnNoConnection)
		return AuthenticationResult{Status: NoConnection}
	}

	var lastReason string
	for _, dn := range candidates {
		outcome := conn.Bind(dn, password)
		if outcome.OK {
			a.binds.Add(dn, password)
			return AuthenticationResult{Status: SuccessfulBind}
		}
		a.log.Debug().Str("userDN", dn).Str("reason", outcome.Reason).Msg("bind rejected")
		lastReason = outcome.Reason
	}
	a.log.Info().Str("user", username).Msg(msgAuthnFailed)
	return AuthenticationResult{Status: UnsuccessfulBind, Reason: lastReason}
}
