package ldap

import (
	"strings"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// ServiceIdentity is the directory account the authorizer binds as before
// searching or reading groups; the directory disallows anonymous
// operations. It is the broker's own credential, supplied by the
// surrounding framework.
type ServiceIdentity struct {
	Username string
	Password string
}

// Authorizer resolves group memberships for one authorization attempt. It
// owns at most one directory session, opened lazily on the first cache
// miss and bound with the service identity. If that bind cannot be
// established, every membership query for this instance fails closed: an
// authorizer that cannot verify membership must never default to granting
// access. Instances are not safe for concurrent use; the framework builds
// one per attempt.
type Authorizer struct {
	cfg         *Config
	memberships *MembershipCache
	svc         ServiceIdentity
	corrID      string
	dial        dialFunc
	log         zerolog.Logger

	conn    *Connection
	bound   bool
	failed  bool
	retried bool
}

// NewAuthorizer builds an authorizer for a single authorization attempt.
// An empty correlationID is replaced with a generated one; it threads
// through every log line and has no behavioral effect.
func NewAuthorizer(cfg *Config, memberships *MembershipCache, svc ServiceIdentity, correlationID string, log *zerolog.Logger) *Authorizer {
	if correlationID == "" {
		correlationID = xid.New().String()
	}
	return &Authorizer{
		cfg:         cfg,
		memberships: memberships,
		svc:         svc,
		corrID:      correlationID,
		dial:        Connect,
		log:         log.With().Str("correlationId", correlationID).Logger(),
	}
}

// CorrelationID returns the id threaded through this attempt's log lines.
func (z *Authorizer) CorrelationID() string {
	return z.corrID
}

// IsMemberOfAny returns the set of (group, identity DN) pairs confirmed for
// the username among the requested groups. Candidate identity DNs cover the
// primary and alternate user branches.
//
// The membership cache is consulted first for every pair; only groups with
// no cached confirmation cost directory work. Group DNs are resolved by
// equality search (ambiguous or zero results leave the group unresolved and
// contribute nothing), then membership is decided by fetching the group's
// member attribute and intersecting it with the candidate DNs. Confirmed
// pairs are cached before returning.
func (z *Authorizer) IsMemberOfAny(username string, groups []string) MembershipResult {
	res := MembershipResult{Connected: true}
	userDNs := z.cfg.UserDNs(username)

	var misses []string
	for _, group := range groups {
		hit := false
		for _, dn := range userDNs {
			if z.memberships.Exists(group, dn) {
				z.log.Debug().Str("group", group).Str("userDN", dn).Msg(msgAuthzCacheHit)
				res.Members = append(res.Members, Membership{Group: group, UserDN: dn})
				hit = true
			}
		}
		if !hit {
			misses = append(misses, group)
		}
	}
	if len(misses) == 0 {
		return res
	}

	if !z.ensureBound() {
		res.Connected = false
		return res
	}

	for _, group := range misses {
		groupDN, ok := z.resolveGroupDN(group)
		if !ok && z.sessionRestored() {
			groupDN, ok = z.resolveGroupDN(group)
		}
		if !ok {
			continue
		}
		members := z.conn.AttributeValues(groupDN, z.cfg.GrpAttrName)
		if members == nil && z.sessionRestored() {
			members = z.conn.AttributeValues(groupDN, z.cfg.GrpAttrName)
		}
		if len(members) == 0 {
			z.log.Debug().Str("group", group).Str("groupDN", groupDN).Msg(msgAuthzFetchFailed)
			continue
		}
		for _, dn := range userDNs {
			if containsDN(members, dn) {
				z.memberships.Add(group, dn)
				res.Members = append(res.Members, Membership{Group: group, UserDN: dn})
			}
		}
	}

	if z.conn == nil || !z.conn.IsConnected() {
		res.Connected = false
	}
	return res
}

// Close releases the directory session, if one was opened. Idempotent.
func (z *Authorizer) Close() {
	if z.conn != nil {
		z.conn.Close()
		z.conn = nil
	}
}

// ensureBound lazily opens the session and binds the service identity. Any
// failure is sticky for the lifetime of the instance.
func (z *Authorizer) ensureBound() bool {
	if z.bound {
		return true
	}
	if z.failed {
		return false
	}
	z.failed = true

	if z.svc.Username == "" || z.svc.Password == "" {
		z.log.Error().Msg(msgAuthzNoCredentials)
		return false
	}
	z.conn = z.dial(z.cfg, &z.log)
	if !z.conn.IsConnected() {
		return false
	}
	outcome := z.conn.Bind(z.cfg.UserDN(z.svc.Username), z.svc.Password)
	if !outcome.OK {
		z.log.Error().Str("reason", outcome.Reason).Msg(msgAuthzBindFailed)
		return false
	}
	z.failed = false
	z.bound = true
	return true
}

// sessionRestored attempts the single inline reconnect this instance is
// allowed when the directory session drops mid-evaluation. It reports true
// only if a fresh session was established and rebound, in which case the
// caller repeats the operation that failed.
func (z *Authorizer) sessionRestored() bool {
	if z.conn != nil && z.conn.IsConnected() {
		return false
	}
	if z.retried {
		return false
	}
	z.retried = true
	z.log.Warn().Msg(msgAuthzReconnect)

	if z.conn != nil {
		z.conn.Close()
	}
	z.conn = z.dial(z.cfg, &z.log)
	if !z.conn.IsConnected() {
		return false
	}
	return z.conn.Bind(z.cfg.UserDN(z.svc.Username), z.svc.Password).OK
}

func (z *Authorizer) resolveGroupDN(group string) (string, bool) {
	dn, ok := z.conn.SearchOne(z.cfg.GrpBaseDN, z.cfg.GrpUid, group)
	if !ok {
		z.log.Info().Str("group", group).Str("grpBaseDN", z.cfg.GrpBaseDN).Msg(msgAuthzGroupMiss)
	}
	return dn, ok
}

// containsDN matches DNs case-insensitively, per LDAP attribute-value
// matching rules.
func containsDN(dns []string, dn string) bool {
	for _, d := range dns {
		if strings.EqualFold(d, dn) {
			return true
		}
	}
	return false
}
