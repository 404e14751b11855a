// Package authorization exposes the ACL-facing entry point: the broker's
// authorizer wrapper passes a principal name and the group names found in
// the matching allow ACLs, and receives whether any membership was
// confirmed.
//
// One boundary behavior stays with the wrapper collaborator: when the
// target of an operation is itself a group-definition resource, the
// framework short-circuits to "authorized" and never calls into this
// package.
package authorization

import (
	"github.com/rs/zerolog"

	"github.com/christian-2/broker-ldap-auth/ldap"
)

// GroupAuthorizer answers membership questions through the shared
// membership cache, binding the service identity only when a directory
// round trip is unavoidable. Safe for concurrent use; every call builds a
// per-attempt ldap.Authorizer with scoped connection acquisition.
type GroupAuthorizer struct {
	cfg         *ldap.Config
	memberships *ldap.MembershipCache
	svc         ldap.ServiceIdentity
	log         *zerolog.Logger
}

// New builds the entry point around the process-wide membership cache.
func New(cfg *ldap.Config, memberships *ldap.MembershipCache, svc ldap.ServiceIdentity, log *zerolog.Logger) *GroupAuthorizer {
	return &GroupAuthorizer{cfg: cfg, memberships: memberships, svc: svc, log: log}
}

// Authorize reports whether the principal is a confirmed member of any of
// the groups. Directory unavailability denies (fail closed). The
// correlation id threads through the attempt's log lines; empty means
// generate one.
func (g *GroupAuthorizer) Authorize(principal string, groups []string, correlationID string) bool {
	return g.Memberships(principal, groups, correlationID).Authorized()
}

// Memberships returns the full membership result for collaborators that
// need the confirmed pairs or the connectivity flag rather than the bare
// decision.
func (g *GroupAuthorizer) Memberships(principal string, groups []string, correlationID string) ldap.MembershipResult {
	authorizer := ldap.NewAuthorizer(g.cfg, g.memberships, g.svc, correlationID, g.log)
	defer authorizer.Close()
	return authorizer.IsMemberOfAny(principal, groups)
}
