package ldap

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// CredentialCache remembers (DN, secret) pairs that already bound
// successfully, so repeated authentication of the same credentials within
// the TTL window never reaches the directory. Entries expire after the TTL
// and the cache is bounded with least-recently-used eviction. Secrets are
// not retained: keys are digests of the pair.
type CredentialCache struct {
	lru *expirable.LRU[string, struct{}]
	log *zerolog.Logger
}

// NewCredentialCache builds a credential cache shared by reference into
// every Authenticator for the life of the process.
func NewCredentialCache(ttl time.Duration, maxEntries int, log *zerolog.Logger) *CredentialCache {
	return &CredentialCache{
		lru: expirable.NewLRU[string, struct{}](maxEntries, nil, ttl),
		log: log,
	}
}

// Exists reports whether the pair is cached as verified. Lookup only; no
// directory interaction.
func (c *CredentialCache) Exists(userDN, secret string) bool {
	_, ok := c.lru.Get(credentialKey(userDN, secret))
	return ok
}

// Add marks the pair as verified. Re-adding an existing pair restarts its
// TTL.
func (c *CredentialCache) Add(userDN, secret string) {
	c.lru.Add(credentialKey(userDN, secret), struct{}{})
	c.log.Info().Str("userDN", userDN).Msg(msgAuthnCacheUpdated)
}

// InvalidateAll drops every entry. Idempotent; test and operational hook
// only.
func (c *CredentialCache) InvalidateAll() {
	c.lru.Purge()
	c.log.Info().Msg("bind cache reset")
}

// Len returns the current entry count.
func (c *CredentialCache) Len() int {
	return c.lru.Len()
}

func credentialKey(userDN, secret string) string {
	sum := sha256.Sum256([]byte(userDN + "\x00" + secret))
	return hex.EncodeToString(sum[:])
}

// MembershipCache remembers (group, identity DN) pairs confirmed as members.
// Group membership changes less often than credentials, so its TTL is
// configured independently (and typically longer). Same bounded-LRU policy
// as the credential cache, sized larger since it holds user×group pairs.
type MembershipCache struct {
	lru *expirable.LRU[string, struct{}]
	log *zerolog.Logger
}

// NewMembershipCache builds a membership cache shared by reference into
// every Authorizer for the life of the process.
func NewMembershipCache(ttl time.Duration, maxEntries int, log *zerolog.Logger) *MembershipCache {
	return &MembershipCache{
		lru: expirable.NewLRU[string, struct{}](maxEntries, nil, ttl),
		log: log,
	}
}

// Exists reports whether the (group, DN) pair is cached as confirmed.
func (c *MembershipCache) Exists(group, userDN string) bool {
	_, ok := c.lru.Get(membershipKey(group, userDN))
	return ok
}

// Add marks the pair as confirmed, restarting the TTL if already present.
func (c *MembershipCache) Add(group, userDN string) {
	c.lru.Add(membershipKey(group, userDN), struct{}{})
	c.log.Info().Str("group", group).Str("userDN", userDN).Msg(msgAuthzCacheUpdated)
}

// InvalidateAll drops every entry. Idempotent.
func (c *MembershipCache) InvalidateAll() {
	c.lru.Purge()
	c.log.Info().Msg("group cache reset")
}

// Len returns the current entry count.
func (c *MembershipCache) Len() int {
	return c.lru.Len()
}

func membershipKey(group, userDN string) string {
	return group + "\x00" + userDN
}
