package ldap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christian-2/broker-ldap-auth/ldaptest"
)

var testService = ServiceIdentity{Username: "broker", Password: "brokerpw"}

func newTestAuthorizer(cfg *Config, memberships *MembershipCache, svc ServiceIdentity) *Authorizer {
	return NewAuthorizer(cfg, memberships, svc, "", &nopLogger)
}

func TestIsMemberOfAnyConfirmed(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, testService)
	defer z.Close()

	res := z.IsMemberOfAny("alice", []string{"eng"})
	assert.True(t, res.Connected)
	assert.True(t, res.Authorized())
	assert.Equal(t, []Membership{{Group: "eng", UserDN: aliceDN}}, res.Members)
	assert.True(t, memberships.Exists("eng", aliceDN))
}

func TestIsMemberOfAnyNotMember(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, testService)
	defer z.Close()

	res := z.IsMemberOfAny("alice", []string{"sales"})
	assert.True(t, res.Connected)
	assert.False(t, res.Authorized())
	assert.Empty(t, res.Members)
	assert.False(t, memberships.Exists("sales", aliceDN))
}

func TestIsMemberOfAnyMultipleGroups(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, testService)
	defer z.Close()

	res := z.IsMemberOfAny("alice", []string{"sales", "eng"})
	assert.True(t, res.Authorized())
	assert.Equal(t, []Membership{{Group: "eng", UserDN: aliceDN}}, res.Members)
}

func TestIsMemberOfAnyCachedSkipsDirectory(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)

	first := newTestAuthorizer(testConfig(d), memberships, testService)
	require.True(t, first.IsMemberOfAny("alice", []string{"eng"}).Authorized())
	first.Close()

	bindsBefore := d.BindCount()
	searchesBefore := d.SearchCount()

	// A fresh attempt sharing the cache never reaches the directory; it does
	// not even bind the service identity.
	second := newTestAuthorizer(testConfig(d), memberships, testService)
	defer second.Close()
	res := second.IsMemberOfAny("alice", []string{"eng"})
	assert.True(t, res.Authorized())
	assert.True(t, res.Connected)
	assert.Equal(t, bindsBefore, d.BindCount())
	assert.Equal(t, searchesBefore, d.SearchCount())
}

func TestIsMemberOfAnyCacheExpiry(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(50*time.Millisecond, 100, &nopLogger)

	first := newTestAuthorizer(testConfig(d), memberships, testService)
	require.True(t, first.IsMemberOfAny("alice", []string{"eng"}).Authorized())
	first.Close()

	time.Sleep(150 * time.Millisecond)
	searchesBefore := d.SearchCount()

	second := newTestAuthorizer(testConfig(d), memberships, testService)
	defer second.Close()
	assert.True(t, second.IsMemberOfAny("alice", []string{"eng"}).Authorized())
	assert.Greater(t, d.SearchCount(), searchesBefore)
}

func TestIsMemberOfAnyUnknownGroup(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, testService)
	defer z.Close()

	res := z.IsMemberOfAny("alice", []string{"nonexistent"})
	assert.True(t, res.Connected)
	assert.False(t, res.Authorized())
}

func TestIsMemberOfAnyAmbiguousGroupSkipped(t *testing.T) {
	d := startSeededDirectory(t)
	d.SetGroups(
		ldaptest.NewGroup("cn=dup,ou=east,ou=groups,dc=example,dc=org", "cn", "dup", "member", aliceDN),
		ldaptest.NewGroup("cn=dup,ou=west,ou=groups,dc=example,dc=org", "cn", "dup", "member", aliceDN),
		ldaptest.NewGroup(engDN, "cn", "eng", "member", aliceDN),
	)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, testService)
	defer z.Close()

	// The ambiguous group contributes nothing, even though alice appears in
	// both entries; the unambiguous group is still evaluated.
	res := z.IsMemberOfAny("alice", []string{"dup", "eng"})
	assert.True(t, res.Connected)
	assert.Equal(t, []Membership{{Group: "eng", UserDN: aliceDN}}, res.Members)
	assert.False(t, memberships.Exists("dup", aliceDN))
}

func TestIsMemberOfAnyAlternateBranchIdentity(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, testService)
	defer z.Close()

	// robot's membership is recorded under its alternate-branch DN.
	res := z.IsMemberOfAny("robot", []string{"eng"})
	assert.True(t, res.Authorized())
	assert.Equal(t, []Membership{{Group: "eng", UserDN: robotDN}}, res.Members)
	assert.True(t, memberships.Exists("eng", robotDN))
}

func TestIsMemberOfAnyServiceBindFailure(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, ServiceIdentity{Username: "broker", Password: "wrong"})
	defer z.Close()

	res := z.IsMemberOfAny("alice", []string{"eng"})
	assert.False(t, res.Connected)
	assert.False(t, res.Authorized())

	// The failure is sticky: a second query on the same instance does not
	// retry the service bind.
	bindsAfter := d.BindCount()
	res = z.IsMemberOfAny("alice", []string{"eng"})
	assert.False(t, res.Authorized())
	assert.Equal(t, bindsAfter, d.BindCount())
}

func TestIsMemberOfAnyMissingServiceCredentials(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, ServiceIdentity{})
	defer z.Close()

	res := z.IsMemberOfAny("alice", []string{"eng"})
	assert.False(t, res.Connected)
	assert.False(t, res.Authorized())
	assert.Equal(t, int64(0), d.BindCount())
	assert.Equal(t, int64(0), d.SearchCount())
}

func TestIsMemberOfAnyDisconnected(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, testService)
	z.dial = disconnectedDial
	defer z.Close()

	res := z.IsMemberOfAny("alice", []string{"eng"})
	assert.False(t, res.Connected)
	assert.False(t, res.Authorized())
	assert.Equal(t, int64(0), d.SearchCount())
}

func TestIsMemberOfAnyCacheHitDuringOutage(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	memberships.Add("eng", aliceDN)

	z := newTestAuthorizer(testConfig(d), memberships, testService)
	z.dial = disconnectedDial
	defer z.Close()

	// All requested groups answered from cache; the outage is invisible.
	res := z.IsMemberOfAny("alice", []string{"eng"})
	assert.True(t, res.Connected)
	assert.True(t, res.Authorized())
	assert.Equal(t, int64(0), d.BindCount())
}

func TestIsMemberOfAnyNoGroups(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, testService)
	defer z.Close()

	res := z.IsMemberOfAny("alice", nil)
	assert.True(t, res.Connected)
	assert.False(t, res.Authorized())
	assert.Equal(t, int64(0), d.BindCount())
}

func TestCorrelationID(t *testing.T) {
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)

	generated := NewAuthorizer(&Config{}, memberships, testService, "", &nopLogger)
	assert.NotEmpty(t, generated.CorrelationID())

	supplied := NewAuthorizer(&Config{}, memberships, testService, "req-42", &nopLogger)
	assert.Equal(t, "req-42", supplied.CorrelationID())
}

func TestAuthorizerCloseIdempotent(t *testing.T) {
	d := startSeededDirectory(t)
	memberships := NewMembershipCache(time.Minute, 100, &nopLogger)
	z := newTestAuthorizer(testConfig(d), memberships, testService)

	require.True(t, z.IsMemberOfAny("alice", []string{"eng"}).Authorized())
	z.Close()
	z.Close()
}
