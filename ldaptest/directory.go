// Package ldaptest provides an in-memory LDAP directory for tests: simple
// bind against seeded user entries, equality-filter and base-object search
// over users and groups, and operation counters so tests can assert that
// cache hits cause zero directory round trips. It is a test fixture, not
// production logic.
package ldaptest

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	ldapv3 "github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"
	"github.com/jimlambrt/gldap"
	"github.com/stretchr/testify/require"
)

// passwordAttr is the attribute simple binds are verified against.
const passwordAttr = "userPassword"

// Directory is a stateful in-memory LDAP server listening in plaintext on
// a free localhost port.
type Directory struct {
	t    *testing.T
	s    *gldap.Server
	host string
	port int

	mu     sync.Mutex
	users  []*gldap.Entry
	groups []*gldap.Entry

	binds    atomic.Int64
	searches atomic.Int64

	stop sync.Once
}

// Option configures Start.
type Option func(*options)

type options struct {
	users  []*gldap.Entry
	groups []*gldap.Entry
	logger hclog.Logger
}

// WithUsers seeds user entries.
func WithUsers(users ...*gldap.Entry) Option {
	return func(o *options) { o.users = append(o.users, users...) }
}

// WithGroups seeds group entries.
func WithGroups(groups ...*gldap.Entry) Option {
	return func(o *options) { o.groups = append(o.groups, groups...) }
}

// WithLogger routes server logging somewhere visible; default is discard.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewUser builds a user entry bindable with the given password.
func NewUser(dn, password string) *gldap.Entry {
	return gldap.NewEntry(dn, map[string][]string{
		passwordAttr:  {password},
		"objectClass": {"person"},
	})
}

// NewGroup builds a group entry named by the attribute the authorizer
// searches on (e.g. cn) and carrying member DNs in memberAttr.
func NewGroup(dn, nameAttr, name, memberAttr string, memberDNs ...string) *gldap.Entry {
	return gldap.NewEntry(dn, map[string][]string{
		nameAttr:      {name},
		memberAttr:    memberDNs,
		"objectClass": {"groupOfNames"},
	})
}

// Start runs a directory server and registers shutdown with t.Cleanup.
func Start(t *testing.T, opt ...Option) *Directory {
	t.Helper()
	opts := &options{logger: hclog.NewNullLogger()}
	for _, o := range opt {
		o(opts)
	}

	d := &Directory{
		t:      t,
		host:   "127.0.0.1",
		port:   FreePort(t),
		users:  opts.users,
		groups: opts.groups,
	}

	var err error
	d.s, err = gldap.NewServer(gldap.WithLogger(opts.logger))
	require.NoError(t, err)

	mux, err := gldap.NewMux()
	require.NoError(t, err)
	require.NoError(t, mux.Bind(d.handleBind))
	require.NoError(t, mux.Search(d.handleSearch, gldap.WithLabel("search")))
	require.NoError(t, mux.DefaultRoute(d.handleNotSupported))
	require.NoError(t, d.s.Router(mux))

	go func() {
		_ = d.s.Run(fmt.Sprintf("%s:%d", d.host, d.port))
	}()
	for !d.s.Ready() {
		time.Sleep(time.Millisecond)
	}

	t.Cleanup(d.Stop)
	return d
}

// Stop shuts the server down. Idempotent; also registered with t.Cleanup.
func (d *Directory) Stop() {
	d.stop.Do(func() {
		_ = d.s.Stop()
	})
}

// Host returns the listen host.
func (d *Directory) Host() string { return d.host }

// Port returns the listen port.
func (d *Directory) Port() int { return d.port }

// BindCount returns the number of bind requests served so far.
func (d *Directory) BindCount() int64 { return d.binds.Load() }

// SearchCount returns the number of search requests served so far.
func (d *Directory) SearchCount() int64 { return d.searches.Load() }

// SetGroups replaces the group entries.
func (d *Directory) SetGroups(groups ...*gldap.Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups = groups
}

// Conn dials the directory with go-ldap, retrying briefly while the
// listener comes up. Useful for liveness checks outside the code under
// test.
func (d *Directory) Conn() *ldapv3.Conn {
	d.t.Helper()
	var conn *ldapv3.Conn
	err := backoff.Retry(func() error {
		var dialErr error
		conn, dialErr = ldapv3.DialURL(fmt.Sprintf("ldap://%s:%d", d.host, d.port))
		return dialErr
	}, backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 10))
	require.NoError(d.t, err)
	return conn
}

// FreePort reserves a localhost port and releases it for the caller.
func FreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// handleBind supports simple authentication only, verified against the
// entry's userPassword attribute.
func (d *Directory) handleBind(w *gldap.ResponseWriter, r *gldap.Request) {
	d.binds.Add(1)
	resp := r.NewBindResponse(gldap.WithResponseCode(gldap.ResultInvalidCredentials))
	defer func() {
		_ = w.Write(resp)
	}()

	m, err := r.GetSimpleBindMessage()
	if err != nil || m.AuthChoice != gldap.SimpleAuthChoice {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if !strings.EqualFold(u.DN, string(m.UserName)) {
			continue
		}
		values := u.GetAttributeValues(passwordAttr)
		if len(values) > 0 && string(m.Password) == values[0] {
			resp.SetResultCode(gldap.ResultSuccess)
		}
		return
	}
}

// handleSearch serves two request shapes: base-object reads of a known
// entry DN, and single-equality filters (attr=value) over all entries.
// Filter searches answer success even with zero matches, as a real server
// does when the base exists.
func (d *Directory) handleSearch(w *gldap.ResponseWriter, r *gldap.Request) {
	d.searches.Add(1)
	res := r.NewSearchDoneResponse(gldap.WithResponseCode(gldap.ResultNoSuchObject))
	defer func() {
		_ = w.Write(res)
	}()

	m, err := r.GetSearchMessage()
	if err != nil {
		return
	}

	d.mu.Lock()
	entries := append(append([]*gldap.Entry{}, d.users...), d.groups...)
	d.mu.Unlock()

	// Base-object read of one entry.
	if m.Scope == gldap.BaseObject {
		for _, e := range entries {
			if strings.EqualFold(e.DN, string(m.BaseDN)) {
				d.writeEntry(w, r, e)
				res.SetResultCode(gldap.ResultSuccess)
				return
			}
		}
		return
	}

	attr, value, ok := parseEqualityFilter(m.Filter)
	if !ok {
		return
	}
	res.SetResultCode(gldap.ResultSuccess)
	for _, e := range entries {
		if !strings.HasSuffix(strings.ToLower(e.DN), strings.ToLower(string(m.BaseDN))) {
			continue
		}
		for _, v := range e.GetAttributeValues(attr) {
			if strings.EqualFold(v, value) {
				d.writeEntry(w, r, e)
				break
			}
		}
	}
}

// handleNotSupported answers anything else (compare, modify, ...) with a
// protocol error, exercising clients' error-to-negative-outcome paths.
func (d *Directory) handleNotSupported(w *gldap.ResponseWriter, r *gldap.Request) {
	resp := r.NewResponse(
		gldap.WithResponseCode(gldap.ResultOperationsError),
		gldap.WithDiagnosticMessage("operation not supported by test directory"),
	)
	_ = w.Write(resp)
}

func (d *Directory) writeEntry(w *gldap.ResponseWriter, r *gldap.Request, e *gldap.Entry) {
	entry := r.NewSearchResponseEntry(e.DN)
	for _, attr := range e.Attributes {
		entry.AddAttribute(attr.Name, attr.Values)
	}
	_ = w.Write(entry)
}

// parseEqualityFilter accepts the single-equality form "(attr=value)" the
// core emits; anything else is unmatched.
func parseEqualityFilter(filter string) (attr, value string, ok bool) {
	f := strings.TrimSpace(filter)
	if !strings.HasPrefix(f, "(") || !strings.HasSuffix(f, ")") {
		return "", "", false
	}
	f = f[1 : len(f)-1]
	i := strings.Index(f, "=")
	if i <= 0 {
		return "", "", false
	}
	return f[:i], f[i+1:], true
}
