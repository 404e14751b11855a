package ldap

// BindStatus is the outcome class of an authentication attempt.
type BindStatus int

const (
	// NoConnection means the directory was unreachable; no bind was attempted.
	NoConnection BindStatus = iota
	// SuccessfulBind means at least one candidate DN bound with the secret.
	SuccessfulBind
	// UnsuccessfulBind means every candidate DN was rejected.
	UnsuccessfulBind
)

func (s BindStatus) String() string {
	switch s {
	case NoConnection:
		return "no connection"
	case SuccessfulBind:
		return "successful bind"
	case UnsuccessfulBind:
		return "unsuccessful bind"
	default:
		return "unknown"
	}
}

// AuthenticationResult reports exactly one outcome per Authenticate call.
// Reason is set only for UnsuccessfulBind and is diagnostic text for
// operator logs; callers must not branch on its contents, and it is never
// surfaced to the remote party.
type AuthenticationResult struct {
	Status BindStatus
	Reason string
}

// OK reports whether the caller should treat the attempt as authenticated.
func (r AuthenticationResult) OK() bool {
	return r.Status == SuccessfulBind
}

// Membership is one confirmed (group, identity DN) pair.
type Membership struct {
	Group  string
	UserDN string
}

// MembershipResult is the outcome of an IsMemberOfAny call. An empty Members
// set with Connected true means the identity is confirmed in none of the
// requested groups; Connected false means the directory could not be
// consulted and only cached confirmations (if any) are included.
type MembershipResult struct {
	Members   []Membership
	Connected bool
}

// Authorized reports whether at least one membership was confirmed.
func (r MembershipResult) Authorized() bool {
	return len(r.Members) > 0
}
