package ldap

// Log message vocabulary. Operational dashboards key on these strings, so
// changing one requires a corresponding dashboard change.
const (
	msgConnectFailed = "authentication and authorization will fail - cannot connect to directory"
	msgConnected     = "connected to directory"

	msgAuthnCacheHit     = "credentials cached"
	msgAuthnCacheUpdated = "bind cache updated"
	msgAuthnNoConnection = "no directory connection, cannot authenticate"
	msgAuthnFailed       = "authentication failed"

	msgAuthzBindFailed    = "authorization will fail - service account bind rejected"
	msgAuthzNoCredentials = "authorization will fail - service account credentials absent"
	msgAuthzCacheHit      = "membership cached"
	msgAuthzCacheUpdated  = "group cache updated"
	msgAuthzGroupMiss     = "cannot resolve group DN"
	msgAuthzFetchFailed   = "cannot get group members"
	msgAuthzReconnect     = "directory session lost, retrying once"
)
