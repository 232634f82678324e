package domain

import "time"

// OneTimeKey purposes. SSO state keys bind the outbound authorization
// redirect to the inbound callback; exchange keys gate the single use of a
// post-federation exchange token.
const (
	KeyPurposeSSOState = "sso_state"
	KeyPurposeExchange = "exchange"
)

// OneTimeKey is a redeemable-exactly-once opaque key. Only the SHA-256 hash
// of the presentable key is stored. Expiry is enforced lazily at redemption;
// there is no sweeping task.
type OneTimeKey struct {
	KeyHash  string
	Purpose  string
	TenantID string

	// Context carries what the redemption needs to resume: the federation
	// name for SSO state, the user id for exchange keys.
	Context string

	CreatedAt time.Time
}
