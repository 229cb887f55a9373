package support

import "time"

// AccessLevel bounds what a support engineer may see inside a tenant
type AccessLevel string

const (
	// AccessLevelMetadata permits configuration and metadata only
	AccessLevelMetadata AccessLevel = "metadata"
	// AccessLevelFull permits clinical record access
	AccessLevelFull AccessLevel = "full"
)

// Valid reports whether the access level is one of the known values
func (l AccessLevel) Valid() bool {
	return l == AccessLevelMetadata || l == AccessLevelFull
}

// MaxGrantDuration is the hard ceiling on support access grants. Config can
// lower it but never raise it.
const MaxGrantDuration = 48 * time.Hour

// SupportAccessGrant is a time-boxed, dual-consent permission for a support
// user to act inside a tenant. Grants are never hard-deleted: revocation
// stamps the row and expiry is computed, so the full history stays
// auditable.
type SupportAccessGrant struct {
	ID          int64       `json:"id"`
	TenantID    string      `json:"tenant_id"`
	GrantedTo   int64       `json:"granted_to"`
	GrantedBy   *int64      `json:"granted_by,omitempty"`
	Reason      string      `json:"reason"`
	AccessLevel AccessLevel `json:"access_level"`
	GrantedAt   time.Time   `json:"granted_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	RevokedAt   *time.Time  `json:"revoked_at,omitempty"`
	RevokedBy   *int64      `json:"revoked_by,omitempty"`
}

// Active reports whether the grant confers access at the given instant:
// not revoked and not expired.
func (g *SupportAccessGrant) Active(now time.Time) bool {
	return g.RevokedAt == nil && g.ExpiresAt.After(now)
}
