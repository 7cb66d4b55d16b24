package session

import "time"

// Status is the closed session-state set from spec.md §3: "Active,
// Idle, Expired, Revoked". Idle and Expired are derived, not stored —
// see Record.EffectiveStatus.
type Status string

const (
	StatusActive  Status = "active"
	StatusIdle    Status = "idle"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// LoginMethod is the session's authentication path, carried through
// to device-trust scoring and audit.
type LoginMethod string

const (
	LoginMethodPassword LoginMethod = "password"
	LoginMethodOAuth     LoginMethod = "oauth"
	LoginMethodSAML      LoginMethod = "saml"
	LoginMethodMFA       LoginMethod = "mfa"
)

// RevokeReason records why a session stopped being usable, per spec.md
// §4.16's "persist revoke reason and timestamp."
type RevokeReason string

const (
	RevokeReasonLogout           RevokeReason = "logout"
	RevokeReasonCap              RevokeReason = "cap"
	RevokeReasonDeviceMismatch   RevokeReason = "device_mismatch"
	RevokeReasonAdmin            RevokeReason = "admin"
	RevokeReasonSecurityPolicy   RevokeReason = "security_policy"
)

// Record is the persisted session row, spec.md §3's "Session" data
// model. Status here is the stored field only; Record.EffectiveStatus derives
// the effective state (Idle/Expired) at read time so a single writer
// per session id (via Version) doesn't race background expiry.
// Per SPEC_FULL.md's note on §9's open question: the source
// blacklists by hashing the opaque "session_token", a different value
// from the signed JWT in the user's hands. This tree resolves it per
// spec.md §4.16's mandate to blacklist by jti, so the record tracks
// the currently-outstanding access/refresh jti (and the access
// token's expiry, needed to size the blacklist TTL on the next
// rotation) instead of an opaque session-token string.
type Record struct {
	ID                   string
	UserID               string
	CurrentAccessJTI     string
	CurrentAccessExpires time.Time
	CurrentRefreshJTI    string
	DeviceFingerprint    string
	IP                   string
	UserAgent            string
	LoginMethod          LoginMethod
	MFAVerified          bool
	CreatedAt            time.Time
	LastActivity         time.Time
	ExpiresAt            time.Time
	StoredStatus         Status
	RevokeReason         RevokeReason
	RevokedAt            time.Time
	Version              int64
}

// EffectiveStatus derives Active/Idle/Expired/Revoked from the stored
// record and wall-clock time, per spec.md §3's state machine: "Active
// -> (Idle if last_activity > idle_timeout) -> Expired (now >=
// expires_at) -> Revoked (terminal)".
func (r *Record) EffectiveStatus(now time.Time, idleTimeout time.Duration) Status {
	if r.StoredStatus == StatusRevoked {
		return StatusRevoked
	}
	if !now.Before(r.ExpiresAt) {
		return StatusExpired
	}
	if idleTimeout > 0 && now.Sub(r.LastActivity) > idleTimeout {
		return StatusIdle
	}
	return StatusActive
}

// Returnable implements spec.md §3's lookup invariant: "a session is
// returnable from lookup iff status=Active AND now < expires-at AND
// token is not in blacklist." The blacklist check happens separately
// in Manager.Lookup; this covers the status+expiry half.
func (r *Record) Returnable(now time.Time, idleTimeout time.Duration) bool {
	return r.EffectiveStatus(now, idleTimeout) == StatusActive
}

// DeviceTrust is the supplemented (non-spec-mandated) informational
// score from original_source's device.py calculate_trust_score,
// additive to but never overriding the binding/mismatch contract
// spec.md §4.16 requires.
type DeviceTrust struct {
	Score   int
	Factors []string
}

// Config bounds the state machine's tunables, all named in spec.md
// §6's "Config (environment)" bullet.
type Config struct {
	AccessTokenTTL    time.Duration
	RefreshTokenTTL   time.Duration
	IdleTimeout       time.Duration
	MaxSessionsPerUser int
	BlacklistMinTTL   time.Duration
}

// DefaultConfig mirrors token.defaultLifetime's access/refresh
// durations so a session's expiry tracks its refresh token's.
func DefaultConfig() Config {
	return Config{
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    14 * 24 * time.Hour,
		IdleTimeout:        30 * time.Minute,
		MaxSessionsPerUser: 5,
		BlacklistMinTTL:    time.Minute,
	}
}

// LoginInput is everything CreateSession needs about the
// authenticating user and client, deliberately not a dynamic dict per
// SPEC_FULL.md's "Dynamic dict metadata fields -> typed records"
// design note.
type LoginInput struct {
	UserID            string
	UserStatus        UserStatus
	MFAEnabled        bool
	MFAVerified       bool
	IP                string
	UserAgent         string
	LoginMethod       LoginMethod
	DeviceComponents  DeviceComponents
	KnownFingerprints []DeviceRecord
}

// UserStatus is the subset of user lifecycle state session creation's
// preconditions consult; the user aggregate itself lives outside this
// core (out of scope per spec.md §1).
type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusLocked UserStatus = "locked"
)

// DeviceRecord is one previously-seen fingerprint for a user, the
// input calculate_trust_score needs to tell known from new devices.
type DeviceRecord struct {
	Fingerprint string
	SeenCount   int
	IsTrusted   bool
}

// Tokens is what CreateSession/Refresh hand back to the caller: the
// session plus the signed token strings the token.Service produced for
// it. The session never stores the signed strings itself, only the
// jtis of its outstanding tokens (CurrentAccessJTI, CurrentRefreshJTI).
type Tokens struct {
	Session      *Record
	AccessToken  string
	RefreshToken string
}
