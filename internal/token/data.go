package token

import "time"

// Type is the closed set of token purposes spec.md §3's "Token" data
// model and §4.16 name.
type Type string

const (
	TypeAccess            Type = "access"
	TypeRefresh           Type = "refresh"
	TypeEmailVerification Type = "email_verification"
	TypePasswordReset     Type = "password_reset"
	TypeMfa               Type = "mfa"
)

// defaultLifetime implements spec.md §4.16's "enforced default
// lifetimes: access (short, minutes), refresh (days),
// email-verification (days), password-reset (hours), mfa (~5 min)."
func defaultLifetime(t Type) time.Duration {
	switch t {
	case TypeAccess:
		return 15 * time.Minute
	case TypeRefresh:
		return 14 * 24 * time.Hour
	case TypeEmailVerification:
		return 3 * 24 * time.Hour
	case TypePasswordReset:
		return time.Hour
	case TypeMfa:
		return 5 * time.Minute
	default:
		return 15 * time.Minute
	}
}

// Claims is spec.md §3's "Token" data model, the payload every signed
// token embeds: "{sub, type, jti, iat, exp, scopes?, session_id?,
// device_fingerprint?, metadata?}".
type Claims struct {
	Subject           string
	Type              Type
	JTI               string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	Scopes            []string
	SessionID         string
	DeviceFingerprint string
	Metadata          map[string]string
}

// APIKey is generate_api_key()'s return value: a display key shown to
// the user exactly once, and the irreversible hash that's actually
// persisted (spec.md §4.16: "only hash is stored").
type APIKey struct {
	DisplayKey string
	Hash       string
}
