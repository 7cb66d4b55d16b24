package token

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"lukechampine.com/blake3"
)

// Blacklist is the jti-revocation port: internal/session backs this
// with its distcache-held refresh-token blacklist, spec.md §4.16's
// "blacklist checked on verify."
type Blacklist interface {
	IsBlacklisted(jti string) bool
}

type noopBlacklist struct{}

func (noopBlacklist) IsBlacklisted(string) bool { return false }

// Service signs and verifies tokens per spec.md §4.16: a symmetric
// secret, one configured algorithm, and per-type default lifetimes.
type Service struct {
	secret    []byte
	algorithm jwa.SignatureAlgorithm
	blacklist Blacklist
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithBlacklist wires a jti-blacklist check into Verify.
func WithBlacklist(b Blacklist) Option {
	return func(s *Service) { s.blacklist = b }
}

// NewService builds a Service signing with HS256 over secret. secret
// must not be empty; callers supply it from configuration.
func NewService(secret []byte, opts ...Option) *Service {
	s := &Service{secret: secret, algorithm: jwa.HS256(), blacklist: noopBlacklist{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sign embeds claims and produces a compact JWS, enforcing the
// type's default lifetime when ExpiresAt is unset.
func (s *Service) Sign(claims Claims) (string, *TokenError) {
	if claims.JTI == "" {
		claims.JTI = uuid.NewString()
	}
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = time.Now()
	}
	if claims.ExpiresAt.IsZero() {
		claims.ExpiresAt = claims.IssuedAt.Add(defaultLifetime(claims.Type))
	}

	builder := jwt.NewBuilder().
		Subject(claims.Subject).
		Claim("type", string(claims.Type)).
		JwtID(claims.JTI).
		IssuedAt(claims.IssuedAt).
		Expiration(claims.ExpiresAt)

	if len(claims.Scopes) > 0 {
		builder = builder.Claim("scopes", claims.Scopes)
	}
	if claims.SessionID != "" {
		builder = builder.Claim("session_id", claims.SessionID)
	}
	if claims.DeviceFingerprint != "" {
		builder = builder.Claim("device_fingerprint", claims.DeviceFingerprint)
	}
	if len(claims.Metadata) > 0 {
		builder = builder.Claim("metadata", claims.Metadata)
	}

	tok, err := builder.Build()
	if err != nil {
		return "", &TokenError{Message: err.Error(), Cause: ErrCauseMalformed}
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(s.algorithm, s.secret))
	if err != nil {
		return "", &TokenError{Message: err.Error(), Cause: ErrCauseSignature}
	}
	return string(signed), nil
}

// Verify implements spec.md §4.16's closed verify-error set:
// "Expired | Signature | TypeMismatch | Malformed", plus a
// blacklist check for revoked refresh tokens.
func (s *Service) Verify(raw string, expectedType Type) (*Claims, *TokenError) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithKey(s.algorithm, s.secret), jwt.WithValidate(true))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired()) {
			return nil, &TokenError{Message: err.Error(), Cause: ErrCauseExpired}
		}
		if isSignatureError(err) {
			return nil, &TokenError{Message: err.Error(), Cause: ErrCauseSignature}
		}
		return nil, &TokenError{Message: err.Error(), Cause: ErrCauseMalformed}
	}

	claims, perr := claimsFromToken(tok)
	if perr != nil {
		return nil, perr
	}
	if claims.Type != expectedType {
		return nil, &TokenError{
			Message: fmt.Sprintf("expected %s token, got %s", expectedType, claims.Type),
			Cause:   ErrCauseTypeMismatch,
		}
	}
	if s.blacklist != nil && s.blacklist.IsBlacklisted(claims.JTI) {
		return nil, &TokenError{Message: "token has been revoked", Cause: ErrCauseBlacklisted}
	}
	return claims, nil
}

func isSignatureError(err error) bool {
	return errors.Is(err, jwt.ErrInvalidJWT()) || errors.Is(err, jwt.ErrTokenNotYetValid())
}

func claimsFromToken(tok jwt.Token) (*Claims, *TokenError) {
	var typ string
	if err := tok.Get("type", &typ); err != nil {
		return nil, &TokenError{Message: "missing type claim", Cause: ErrCauseMalformed}
	}

	out := &Claims{
		Subject:   tok.Subject(),
		Type:      Type(typ),
		JTI:       tok.JwtID(),
		IssuedAt:  tok.IssuedAt(),
		ExpiresAt: tok.Expiration(),
	}

	var scopes []string
	if err := tok.Get("scopes", &scopes); err == nil {
		out.Scopes = scopes
	}
	var sessionID string
	if err := tok.Get("session_id", &sessionID); err == nil {
		out.SessionID = sessionID
	}
	var fingerprint string
	if err := tok.Get("device_fingerprint", &fingerprint); err == nil {
		out.DeviceFingerprint = fingerprint
	}
	var metadata map[string]string
	if err := tok.Get("metadata", &metadata); err == nil {
		out.Metadata = metadata
	}
	return out, nil
}

// apiKeyRandomBytes sizes the display key's random component; base32
// without padding keeps it URL-safe and copy-pasteable.
const apiKeyRandomBytes = 20

// GenerateAPIKey implements spec.md §4.16's "generate_api_key()
// returns (display-key, irreversible-hash); only hash is stored."
// blake3 is this repo's hash function of choice (see internal/bloom),
// so it stands in for the irreversible digest here too.
func GenerateAPIKey() (*APIKey, *TokenError) {
	buf := make([]byte, apiKeyRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, &TokenError{Message: err.Error(), Cause: ErrCauseMalformed}
	}
	display := "ck_" + base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf)
	sum := blake3.Sum256([]byte(display))
	return &APIKey{DisplayKey: display, Hash: hex.EncodeToString(sum[:])}, nil
}

// HashAPIKey recomputes the irreversible digest for a presented
// display key, so callers can compare it against the stored hash.
func HashAPIKey(displayKey string) string {
	sum := blake3.Sum256([]byte(displayKey))
	return hex.EncodeToString(sum[:])
}
