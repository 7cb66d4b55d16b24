package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kraklabs/crawlcache-core/internal/token"
	"go.uber.org/zap"
)

// Manager implements spec.md §4.16's session state machine: creation
// preconditions, per-user cap eviction, refresh/rotation, revoke, and
// device-binding enforcement. It owns a Store (C11-backed persistence)
// and a token.Service (C16's signing half).
type Manager struct {
	store   *Store
	tokens  *token.Service
	cfg     Config
	log     *zap.Logger
}

func NewManager(store *Store, tokens *token.Service, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, tokens: tokens, cfg: cfg, log: log}
}

// Create implements spec.md §4.16's "Creation preconditions: user
// status Active, not Locked, mfa-verified flag consistent with
// user.mfa_enabled and login path" plus the per-user active-session
// cap eviction.
func (m *Manager) Create(ctx context.Context, in LoginInput) (*Tokens, *SessionError) {
	if in.UserStatus == UserStatusLocked {
		return nil, errUserLocked()
	}
	if in.MFAEnabled && !in.MFAVerified {
		return nil, errMFARequired()
	}

	now := time.Now()
	fingerprint := Fingerprint(in.DeviceComponents)

	sessionID := uuid.NewString()
	rec := &Record{
		ID:                sessionID,
		UserID:            in.UserID,
		DeviceFingerprint: fingerprint,
		IP:                in.IP,
		UserAgent:         in.UserAgent,
		LoginMethod:       in.LoginMethod,
		MFAVerified:       in.MFAVerified,
		CreatedAt:         now,
		LastActivity:      now,
		ExpiresAt:         now.Add(m.cfg.RefreshTokenTTL),
		StoredStatus:      StatusActive,
	}

	access, refresh, terr := m.issueTokenPair(rec)
	if terr != nil {
		return nil, terr
	}

	if err := m.store.Create(ctx, rec, m.cfg.RefreshTokenTTL); err != nil {
		return nil, err
	}

	if err := m.enforceSessionCap(ctx, in.UserID); err != nil {
		m.log.Warn("session cap enforcement failed", zap.Error(err))
	}

	return &Tokens{Session: rec, AccessToken: access, RefreshToken: refresh}, nil
}

// enforceSessionCap implements "at most N active sessions per user;
// creating an (N+1)-th evicts oldest Active," walking the user index
// oldest-first and revoking the overflow.
func (m *Manager) enforceSessionCap(ctx context.Context, userID string) *SessionError {
	if m.cfg.MaxSessionsPerUser <= 0 {
		return nil
	}
	ids, err := m.store.ActiveSessionIDs(ctx, userID)
	if err != nil {
		return err
	}
	overflow := len(ids) - m.cfg.MaxSessionsPerUser
	for i := 0; i < overflow; i++ {
		rec, err := m.store.Get(ctx, ids[i])
		if err != nil {
			continue
		}
		if rec.EffectiveStatus(time.Now(), m.cfg.IdleTimeout) != StatusActive {
			continue
		}
		if err := m.revokeRecord(ctx, rec, RevokeReasonCap); err != nil {
			m.log.Warn("failed to revoke session over cap", zap.String("session_id", rec.ID), zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) issueTokenPair(rec *Record) (accessToken, refreshToken string, err *SessionError) {
	accessExpires := time.Now().Add(m.cfg.AccessTokenTTL)
	access, accessJTI, terr := m.signWithJTI(token.Claims{
		Subject:           rec.UserID,
		Type:              token.TypeAccess,
		SessionID:         rec.ID,
		DeviceFingerprint: rec.DeviceFingerprint,
		ExpiresAt:         accessExpires,
	})
	if terr != nil {
		return "", "", tokenErrToSessionErr(terr)
	}
	refresh, refreshJTI, terr := m.signWithJTI(token.Claims{
		Subject:           rec.UserID,
		Type:              token.TypeRefresh,
		SessionID:         rec.ID,
		DeviceFingerprint: rec.DeviceFingerprint,
		ExpiresAt:         rec.ExpiresAt,
	})
	if terr != nil {
		return "", "", tokenErrToSessionErr(terr)
	}
	rec.CurrentAccessJTI = accessJTI
	rec.CurrentAccessExpires = accessExpires
	rec.CurrentRefreshJTI = refreshJTI
	return access, refresh, nil
}

func tokenErrToSessionErr(terr *token.TokenError) *SessionError {
	return &SessionError{Message: terr.Error(), Cause: ErrCauseBackendUnreachable, Retryable: terr.IsRetryable()}
}

// Lookup implements spec.md §3's returnability invariant: "status=
// Active AND now < expires-at AND token is not in blacklist," plus
// §4.16's device-binding check. presentedFingerprint is the
// fingerprint computed from the current request's client hints.
func (m *Manager) Lookup(ctx context.Context, accessToken, presentedFingerprint string) (*Record, *SessionError) {
	claims, terr := m.tokens.Verify(accessToken, token.TypeAccess)
	if terr != nil {
		return nil, &SessionError{Message: terr.Error(), Cause: ErrCauseNotActive}
	}
	// token.Service's own blacklist hook (if wired) only ever covers
	// one of access/refresh; Manager checks the type-specific
	// blacklist directly so both get enforced regardless of how the
	// Service was constructed.
	if m.store.IsAccessBlacklisted(ctx, claims.JTI) {
		return nil, errTokenRevoked()
	}

	rec, err := m.store.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !rec.Returnable(time.Now(), m.cfg.IdleTimeout) {
		return nil, errNotActive()
	}
	if presentedFingerprint != "" && presentedFingerprint != rec.DeviceFingerprint {
		return nil, errDeviceMismatch()
	}
	return rec, nil
}

// Refresh implements spec.md §4.16's refresh contract: verify
// type=Refresh, session must be Active, always rotate access, rotate
// refresh iff session age > half the session TTL, and blacklist the
// previous access jti on rotation.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*Tokens, *SessionError) {
	claims, terr := m.tokens.Verify(refreshToken, token.TypeRefresh)
	if terr != nil {
		return nil, &SessionError{Message: terr.Error(), Cause: ErrCauseNotActive}
	}
	if m.store.IsRefreshBlacklisted(ctx, claims.JTI) {
		return nil, errTokenRevoked()
	}

	rec, err := m.store.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if rec.EffectiveStatus(time.Now(), 0) != StatusActive && rec.StoredStatus != StatusActive {
		return nil, errNotActive()
	}

	now := time.Now()
	previousAccessJTI, previousAccessExpires := rec.CurrentAccessJTI, rec.CurrentAccessExpires
	rec.LastActivity = now

	newAccess, newAccessJTI, terr := m.signWithJTI(token.Claims{
		Subject: rec.UserID, Type: token.TypeAccess, SessionID: rec.ID,
		DeviceFingerprint: rec.DeviceFingerprint, ExpiresAt: now.Add(m.cfg.AccessTokenTTL),
	})
	if terr != nil {
		return nil, tokenErrToSessionErr(terr)
	}
	rec.CurrentAccessJTI = newAccessJTI
	rec.CurrentAccessExpires = now.Add(m.cfg.AccessTokenTTL)
	if previousAccessJTI != "" {
		if err := m.store.BlacklistAccess(ctx, previousAccessJTI, time.Until(previousAccessExpires)); err != nil {
			return nil, err
		}
	}

	newRefresh := refreshToken
	age := now.Sub(rec.CreatedAt)
	if age > rec.ExpiresAt.Sub(rec.CreatedAt)/2 {
		rotated, rotatedJTI, terr := m.signWithJTI(token.Claims{
			Subject: rec.UserID, Type: token.TypeRefresh, SessionID: rec.ID,
			DeviceFingerprint: rec.DeviceFingerprint, ExpiresAt: rec.ExpiresAt,
		})
		if terr != nil {
			return nil, tokenErrToSessionErr(terr)
		}
		if err := m.store.BlacklistRefresh(ctx, claims.JTI, time.Until(claims.ExpiresAt)); err != nil {
			return nil, err
		}
		rec.CurrentRefreshJTI = rotatedJTI
		newRefresh = rotated
	}

	if err := m.store.Update(ctx, rec); err != nil {
		return nil, err
	}
	return &Tokens{Session: rec, AccessToken: newAccess, RefreshToken: newRefresh}, nil
}

func (m *Manager) signWithJTI(c token.Claims) (signed, jti string, err *token.TokenError) {
	c.JTI = uuid.NewString()
	signed, err = m.tokens.Sign(c)
	return signed, c.JTI, err
}

// Revoke implements spec.md §4.16's revoke contract: set status
// Revoked, blacklist both outstanding jtis with TTL = their remaining
// lifetime, and persist the reason.
func (m *Manager) Revoke(ctx context.Context, sessionID string, reason RevokeReason) *SessionError {
	rec, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	return m.revokeRecord(ctx, rec, reason)
}

func (m *Manager) revokeRecord(ctx context.Context, rec *Record, reason RevokeReason) *SessionError {
	rec.StoredStatus = StatusRevoked
	rec.RevokeReason = reason
	rec.RevokedAt = time.Now()

	floorTTL := func(d time.Duration) time.Duration {
		if d < m.cfg.BlacklistMinTTL {
			return m.cfg.BlacklistMinTTL
		}
		return d
	}
	if rec.CurrentAccessJTI != "" {
		if err := m.store.BlacklistAccess(ctx, rec.CurrentAccessJTI, floorTTL(time.Until(rec.CurrentAccessExpires))); err != nil {
			return err
		}
	}
	if rec.CurrentRefreshJTI != "" {
		if err := m.store.BlacklistRefresh(ctx, rec.CurrentRefreshJTI, floorTTL(time.Until(rec.ExpiresAt))); err != nil {
			return err
		}
	}
	if err := m.store.Update(ctx, rec); err != nil {
		return err
	}
	return m.store.RemoveFromIndex(ctx, rec.UserID, rec.ID)
}

// Touch updates last-activity for an authenticated request, the
// bookkeeping half of spec.md §3's Idle-state transition.
func (m *Manager) Touch(ctx context.Context, rec *Record) *SessionError {
	rec.LastActivity = time.Now()
	return m.store.Update(ctx, rec)
}
