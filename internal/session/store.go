package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kraklabs/crawlcache-core/internal/distcache"
	goredis "github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix   = "session:rec:"
	userIndexPrefix   = "session:useridx:"
	blacklistNS       = "sessionblacklist"
	refreshBlacklistNS = "refreshblacklist"
)

func recordKey(id string) string { return recordKeyPrefix + id }
func userIndexKey(userID string) string { return userIndexPrefix + userID }

// casScript implements spec.md §5's "writes (status changes) are
// single-writer per session id using optimistic compare-and-set on a
// version field": ARGV[1]=expected version (0 means "must not
// exist"), ARGV[2]=new version, ARGV[3]=json data, ARGV[4]=ttl ms.
var casScript = goredis.NewScript(`
local current = redis.call("HGET", KEYS[1], "version")
local expected = tonumber(ARGV[1])
if expected == 0 then
	if current then return 0 end
else
	if not current or tonumber(current) ~= expected then return 0 end
end
redis.call("HSET", KEYS[1], "version", ARGV[2], "data", ARGV[3])
if tonumber(ARGV[4]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[4])
end
return 1
`)

// Store persists Records and the two revocation blacklists
// (access-jti, refresh-jti) spec.md §4.16 names. Session rows use a
// direct Redis hash + CAS script for the single-writer-per-id
// discipline; blacklists reuse internal/distcache.Cache's
// namespace+TTL semantics since they're pure append-with-expiry.
type Store struct {
	client          goredis.UniversalClient
	accessBlacklist *distcache.Cache
	refreshBlacklist *distcache.Cache
}

func NewStore(client goredis.UniversalClient) *Store {
	return &Store{
		client:           client,
		accessBlacklist:  distcache.New(client, blacklistNS, distcache.FormatJSON),
		refreshBlacklist: distcache.New(client, refreshBlacklistNS, distcache.FormatJSON),
	}
}

// Create writes a brand-new record (expected version 0) and indexes
// it under its user for the per-user cap/eviction sweep.
func (s *Store) Create(ctx context.Context, rec *Record, ttl time.Duration) *SessionError {
	rec.Version = 1
	if err := s.casWrite(ctx, rec, 0); err != nil {
		return err
	}
	if err := s.client.ZAdd(ctx, userIndexKey(rec.UserID), goredis.Z{
		Score: float64(rec.CreatedAt.UnixNano()), Member: rec.ID,
	}).Err(); err != nil {
		return errBackendUnreachable(err)
	}
	if err := s.client.PExpire(ctx, userIndexKey(rec.UserID), ttl).Err(); err != nil {
		return errBackendUnreachable(err)
	}
	return nil
}

func (s *Store) casWrite(ctx context.Context, rec *Record, expectedVersion int64) *SessionError {
	data, err := json.Marshal(rec)
	if err != nil {
		return &SessionError{Message: err.Error(), Cause: ErrCauseBackendUnreachable}
	}
	ttlMs := time.Until(rec.ExpiresAt).Milliseconds()
	if ttlMs < 0 {
		ttlMs = 0
	}
	res, rerr := casScript.Run(ctx, s.client, []string{recordKey(rec.ID)}, expectedVersion, rec.Version, data, ttlMs).Int()
	if rerr != nil {
		return errBackendUnreachable(rerr)
	}
	if res == 0 {
		return &SessionError{Message: "version conflict", Cause: ErrCauseVersionConflict}
	}
	return nil
}

// Update writes rec with optimistic concurrency: the caller must have
// loaded rec via Get (or Create) so rec.Version reflects what's
// currently stored; Update bumps it by one and CASes against the old
// value.
func (s *Store) Update(ctx context.Context, rec *Record) *SessionError {
	oldVersion := rec.Version
	rec.Version++
	if err := s.casWrite(ctx, rec, oldVersion); err != nil {
		rec.Version = oldVersion
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*Record, *SessionError) {
	raw, err := s.client.HGet(ctx, recordKey(id), "data").Result()
	if err == goredis.Nil {
		return nil, errNotFound()
	}
	if err != nil {
		return nil, errBackendUnreachable(err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, &SessionError{Message: err.Error(), Cause: ErrCauseBackendUnreachable}
	}
	return &rec, nil
}

// ActiveSessionIDs returns a user's session ids oldest-first, for the
// per-user cap eviction sweep in spec.md §4.16.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, *SessionError) {
	ids, err := s.client.ZRange(ctx, userIndexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, errBackendUnreachable(err)
	}
	return ids, nil
}

// RemoveFromIndex drops a session id from its user's index, called
// once a session is revoked so it no longer counts toward the
// per-user cap.
func (s *Store) RemoveFromIndex(ctx context.Context, userID, sessionID string) *SessionError {
	if err := s.client.ZRem(ctx, userIndexKey(userID), sessionID).Err(); err != nil {
		return errBackendUnreachable(err)
	}
	return nil
}

// BlacklistAccess and BlacklistRefresh implement spec.md §4.16's
// revoke contract: "write {access-jti -> exp-delta} and {refresh-jti
// -> exp-delta} to the distributed blacklist with TTL = remaining
// lifetime."
func (s *Store) BlacklistAccess(ctx context.Context, jti string, ttl time.Duration) *SessionError {
	return blacklistErr(s.accessBlacklist.Set(ctx, jti, true, ttl))
}

func (s *Store) BlacklistRefresh(ctx context.Context, jti string, ttl time.Duration) *SessionError {
	return blacklistErr(s.refreshBlacklist.Set(ctx, jti, true, ttl))
}

func blacklistErr(err error) *SessionError {
	if err == nil {
		return nil
	}
	return errBackendUnreachable(err)
}

// IsAccessBlacklisted and IsRefreshBlacklisted fail closed: a backend
// error is treated as "blacklisted" rather than "clean", since a
// revoked token slipping through on a transient Redis blip is the
// worse outcome of the two (spec.md §7: "Security ... always
// fail-closed").
func (s *Store) IsAccessBlacklisted(ctx context.Context, jti string) bool {
	var out bool
	found, err := s.accessBlacklist.Get(ctx, jti, &out)
	if err != nil {
		return true
	}
	return found
}

func (s *Store) IsRefreshBlacklisted(ctx context.Context, jti string) bool {
	var out bool
	found, err := s.refreshBlacklist.Get(ctx, jti, &out)
	if err != nil {
		return true
	}
	return found
}

// AccessBlacklistAdapter adapts Store to internal/token.Blacklist for
// the access-token verification path.
type AccessBlacklistAdapter struct{ store *Store }

func NewAccessBlacklistAdapter(s *Store) AccessBlacklistAdapter { return AccessBlacklistAdapter{store: s} }
func (a AccessBlacklistAdapter) IsBlacklisted(jti string) bool {
	return a.store.IsAccessBlacklisted(context.Background(), jti)
}

// RefreshBlacklistAdapter is the same shape for refresh tokens.
type RefreshBlacklistAdapter struct{ store *Store }

func NewRefreshBlacklistAdapter(s *Store) RefreshBlacklistAdapter {
	return RefreshBlacklistAdapter{store: s}
}
func (a RefreshBlacklistAdapter) IsBlacklisted(jti string) bool {
	return a.store.IsRefreshBlacklisted(context.Background(), jti)
}
