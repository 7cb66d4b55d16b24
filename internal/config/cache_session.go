package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheConfig is spec.md §6's "Config (environment): ... cache
// sizes/TTLs, provider endpoints, namespace prefixes" for the cache
// fabric (C10-C15), kept as its own builder/DTO pair rather than
// folding into Config since a cache-server deployment never needs a
// seed URL and a crawl deployment never needs a cache namespace.
type CacheConfig struct {
	applicationMaxSizeBytes int64
	applicationMaxEntries   int
	defaultTTL              time.Duration
	distributedNamespace    string
	warmInterval            time.Duration
	edgeProvider            string
}

type cacheConfigDTO struct {
	ApplicationMaxSizeBytes int64         `json:"applicationMaxSizeBytes,omitempty" yaml:"applicationMaxSizeBytes,omitempty"`
	ApplicationMaxEntries   int           `json:"applicationMaxEntries,omitempty" yaml:"applicationMaxEntries,omitempty"`
	DefaultTTL              time.Duration `json:"defaultTTL,omitempty" yaml:"defaultTTL,omitempty"`
	DistributedNamespace    string        `json:"distributedNamespace,omitempty" yaml:"distributedNamespace,omitempty"`
	WarmInterval            time.Duration `json:"warmInterval,omitempty" yaml:"warmInterval,omitempty"`
	EdgeProvider            string        `json:"edgeProvider,omitempty" yaml:"edgeProvider,omitempty"`
}

// WithDefaultCacheConfig mirrors WithDefault's role for the crawl
// Config: sane sizes for a single-process demo deployment.
func WithDefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		applicationMaxSizeBytes: 64 * 1024 * 1024,
		applicationMaxEntries:   100_000,
		defaultTTL:              5 * time.Minute,
		distributedNamespace:    "crawlcache",
		warmInterval:            time.Minute,
		edgeProvider:            "cloudfront",
	}
}

func (c *CacheConfig) WithApplicationMaxSizeBytes(n int64) *CacheConfig {
	c.applicationMaxSizeBytes = n
	return c
}

func (c *CacheConfig) WithApplicationMaxEntries(n int) *CacheConfig {
	c.applicationMaxEntries = n
	return c
}

func (c *CacheConfig) WithDefaultTTL(d time.Duration) *CacheConfig {
	c.defaultTTL = d
	return c
}

func (c *CacheConfig) WithDistributedNamespace(ns string) *CacheConfig {
	c.distributedNamespace = ns
	return c
}

func (c *CacheConfig) WithWarmInterval(d time.Duration) *CacheConfig {
	c.warmInterval = d
	return c
}

func (c *CacheConfig) WithEdgeProvider(provider string) *CacheConfig {
	c.edgeProvider = provider
	return c
}

func (c CacheConfig) ApplicationMaxSizeBytes() int64  { return c.applicationMaxSizeBytes }
func (c CacheConfig) ApplicationMaxEntries() int      { return c.applicationMaxEntries }
func (c CacheConfig) DefaultTTL() time.Duration       { return c.defaultTTL }
func (c CacheConfig) DistributedNamespace() string    { return c.distributedNamespace }
func (c CacheConfig) WarmInterval() time.Duration     { return c.warmInterval }
func (c CacheConfig) EdgeProvider() string            { return c.edgeProvider }

// WithCacheConfigFile loads a CacheConfig from JSON or YAML, sniffed
// by extension exactly as Config.WithConfigFile does.
func WithCacheConfigFile(path string) (CacheConfig, error) {
	content, err := readConfigFile(path)
	if err != nil {
		return CacheConfig{}, err
	}
	dto := cacheConfigDTO{}
	if err := decodeConfigFile(path, content, &dto); err != nil {
		return CacheConfig{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	cfg := WithDefaultCacheConfig()
	if dto.ApplicationMaxSizeBytes > 0 {
		cfg = cfg.WithApplicationMaxSizeBytes(dto.ApplicationMaxSizeBytes)
	}
	if dto.ApplicationMaxEntries > 0 {
		cfg = cfg.WithApplicationMaxEntries(dto.ApplicationMaxEntries)
	}
	if dto.DefaultTTL > 0 {
		cfg = cfg.WithDefaultTTL(dto.DefaultTTL)
	}
	if dto.DistributedNamespace != "" {
		cfg = cfg.WithDistributedNamespace(dto.DistributedNamespace)
	}
	if dto.WarmInterval > 0 {
		cfg = cfg.WithWarmInterval(dto.WarmInterval)
	}
	if dto.EdgeProvider != "" {
		cfg = cfg.WithEdgeProvider(dto.EdgeProvider)
	}
	return *cfg, nil
}

// SessionConfig is spec.md §6's "secret key, token lifetimes,
// rate-limit knobs, ..., blacklist TTL bounds" for the session/token
// core (C16).
type SessionConfig struct {
	secretKey             string
	accessTokenTTL        time.Duration
	refreshTokenTTL       time.Duration
	emailVerificationTTL  time.Duration
	passwordResetTTL      time.Duration
	mfaTTL                time.Duration
	maxSessionsPerUser    int
	idleTimeout           time.Duration
	blacklistTTLMin       time.Duration
	blacklistTTLMax       time.Duration
	loginFailureThreshold int
	loginLockDuration     time.Duration
	namespace             string
}

type sessionConfigDTO struct {
	SecretKey             string        `json:"secretKey,omitempty" yaml:"secretKey,omitempty"`
	AccessTokenTTL        time.Duration `json:"accessTokenTTL,omitempty" yaml:"accessTokenTTL,omitempty"`
	RefreshTokenTTL       time.Duration `json:"refreshTokenTTL,omitempty" yaml:"refreshTokenTTL,omitempty"`
	EmailVerificationTTL  time.Duration `json:"emailVerificationTTL,omitempty" yaml:"emailVerificationTTL,omitempty"`
	PasswordResetTTL      time.Duration `json:"passwordResetTTL,omitempty" yaml:"passwordResetTTL,omitempty"`
	MFATTL                time.Duration `json:"mfaTTL,omitempty" yaml:"mfaTTL,omitempty"`
	MaxSessionsPerUser    int           `json:"maxSessionsPerUser,omitempty" yaml:"maxSessionsPerUser,omitempty"`
	IdleTimeout           time.Duration `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
	BlacklistTTLMin       time.Duration `json:"blacklistTTLMin,omitempty" yaml:"blacklistTTLMin,omitempty"`
	BlacklistTTLMax       time.Duration `json:"blacklistTTLMax,omitempty" yaml:"blacklistTTLMax,omitempty"`
	LoginFailureThreshold int           `json:"loginFailureThreshold,omitempty" yaml:"loginFailureThreshold,omitempty"`
	LoginLockDuration     time.Duration `json:"loginLockDuration,omitempty" yaml:"loginLockDuration,omitempty"`
	Namespace             string        `json:"namespace,omitempty" yaml:"namespace,omitempty"`
}

// WithDefaultSessionConfig fills in the default lifetimes spec.md
// §4.16 names: "access (short, minutes), refresh (days),
// email-verification (days), password-reset (hours), mfa (~5 min)."
func WithDefaultSessionConfig(secretKey string) *SessionConfig {
	return &SessionConfig{
		secretKey:             secretKey,
		accessTokenTTL:        15 * time.Minute,
		refreshTokenTTL:       14 * 24 * time.Hour,
		emailVerificationTTL:  3 * 24 * time.Hour,
		passwordResetTTL:      time.Hour,
		mfaTTL:                5 * time.Minute,
		maxSessionsPerUser:    5,
		idleTimeout:           30 * time.Minute,
		blacklistTTLMin:       time.Minute,
		blacklistTTLMax:       14 * 24 * time.Hour,
		loginFailureThreshold: 5,
		loginLockDuration:     15 * time.Minute,
		namespace:             "crawlcache",
	}
}

func (c *SessionConfig) WithAccessTokenTTL(d time.Duration) *SessionConfig {
	c.accessTokenTTL = d
	return c
}

func (c *SessionConfig) WithRefreshTokenTTL(d time.Duration) *SessionConfig {
	c.refreshTokenTTL = d
	return c
}

func (c *SessionConfig) WithMaxSessionsPerUser(n int) *SessionConfig {
	c.maxSessionsPerUser = n
	return c
}

func (c *SessionConfig) WithIdleTimeout(d time.Duration) *SessionConfig {
	c.idleTimeout = d
	return c
}

func (c *SessionConfig) WithLoginFailureThreshold(n int) *SessionConfig {
	c.loginFailureThreshold = n
	return c
}

func (c *SessionConfig) WithLoginLockDuration(d time.Duration) *SessionConfig {
	c.loginLockDuration = d
	return c
}

func (c *SessionConfig) WithNamespace(ns string) *SessionConfig {
	c.namespace = ns
	return c
}

func (c SessionConfig) SecretKey() string                  { return c.secretKey }
func (c SessionConfig) AccessTokenTTL() time.Duration       { return c.accessTokenTTL }
func (c SessionConfig) RefreshTokenTTL() time.Duration      { return c.refreshTokenTTL }
func (c SessionConfig) EmailVerificationTTL() time.Duration { return c.emailVerificationTTL }
func (c SessionConfig) PasswordResetTTL() time.Duration     { return c.passwordResetTTL }
func (c SessionConfig) MFATTL() time.Duration               { return c.mfaTTL }
func (c SessionConfig) MaxSessionsPerUser() int             { return c.maxSessionsPerUser }
func (c SessionConfig) IdleTimeout() time.Duration          { return c.idleTimeout }
func (c SessionConfig) BlacklistTTLMin() time.Duration      { return c.blacklistTTLMin }
func (c SessionConfig) BlacklistTTLMax() time.Duration      { return c.blacklistTTLMax }
func (c SessionConfig) LoginFailureThreshold() int          { return c.loginFailureThreshold }
func (c SessionConfig) LoginLockDuration() time.Duration    { return c.loginLockDuration }
func (c SessionConfig) Namespace() string                   { return c.namespace }

// WithSessionConfigFile loads a SessionConfig from JSON or YAML.
// secretKey must come from the file (there is no safe default,
// matching spec.md §7's "Programmer error" contract: missing secret
// is fatal at startup).
func WithSessionConfigFile(path string) (SessionConfig, error) {
	content, err := readConfigFile(path)
	if err != nil {
		return SessionConfig{}, err
	}
	dto := sessionConfigDTO{}
	if err := decodeConfigFile(path, content, &dto); err != nil {
		return SessionConfig{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	if dto.SecretKey == "" {
		return SessionConfig{}, fmt.Errorf("%w: secretKey is required", ErrInvalidConfig)
	}

	cfg := WithDefaultSessionConfig(dto.SecretKey)
	if dto.AccessTokenTTL > 0 {
		cfg = cfg.WithAccessTokenTTL(dto.AccessTokenTTL)
	}
	if dto.RefreshTokenTTL > 0 {
		cfg = cfg.WithRefreshTokenTTL(dto.RefreshTokenTTL)
	}
	if dto.MaxSessionsPerUser > 0 {
		cfg = cfg.WithMaxSessionsPerUser(dto.MaxSessionsPerUser)
	}
	if dto.IdleTimeout > 0 {
		cfg = cfg.WithIdleTimeout(dto.IdleTimeout)
	}
	if dto.LoginFailureThreshold > 0 {
		cfg = cfg.WithLoginFailureThreshold(dto.LoginFailureThreshold)
	}
	if dto.LoginLockDuration > 0 {
		cfg = cfg.WithLoginLockDuration(dto.LoginLockDuration)
	}
	if dto.Namespace != "" {
		cfg = cfg.WithNamespace(dto.Namespace)
	}
	if dto.BlacklistTTLMin > 0 {
		cfg.blacklistTTLMin = dto.BlacklistTTLMin
	}
	if dto.BlacklistTTLMax > 0 {
		cfg.blacklistTTLMax = dto.BlacklistTTLMax
	}
	return *cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	return content, nil
}

func decodeConfigFile(path string, content []byte, out any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(content, out)
	default:
		return json.Unmarshal(content, out)
	}
}
