package edgecache

import (
	"context"
	"path/filepath"
)

// Manager holds the declarative rule set and delegates provider-native
// rendering/invalidation/signing to whichever Provider it was built
// with, per spec.md §4.12.
type Manager struct {
	rules    []CacheRule
	provider Provider
}

func NewManager(provider Provider, rules []CacheRule) *Manager {
	return &Manager{provider: provider, rules: rules}
}

// Match returns the first rule whose PathPattern matches path, in
// declaration order (first-match-wins, the conventional CDN rule
// evaluation order).
func (m *Manager) Match(path string) (CacheRule, *EdgeCacheError) {
	for _, rule := range m.rules {
		if ok, _ := filepath.Match(rule.PathPattern, path); ok {
			return rule, nil
		}
	}
	return CacheRule{}, &EdgeCacheError{Message: "no rule matches path " + path, Cause: ErrCauseNoMatchingRule}
}

func (m *Manager) RenderConfig() (any, *EdgeCacheError) {
	return m.provider.RenderConfig(m.rules)
}

func (m *Manager) Invalidate(ctx context.Context, paths []string) *EdgeCacheError {
	return m.provider.Invalidate(ctx, paths)
}

func (m *Manager) SignURL(rawURL string, expiresIn int64) (string, *EdgeCacheError) {
	return m.provider.SignURL(rawURL, expiresIn)
}
