package cachemgr

import (
	"context"

	"github.com/kraklabs/crawlcache-core/internal/appcache"
	"github.com/kraklabs/crawlcache-core/internal/invalidator"
)

// InvalidatorSink adapts Manager plus the Application layer's
// tag/pattern operations (which have no equivalent on the generic
// byte-oriented Layer interface) to internal/invalidator.Sink, wiring
// C14's batch processor to C13's layered cache per spec.md's control
// flow: "Writes go through Invalidator (C14)."
type InvalidatorSink struct {
	manager     *Manager
	application *appcache.Cache
}

func NewInvalidatorSink(manager *Manager, application *appcache.Cache) *InvalidatorSink {
	return &InvalidatorSink{manager: manager, application: application}
}

func (s *InvalidatorSink) DeleteKeys(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := s.manager.Delete(ctx, key, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *InvalidatorSink) DeleteTags(_ context.Context, tags []string) error {
	if s.application == nil {
		return nil
	}
	for _, tag := range tags {
		s.application.InvalidateTag(tag)
	}
	return nil
}

func (s *InvalidatorSink) DeletePattern(_ context.Context, pattern string) error {
	if s.application == nil {
		return nil
	}
	s.application.InvalidatePattern(pattern)
	return nil
}

var _ invalidator.Sink = (*InvalidatorSink)(nil)
