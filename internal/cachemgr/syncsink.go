package cachemgr

import (
	"context"
	"time"

	"github.com/kraklabs/crawlcache-core/internal/distsync"
	"github.com/kraklabs/crawlcache-core/internal/invalidator"
)

// Syncer is the narrow slice of internal/distsync.Node that
// SyncingSink needs — kept as a port (same shape as invalidator.Sink
// itself) so this package doesn't have to depend on distsync's full
// Node construction/health-tracking surface.
type Syncer interface {
	Publish(ctx context.Context, msg distsync.Message) *distsync.DistSyncError
	NodeID() string
}

// SyncingSink wraps another invalidator.Sink and additionally
// publishes one distsync message per deleted key/tag/pattern, per
// spec.md §2's control flow: "Writes go through Invalidator (C14),
// which fans out via Distributed Sync (C15)." The wrapped sink still
// does the real local work (cachemgr.InvalidatorSink, typically);
// publishing errors are discarded: they never block or undo the local
// delete, and they are neither returned nor recorded here (peer health
// is tracked by distsync.Node from heartbeats, not by this sink).
type SyncingSink struct {
	inner invalidator.Sink
	node  Syncer
}

func NewSyncingSink(inner invalidator.Sink, node Syncer) *SyncingSink {
	return &SyncingSink{inner: inner, node: node}
}

func (s *SyncingSink) DeleteKeys(ctx context.Context, keys []string) error {
	if err := s.inner.DeleteKeys(ctx, keys); err != nil {
		return err
	}
	for _, key := range keys {
		s.publish(ctx, distsync.OpDelete, key, nil, map[string]string{"via": "keys"})
	}
	return nil
}

func (s *SyncingSink) DeleteTags(ctx context.Context, tags []string) error {
	if err := s.inner.DeleteTags(ctx, tags); err != nil {
		return err
	}
	for _, tag := range tags {
		s.publish(ctx, distsync.OpDelete, tag, nil, map[string]string{"via": "tag"})
	}
	return nil
}

func (s *SyncingSink) DeletePattern(ctx context.Context, pattern string) error {
	if err := s.inner.DeletePattern(ctx, pattern); err != nil {
		return err
	}
	s.publish(ctx, distsync.OpDelete, pattern, nil, map[string]string{"via": "pattern"})
	return nil
}

func (s *SyncingSink) publish(ctx context.Context, op distsync.Op, key string, value []byte, metadata map[string]string) {
	if s.node == nil {
		return
	}
	msg := distsync.Message{
		NodeID:    s.node.NodeID(),
		Op:        op,
		Key:       key,
		Value:     value,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
	_ = s.node.Publish(ctx, msg)
}

var _ invalidator.Sink = (*SyncingSink)(nil)
