package distsync

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const (
	heartbeatSetKey  = "distsync:heartbeats"
	masterZSetKey    = "distsync:master:candidates"
	broadcastChannel = "distsync:broadcast"
	consensusLogKey  = "distsync:consensus:log"
)

func gossipChannel(nodeID string) string { return "distsync:gossip:" + nodeID }

// Handler is invoked once per distinct Message this node receives
// (after dedup), applying it to the local cache layers.
type Handler func(Message)

// Node is one participant in the distributed sync fabric from
// spec.md §4.15: it heartbeats, tracks peer health, optionally holds
// or contests mastership, and publishes/receives Messages over
// strategy-specific pub/sub channels.
type Node struct {
	client   goredis.UniversalClient
	nodeID   string
	strategy Strategy
	fanout   int
	handler  Handler

	dedup *recentIDSet

	mu      sync.RWMutex
	peers   map[string]*nodeState
	stopped chan struct{}

	consensusMu sync.Mutex
	log         []Message
}

func NewNode(client goredis.UniversalClient, nodeID string, strategy Strategy, fanout int, handler Handler) *Node {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return &Node{
		client:   client,
		nodeID:   nodeID,
		strategy: strategy,
		fanout:   fanout,
		handler:  handler,
		dedup:    newRecentIDSet(),
		peers:    make(map[string]*nodeState),
		stopped:  make(chan struct{}),
	}
}

func (n *Node) NodeID() string { return n.nodeID }

// Start registers the node, begins heartbeating every 10s, and
// subscribes to every channel its strategy needs.
func (n *Node) Start(ctx context.Context) *DistSyncError {
	now := time.Now()
	if err := n.client.ZAdd(ctx, masterZSetKey, goredis.Z{Score: float64(now.UnixNano()), Member: n.nodeID}).Err(); err != nil {
		return &DistSyncError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	if err := n.heartbeatOnce(ctx); err != nil {
		return err
	}
	n.refreshPeers(ctx)

	go n.heartbeatLoop(ctx)
	go n.subscribeLoop(ctx)
	return nil
}

func (n *Node) Stop() {
	close(n.stopped)
}

func (n *Node) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n.heartbeatOnce(ctx)
			n.refreshPeers(ctx)
		case <-n.stopped:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) heartbeatOnce(ctx context.Context) *DistSyncError {
	if err := n.client.ZAdd(ctx, heartbeatSetKey, goredis.Z{Score: float64(time.Now().Unix()), Member: n.nodeID}).Err(); err != nil {
		return &DistSyncError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return nil
}

// refreshPeers pulls every node's last heartbeat from Redis and marks
// anyone not heard from in unhealthyAfter as unhealthy, per spec.md
// §4.15.
func (n *Node) refreshPeers(ctx context.Context) {
	members, err := n.client.ZRangeWithScores(ctx, heartbeatSetKey, 0, -1).Result()
	if err != nil {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}
		last := time.Unix(int64(m.Score), 0)
		n.peers[id] = &nodeState{nodeID: id, lastHeartbeat: last}
	}
}

// HealthyPeers returns every known peer (including self) last seen
// within unhealthyAfter, excluding excludeSelf if set.
func (n *Node) HealthyPeers(excludeSelf bool) []string {
	n.mu.RLock()
	defer n.mu.RUnlock()

	now := time.Now()
	var out []string
	for id, st := range n.peers {
		if excludeSelf && id == n.nodeID {
			continue
		}
		if now.Sub(st.lastHeartbeat) <= unhealthyAfter {
			out = append(out, id)
		}
	}
	return out
}

// IsMaster implements spec.md §4.15's MasterSlave re-election:
// "re-elect via earliest-score in a sorted set" among currently
// healthy candidates.
func (n *Node) IsMaster(ctx context.Context) (bool, *DistSyncError) {
	healthy := make(map[string]struct{})
	for _, id := range n.HealthyPeers(false) {
		healthy[id] = struct{}{}
	}

	candidates, err := n.client.ZRangeWithScores(ctx, masterZSetKey, 0, -1).Result()
	if err != nil {
		return false, &DistSyncError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	for _, c := range candidates {
		id, ok := c.Member.(string)
		if !ok {
			continue
		}
		if _, ok := healthy[id]; !ok {
			continue
		}
		return id == n.nodeID, nil
	}
	return false, nil
}

// Publish sends msg according to the node's configured strategy.
func (n *Node) Publish(ctx context.Context, msg Message) *DistSyncError {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.NodeID = n.nodeID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	switch n.strategy {
	case StrategyMasterSlave:
		isMaster, err := n.IsMaster(ctx)
		if err != nil {
			return err
		}
		if !isMaster {
			return &DistSyncError{Message: "only the master may broadcast writes", Cause: ErrCauseNotMaster}
		}
		return n.publishTo(ctx, broadcastChannel, msg)

	case StrategyGossip:
		return n.gossip(ctx, msg)

	case StrategyConsensus:
		return n.appendAndCommit(ctx, msg)

	default: // Broadcast, Eventual
		return n.publishTo(ctx, broadcastChannel, msg)
	}
}

func (n *Node) publishTo(ctx context.Context, channel string, msg Message) *DistSyncError {
	raw, err := json.Marshal(msg)
	if err != nil {
		return &DistSyncError{Message: err.Error(), Cause: ErrCauseBackendFailure}
	}
	if err := n.client.Publish(ctx, channel, raw).Err(); err != nil {
		return &DistSyncError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}
	return nil
}

// gossip implements spec.md §4.15's "each tick select up to `fanout`
// healthy peers randomly and forward recent ops": a direct Publish
// picks its fanout immediately rather than waiting for a tick, since
// callers decide when an op needs forwarding.
func (n *Node) gossip(ctx context.Context, msg Message) *DistSyncError {
	peers := n.HealthyPeers(true)
	rand.Shuffle(len(peers), func(i, j int) { peers[i], peers[j] = peers[j], peers[i] })

	limit := n.fanout
	if limit <= 0 || limit > len(peers) {
		limit = len(peers)
	}

	for _, peerID := range peers[:limit] {
		if err := n.publishTo(ctx, gossipChannel(peerID), msg); err != nil {
			return err
		}
	}
	return nil
}

// appendAndCommit implements a minimal Raft-like single-round
// consensus: append to a replicated log, count acks via a Redis
// counter, and broadcast-apply once a majority of known healthy nodes
// acknowledge, per spec.md §4.15's "entries appended to a log; commit
// when majority acknowledge; then broadcast apply."
func (n *Node) appendAndCommit(ctx context.Context, msg Message) *DistSyncError {
	n.consensusMu.Lock()
	index := len(n.log)
	n.log = append(n.log, msg)
	n.consensusMu.Unlock()

	raw, err := json.Marshal(msg)
	if err != nil {
		return &DistSyncError{Message: err.Error(), Cause: ErrCauseBackendFailure}
	}
	if err := n.client.RPush(ctx, consensusLogKey, raw).Err(); err != nil {
		return &DistSyncError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}

	ackKey := fmt.Sprintf("distsync:consensus:acks:%d", index)
	acks, err := n.client.Incr(ctx, ackKey).Result()
	if err != nil {
		return &DistSyncError{Message: err.Error(), Retryable: true, Cause: ErrCauseBackendFailure}
	}

	healthy := n.HealthyPeers(false)
	majority := len(healthy)/2 + 1
	if int(acks) < majority {
		return &DistSyncError{Message: "awaiting quorum", Retryable: true, Cause: ErrCauseNoQuorum}
	}

	return n.publishTo(ctx, broadcastChannel, msg)
}

// subscribeLoop listens on every channel this node's strategy needs
// and invokes Handler once per distinct message id.
func (n *Node) subscribeLoop(ctx context.Context) {
	channels := []string{broadcastChannel, gossipChannel(n.nodeID)}
	sub := n.client.Subscribe(ctx, channels...)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			n.handleRaw(msg.Payload)
		case <-n.stopped:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (n *Node) handleRaw(payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return
	}
	if n.dedup.SeenOrRecord(msg.ID) {
		return
	}
	if n.handler != nil {
		n.handler(msg)
	}
}
