package raft

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ulak-chat/ulak/internal/store"
)

// MockStateMachine records applied commands for inspection.
type MockStateMachine struct {
	mu      sync.Mutex
	applied []appliedEntry
}

type appliedEntry struct {
	index   uint64
	command []byte
}

func NewMockStateMachine() *MockStateMachine {
	return &MockStateMachine{}
}

func (m *MockStateMachine) Apply(index uint64, command []byte) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.applied = append(m.applied, appliedEntry{index: index, command: append([]byte(nil), command...)})
	return index, nil
}

func (m *MockStateMachine) AppliedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

func (m *MockStateMachine) Applied() []appliedEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]appliedEntry, len(m.applied))
	copy(out, m.applied)
	return out
}

// TestCluster runs several nodes over a shared in-memory network.
type TestCluster struct {
	t       *testing.T
	network *InMemoryNetwork
	ids     []string
	nodes   map[string]*Node
	stores  map[string]*store.Store
	sms     map[string]*MockStateMachine
	dirs    map[string]string
	configs map[string]*Config
}

// NewTestCluster builds a cluster of n stopped nodes with fresh
// stores in temp directories.
func NewTestCluster(t *testing.T, n int) *TestCluster {
	t.Helper()

	c := &TestCluster{
		t:       t,
		network: NewInMemoryNetwork(42),
		nodes:   make(map[string]*Node),
		stores:  make(map[string]*store.Store),
		sms:     make(map[string]*MockStateMachine),
		dirs:    make(map[string]string),
		configs: make(map[string]*Config),
	}

	base := t.TempDir()
	for i := 1; i <= n; i++ {
		c.ids = append(c.ids, fmt.Sprintf("node%d", i))
	}

	for _, id := range c.ids {
		var peers []Peer
		for _, other := range c.ids {
			if other != id {
				peers = append(peers, Peer{ID: other, Addr: other})
			}
		}
		c.configs[id] = &Config{
			ID:                 id,
			Addr:               id,
			Peers:              peers,
			ElectionTimeoutMin: 100 * time.Millisecond,
			ElectionTimeoutMax: 200 * time.Millisecond,
			HeartbeatInterval:  30 * time.Millisecond,
		}
		c.dirs[id] = filepath.Join(base, id)
		c.createNode(id)
	}

	return c
}

// createNode opens the store and builds a node for id, reusing the
// node's data directory so restarts recover persisted state.
func (c *TestCluster) createNode(id string) {
	c.t.Helper()

	st, err := store.Open(c.dirs[id])
	if err != nil {
		c.t.Fatalf("failed to open store for %s: %v", id, err)
	}
	sm := NewMockStateMachine()
	transport := c.network.NewTransport(id, id)

	node, err := NewNode(c.configs[id], st, sm, transport)
	if err != nil {
		c.t.Fatalf("failed to create node %s: %v", id, err)
	}

	c.stores[id] = st
	c.sms[id] = sm
	c.nodes[id] = node
}

// Start starts all nodes.
func (c *TestCluster) Start() {
	for _, id := range c.ids {
		if err := c.nodes[id].Start(); err != nil {
			c.t.Fatalf("failed to start node %s: %v", id, err)
		}
	}
}

// Stop stops all nodes and closes their stores.
func (c *TestCluster) Stop() {
	for _, id := range c.ids {
		c.nodes[id].Stop()
		c.stores[id].Close()
	}
}

// StopNode stops one node and closes its store.
func (c *TestCluster) StopNode(id string) {
	c.nodes[id].Stop()
	c.stores[id].Close()
}

// RestartNode rebuilds a stopped node from its persisted state and
// starts it.
func (c *TestCluster) RestartNode(id string) {
	c.createNode(id)
	if err := c.nodes[id].Start(); err != nil {
		c.t.Fatalf("failed to restart node %s: %v", id, err)
	}
}

// WaitForLeader waits for some node to become leader.
func (c *TestCluster) WaitForLeader(timeout time.Duration) *Node {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, id := range c.ids {
			if c.nodes[id].IsLeader() {
				return c.nodes[id]
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// WaitForLeaderAmong waits for a leader among the given node IDs.
func (c *TestCluster) WaitForLeaderAmong(timeout time.Duration, ids ...string) *Node {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, id := range ids {
			if c.nodes[id].IsLeader() {
				return c.nodes[id]
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

// WaitForApplied waits until the node has applied at least count entries.
func (c *TestCluster) WaitForApplied(id string, count int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.sms[id].AppliedCount() >= count {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// newTestNode builds a single unstarted node for handler-level tests.
func newTestNode(t *testing.T, id string, peers []Peer) (*Node, *store.Store, *MockStateMachine) {
	t.Helper()

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sm := NewMockStateMachine()
	network := NewInMemoryNetwork(1)
	transport := network.NewTransport(id, id)

	cfg := &Config{
		ID:                 id,
		Addr:               id,
		Peers:              peers,
		ElectionTimeoutMin: 100 * time.Millisecond,
		ElectionTimeoutMax: 200 * time.Millisecond,
		HeartbeatInterval:  30 * time.Millisecond,
	}
	node, err := NewNode(cfg, st, sm, transport)
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}
	return node, st, sm
}
