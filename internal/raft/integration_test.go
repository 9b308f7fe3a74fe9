package raft

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ulak-chat/ulak/internal/store"
)

func TestSingleNodeBecomesLeader(t *testing.T) {
	c := NewTestCluster(t, 1)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(2 * time.Second)
	if leader == nil {
		t.Fatal("Single node never became leader")
	}
	if leader.ID() != "node1" {
		t.Errorf("Expected node1 as leader, got %s", leader.ID())
	}
}

func TestSingleNodeCommitsWithoutPeers(t *testing.T) {
	c := NewTestCluster(t, 1)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(2 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	index, result, err := leader.Propose([]byte("solo"))
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if index != 1 {
		t.Errorf("Expected first entry at index 1, got %d", index)
	}
	if result != uint64(1) {
		t.Errorf("Expected apply result for index 1, got %v", result)
	}
}

func TestLeaderElection(t *testing.T) {
	c := NewTestCluster(t, 3)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(3 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	// Give any in-flight election a moment to settle, then check
	// exactly one node believes it leads
	time.Sleep(300 * time.Millisecond)
	leaders := 0
	for _, id := range c.ids {
		if c.nodes[id].IsLeader() {
			leaders++
		}
	}
	if leaders != 1 {
		t.Errorf("Expected exactly one leader, got %d", leaders)
	}
}

func TestFollowersLearnLeader(t *testing.T) {
	c := NewTestCluster(t, 3)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(3 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		known := 0
		for _, id := range c.ids {
			if c.nodes[id].LeaderID() == leader.ID() {
				known++
			}
		}
		if known == len(c.ids) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Followers never learned the leader ID")
}

func TestFirstCommandGetsIndexOne(t *testing.T) {
	c := NewTestCluster(t, 3)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(3 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	index, _, err := leader.Propose([]byte("first"))
	if err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	if index != 1 {
		t.Errorf("Expected first command at index 1, got %d", index)
	}
}

func TestReplicationToAllNodes(t *testing.T) {
	c := NewTestCluster(t, 3)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(3 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	for i := 0; i < 3; i++ {
		cmd := []byte(fmt.Sprintf("cmd-%d", i))
		if _, _, err := leader.Propose(cmd); err != nil {
			t.Fatalf("Propose %d failed: %v", i, err)
		}
	}

	for _, id := range c.ids {
		if !c.WaitForApplied(id, 3, 3*time.Second) {
			t.Fatalf("Node %s applied only %d of 3 entries", id, c.sms[id].AppliedCount())
		}
	}

	// All state machines saw the same commands at the same indexes
	reference := c.sms[c.ids[0]].Applied()
	for _, id := range c.ids[1:] {
		applied := c.sms[id].Applied()
		for i := range reference {
			if applied[i].index != reference[i].index || !bytes.Equal(applied[i].command, reference[i].command) {
				t.Fatalf("Node %s diverged at position %d", id, i)
			}
		}
	}
}

func TestProposeOnFollowerRejected(t *testing.T) {
	c := NewTestCluster(t, 3)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(3 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	for _, id := range c.ids {
		if id == leader.ID() {
			continue
		}
		_, _, err := c.nodes[id].Propose([]byte("nope"))
		if !errors.Is(err, ErrNotLeader) {
			t.Errorf("Expected ErrNotLeader from %s, got %v", id, err)
		}
	}
}

func TestLeaderFailover(t *testing.T) {
	c := NewTestCluster(t, 3)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(3 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	if _, _, err := leader.Propose([]byte("before")); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}

	// Cut the leader off from the others
	var rest []string
	for _, id := range c.ids {
		if id != leader.ID() {
			rest = append(rest, id)
		}
	}
	c.network.Partition([]string{leader.ID()}, rest)

	newLeader := c.WaitForLeaderAmong(3*time.Second, rest...)
	if newLeader == nil {
		t.Fatal("Majority side never elected a new leader")
	}
	if newLeader.ID() == leader.ID() {
		t.Fatal("Old leader cannot lead the majority side")
	}

	if _, _, err := newLeader.Propose([]byte("after")); err != nil {
		t.Fatalf("Propose on new leader failed: %v", err)
	}

	// The old leader rejoins and steps down to the higher term
	c.network.Heal()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !c.nodes[leader.ID()].IsLeader() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if c.nodes[leader.ID()].IsLeader() {
		t.Error("Old leader never stepped down after heal")
	}

	if !c.WaitForApplied(leader.ID(), 2, 3*time.Second) {
		t.Errorf("Old leader caught up to %d of 2 entries", c.sms[leader.ID()].AppliedCount())
	}
}

func TestMinorityLeaderCannotCommit(t *testing.T) {
	c := NewTestCluster(t, 3)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(3 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	var rest []string
	for _, id := range c.ids {
		if id != leader.ID() {
			rest = append(rest, id)
		}
	}
	c.network.Partition([]string{leader.ID()}, rest)

	// The isolated leader accepts the entry into its log but can
	// never reach a majority, so the proposal must not complete
	// until it steps down
	done := make(chan error, 1)
	go func() {
		_, _, err := leader.Propose([]byte("doomed"))
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("Minority leader committed an entry")
		}
	case <-time.After(2 * time.Second):
		// Still blocked, which is acceptable: it can only resolve
		// once the node notices a higher term
	}

	if commit := leader.CommitIndex(); commit != 0 {
		t.Errorf("Expected commit index 0 on minority leader, got %d", commit)
	}

	c.network.Heal()
}

func TestRestartRecoversState(t *testing.T) {
	c := NewTestCluster(t, 3)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(3 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	for i := 0; i < 3; i++ {
		if _, _, err := leader.Propose([]byte(fmt.Sprintf("cmd-%d", i))); err != nil {
			t.Fatalf("Propose %d failed: %v", i, err)
		}
	}

	// Restart a follower and verify it replays the whole log
	var follower string
	for _, id := range c.ids {
		if id != leader.ID() {
			follower = id
			break
		}
	}

	c.StopNode(follower)
	c.RestartNode(follower)

	if !c.WaitForApplied(follower, 3, 3*time.Second) {
		t.Fatalf("Restarted node applied only %d of 3 entries", c.sms[follower].AppliedCount())
	}

	if got := c.stores[follower].LastIndex(); got != 3 {
		t.Errorf("Expected 3 entries in restarted log, got %d", got)
	}
	if got := c.nodes[follower].Term(); got == 0 {
		t.Error("Expected restarted node to recover a nonzero term")
	}
}

func TestDivergedFollowerConverges(t *testing.T) {
	c := NewTestCluster(t, 3)
	c.Start()
	defer c.Stop()

	leader := c.WaitForLeader(3 * time.Second)
	if leader == nil {
		t.Fatal("No leader elected")
	}

	if _, _, err := leader.Propose([]byte("shared")); err != nil {
		t.Fatalf("Propose failed: %v", err)
	}
	for _, id := range c.ids {
		if !c.WaitForApplied(id, 1, 3*time.Second) {
			t.Fatalf("Node %s never applied the shared entry", id)
		}
	}

	// Isolate the leader and let it accept entries that will never
	// commit, while the majority moves on
	var rest []string
	for _, id := range c.ids {
		if id != leader.ID() {
			rest = append(rest, id)
		}
	}
	c.network.Partition([]string{leader.ID()}, rest)

	go leader.Propose([]byte("orphan-1"))
	go leader.Propose([]byte("orphan-2"))

	newLeader := c.WaitForLeaderAmong(3*time.Second, rest...)
	if newLeader == nil {
		t.Fatal("Majority side never elected a new leader")
	}
	if _, _, err := newLeader.Propose([]byte("kept")); err != nil {
		t.Fatalf("Propose on new leader failed: %v", err)
	}

	c.network.Heal()

	// The orphaned entries are overwritten by the new leader's log
	if !c.WaitForApplied(leader.ID(), 2, 5*time.Second) {
		t.Fatalf("Old leader applied only %d of 2 entries", c.sms[leader.ID()].AppliedCount())
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		entry, ok := c.stores[leader.ID()].Entry(2)
		if ok && bytes.Equal(entry.Command, []byte("kept")) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("Old leader never converged to the new leader's log")
}

func TestElectionRetriesAfterPersistFailure(t *testing.T) {
	base := t.TempDir()
	dir := filepath.Join(base, "data")
	if err := os.Mkdir(dir, 0755); err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(dir)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	network := NewInMemoryNetwork(1)
	cfg := &Config{
		ID:                 "node1",
		Addr:               "node1",
		ElectionTimeoutMin: 50 * time.Millisecond,
		ElectionTimeoutMax: 100 * time.Millisecond,
		HeartbeatInterval:  20 * time.Millisecond,
	}
	node, err := NewNode(cfg, st, NewMockStateMachine(), network.NewTransport("node1", "node1"))
	if err != nil {
		t.Fatalf("failed to create node: %v", err)
	}

	// Hide the data directory so persisting the election term fails
	hidden := filepath.Join(base, "hidden")
	if err := os.Rename(dir, hidden); err != nil {
		t.Fatal(err)
	}

	if err := node.Start(); err != nil {
		t.Fatalf("failed to start node: %v", err)
	}
	defer node.Stop()

	time.Sleep(300 * time.Millisecond)
	if node.IsLeader() {
		t.Fatal("Node won an election while its store could not persist")
	}

	// A persist failure aborts that one election, not the node: once
	// the directory is back, the rearmed timer retries and wins
	if err := os.Rename(hidden, dir); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if node.IsLeader() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Node never retried the election after the store recovered")
}
