// Package raft implements the Raft consensus algorithm for the Ulak cluster.
//
// # Overview
//
// This package provides:
//   - Leader election with randomized, re-randomizing timeouts
//   - Log replication with consistency checking and fast conflict backoff
//   - Majority commit advancement restricted to current-term entries
//   - Durable term, vote and log state via a Store
//   - Pluggable transport, with TCP for deployment and a deterministic
//     in-memory network for tests
//
// # Architecture
//
// A cluster consists of multiple nodes, where:
//   - One node is elected as the leader
//   - Other nodes are followers
//   - Leader handles all client requests
//   - Leader replicates log entries to followers
//   - Entries are committed when replicated to a majority
//
// Term, vote and log changes are synced to disk before any RPC reply
// that depends on them. Commit and apply positions are volatile; a
// restarted node rediscovers them through normal replication traffic.
//
// # Usage
//
// Create a new Raft node:
//
//	cfg := &raft.Config{
//	    ID:                 "node1",
//	    Addr:               "10.0.0.1:7001",
//	    Peers:              peers,
//	    ElectionTimeoutMin: 150 * time.Millisecond,
//	    ElectionTimeoutMax: 300 * time.Millisecond,
//	    HeartbeatInterval:  50 * time.Millisecond,
//	}
//
//	st, _ := store.Open("/var/lib/ulak/node1")
//	transport := raft.NewTCPTransport(cfg.Addr, peerAddrs)
//	node, _ := raft.NewNode(cfg, st, stateMachine, transport)
//	node.Start()
//
//	// Propose a command (only on leader); returns once the command
//	// has been applied locally
//	index, result, err := node.Propose(command)
//
// # Consistency Guarantees
//
//   - At most one leader per term
//   - Committed entries are never lost while a majority survives
//   - All nodes apply the same commands in the same order
//
// # Failure Handling
//
// The cluster tolerates (N-1)/2 failures for N nodes:
//   - 3 nodes: tolerates 1 failure
//   - 5 nodes: tolerates 2 failures
//
// # References
//
//   - Raft Paper: https://raft.github.io/raft.pdf
//   - Raft Visualization: https://raft.github.io/
package raft
