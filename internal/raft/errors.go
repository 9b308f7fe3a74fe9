package raft

import "errors"

// Raft errors.
var (
	// ErrNotLeader is returned when a write operation is attempted on a non-leader node.
	ErrNotLeader = errors.New("raft: not the leader")

	// ErrLeaderUnknown is returned when the leader is not known.
	ErrLeaderUnknown = errors.New("raft: leader unknown")

	// ErrNodeStopped is returned when operation is attempted on a stopped node.
	ErrNodeStopped = errors.New("raft: node stopped")

	// ErrMessageCorrupted is returned when an RPC message cannot be decoded.
	ErrMessageCorrupted = errors.New("raft: message corrupted")

	// ErrTransportClosed is returned when transport is closed.
	ErrTransportClosed = errors.New("raft: transport closed")

	// ErrConnectFailed is returned when connection to peer fails.
	ErrConnectFailed = errors.New("raft: connection failed")

	// ErrUnreachable is returned by the in-memory network when a link is
	// partitioned or the message was dropped.
	ErrUnreachable = errors.New("raft: peer unreachable")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("raft: invalid configuration")
)
