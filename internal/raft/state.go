package raft

import "time"

// Node roles.
const (
	RoleFollower uint8 = iota
	RoleCandidate
	RoleLeader
)

// RoleString returns the string representation of a node role.
func RoleString(role uint8) string {
	switch role {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// Peer represents a remote node in the cluster.
type Peer struct {
	ID   string
	Addr string
}

// Config holds configuration for a Raft node.
type Config struct {
	ID                 string        // Unique node ID
	Addr               string        // Raft RPC listen address
	Peers              []Peer        // Cluster peers, excluding this node
	ElectionTimeoutMin time.Duration // Lower bound for randomized election timeout
	ElectionTimeoutMax time.Duration // Upper bound for randomized election timeout
	HeartbeatInterval  time.Duration // Leader heartbeat interval
}

// DefaultConfig returns default timing configuration.
func DefaultConfig() *Config {
	return &Config{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.ID == "" {
		return ErrInvalidConfig
	}
	if c.ElectionTimeoutMin <= 0 {
		return ErrInvalidConfig
	}
	if c.ElectionTimeoutMax < c.ElectionTimeoutMin {
		return ErrInvalidConfig
	}
	if c.HeartbeatInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.HeartbeatInterval >= c.ElectionTimeoutMin {
		return ErrInvalidConfig
	}
	for _, p := range c.Peers {
		if p.ID == "" || p.ID == c.ID {
			return ErrInvalidConfig
		}
	}
	return nil
}

// Status is a point-in-time snapshot of a node's consensus state.
type Status struct {
	NodeID       string `json:"nodeId"`
	Role         string `json:"role"`
	Term         uint64 `json:"term"`
	LeaderID     string `json:"leaderId"`
	LeaderAddr   string `json:"leaderAddr"`
	CommitIndex  uint64 `json:"commitIndex"`
	LastApplied  uint64 `json:"lastApplied"`
	LastLogIndex uint64 `json:"lastLogIndex"`
	PeerCount    int    `json:"peerCount"`
}
