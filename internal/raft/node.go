package raft

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ulak-chat/ulak/internal/store"
)

// Logger interface for Raft logging.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// defaultLogger is a no-op logger.
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, args ...interface{}) {}
func (l *defaultLogger) Info(msg string, args ...interface{})  {}
func (l *defaultLogger) Warn(msg string, args ...interface{})  {}
func (l *defaultLogger) Error(msg string, args ...interface{}) {}

// StateMachine defines the interface for applying committed commands.
// Apply is called exactly once per committed entry, in log order. The
// returned value and error are delivered to the proposer; an error
// means the command was rejected by the application, not that the
// entry failed to replicate.
type StateMachine interface {
	Apply(index uint64, command []byte) (interface{}, error)
}

// proposeResult carries the outcome of an applied proposal.
type proposeResult struct {
	value interface{}
	err   error
}

// Node represents a Raft node in the cluster.
//
// Term, vote and the log live in the Store and are synced to disk
// before any RPC reply that depends on them. Commit and apply indices
// are volatile and restart at zero; they are rediscovered through
// normal AppendEntries traffic.
type Node struct {
	id     string
	config *Config
	peers  map[string]Peer

	store        *store.Store
	stateMachine StateMachine
	transport    Transport
	logger       Logger

	// mu guards role, leaderID, commitIndex, lastApplied and the
	// leader replication indices. Store mutations that must be
	// ordered with role changes also happen under it.
	mu          sync.Mutex
	role        uint8
	leaderID    string
	commitIndex uint64
	lastApplied uint64
	nextIndex   map[string]uint64
	matchIndex  map[string]uint64

	// Pending proposals waiting for their entry to be applied
	pendingMu sync.Mutex
	pending   map[uint64]chan proposeResult

	timerMu        sync.Mutex
	electionTimer  *time.Timer
	heartbeatTimer *time.Timer
	rng            *rand.Rand

	stopCh  chan struct{}
	running int32
}

// NewNode creates a new Raft node backed by the given store.
func NewNode(cfg *Config, st *store.Store, sm StateMachine, transport Transport) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		id:           cfg.ID,
		config:       cfg,
		peers:        make(map[string]Peer),
		store:        st,
		stateMachine: sm,
		transport:    transport,
		logger:       &defaultLogger{},
		nextIndex:    make(map[string]uint64),
		matchIndex:   make(map[string]uint64),
		pending:      make(map[uint64]chan proposeResult),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		stopCh:       make(chan struct{}),
	}

	// Created up front so RPC handlers never race timer creation
	n.electionTimer = time.NewTimer(time.Hour)
	n.heartbeatTimer = time.NewTimer(time.Hour)

	for _, p := range cfg.Peers {
		n.peers[p.ID] = p
	}

	return n, nil
}

// SetLogger sets the logger for the node.
func (n *Node) SetLogger(logger Logger) {
	n.logger = logger
}

// ID returns the node's ID.
func (n *Node) ID() string {
	return n.id
}

// Role returns the current role (follower, candidate, leader).
func (n *Node) Role() uint8 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role
}

// IsLeader returns true if this node is the leader.
func (n *Node) IsLeader() bool {
	return n.Role() == RoleLeader
}

// Term returns the current term.
func (n *Node) Term() uint64 {
	return n.store.CurrentTerm()
}

// LeaderID returns the current leader's ID, or "" if unknown.
func (n *Node) LeaderID() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderID
}

// LeaderAddr returns the current leader's address, or "" if unknown.
func (n *Node) LeaderAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderAddrLocked()
}

func (n *Node) leaderAddrLocked() string {
	if n.leaderID == "" {
		return ""
	}
	if n.leaderID == n.id {
		return n.config.Addr
	}
	if p, ok := n.peers[n.leaderID]; ok {
		return p.Addr
	}
	return ""
}

// CommitIndex returns the commit index.
func (n *Node) CommitIndex() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.commitIndex
}

// LastApplied returns the last applied index.
func (n *Node) LastApplied() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastApplied
}

// Status returns a snapshot of the node's consensus state.
func (n *Node) Status() *Status {
	n.mu.Lock()
	defer n.mu.Unlock()

	return &Status{
		NodeID:       n.id,
		Role:         RoleString(n.role),
		Term:         n.store.CurrentTerm(),
		LeaderID:     n.leaderID,
		LeaderAddr:   n.leaderAddrLocked(),
		CommitIndex:  n.commitIndex,
		LastApplied:  n.lastApplied,
		LastLogIndex: n.store.LastIndex(),
		PeerCount:    len(n.peers),
	}
}

// Start starts the Raft node.
func (n *Node) Start() error {
	if !atomic.CompareAndSwapInt32(&n.running, 0, 1) {
		return nil // Already running
	}

	if n.transport != nil {
		if err := n.transport.Listen(n.handleRPC); err != nil {
			atomic.StoreInt32(&n.running, 0)
			return err
		}
	}

	go n.run()
	go n.applyLoop()

	return nil
}

// Stop stops the Raft node.
func (n *Node) Stop() {
	if !atomic.CompareAndSwapInt32(&n.running, 1, 0) {
		return // Not running
	}

	close(n.stopCh)
	n.transport.Close()
	n.cancelPending(ErrNodeStopped)
}

// Propose replicates a command and waits until it has been applied on
// this node. It returns the log index assigned to the command and the
// state machine's result for it. Only the leader accepts proposals.
func (n *Node) Propose(command []byte) (uint64, interface{}, error) {
	if atomic.LoadInt32(&n.running) == 0 {
		return 0, nil, ErrNodeStopped
	}

	n.mu.Lock()
	if n.role != RoleLeader {
		n.mu.Unlock()
		return 0, nil, ErrNotLeader
	}

	term := n.store.CurrentTerm()
	index, err := n.store.AppendEntry(term, store.EntryNormal, command)
	if err != nil {
		n.mu.Unlock()
		return 0, nil, err
	}

	ch := make(chan proposeResult, 1)
	n.pendingMu.Lock()
	n.pending[index] = ch
	n.pendingMu.Unlock()

	// Single-node clusters commit without any RPC traffic
	n.updateCommitIndexLocked()
	n.mu.Unlock()

	n.broadcastAppendEntries()

	select {
	case res := <-ch:
		return index, res.value, res.err
	case <-n.stopCh:
		return index, nil, ErrNodeStopped
	}
}

// run is the main loop for the Raft node.
func (n *Node) run() {
	n.resetElectionTimer()

	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		switch n.Role() {
		case RoleFollower:
			n.runFollower()
		case RoleCandidate:
			n.runCandidate()
		case RoleLeader:
			n.runLeader()
		}
	}
}

func (n *Node) runFollower() {
	for n.Role() == RoleFollower {
		select {
		case <-n.stopCh:
			return
		case <-n.electionTimer.C:
			n.startElection()
			return
		}
	}
}

// startElection moves to candidate in a new term and votes for itself.
// The term bump and self-vote are persisted before any vote request
// goes out.
func (n *Node) startElection() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.role = RoleCandidate
	n.leaderID = ""
	term := n.store.CurrentTerm() + 1
	if err := n.store.SetTermAndVote(term, n.id); err != nil {
		n.logger.Error("failed to persist term for election", "term", term, "error", err)
		n.role = RoleFollower
		// The timer already fired; rearm it so the election is retried.
		n.resetElectionTimer()
		return
	}
	n.logger.Info("election timeout, starting election", "nodeId", n.id, "term", term)
}

func (n *Node) runCandidate() {
	n.mu.Lock()
	if n.role != RoleCandidate {
		n.mu.Unlock()
		return
	}
	term := n.store.CurrentTerm()
	lastLogIndex, lastLogTerm := n.store.LastIndexAndTerm()

	// Single node cluster, become leader immediately
	if len(n.peers) == 0 {
		n.becomeLeaderLocked(term)
		n.mu.Unlock()
		return
	}
	n.mu.Unlock()

	votes := int32(1) // Vote for self
	voteCh := make(chan bool, len(n.peers))

	for peerID := range n.peers {
		go func(peerID string) {
			args := &RequestVoteArgs{
				Term:         term,
				CandidateID:  n.id,
				LastLogIndex: lastLogIndex,
				LastLogTerm:  lastLogTerm,
			}

			reply, err := n.sendRequestVote(peerID, args)
			if err != nil {
				voteCh <- false
				return
			}

			if reply.Term > term {
				n.mu.Lock()
				n.stepDownLocked(reply.Term)
				n.resetElectionTimer()
				n.mu.Unlock()
				voteCh <- false
				return
			}

			voteCh <- reply.VoteGranted
		}(peerID)
	}

	// Wait for votes until the (re-randomized) election timeout fires
	n.resetElectionTimer()
	votesNeeded := (len(n.peers)+1)/2 + 1

	for i := 0; i < len(n.peers); i++ {
		select {
		case <-n.stopCh:
			return
		case <-n.electionTimer.C:
			// Split vote, retry in a higher term
			n.startElection()
			return
		case granted := <-voteCh:
			if n.Role() != RoleCandidate {
				return // Stepped down while waiting
			}
			if granted {
				current := int(atomic.AddInt32(&votes, 1))
				if current >= votesNeeded {
					n.mu.Lock()
					if n.role == RoleCandidate && n.store.CurrentTerm() == term {
						n.becomeLeaderLocked(term)
					}
					n.mu.Unlock()
					return
				}
			}
		}
	}

	// Not enough votes, wait out the timeout before trying again so
	// a healthier candidate has a chance to win first
	select {
	case <-n.stopCh:
	case <-n.electionTimer.C:
		n.startElection()
	}
}

func (n *Node) runLeader() {
	n.broadcastAppendEntries()
	n.resetHeartbeatTimer()

	for n.Role() == RoleLeader {
		select {
		case <-n.stopCh:
			n.cancelPending(ErrNodeStopped)
			return
		case <-n.heartbeatTimer.C:
			n.broadcastAppendEntries()
			n.resetHeartbeatTimer()
		}
	}
	// No longer leader
	n.cancelPending(ErrNotLeader)
}

// becomeLeaderLocked transitions to leader. No entry is appended on
// election; the first client command gets the next free index.
func (n *Node) becomeLeaderLocked(term uint64) {
	n.role = RoleLeader
	n.leaderID = n.id

	lastIndex := n.store.LastIndex()
	for peerID := range n.peers {
		n.nextIndex[peerID] = lastIndex + 1
		n.matchIndex[peerID] = 0
	}

	// A leader with no peers commits on its own
	n.updateCommitIndexLocked()

	n.logger.Info("became leader", "nodeId", n.id, "term", term)
}

// stepDownLocked reverts to follower in the given term. The new term
// is persisted (clearing the vote) before anything else observes it.
// The election timer is left alone: only a granted vote or a valid
// AppendEntries counts as contact, so a stale candidate bumping terms
// cannot keep suppressing elections here.
func (n *Node) stepDownLocked(term uint64) {
	wasLeader := n.role == RoleLeader
	n.role = RoleFollower
	n.leaderID = ""
	if term > n.store.CurrentTerm() {
		if err := n.store.SetCurrentTerm(term); err != nil {
			n.logger.Error("failed to persist term on step down", "term", term, "error", err)
		}
	}
	if wasLeader {
		go n.cancelPending(ErrNotLeader)
	}
}

func (n *Node) resetElectionTimer() {
	timeout := n.randomElectionTimeout()

	n.timerMu.Lock()
	defer n.timerMu.Unlock()

	if !n.electionTimer.Stop() {
		select {
		case <-n.electionTimer.C:
		default:
		}
	}
	n.electionTimer.Reset(timeout)
}

func (n *Node) resetHeartbeatTimer() {
	n.timerMu.Lock()
	defer n.timerMu.Unlock()

	if !n.heartbeatTimer.Stop() {
		select {
		case <-n.heartbeatTimer.C:
		default:
		}
	}
	n.heartbeatTimer.Reset(n.config.HeartbeatInterval)
}

// randomElectionTimeout draws a fresh timeout from the configured
// range. Every reset re-randomizes so nodes drift apart after ties.
func (n *Node) randomElectionTimeout() time.Duration {
	min := n.config.ElectionTimeoutMin
	max := n.config.ElectionTimeoutMax
	if max <= min {
		return min
	}
	n.timerMu.Lock()
	d := time.Duration(n.rng.Int63n(int64(max - min)))
	n.timerMu.Unlock()
	return min + d
}

// handleRPC handles incoming RPC messages.
func (n *Node) handleRPC(msgType uint8, data []byte) []byte {
	switch msgType {
	case RPCRequestVote:
		return n.handleRequestVote(data)
	case RPCAppendEntries:
		return n.handleAppendEntries(data)
	case RPCStatus:
		return SerializeStatus(n.Status())
	default:
		return nil
	}
}

func (n *Node) handleRequestVote(data []byte) []byte {
	args, err := DeserializeRequestVoteArgs(data)
	if err != nil {
		return (&RequestVoteReply{Term: n.store.CurrentTerm()}).Serialize()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	term := n.store.CurrentTerm()
	reply := &RequestVoteReply{Term: term}

	// Reply false if term < currentTerm
	if args.Term < term {
		return reply.Serialize()
	}

	if args.Term > term {
		n.stepDownLocked(args.Term)
		reply.Term = args.Term
	}

	votedFor, voted := n.store.VotedFor()
	if !voted || votedFor == args.CandidateID {
		// Grant only if candidate's log is at least as up-to-date as ours
		lastLogIndex, lastLogTerm := n.store.LastIndexAndTerm()

		if args.LastLogTerm > lastLogTerm ||
			(args.LastLogTerm == lastLogTerm && args.LastLogIndex >= lastLogIndex) {
			// Persist the vote before replying
			if err := n.store.SetVotedFor(args.CandidateID); err != nil {
				n.logger.Error("failed to persist vote", "candidate", args.CandidateID, "error", err)
				return reply.Serialize()
			}
			reply.VoteGranted = true
			n.resetElectionTimer()
			n.logger.Debug("granted vote", "candidate", args.CandidateID, "term", args.Term)
		}
	}

	return reply.Serialize()
}

func (n *Node) handleAppendEntries(data []byte) []byte {
	args, err := DeserializeAppendEntriesArgs(data)
	if err != nil {
		return (&AppendEntriesReply{Term: n.store.CurrentTerm()}).Serialize()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	term := n.store.CurrentTerm()
	reply := &AppendEntriesReply{Term: term}

	// Reply false if term < currentTerm
	if args.Term < term {
		return reply.Serialize()
	}

	if args.Term > term {
		n.stepDownLocked(args.Term)
		reply.Term = args.Term
	} else if n.role != RoleFollower {
		// A valid leader exists in our term
		n.role = RoleFollower
	}

	n.leaderID = args.LeaderID
	n.resetElectionTimer()

	// Consistency check at PrevLogIndex
	if args.PrevLogIndex > 0 {
		lastIndex := n.store.LastIndex()
		if args.PrevLogIndex > lastIndex {
			reply.ConflictIndex = lastIndex + 1
			return reply.Serialize()
		}
		prevTerm, _ := n.store.Term(args.PrevLogIndex)
		if prevTerm != args.PrevLogTerm {
			// Report the whole run of the conflicting term so the
			// leader can skip past it in one step
			reply.ConflictTerm = prevTerm
			ci := args.PrevLogIndex
			for ci > 1 {
				t, _ := n.store.Term(ci - 1)
				if t != prevTerm {
					break
				}
				ci--
			}
			reply.ConflictIndex = ci
			return reply.Serialize()
		}
	}

	// Append new entries, truncating the log at the first conflict.
	// Entries already present with matching terms are left alone.
	for i, entry := range args.Entries {
		idx := args.PrevLogIndex + uint64(i) + 1
		if idx <= n.store.LastIndex() {
			existingTerm, _ := n.store.Term(idx)
			if existingTerm == entry.Term {
				continue
			}
			if err := n.store.TruncateFrom(idx); err != nil {
				n.logger.Error("failed to truncate conflicting entries", "index", idx, "error", err)
				return reply.Serialize()
			}
			if n.commitIndex >= idx {
				// Should be impossible: committed entries never conflict
				n.logger.Error("truncated at or below commit index", "index", idx, "commitIndex", n.commitIndex)
			}
		}
		if err := n.store.Append(args.Entries[i:]); err != nil {
			n.logger.Error("failed to append entries", "index", idx, "error", err)
			return reply.Serialize()
		}
		break
	}

	// Advance commit index, bounded by what this request verified
	lastNew := args.PrevLogIndex + uint64(len(args.Entries))
	if args.LeaderCommit > n.commitIndex {
		newCommit := args.LeaderCommit
		if lastNew < newCommit {
			newCommit = lastNew
		}
		if newCommit > n.commitIndex {
			n.commitIndex = newCommit
		}
	}

	reply.Success = true
	return reply.Serialize()
}

func (n *Node) sendRequestVote(peerID string, args *RequestVoteArgs) (*RequestVoteReply, error) {
	resp, err := n.transport.Send(peerID, RPCRequestVote, args.Serialize())
	if err != nil {
		return nil, err
	}
	return DeserializeRequestVoteReply(resp)
}

func (n *Node) sendAppendEntries(peerID string, args *AppendEntriesArgs) (*AppendEntriesReply, error) {
	resp, err := n.transport.Send(peerID, RPCAppendEntries, args.Serialize())
	if err != nil {
		return nil, err
	}
	return DeserializeAppendEntriesReply(resp)
}

// broadcastAppendEntries sends AppendEntries to all peers.
func (n *Node) broadcastAppendEntries() {
	for peerID := range n.peers {
		go n.replicateTo(peerID)
	}
}

func (n *Node) replicateTo(peerID string) {
	n.mu.Lock()
	if n.role != RoleLeader {
		n.mu.Unlock()
		return
	}

	term := n.store.CurrentTerm()
	next := n.nextIndex[peerID]
	if next == 0 {
		next = 1
	}
	prevLogIndex := next - 1
	var prevLogTerm uint64
	if prevLogIndex > 0 {
		prevLogTerm, _ = n.store.Term(prevLogIndex)
	}
	entries := n.store.Entries(next, n.store.LastIndex())
	commitIndex := n.commitIndex
	n.mu.Unlock()

	args := &AppendEntriesArgs{
		Term:         term,
		LeaderID:     n.id,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		Entries:      entries,
		LeaderCommit: commitIndex,
	}

	reply, err := n.sendAppendEntries(peerID, args)
	if err != nil {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if reply.Term > n.store.CurrentTerm() {
		n.stepDownLocked(reply.Term)
		n.resetElectionTimer()
		return
	}
	if n.role != RoleLeader || n.store.CurrentTerm() != term {
		return // Stale reply from an earlier term
	}

	if reply.Success {
		match := prevLogIndex + uint64(len(entries))
		if match > n.matchIndex[peerID] {
			n.matchIndex[peerID] = match
		}
		n.nextIndex[peerID] = match + 1
		n.updateCommitIndexLocked()
		return
	}

	// Back off nextIndex using the follower's conflict hints
	switch {
	case reply.ConflictTerm > 0:
		// Jump past our last entry of the conflicting term, or to
		// the follower's first index of it if we never had that term
		ni := reply.ConflictIndex
		for i := prevLogIndex; i >= 1; i-- {
			t, ok := n.store.Term(i)
			if !ok {
				break
			}
			if t == reply.ConflictTerm {
				ni = i + 1
				break
			}
			if t < reply.ConflictTerm {
				break
			}
		}
		n.nextIndex[peerID] = ni
	case reply.ConflictIndex > 0:
		n.nextIndex[peerID] = reply.ConflictIndex
	default:
		if n.nextIndex[peerID] > 1 {
			n.nextIndex[peerID]--
		}
	}
}

// updateCommitIndexLocked advances commitIndex to the highest index
// replicated on a majority. Only entries from the current term are
// committed by counting; older entries commit transitively.
func (n *Node) updateCommitIndexLocked() {
	term := n.store.CurrentTerm()
	votesNeeded := (len(n.peers)+1)/2 + 1

	for idx := n.store.LastIndex(); idx > n.commitIndex; idx-- {
		t, ok := n.store.Term(idx)
		if !ok || t != term {
			continue
		}

		count := 1 // Self
		for _, match := range n.matchIndex {
			if match >= idx {
				count++
			}
		}

		if count >= votesNeeded {
			n.commitIndex = idx
			break
		}
	}
}

// applyLoop applies committed entries to the state machine in order
// and completes the proposals waiting on them.
func (n *Node) applyLoop() {
	for {
		select {
		case <-n.stopCh:
			return
		default:
		}

		for {
			n.mu.Lock()
			if n.lastApplied >= n.commitIndex {
				n.mu.Unlock()
				break
			}
			next := n.lastApplied + 1
			entry, ok := n.store.Entry(next)
			n.mu.Unlock()
			if !ok {
				break
			}

			var value interface{}
			var err error
			if entry.Type == store.EntryNormal && n.stateMachine != nil {
				value, err = n.stateMachine.Apply(entry.Index, entry.Command)
			}

			n.mu.Lock()
			n.lastApplied = next
			n.mu.Unlock()

			n.resolvePending(next, value, err)
		}

		time.Sleep(10 * time.Millisecond)
	}
}

// resolvePending completes the proposal waiting on an applied index.
func (n *Node) resolvePending(index uint64, value interface{}, err error) {
	n.pendingMu.Lock()
	ch, ok := n.pending[index]
	if ok {
		delete(n.pending, index)
	}
	n.pendingMu.Unlock()

	if ok {
		ch <- proposeResult{value: value, err: err}
	}
}

// cancelPending fails all waiting proposals with the given error.
func (n *Node) cancelPending(err error) {
	n.pendingMu.Lock()
	defer n.pendingMu.Unlock()

	for index, ch := range n.pending {
		ch <- proposeResult{err: err}
		delete(n.pending, index)
	}
}

// Peers returns the list of configured peers.
func (n *Node) Peers() []Peer {
	peers := make([]Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	return peers
}
