package raft

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ulak-chat/ulak/internal/store"
)

// RPC message types.
const (
	RPCRequestVote uint8 = iota
	RPCRequestVoteReply
	RPCAppendEntries
	RPCAppendEntriesReply
	RPCStatus
	RPCStatusReply
)

// writeString writes a length-prefixed string.
func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

// readString reads a length-prefixed string.
func readString(r *bytes.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", ErrMessageCorrupted
	}
	if int(length) > r.Len() {
		return "", ErrMessageCorrupted
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", ErrMessageCorrupted
	}
	return string(data), nil
}

// RequestVoteArgs is sent by candidates to gather votes.
type RequestVoteArgs struct {
	Term         uint64 // Candidate's term
	CandidateID  string // Candidate requesting vote
	LastLogIndex uint64 // Index of candidate's last log entry
	LastLogTerm  uint64 // Term of candidate's last log entry
}

// Serialize encodes RequestVoteArgs to bytes.
func (r *RequestVoteArgs) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, r.Term)
	writeString(buf, r.CandidateID)
	binary.Write(buf, binary.LittleEndian, r.LastLogIndex)
	binary.Write(buf, binary.LittleEndian, r.LastLogTerm)
	return buf.Bytes()
}

// DeserializeRequestVoteArgs decodes RequestVoteArgs from bytes.
func DeserializeRequestVoteArgs(data []byte) (*RequestVoteArgs, error) {
	r := bytes.NewReader(data)
	args := &RequestVoteArgs{}
	if err := binary.Read(r, binary.LittleEndian, &args.Term); err != nil {
		return nil, ErrMessageCorrupted
	}
	var err error
	if args.CandidateID, err = readString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &args.LastLogIndex); err != nil {
		return nil, ErrMessageCorrupted
	}
	if err := binary.Read(r, binary.LittleEndian, &args.LastLogTerm); err != nil {
		return nil, ErrMessageCorrupted
	}
	return args, nil
}

// RequestVoteReply is the response to RequestVote.
type RequestVoteReply struct {
	Term        uint64 // Current term, for candidate to update itself
	VoteGranted bool   // True if candidate received vote
}

// Serialize encodes RequestVoteReply to bytes.
func (r *RequestVoteReply) Serialize() []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf[0:8], r.Term)
	if r.VoteGranted {
		buf[8] = 1
	}
	return buf
}

// DeserializeRequestVoteReply decodes RequestVoteReply from bytes.
func DeserializeRequestVoteReply(data []byte) (*RequestVoteReply, error) {
	if len(data) < 9 {
		return nil, ErrMessageCorrupted
	}
	return &RequestVoteReply{
		Term:        binary.LittleEndian.Uint64(data[0:8]),
		VoteGranted: data[8] == 1,
	}, nil
}

// AppendEntriesArgs is sent by leader to replicate log entries.
type AppendEntriesArgs struct {
	Term         uint64        // Leader's term
	LeaderID     string        // So follower can redirect clients
	PrevLogIndex uint64        // Index of log entry immediately preceding new ones
	PrevLogTerm  uint64        // Term of prevLogIndex entry
	Entries      []store.Entry // Log entries to store (empty for heartbeat)
	LeaderCommit uint64        // Leader's commitIndex
}

// serializeEntry encodes one log entry.
func serializeEntry(buf *bytes.Buffer, entry store.Entry) {
	binary.Write(buf, binary.LittleEndian, entry.Index)
	binary.Write(buf, binary.LittleEndian, entry.Term)
	buf.WriteByte(byte(entry.Type))
	binary.Write(buf, binary.LittleEndian, uint32(len(entry.Command)))
	buf.Write(entry.Command)
}

// deserializeEntry decodes one log entry.
func deserializeEntry(r *bytes.Reader) (store.Entry, error) {
	var entry store.Entry
	if err := binary.Read(r, binary.LittleEndian, &entry.Index); err != nil {
		return entry, ErrMessageCorrupted
	}
	if err := binary.Read(r, binary.LittleEndian, &entry.Term); err != nil {
		return entry, ErrMessageCorrupted
	}
	typ, err := r.ReadByte()
	if err != nil {
		return entry, ErrMessageCorrupted
	}
	entry.Type = store.EntryType(typ)

	var cmdLen uint32
	if err := binary.Read(r, binary.LittleEndian, &cmdLen); err != nil {
		return entry, ErrMessageCorrupted
	}
	if int(cmdLen) > r.Len() {
		return entry, ErrMessageCorrupted
	}
	if cmdLen > 0 {
		entry.Command = make([]byte, cmdLen)
		if _, err := io.ReadFull(r, entry.Command); err != nil {
			return entry, ErrMessageCorrupted
		}
	}
	return entry, nil
}

// Serialize encodes AppendEntriesArgs to bytes.
func (a *AppendEntriesArgs) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, a.Term)
	writeString(buf, a.LeaderID)
	binary.Write(buf, binary.LittleEndian, a.PrevLogIndex)
	binary.Write(buf, binary.LittleEndian, a.PrevLogTerm)
	binary.Write(buf, binary.LittleEndian, a.LeaderCommit)
	binary.Write(buf, binary.LittleEndian, uint32(len(a.Entries)))
	for _, entry := range a.Entries {
		serializeEntry(buf, entry)
	}
	return buf.Bytes()
}

// DeserializeAppendEntriesArgs decodes AppendEntriesArgs from bytes.
func DeserializeAppendEntriesArgs(data []byte) (*AppendEntriesArgs, error) {
	r := bytes.NewReader(data)
	args := &AppendEntriesArgs{}
	if err := binary.Read(r, binary.LittleEndian, &args.Term); err != nil {
		return nil, ErrMessageCorrupted
	}
	var err error
	if args.LeaderID, err = readString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &args.PrevLogIndex); err != nil {
		return nil, ErrMessageCorrupted
	}
	if err := binary.Read(r, binary.LittleEndian, &args.PrevLogTerm); err != nil {
		return nil, ErrMessageCorrupted
	}
	if err := binary.Read(r, binary.LittleEndian, &args.LeaderCommit); err != nil {
		return nil, ErrMessageCorrupted
	}

	var numEntries uint32
	if err := binary.Read(r, binary.LittleEndian, &numEntries); err != nil {
		return nil, ErrMessageCorrupted
	}
	for i := uint32(0); i < numEntries; i++ {
		entry, err := deserializeEntry(r)
		if err != nil {
			return nil, err
		}
		args.Entries = append(args.Entries, entry)
	}
	return args, nil
}

// AppendEntriesReply is the response to AppendEntries.
type AppendEntriesReply struct {
	Term          uint64 // Current term, for leader to update itself
	Success       bool   // True if follower contained entry matching prevLogIndex/prevLogTerm
	ConflictTerm  uint64 // Term of conflicting entry (fast backoff)
	ConflictIndex uint64 // First index of conflicting term (fast backoff)
}

// Serialize encodes AppendEntriesReply to bytes.
func (r *AppendEntriesReply) Serialize() []byte {
	buf := make([]byte, 25)
	binary.LittleEndian.PutUint64(buf[0:8], r.Term)
	if r.Success {
		buf[8] = 1
	}
	binary.LittleEndian.PutUint64(buf[9:17], r.ConflictTerm)
	binary.LittleEndian.PutUint64(buf[17:25], r.ConflictIndex)
	return buf
}

// DeserializeAppendEntriesReply decodes AppendEntriesReply from bytes.
func DeserializeAppendEntriesReply(data []byte) (*AppendEntriesReply, error) {
	if len(data) < 25 {
		return nil, ErrMessageCorrupted
	}
	return &AppendEntriesReply{
		Term:          binary.LittleEndian.Uint64(data[0:8]),
		Success:       data[8] == 1,
		ConflictTerm:  binary.LittleEndian.Uint64(data[9:17]),
		ConflictIndex: binary.LittleEndian.Uint64(data[17:25]),
	}, nil
}

// SerializeStatus encodes a Status reply.
func SerializeStatus(s *Status) []byte {
	buf := new(bytes.Buffer)
	writeString(buf, s.NodeID)
	writeString(buf, s.Role)
	binary.Write(buf, binary.LittleEndian, s.Term)
	writeString(buf, s.LeaderID)
	writeString(buf, s.LeaderAddr)
	binary.Write(buf, binary.LittleEndian, s.CommitIndex)
	binary.Write(buf, binary.LittleEndian, s.LastApplied)
	binary.Write(buf, binary.LittleEndian, s.LastLogIndex)
	binary.Write(buf, binary.LittleEndian, uint32(s.PeerCount))
	return buf.Bytes()
}

// DeserializeStatus decodes a Status reply.
func DeserializeStatus(data []byte) (*Status, error) {
	r := bytes.NewReader(data)
	s := &Status{}
	var err error
	if s.NodeID, err = readString(r); err != nil {
		return nil, err
	}
	if s.Role, err = readString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.Term); err != nil {
		return nil, ErrMessageCorrupted
	}
	if s.LeaderID, err = readString(r); err != nil {
		return nil, err
	}
	if s.LeaderAddr, err = readString(r); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.CommitIndex); err != nil {
		return nil, ErrMessageCorrupted
	}
	if err := binary.Read(r, binary.LittleEndian, &s.LastApplied); err != nil {
		return nil, ErrMessageCorrupted
	}
	if err := binary.Read(r, binary.LittleEndian, &s.LastLogIndex); err != nil {
		return nil, ErrMessageCorrupted
	}
	var peerCount uint32
	if err := binary.Read(r, binary.LittleEndian, &peerCount); err != nil {
		return nil, ErrMessageCorrupted
	}
	s.PeerCount = int(peerCount)
	return s, nil
}
