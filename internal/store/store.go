// Package store provides durable log and metadata storage for the Ulak messaging server.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

const (
	logFileName  = "log.dat"
	metaFileName = "meta.dat"

	// Fixed-size portion of an on-disk record after the length prefix:
	// index (8) + term (8) + type (1) + command length (4).
	recordHeaderSize = 21
)

// EntryType identifies the kind of a log entry.
type EntryType uint8

const (
	// EntryNormal is a state machine command.
	EntryNormal EntryType = iota
)

// Entry is a single replicated log entry.
type Entry struct {
	Index   uint64
	Term    uint64
	Type    EntryType
	Command []byte
}

// ErrOutOfRange is returned when a requested index is not in the log.
var ErrOutOfRange = errors.New("store: index out of range")

// Store holds the durable replicated log and vote metadata for one node.
// Entries are cached in memory and every mutation is synced to disk
// before the call returns.
type Store struct {
	mu      sync.Mutex
	dir     string
	logFile *os.File

	entries []Entry  // entries[i] has Index i+1
	offsets []int64  // file offset of each entry's record

	currentTerm uint64
	votedFor    string
	meta        map[string][]byte
}

// Open opens (or creates) a store rooted at dir. A trailing record
// that was only partially written before a crash is discarded and the
// log file is truncated to the last complete record.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Store{dir: dir, meta: make(map[string][]byte)}

	if err := s.loadMeta(); err != nil {
		return nil, err
	}

	logPath := filepath.Join(dir, logFileName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	s.logFile = f

	if err := s.loadLog(); err != nil {
		f.Close()
		return nil, err
	}

	return s, nil
}

// loadLog reads all complete records from the log file into memory.
func (s *Store) loadLog() error {
	data, err := io.ReadAll(s.logFile)
	if err != nil {
		return fmt.Errorf("failed to read log file: %w", err)
	}

	var offset int64
	for {
		rest := data[offset:]
		if len(rest) == 0 {
			break
		}
		if len(rest) < 4 {
			// Torn length prefix, drop it
			break
		}
		recLen := binary.LittleEndian.Uint32(rest[:4])
		if recLen < recordHeaderSize || len(rest) < int(4+recLen) {
			// Torn record, drop it
			break
		}

		rec := rest[4 : 4+recLen]
		entry := Entry{
			Index: binary.LittleEndian.Uint64(rec[0:8]),
			Term:  binary.LittleEndian.Uint64(rec[8:16]),
			Type:  EntryType(rec[16]),
		}
		cmdLen := binary.LittleEndian.Uint32(rec[17:21])
		if int(cmdLen) != len(rec)-recordHeaderSize {
			break
		}
		if cmdLen > 0 {
			entry.Command = make([]byte, cmdLen)
			copy(entry.Command, rec[21:])
		}

		if entry.Index != uint64(len(s.entries))+1 {
			return fmt.Errorf("store: log file corrupt, expected index %d, found %d",
				len(s.entries)+1, entry.Index)
		}

		s.entries = append(s.entries, entry)
		s.offsets = append(s.offsets, offset)
		offset += int64(4 + recLen)
	}

	if offset < int64(len(data)) {
		// Drop the torn tail
		if err := s.logFile.Truncate(offset); err != nil {
			return fmt.Errorf("failed to truncate torn log record: %w", err)
		}
		if err := s.logFile.Sync(); err != nil {
			return fmt.Errorf("failed to sync log file: %w", err)
		}
	}

	if _, err := s.logFile.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	return nil
}

// encodeRecord serializes an entry with its length prefix.
func encodeRecord(entry Entry) []byte {
	recLen := recordHeaderSize + len(entry.Command)
	buf := make([]byte, 4+recLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(recLen))
	binary.LittleEndian.PutUint64(buf[4:12], entry.Index)
	binary.LittleEndian.PutUint64(buf[12:20], entry.Term)
	buf[20] = byte(entry.Type)
	binary.LittleEndian.PutUint32(buf[21:25], uint32(len(entry.Command)))
	copy(buf[25:], entry.Command)
	return buf
}

// AppendEntry appends a new entry at the next index and syncs it to
// disk. It returns the index assigned to the entry.
func (s *Store) AppendEntry(term uint64, typ EntryType, command []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := Entry{
		Index:   uint64(len(s.entries)) + 1,
		Term:    term,
		Type:    typ,
		Command: command,
	}
	if err := s.appendLocked([]Entry{entry}); err != nil {
		return 0, err
	}
	return entry.Index, nil
}

// Append appends entries at the indices they carry and syncs them to
// disk. The first entry's index must be exactly one past the current
// last index; callers truncate conflicting suffixes first.
func (s *Store) Append(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entries[0].Index != uint64(len(s.entries))+1 {
		return fmt.Errorf("store: append at index %d, want %d",
			entries[0].Index, len(s.entries)+1)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Index != entries[i-1].Index+1 {
			return fmt.Errorf("store: non-contiguous entries at index %d", entries[i].Index)
		}
	}

	return s.appendLocked(entries)
}

// appendLocked writes entries to the log file and the in-memory cache.
func (s *Store) appendLocked(entries []Entry) error {
	var buf []byte
	offset, err := s.logFile.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	offsets := make([]int64, 0, len(entries))
	pos := offset
	for _, entry := range entries {
		rec := encodeRecord(entry)
		offsets = append(offsets, pos)
		pos += int64(len(rec))
		buf = append(buf, rec...)
	}

	if _, err := s.logFile.Write(buf); err != nil {
		return fmt.Errorf("failed to write log entries: %w", err)
	}
	if err := s.logFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	s.entries = append(s.entries, entries...)
	s.offsets = append(s.offsets, offsets...)
	return nil
}

// TruncateFrom removes the entry at index and everything after it,
// both in memory and on disk.
func (s *Store) TruncateFrom(index uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index == 0 || index > uint64(len(s.entries)) {
		return ErrOutOfRange
	}

	offset := s.offsets[index-1]
	if err := s.logFile.Truncate(offset); err != nil {
		return fmt.Errorf("failed to truncate log file: %w", err)
	}
	if err := s.logFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if _, err := s.logFile.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek log file: %w", err)
	}

	s.entries = s.entries[:index-1]
	s.offsets = s.offsets[:index-1]
	return nil
}

// Entry returns the entry at index, or false if it is not in the log.
func (s *Store) Entry(index uint64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index == 0 || index > uint64(len(s.entries)) {
		return Entry{}, false
	}
	return s.entries[index-1], true
}

// Entries returns a copy of the entries in the inclusive range
// [lo, hi], clipped to the log bounds.
func (s *Store) Entries(lo, hi uint64) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lo == 0 {
		lo = 1
	}
	if hi > uint64(len(s.entries)) {
		hi = uint64(len(s.entries))
	}
	if lo > hi {
		return nil
	}

	out := make([]Entry, hi-lo+1)
	copy(out, s.entries[lo-1:hi])
	return out
}

// LastIndex returns the index of the last entry, or 0 for an empty log.
func (s *Store) LastIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.entries))
}

// LastIndexAndTerm returns the index and term of the last entry, or
// (0, 0) for an empty log.
func (s *Store) LastIndexAndTerm() (uint64, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return 0, 0
	}
	last := s.entries[len(s.entries)-1]
	return last.Index, last.Term
}

// Term returns the term of the entry at index, or false if the index
// is not in the log.
func (s *Store) Term(index uint64) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index == 0 || index > uint64(len(s.entries)) {
		return 0, false
	}
	return s.entries[index-1].Term, true
}

// CurrentTerm returns the persisted current term.
func (s *Store) CurrentTerm() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentTerm
}

// VotedFor returns the persisted vote for the current term, with
// false if no vote has been cast.
func (s *Store) VotedFor() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votedFor, s.votedFor != ""
}

// SetCurrentTerm persists a new current term and clears the vote.
func (s *Store) SetCurrentTerm(term uint64) error {
	return s.SetTermAndVote(term, "")
}

// SetVotedFor persists the vote for the current term.
func (s *Store) SetVotedFor(candidateID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMetaLocked(s.currentTerm, candidateID)
}

// SetTermAndVote persists a term and vote together in one sync.
// An empty votedFor means no vote has been cast in the term.
func (s *Store) SetTermAndVote(term uint64, votedFor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setMetaLocked(term, votedFor)
}

// Meta returns the value stored under key, if any.
func (s *Store) Meta(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.meta[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, true
}

// SetMeta durably stores value under key. The whole metadata file is
// rewritten with the same atomicity as term and vote updates.
func (s *Store) SetMeta(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, had := s.meta[key]
	s.meta[key] = append([]byte(nil), value...)
	if err := s.setMetaLocked(s.currentTerm, s.votedFor); err != nil {
		if had {
			s.meta[key] = old
		} else {
			delete(s.meta, key)
		}
		return err
	}
	return nil
}

// setMetaLocked writes the metadata file atomically via a temp file
// and rename, so a crash leaves either the old or the new metadata.
func (s *Store) setMetaLocked(term uint64, votedFor string) error {
	size := 12 + len(votedFor) + 4
	for k, v := range s.meta {
		size += 8 + len(k) + len(v)
	}
	buf := make([]byte, 12+len(votedFor), size)
	binary.LittleEndian.PutUint64(buf[0:8], term)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(votedFor)))
	copy(buf[12:], votedFor)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s.meta)))
	for k, v := range s.meta {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(k)))
		buf = append(buf, k...)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	}

	tmpPath := filepath.Join(s.dir, metaFileName+".tmp")
	metaPath := filepath.Join(s.dir, metaFileName)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create metadata temp file: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close metadata temp file: %w", err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		return fmt.Errorf("failed to rename metadata file: %w", err)
	}

	s.currentTerm = term
	s.votedFor = votedFor
	return nil
}

// loadMeta reads the metadata file if it exists.
func (s *Store) loadMeta() error {
	data, err := os.ReadFile(filepath.Join(s.dir, metaFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read metadata file: %w", err)
	}

	if len(data) < 12 {
		return fmt.Errorf("store: metadata file corrupt, %d bytes", len(data))
	}
	s.currentTerm = binary.LittleEndian.Uint64(data[0:8])
	voteLen := binary.LittleEndian.Uint32(data[8:12])
	rest := data[12:]
	if uint64(voteLen) > uint64(len(rest)) {
		return fmt.Errorf("store: metadata file corrupt, bad vote length")
	}
	s.votedFor = string(rest[:voteLen])
	rest = rest[voteLen:]

	if len(rest) == 0 {
		return nil
	}
	if len(rest) < 4 {
		return fmt.Errorf("store: metadata file corrupt, truncated key count")
	}
	count := binary.LittleEndian.Uint32(rest[0:4])
	rest = rest[4:]
	for i := uint32(0); i < count; i++ {
		key, r, err := readMetaField(rest)
		if err != nil {
			return err
		}
		value, r, err := readMetaField(r)
		if err != nil {
			return err
		}
		s.meta[string(key)] = value
		rest = r
	}
	return nil
}

func readMetaField(data []byte) ([]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("store: metadata file corrupt, truncated field")
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	data = data[4:]
	if uint64(n) > uint64(len(data)) {
		return nil, nil, fmt.Errorf("store: metadata file corrupt, bad field length")
	}
	return data[:n], data[n:], nil
}

// Close syncs and closes the log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.logFile == nil {
		return nil
	}
	if err := s.logFile.Sync(); err != nil {
		s.logFile.Close()
		return err
	}
	err := s.logFile.Close()
	s.logFile = nil
	return err
}
