// Package store provides durable log and metadata storage for the Ulak messaging server.
//
// # Overview
//
// Each cluster member persists two things between restarts:
//
//   - The replicated log of commands (log.dat)
//   - The current term and vote metadata (meta.dat)
//
// The log is an append-only file of length-prefixed records. Every
// append and truncation is synced to disk before the call returns, so
// an acknowledged entry survives a crash. The full log is also cached
// in memory for reads.
//
// # Log Records
//
// Each record on disk is:
//
//	[length:4][index:8][term:8][type:1][commandLength:4][command]
//
// All integers are little-endian. Indices start at 1 and are
// contiguous; index 0 means "before the first entry".
//
// # Crash Recovery
//
// On open, records are read sequentially until the end of the file.
// A trailing record that was only partially written (a torn write
// from a crash mid-append) is detected by its length prefix and
// discarded, and the file is truncated back to the last complete
// record.
//
// # Metadata
//
// The term and vote are written together in a single atomic step:
// the new contents go to a temp file, which is synced and renamed
// over meta.dat. A crash during the write leaves either the old or
// the new metadata, never a mix.
//
// # Usage
//
//	s, err := store.Open("/var/lib/ulak/node1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	index, err := s.AppendEntry(term, store.EntryNormal, command)
package store
