// Package chat implements the replicated messaging state machine for the Ulak server.
//
// # Overview
//
// All writes to the messaging service (creating or deleting accounts,
// sending messages, marking messages read, deleting messages) are
// expressed as Commands, serialized into the replicated log, and
// applied in log order on every replica. Because a Command carries
// everything that influences its outcome, including the message
// timestamp chosen when the request was accepted, replicas that apply
// the same log prefix hold byte-identical state.
//
// # Commands
//
// A command is serialized as a one-byte operation code followed by
// the operation's fields, using length-prefixed strings and
// little-endian integers:
//
//	cmd := &chat.Command{
//	    Op:       chat.OpSendMessage,
//	    Sender:   "alice",
//	    Recipient: "bob",
//	    Content:  "hello",
//	    Timestamp: time.Now().UnixMilli(),
//	}
//	data := cmd.Encode()
//
// # Application Errors
//
// Apply can fail for application reasons, for example creating an
// account that already exists. Such failures change no state but the
// entry still counts as applied; the error travels back to the
// original proposer and every replica reaches the same conclusion
// independently.
//
// # Reads
//
// Reads (Authenticate, ListAccounts, MessagesFor, UnreadCount) are
// served from the in-memory state without going through the log. The
// server routes them to the leader so clients observe their own
// acknowledged writes.
package chat
