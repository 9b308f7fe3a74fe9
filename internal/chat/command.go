// Package chat implements the replicated messaging state machine for the Ulak server.
package chat

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Op identifies a state machine operation.
type Op uint8

const (
	// OpCreateAccount creates a user account.
	OpCreateAccount Op = iota + 1
	// OpDeleteAccount removes a user account and its messages.
	OpDeleteAccount
	// OpSendMessage delivers a message from one user to another.
	OpSendMessage
	// OpMarkRead marks messages as read.
	OpMarkRead
	// OpDeleteMessages removes messages from a user's inbox.
	OpDeleteMessages
)

// String returns the string representation of the operation.
func (o Op) String() string {
	switch o {
	case OpCreateAccount:
		return "create_account"
	case OpDeleteAccount:
		return "delete_account"
	case OpSendMessage:
		return "send_message"
	case OpMarkRead:
		return "mark_read"
	case OpDeleteMessages:
		return "delete_messages"
	default:
		return "unknown"
	}
}

// Command is one state machine operation as it appears in the
// replicated log. Every field that influences the outcome is carried
// in the command itself, so all replicas apply it identically.
type Command struct {
	Op Op

	// Username is the acting or target account.
	Username string

	// PasswordHash is set for OpCreateAccount.
	PasswordHash string

	// Sender, Recipient, Content and Timestamp are set for
	// OpSendMessage. Timestamp is Unix milliseconds chosen by the
	// node that accepted the request.
	Sender    string
	Recipient string
	Content   string
	Timestamp int64

	// MessageIDs is set for OpMarkRead and OpDeleteMessages.
	MessageIDs []uint64
}

// writeString writes a length-prefixed string to the buffer.
func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

// readString reads a length-prefixed string from the buffer.
func readString(buf *bytes.Buffer) (string, error) {
	var length uint32
	if err := binary.Read(buf, binary.LittleEndian, &length); err != nil {
		return "", err
	}
	if uint32(buf.Len()) < length {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", length, buf.Len())
	}
	data := make([]byte, length)
	if _, err := buf.Read(data); err != nil {
		return "", err
	}
	return string(data), nil
}

// Encode serializes the command for the replicated log.
func (c *Command) Encode() []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(c.Op))

	switch c.Op {
	case OpCreateAccount:
		writeString(buf, c.Username)
		writeString(buf, c.PasswordHash)
	case OpDeleteAccount:
		writeString(buf, c.Username)
	case OpSendMessage:
		writeString(buf, c.Sender)
		writeString(buf, c.Recipient)
		writeString(buf, c.Content)
		binary.Write(buf, binary.LittleEndian, c.Timestamp)
	case OpMarkRead, OpDeleteMessages:
		writeString(buf, c.Username)
		binary.Write(buf, binary.LittleEndian, uint32(len(c.MessageIDs)))
		for _, id := range c.MessageIDs {
			binary.Write(buf, binary.LittleEndian, id)
		}
	}

	return buf.Bytes()
}

// DecodeCommand deserializes a command from the replicated log.
func DecodeCommand(data []byte) (*Command, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	buf := bytes.NewBuffer(data)
	op, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}

	cmd := &Command{Op: Op(op)}

	switch cmd.Op {
	case OpCreateAccount:
		if cmd.Username, err = readString(buf); err != nil {
			return nil, fmt.Errorf("failed to decode username: %w", err)
		}
		if cmd.PasswordHash, err = readString(buf); err != nil {
			return nil, fmt.Errorf("failed to decode password hash: %w", err)
		}
	case OpDeleteAccount:
		if cmd.Username, err = readString(buf); err != nil {
			return nil, fmt.Errorf("failed to decode username: %w", err)
		}
	case OpSendMessage:
		if cmd.Sender, err = readString(buf); err != nil {
			return nil, fmt.Errorf("failed to decode sender: %w", err)
		}
		if cmd.Recipient, err = readString(buf); err != nil {
			return nil, fmt.Errorf("failed to decode recipient: %w", err)
		}
		if cmd.Content, err = readString(buf); err != nil {
			return nil, fmt.Errorf("failed to decode content: %w", err)
		}
		if err := binary.Read(buf, binary.LittleEndian, &cmd.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to decode timestamp: %w", err)
		}
	case OpMarkRead, OpDeleteMessages:
		if cmd.Username, err = readString(buf); err != nil {
			return nil, fmt.Errorf("failed to decode username: %w", err)
		}
		var count uint32
		if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
			return nil, fmt.Errorf("failed to decode message ID count: %w", err)
		}
		if count > uint32(buf.Len())/8 {
			return nil, fmt.Errorf("message ID count %d exceeds remaining bytes", count)
		}
		cmd.MessageIDs = make([]uint64, count)
		for i := range cmd.MessageIDs {
			if err := binary.Read(buf, binary.LittleEndian, &cmd.MessageIDs[i]); err != nil {
				return nil, fmt.Errorf("failed to decode message ID: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("unknown operation %d", op)
	}

	return cmd, nil
}
