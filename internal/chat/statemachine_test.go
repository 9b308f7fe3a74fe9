package chat

import (
	"encoding/binary"
	"errors"
	"testing"
)

// apply is a test helper that encodes and applies a command.
func apply(t *testing.T, sm *StateMachine, index uint64, cmd *Command) (interface{}, error) {
	t.Helper()
	return sm.Apply(index, cmd.Encode())
}

func mustApply(t *testing.T, sm *StateMachine, index uint64, cmd *Command) interface{} {
	t.Helper()
	result, err := apply(t, sm, index, cmd)
	if err != nil {
		t.Fatalf("Apply(%s) failed: %v", cmd.Op, err)
	}
	return result
}

func TestCreateAccount(t *testing.T) {
	sm := NewStateMachine()

	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h1"})

	if !sm.AccountExists("alice") {
		t.Error("Expected alice to exist")
	}
	if !sm.Authenticate("alice", "h1") {
		t.Error("Expected authentication to succeed")
	}
	if sm.Authenticate("alice", "wrong") {
		t.Error("Expected authentication to fail with wrong hash")
	}
	if sm.Authenticate("bob", "h1") {
		t.Error("Expected authentication to fail for unknown user")
	}
}

func TestCreateDuplicateAccount(t *testing.T) {
	sm := NewStateMachine()

	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h1"})

	_, err := apply(t, sm, 2, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h2"})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("Expected ErrAccountExists, got %v", err)
	}

	// Original password still in effect
	if !sm.Authenticate("alice", "h1") {
		t.Error("Expected original password to remain valid")
	}
	// The entry still counts as applied
	if sm.LastApplied() != 2 {
		t.Errorf("Expected lastApplied=2, got %d", sm.LastApplied())
	}
}

func TestCreateAccountEmptyUsername(t *testing.T) {
	sm := NewStateMachine()

	_, err := apply(t, sm, 1, &Command{Op: OpCreateAccount, Username: ""})
	if !errors.Is(err, ErrEmptyUsername) {
		t.Fatalf("Expected ErrEmptyUsername, got %v", err)
	}
}

func TestSendMessage(t *testing.T) {
	sm := NewStateMachine()

	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h"})
	mustApply(t, sm, 2, &Command{Op: OpCreateAccount, Username: "bob", PasswordHash: "h"})

	result := mustApply(t, sm, 3, &Command{
		Op: OpSendMessage, Sender: "alice", Recipient: "bob",
		Content: "hello", Timestamp: 1000,
	})

	id, ok := result.(uint64)
	if !ok || id != 1 {
		t.Fatalf("Expected message ID 1, got %v", result)
	}

	msgs := sm.MessagesFor("bob", false)
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(msgs))
	}
	msg := msgs[0]
	if msg.Sender != "alice" || msg.Content != "hello" || msg.Timestamp != 1000 || msg.Read {
		t.Errorf("Unexpected message: %+v", msg)
	}

	if got := sm.UnreadCount("bob"); got != 1 {
		t.Errorf("Expected 1 unread, got %d", got)
	}
	if got := sm.UnreadCount("alice"); got != 0 {
		t.Errorf("Expected 0 unread for sender, got %d", got)
	}
}

func TestSendMessageUnknownAccounts(t *testing.T) {
	sm := NewStateMachine()
	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h"})

	_, err := apply(t, sm, 2, &Command{
		Op: OpSendMessage, Sender: "ghost", Recipient: "alice", Content: "boo", Timestamp: 1,
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound for unknown sender, got %v", err)
	}

	_, err = apply(t, sm, 3, &Command{
		Op: OpSendMessage, Sender: "alice", Recipient: "ghost", Content: "boo", Timestamp: 1,
	})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound for unknown recipient, got %v", err)
	}

	_, err = apply(t, sm, 4, &Command{
		Op: OpSendMessage, Sender: "alice", Recipient: "alice", Content: "", Timestamp: 1,
	})
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("Expected ErrEmptyContent, got %v", err)
	}
}

func TestMessageIDsAreSequential(t *testing.T) {
	sm := NewStateMachine()
	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h"})
	mustApply(t, sm, 2, &Command{Op: OpCreateAccount, Username: "bob", PasswordHash: "h"})

	for i := 0; i < 3; i++ {
		result := mustApply(t, sm, uint64(3+i), &Command{
			Op: OpSendMessage, Sender: "alice", Recipient: "bob",
			Content: "msg", Timestamp: int64(i),
		})
		if id := result.(uint64); id != uint64(i+1) {
			t.Errorf("Expected message ID %d, got %d", i+1, id)
		}
	}
}

func TestMarkRead(t *testing.T) {
	sm := NewStateMachine()
	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h"})
	mustApply(t, sm, 2, &Command{Op: OpCreateAccount, Username: "bob", PasswordHash: "h"})
	mustApply(t, sm, 3, &Command{Op: OpSendMessage, Sender: "alice", Recipient: "bob", Content: "one", Timestamp: 1})
	mustApply(t, sm, 4, &Command{Op: OpSendMessage, Sender: "alice", Recipient: "bob", Content: "two", Timestamp: 2})

	mustApply(t, sm, 5, &Command{Op: OpMarkRead, Username: "bob", MessageIDs: []uint64{1}})

	if got := sm.UnreadCount("bob"); got != 1 {
		t.Errorf("Expected 1 unread after marking one read, got %d", got)
	}

	unread := sm.MessagesFor("bob", true)
	if len(unread) != 1 || unread[0].Content != "two" {
		t.Errorf("Expected only 'two' unread, got %+v", unread)
	}

	// All messages are still present
	if all := sm.MessagesFor("bob", false); len(all) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(all))
	}
}

func TestMarkReadIgnoresOtherUsersMessages(t *testing.T) {
	sm := NewStateMachine()
	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h"})
	mustApply(t, sm, 2, &Command{Op: OpCreateAccount, Username: "bob", PasswordHash: "h"})
	mustApply(t, sm, 3, &Command{Op: OpSendMessage, Sender: "alice", Recipient: "bob", Content: "secret", Timestamp: 1})

	// alice tries to mark bob's message read
	mustApply(t, sm, 4, &Command{Op: OpMarkRead, Username: "alice", MessageIDs: []uint64{1}})

	if got := sm.UnreadCount("bob"); got != 1 {
		t.Errorf("Expected bob's message to stay unread, got %d unread", got)
	}
}

func TestDeleteMessages(t *testing.T) {
	sm := NewStateMachine()
	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h"})
	mustApply(t, sm, 2, &Command{Op: OpCreateAccount, Username: "bob", PasswordHash: "h"})
	mustApply(t, sm, 3, &Command{Op: OpSendMessage, Sender: "alice", Recipient: "bob", Content: "one", Timestamp: 1})
	mustApply(t, sm, 4, &Command{Op: OpSendMessage, Sender: "alice", Recipient: "bob", Content: "two", Timestamp: 2})

	mustApply(t, sm, 5, &Command{Op: OpDeleteMessages, Username: "bob", MessageIDs: []uint64{1, 99}})

	msgs := sm.MessagesFor("bob", false)
	if len(msgs) != 1 || msgs[0].Content != "two" {
		t.Errorf("Expected only 'two' to remain, got %+v", msgs)
	}
}

func TestDeleteMessagesIgnoresOtherUsersMessages(t *testing.T) {
	sm := NewStateMachine()
	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h"})
	mustApply(t, sm, 2, &Command{Op: OpCreateAccount, Username: "bob", PasswordHash: "h"})
	mustApply(t, sm, 3, &Command{Op: OpSendMessage, Sender: "alice", Recipient: "bob", Content: "keep", Timestamp: 1})

	mustApply(t, sm, 4, &Command{Op: OpDeleteMessages, Username: "alice", MessageIDs: []uint64{1}})

	if msgs := sm.MessagesFor("bob", false); len(msgs) != 1 {
		t.Errorf("Expected bob's message to survive, got %d messages", len(msgs))
	}
}

func TestDeleteAccount(t *testing.T) {
	sm := NewStateMachine()
	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h"})
	mustApply(t, sm, 2, &Command{Op: OpCreateAccount, Username: "bob", PasswordHash: "h"})
	mustApply(t, sm, 3, &Command{Op: OpSendMessage, Sender: "alice", Recipient: "bob", Content: "bye", Timestamp: 1})

	mustApply(t, sm, 4, &Command{Op: OpDeleteAccount, Username: "bob"})

	if sm.AccountExists("bob") {
		t.Error("Expected bob to be deleted")
	}
	if msgs := sm.MessagesFor("bob", false); len(msgs) != 0 {
		t.Errorf("Expected bob's inbox to be dropped, got %d messages", len(msgs))
	}

	_, err := apply(t, sm, 5, &Command{Op: OpDeleteAccount, Username: "bob"})
	if !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound, got %v", err)
	}
}

func TestDeleteAccountRemovesSentMessages(t *testing.T) {
	sm := NewStateMachine()
	mustApply(t, sm, 1, &Command{Op: OpCreateAccount, Username: "alice", PasswordHash: "h"})
	mustApply(t, sm, 2, &Command{Op: OpCreateAccount, Username: "bob", PasswordHash: "h"})
	mustApply(t, sm, 3, &Command{Op: OpCreateAccount, Username: "carol", PasswordHash: "h"})
	mustApply(t, sm, 4, &Command{Op: OpSendMessage, Sender: "alice", Recipient: "bob", Content: "from alice", Timestamp: 1})
	mustApply(t, sm, 5, &Command{Op: OpSendMessage, Sender: "carol", Recipient: "bob", Content: "from carol", Timestamp: 2})
	mustApply(t, sm, 6, &Command{Op: OpSendMessage, Sender: "alice", Recipient: "carol", Content: "to carol", Timestamp: 3})

	mustApply(t, sm, 7, &Command{Op: OpDeleteAccount, Username: "alice"})

	// Messages alice sent disappear from every inbox, others survive.
	msgs := sm.MessagesFor("bob", false)
	if len(msgs) != 1 || msgs[0].Sender != "carol" {
		t.Errorf("Expected only carol's message in bob's inbox, got %+v", msgs)
	}
	if msgs := sm.MessagesFor("carol", false); len(msgs) != 0 {
		t.Errorf("Expected carol's inbox to be empty, got %+v", msgs)
	}
	if n := sm.UnreadCount("bob"); n != 1 {
		t.Errorf("Expected unread count 1 for bob, got %d", n)
	}
}

func TestListAccounts(t *testing.T) {
	sm := NewStateMachine()
	for i, name := range []string{"carol", "alice", "bob"} {
		mustApply(t, sm, uint64(i+1), &Command{Op: OpCreateAccount, Username: name, PasswordHash: "h"})
	}

	names := sm.ListAccounts()
	want := []string{"alice", "bob", "carol"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d accounts, got %d", len(want), len(names))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Expected %s at %d, got %s", want[i], i, names[i])
		}
	}
}

func TestApplyRejectsGarbage(t *testing.T) {
	sm := NewStateMachine()

	if _, err := sm.Apply(1, nil); err == nil {
		t.Error("Expected error for empty command")
	}
	if _, err := sm.Apply(2, []byte{0xFF, 0x01, 0x02}); err == nil {
		t.Error("Expected error for unknown operation")
	}
	if _, err := sm.Apply(3, []byte{byte(OpCreateAccount), 0xFF, 0xFF, 0xFF, 0xFF}); err == nil {
		t.Error("Expected error for truncated command")
	}
}

func TestDecodeRejectsOverflowingIDCount(t *testing.T) {
	// A count whose byte size wraps uint32 must be refused outright,
	// not allocated.
	payload := []byte{byte(OpMarkRead)}
	payload = binary.LittleEndian.AppendUint32(payload, 5)
	payload = append(payload, "alice"...)
	payload = binary.LittleEndian.AppendUint32(payload, 0x20000000)

	if _, err := DecodeCommand(payload); err == nil {
		t.Fatal("Expected error for overflowing message ID count")
	}
}

// TestDeterministicReplay verifies that two state machines applying
// the same log reach identical state.
func TestDeterministicReplay(t *testing.T) {
	log := []*Command{
		{Op: OpCreateAccount, Username: "alice", PasswordHash: "h1"},
		{Op: OpCreateAccount, Username: "bob", PasswordHash: "h2"},
		{Op: OpSendMessage, Sender: "alice", Recipient: "bob", Content: "one", Timestamp: 100},
		{Op: OpSendMessage, Sender: "bob", Recipient: "alice", Content: "two", Timestamp: 200},
		{Op: OpCreateAccount, Username: "alice", PasswordHash: "h3"}, // fails on both
		{Op: OpMarkRead, Username: "bob", MessageIDs: []uint64{1}},
		{Op: OpDeleteMessages, Username: "alice", MessageIDs: []uint64{2}},
	}

	a := NewStateMachine()
	b := NewStateMachine()
	for i, cmd := range log {
		data := cmd.Encode()
		_, errA := a.Apply(uint64(i+1), data)
		_, errB := b.Apply(uint64(i+1), data)
		if (errA == nil) != (errB == nil) {
			t.Fatalf("Divergent apply result at index %d: %v vs %v", i+1, errA, errB)
		}
	}

	if got, want := a.ListAccounts(), b.ListAccounts(); len(got) != len(want) {
		t.Errorf("Account lists diverge: %v vs %v", got, want)
	}
	if a.UnreadCount("bob") != b.UnreadCount("bob") {
		t.Error("Unread counts diverge")
	}
	if len(a.MessagesFor("alice", false)) != len(b.MessagesFor("alice", false)) {
		t.Error("Inboxes diverge")
	}
	if a.UnreadCount("bob") != 0 {
		t.Errorf("Expected bob's message read, got %d unread", a.UnreadCount("bob"))
	}
	if len(a.MessagesFor("alice", false)) != 0 {
		t.Error("Expected alice's inbox empty after delete")
	}
}
