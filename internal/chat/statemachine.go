package chat

import (
	"fmt"
	"sort"
	"sync"
)

// Account is a registered user.
type Account struct {
	Username     string
	PasswordHash string
}

// Message is one delivered message.
type Message struct {
	ID        uint64
	Sender    string
	Recipient string
	Content   string
	Timestamp int64
	Read      bool
}

// StateMachine holds the messaging state built by applying the
// replicated log in order. All state is derived deterministically
// from the log, so replicas that applied the same prefix hold
// identical state.
type StateMachine struct {
	mu sync.RWMutex

	accounts map[string]*Account
	messages map[uint64]*Message
	inbox    map[string][]uint64 // recipient -> message IDs in arrival order

	nextMessageID uint64
	lastApplied   uint64
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{
		accounts:      make(map[string]*Account),
		messages:      make(map[uint64]*Message),
		inbox:         make(map[string][]uint64),
		nextMessageID: 1,
	}
}

// Apply applies one committed log entry. The result is the message ID
// for send operations and nil otherwise. Application errors (such as
// creating a duplicate account) are returned to the proposer but do
// not change state; the entry still counts as applied.
func (sm *StateMachine) Apply(index uint64, command []byte) (interface{}, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.lastApplied = index

	cmd, err := DecodeCommand(command)
	if err != nil {
		return nil, fmt.Errorf("chat: failed to decode command at index %d: %w", index, err)
	}

	switch cmd.Op {
	case OpCreateAccount:
		return nil, sm.applyCreateAccount(cmd)
	case OpDeleteAccount:
		return nil, sm.applyDeleteAccount(cmd)
	case OpSendMessage:
		return sm.applySendMessage(cmd)
	case OpMarkRead:
		return nil, sm.applyMarkRead(cmd)
	case OpDeleteMessages:
		return nil, sm.applyDeleteMessages(cmd)
	default:
		return nil, fmt.Errorf("chat: unknown operation %d at index %d", cmd.Op, index)
	}
}

func (sm *StateMachine) applyCreateAccount(cmd *Command) error {
	if cmd.Username == "" {
		return ErrEmptyUsername
	}
	if _, ok := sm.accounts[cmd.Username]; ok {
		return ErrAccountExists
	}
	sm.accounts[cmd.Username] = &Account{
		Username:     cmd.Username,
		PasswordHash: cmd.PasswordHash,
	}
	return nil
}

func (sm *StateMachine) applyDeleteAccount(cmd *Command) error {
	if _, ok := sm.accounts[cmd.Username]; !ok {
		return ErrAccountNotFound
	}
	delete(sm.accounts, cmd.Username)

	// Drop the deleted user's inbox
	for _, id := range sm.inbox[cmd.Username] {
		delete(sm.messages, id)
	}
	delete(sm.inbox, cmd.Username)

	// Drop messages the user sent that still sit in other inboxes
	for id, msg := range sm.messages {
		if msg.Sender != cmd.Username {
			continue
		}
		delete(sm.messages, id)
		sm.inbox[msg.Recipient] = removeID(sm.inbox[msg.Recipient], id)
	}
	return nil
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func (sm *StateMachine) applySendMessage(cmd *Command) (interface{}, error) {
	if cmd.Content == "" {
		return nil, ErrEmptyContent
	}
	if _, ok := sm.accounts[cmd.Sender]; !ok {
		return nil, fmt.Errorf("%w: sender %q", ErrAccountNotFound, cmd.Sender)
	}
	if _, ok := sm.accounts[cmd.Recipient]; !ok {
		return nil, fmt.Errorf("%w: recipient %q", ErrAccountNotFound, cmd.Recipient)
	}

	id := sm.nextMessageID
	sm.nextMessageID++

	sm.messages[id] = &Message{
		ID:        id,
		Sender:    cmd.Sender,
		Recipient: cmd.Recipient,
		Content:   cmd.Content,
		Timestamp: cmd.Timestamp,
	}
	sm.inbox[cmd.Recipient] = append(sm.inbox[cmd.Recipient], id)
	return id, nil
}

func (sm *StateMachine) applyMarkRead(cmd *Command) error {
	if _, ok := sm.accounts[cmd.Username]; !ok {
		return ErrAccountNotFound
	}
	for _, id := range cmd.MessageIDs {
		if msg, ok := sm.messages[id]; ok && msg.Recipient == cmd.Username {
			msg.Read = true
		}
	}
	return nil
}

func (sm *StateMachine) applyDeleteMessages(cmd *Command) error {
	if _, ok := sm.accounts[cmd.Username]; !ok {
		return ErrAccountNotFound
	}
	for _, id := range cmd.MessageIDs {
		msg, ok := sm.messages[id]
		if !ok || msg.Recipient != cmd.Username {
			continue
		}
		delete(sm.messages, id)
		inbox := sm.inbox[cmd.Username]
		for i, mid := range inbox {
			if mid == id {
				sm.inbox[cmd.Username] = append(inbox[:i], inbox[i+1:]...)
				break
			}
		}
	}
	return nil
}

// LastApplied returns the index of the last applied entry.
func (sm *StateMachine) LastApplied() uint64 {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.lastApplied
}

// Authenticate checks a username and password hash against the
// account table.
func (sm *StateMachine) Authenticate(username, passwordHash string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	account, ok := sm.accounts[username]
	return ok && account.PasswordHash == passwordHash
}

// AccountExists reports whether an account is registered.
func (sm *StateMachine) AccountExists(username string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, ok := sm.accounts[username]
	return ok
}

// ListAccounts returns all usernames in sorted order.
func (sm *StateMachine) ListAccounts() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	names := make([]string, 0, len(sm.accounts))
	for name := range sm.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MessagesFor returns copies of a user's messages in arrival order.
// If unreadOnly is set, read messages are skipped.
func (sm *StateMachine) MessagesFor(username string, unreadOnly bool) []Message {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	var out []Message
	for _, id := range sm.inbox[username] {
		msg, ok := sm.messages[id]
		if !ok {
			continue
		}
		if unreadOnly && msg.Read {
			continue
		}
		out = append(out, *msg)
	}
	return out
}

// UnreadCount returns the number of unread messages for a user.
func (sm *StateMachine) UnreadCount(username string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	count := 0
	for _, id := range sm.inbox[username] {
		if msg, ok := sm.messages[id]; ok && !msg.Read {
			count++
		}
	}
	return count
}
