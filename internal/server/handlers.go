package server

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"sync/atomic"
	"time"

	"github.com/ulak-chat/ulak/internal/chat"
	"github.com/ulak-chat/ulak/internal/raft"
)

// Handlers contains all HTTP API handlers. Writes go through the
// consensus engine; reads are served from the local state machine
// after confirming leadership.
type Handlers struct {
	node         *raft.Node
	sm           *chat.StateMachine
	startTime    time.Time
	requestCount int64
}

// NewHandlers creates new handlers.
func NewHandlers(node *raft.Node, sm *chat.StateMachine) *Handlers {
	return &Handlers{
		node:      node,
		sm:        sm,
		startTime: time.Now(),
	}
}

// hashPassword digests a password for storage in the replicated
// state. The digest must be deterministic so every replica stores
// the same bytes.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// propose encodes the command and submits it to the engine. Not
// being the leader is reported to the client as a retry hint, not
// an error.
func (h *Handlers) propose(w http.ResponseWriter, cmd *chat.Command) (uint64, interface{}, bool) {
	index, result, err := h.node.Propose(cmd.Encode())
	if err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			writeNotLeader(w, h.node.LeaderID(), h.node.LeaderAddr())
			return 0, nil, false
		}
		status, code, msg := mapChatError(err)
		writeError(w, status, code, msg)
		return 0, nil, false
	}
	return index, result, true
}

// requireLeader confirms this node leads before a local read. Reads
// on a follower could return stale state, so they get the same
// redirect hint as writes.
func (h *Handlers) requireLeader(w http.ResponseWriter) bool {
	if !h.node.IsLeader() {
		writeNotLeader(w, h.node.LeaderID(), h.node.LeaderAddr())
		return false
	}
	return true
}

// HandleCreateAccount handles POST /v1/accounts
func (h *Handlers) HandleCreateAccount(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requestCount, 1)

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "empty_username", "username is required")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "empty_password", "password is required")
		return
	}

	index, _, ok := h.propose(w, &chat.Command{
		Op:           chat.OpCreateAccount,
		Username:     req.Username,
		PasswordHash: hashPassword(req.Password),
	})
	if !ok {
		return
	}

	writeJSON(w, http.StatusCreated, CreateAccountResponse{
		Username: req.Username,
		Index:    index,
	})
}

// HandleDeleteAccount handles DELETE /v1/accounts/{username}
func (h *Handlers) HandleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requestCount, 1)

	username := Param(r, "username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "empty_username", "username is required")
		return
	}

	var req DeleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if !h.requireLeader(w) {
		return
	}
	if !h.sm.AccountExists(username) {
		writeError(w, http.StatusNotFound, "account_not_found", "account not found")
		return
	}
	if !h.sm.Authenticate(username, hashPassword(req.Password)) {
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid password")
		return
	}

	if _, _, ok := h.propose(w, &chat.Command{
		Op:       chat.OpDeleteAccount,
		Username: username,
	}); !ok {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleListAccounts handles GET /v1/accounts
func (h *Handlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requestCount, 1)

	if !h.requireLeader(w) {
		return
	}

	pattern := r.URL.Query().Get("pattern")
	accounts := h.sm.ListAccounts()

	if pattern != "" {
		filtered := make([]string, 0, len(accounts))
		for _, name := range accounts {
			if ok, err := path.Match(pattern, name); err == nil && ok {
				filtered = append(filtered, name)
			}
		}
		accounts = filtered
	}

	writeJSON(w, http.StatusOK, AccountsResponse{
		Accounts: accounts,
		Count:    len(accounts),
	})
}

// HandleUnreadCount handles GET /v1/accounts/{username}/unread
func (h *Handlers) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requestCount, 1)

	username := Param(r, "username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "empty_username", "username is required")
		return
	}

	if !h.requireLeader(w) {
		return
	}
	if !h.sm.AccountExists(username) {
		writeError(w, http.StatusNotFound, "account_not_found", "account not found")
		return
	}

	writeJSON(w, http.StatusOK, UnreadResponse{
		Username: username,
		Unread:   h.sm.UnreadCount(username),
	})
}

// HandleSendMessage handles POST /v1/messages
func (h *Handlers) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requestCount, 1)

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Sender == "" || req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "empty_username", "sender and recipient are required")
		return
	}

	// The timestamp rides inside the command so every replica stores
	// the same value
	ts := time.Now().UnixMilli()

	index, result, ok := h.propose(w, &chat.Command{
		Op:        chat.OpSendMessage,
		Sender:    req.Sender,
		Recipient: req.Recipient,
		Content:   req.Content,
		Timestamp: ts,
	})
	if !ok {
		return
	}

	id, _ := result.(uint64)
	writeJSON(w, http.StatusCreated, SendMessageResponse{
		ID:        id,
		Index:     index,
		Timestamp: ts,
	})
}

// HandleListMessages handles GET /v1/messages
func (h *Handlers) HandleListMessages(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requestCount, 1)

	query := r.URL.Query()
	username := query.Get("username")
	if username == "" {
		writeError(w, http.StatusBadRequest, "empty_username", "username is required")
		return
	}
	includeRead := query.Get("includeRead") == "true"

	if !h.requireLeader(w) {
		return
	}
	if !h.sm.AccountExists(username) {
		writeError(w, http.StatusNotFound, "account_not_found", "account not found")
		return
	}

	messages := h.sm.MessagesFor(username, !includeRead)
	views := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		views = append(views, MessageView{
			ID:        m.ID,
			Sender:    m.Sender,
			Recipient: m.Recipient,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Read:      m.Read,
		})
	}

	writeJSON(w, http.StatusOK, MessagesResponse{
		Messages: views,
		Count:    len(views),
	})
}

// HandleMarkRead handles POST /v1/messages/read
func (h *Handlers) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requestCount, 1)

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "empty_username", "username is required")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "empty_ids", "at least one message ID is required")
		return
	}

	if _, _, ok := h.propose(w, &chat.Command{
		Op:         chat.OpMarkRead,
		Username:   req.Username,
		MessageIDs: req.IDs,
	}); !ok {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteMessages handles DELETE /v1/messages
func (h *Handlers) HandleDeleteMessages(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requestCount, 1)

	var req DeleteMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, "empty_username", "username is required")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "empty_ids", "at least one message ID is required")
		return
	}

	if _, _, ok := h.propose(w, &chat.Command{
		Op:         chat.OpDeleteMessages,
		Username:   req.Username,
		MessageIDs: req.IDs,
	}); !ok {
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus handles GET /v1/status. Served on any replica, leader
// or not.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.requestCount, 1)
	writeJSON(w, http.StatusOK, h.node.Status())
}

// HandleHealth handles GET /v1/health
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Version:    "1.0.0",
		Uptime:     uptime.String(),
		UptimeSecs: int64(uptime.Seconds()),
		Requests:   atomic.LoadInt64(&h.requestCount),
	})
}
