package server

// CreateAccountRequest registers a new account.
type CreateAccountRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CreateAccountResponse confirms a registration.
type CreateAccountResponse struct {
	Username string `json:"username"`
	Index    uint64 `json:"index"`
}

// DeleteAccountRequest removes an account. The password must match
// the one the account was created with.
type DeleteAccountRequest struct {
	Password string `json:"password"`
}

// SendMessageRequest delivers a message to another user.
type SendMessageRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
}

// SendMessageResponse reports the delivered message.
type SendMessageResponse struct {
	ID        uint64 `json:"id"`
	Index     uint64 `json:"index"`
	Timestamp int64  `json:"timestamp"`
}

// MarkReadRequest marks messages in a user's inbox as read.
type MarkReadRequest struct {
	Username string   `json:"username"`
	IDs      []uint64 `json:"ids"`
}

// DeleteMessagesRequest removes messages from a user's inbox.
type DeleteMessagesRequest struct {
	Username string   `json:"username"`
	IDs      []uint64 `json:"ids"`
}

// MessageView is a message in JSON form.
type MessageView struct {
	ID        uint64 `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Read      bool   `json:"read"`
}

// MessagesResponse lists messages for a user.
type MessagesResponse struct {
	Messages []MessageView `json:"messages"`
	Count    int           `json:"count"`
}

// AccountsResponse lists account names.
type AccountsResponse struct {
	Accounts []string `json:"accounts"`
	Count    int      `json:"count"`
}

// UnreadResponse reports the number of unread messages for a user.
type UnreadResponse struct {
	Username string `json:"username"`
	Unread   int    `json:"unread"`
}

// ErrorResponse is the body of every error reply. LeaderID and
// LeaderAddr are set on not_leader errors so clients can retry
// against the leader.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	LeaderID   string `json:"leaderId,omitempty"`
	LeaderAddr string `json:"leaderAddr,omitempty"`
}

// HealthResponse is the health check body.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Uptime     string `json:"uptime"`
	UptimeSecs int64  `json:"uptimeSecs"`
	Requests   int64  `json:"requests"`
}
