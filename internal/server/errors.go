package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ulak-chat/ulak/internal/chat"
	"github.com/ulak-chat/ulak/internal/raft"
)

// mapChatError maps a state machine error to HTTP status and error code.
func mapChatError(err error) (int, string, string) {
	switch {
	case errors.Is(err, chat.ErrAccountExists):
		return http.StatusConflict, "account_exists", "account already exists"
	case errors.Is(err, chat.ErrAccountNotFound):
		return http.StatusNotFound, "account_not_found", "account not found"
	case errors.Is(err, chat.ErrEmptyUsername):
		return http.StatusBadRequest, "empty_username", "username must not be empty"
	case errors.Is(err, chat.ErrEmptyContent):
		return http.StatusBadRequest, "empty_content", "message content must not be empty"
	case errors.Is(err, raft.ErrNodeStopped):
		return http.StatusServiceUnavailable, "unavailable", "node is shutting down"
	default:
		return http.StatusInternalServerError, "internal_error", err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   code,
		Code:    status,
		Message: message,
	})
}

// writeNotLeader tells the client which node to retry against.
func writeNotLeader(w http.ResponseWriter, leaderID, leaderAddr string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusConflict)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:      "not_leader",
		Code:       http.StatusConflict,
		Message:    "this node is not the leader",
		LeaderID:   leaderID,
		LeaderAddr: leaderAddr,
	})
}
