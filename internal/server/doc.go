// Package server provides the HTTP/JSON API in front of the
// replicated messaging engine.
//
// Every write is encoded as a state machine command and submitted to
// the consensus engine; the handler replies only after the command
// has been committed and applied. Reads are answered from the local
// state machine after confirming this node is the leader, so clients
// never observe stale state. A request sent to a follower is
// answered with HTTP 409 and a body naming the current leader, and
// the client is expected to retry there.
//
// # Endpoints
//
// Accounts:
//
//	POST   /v1/accounts                    - Create account
//	GET    /v1/accounts?pattern=           - List accounts (glob filter)
//	DELETE /v1/accounts/{username}         - Delete account (password required)
//	GET    /v1/accounts/{username}/unread  - Unread message count
//
// Messages:
//
//	POST   /v1/messages                       - Send message
//	GET    /v1/messages?username=&includeRead= - List messages
//	POST   /v1/messages/read                  - Mark messages read
//	DELETE /v1/messages                       - Delete messages
//
// Cluster:
//
//	GET /v1/status - Consensus status of this node
//	GET /v1/health - Health check
//
// # Example Usage
//
//	curl -X POST http://localhost:8080/v1/accounts \
//	  -H "Content-Type: application/json" \
//	  -d '{"username": "alice", "password": "secret"}'
//
//	curl -X POST http://localhost:8080/v1/messages \
//	  -H "Content-Type: application/json" \
//	  -d '{"sender": "alice", "recipient": "bob", "content": "hello"}'
package server
