package chat

import "errors"

var (
	// ErrAccountExists is returned when creating an account that already exists.
	ErrAccountExists = errors.New("chat: account already exists")

	// ErrAccountNotFound is returned when an operation names an unknown account.
	ErrAccountNotFound = errors.New("chat: account not found")

	// ErrEmptyUsername is returned when an operation carries an empty username.
	ErrEmptyUsername = errors.New("chat: username must not be empty")

	// ErrEmptyContent is returned when a message has no content.
	ErrEmptyContent = errors.New("chat: message content must not be empty")
)
