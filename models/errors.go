package models

import "errors"

var (
	// ErrSelfFollow is returned when a user tries to follow themselves.
	ErrSelfFollow = errors.New("you cannot follow yourself")
	// ErrInvalidCredentials covers both an unknown username and a wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNotAuthor is returned when someone other than the author edits or deletes content.
	ErrNotAuthor = errors.New("not the author")
	// ErrMessageRead is returned when editing a message the recipient has already seen.
	ErrMessageRead = errors.New("message already read")
)

// ValidationError reports a rejected input field. Conflict marks values already taken by another record.
type ValidationError struct {
	Field    string
	Message  string
	Conflict bool
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func conflict(field, msg string) error {
	return &ValidationError{Field: field, Message: msg, Conflict: true}
}
