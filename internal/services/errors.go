// Package services defines the business logic of the messaging relay: the
// consistency rules around sending, editing, deleting, voting on, and reading
// private messages. This file centralizes common service-level error values
// so that they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; the
// delivery core translates them into outbound notices (or session
// termination, for the setup-time ones).
package services

import "errors"

var (
	// ErrRecipientNotFound indicates that the requested conversation peer
	// does not resolve to a real account. Setup-time: terminates the session
	// before any registration happens.
	ErrRecipientNotFound = errors.New("recipient not found")

	// ErrMessageNotFound indicates that the requested message does not exist
	// or is not accessible to the current user (edit/delete by non-senders
	// deliberately collapses into this).
	ErrMessageNotFound = errors.New("message not found")

	// ErrMessageDeleted is returned when an operation targets a message that
	// has already been deleted (voting on it, editing it).
	ErrMessageDeleted = errors.New("message has been deleted")

	// ErrInvalidVote is returned when a vote direction is outside the
	// accepted range (only dir <= 1 is structurally valid; the only stored
	// direction is +1).
	ErrInvalidVote = errors.New("vote direction must be at most 1")

	// ErrEmptyBody is returned when an edit would replace a message body
	// with nothing.
	ErrEmptyBody = errors.New("message body is empty")
)
