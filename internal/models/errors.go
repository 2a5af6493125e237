package models

import "errors"

var (
	// ErrStoreUnavailable wraps any failure of the persistence backend
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNoOpenSession is returned when a leave has no matching join
	ErrNoOpenSession = errors.New("no open session")

	// ErrRecipientUnreachable is returned when a direct message is refused by the recipient
	ErrRecipientUnreachable = errors.New("recipient unreachable")

	// ErrRoleNotFound is returned when the subscriber role does not exist in a guild
	ErrRoleNotFound = errors.New("role not found")
)
