package service

import "errors"

var (
	ErrAlreadyInSession      = errors.New("already in a session")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSelfJoinForbidden     = errors.New("cannot join your own session")
	ErrSessionFull           = errors.New("session is full")
	ErrSessionCreationFailed = errors.New("session creation failed")
	ErrSessionJoinFailed     = errors.New("session join failed")
	ErrSessionTeardownFailed = errors.New("session teardown failed")
	ErrCartWriteFailed       = errors.New("cart write failed")
	ErrItemNotFound          = errors.New("item not found")
)
