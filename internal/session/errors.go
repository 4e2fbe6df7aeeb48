package session

import "errors"

var (
	ErrNotAuthenticated = errors.New("no authenticated user for session")
	ErrNotJoined        = errors.New("no room joined")
	ErrRoomNotFound     = errors.New("room not found")
	ErrEmptyMessage     = errors.New("message content is empty")
	ErrInvalidRoomName  = errors.New("room name is empty")
	ErrPersistence      = errors.New("failed to persist change")
	ErrJoinSuperseded   = errors.New("join superseded by a newer join")
	ErrSessionClosed    = errors.New("session closed")
)
