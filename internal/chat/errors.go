package chat

import "errors"

var (
	// ErrNicknameTaken is returned when another live connection holds the
	// requested nickname. It is fatal to the requesting connection.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrInvalidState is returned for operations attempted before the
	// required prior step, or after the connection was closed.
	ErrInvalidState = errors.New("operation not valid in current state")
	// ErrInvalidNickname is returned for an empty nickname.
	ErrInvalidNickname = errors.New("nickname must not be empty")
	// ErrEmptyMessage is returned when a post carries no text.
	ErrEmptyMessage = errors.New("message text must not be empty")
	// ErrUnknownRoom is returned when a connection addresses a room it is
	// not a member of.
	ErrUnknownRoom = errors.New("not a member of room")
)
