package rcon

import (
	"errors"
	"fmt"
)

// ConnectError reports a failure to open the TCP stream. Fatal to this
// connection attempt; retrying is the supervisor's job, not the client's.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("rcon: connect to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// AuthError reports a rejected or unanswered authentication attempt. A bad
// password is fatal; there is no point reconnecting with the same one.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("rcon: authentication failed: %s", e.Reason)
}

var (
	// ErrNotAuthenticated is returned by Execute before a successful
	// Authenticate call.
	ErrNotAuthenticated = errors.New("rcon: not authenticated")

	// ErrTimeout is returned when a correlated response (or its terminator
	// packet) does not arrive within the response timeout. Recoverable per
	// call; the connection stays up unless timeouts repeat.
	ErrTimeout = errors.New("rcon: command response timed out")

	// ErrCancelled resolves every in-flight request when the connection is
	// closed, so no caller is left waiting on a dead stream.
	ErrCancelled = errors.New("rcon: request cancelled, connection closed")

	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("rcon: client is closed")
)
