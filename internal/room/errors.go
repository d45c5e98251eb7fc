package room

import "errors"

var (
	// ErrHubClosed is returned by every Hub operation after Close.
	ErrHubClosed = errors.New("room hub closed")
	// ErrSessionClosed is returned by Session.Send once the session is Disconnected.
	ErrSessionClosed = errors.New("session closed")
	// ErrBackpressure is returned by Session.Send when the outbound buffer is full.
	ErrBackpressure = errors.New("session send buffer full")

	// errActorStopped signals that an actor exited before running a command;
	// the hub retries on a fresh actor.
	errActorStopped = errors.New("room actor stopped")
)
