package mcp

import "errors"

var (
	// ErrUnsupportedScript is returned for provider scripts whose extension
	// maps to no known interpreter. No process is spawned in that case.
	ErrUnsupportedScript = errors.New("unsupported script kind")

	// ErrTransportClosed reports that the provider process is gone. It is
	// terminal for the session.
	ErrTransportClosed = errors.New("transport closed")

	// ErrProtocol reports a malformed or unexpected provider response.
	ErrProtocol = errors.New("protocol error")

	// ErrToolNotFound is returned when a call names a tool the provider
	// never declared.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolTimeout is returned when a call deadline expires while the
	// response is still outstanding. The session stays ready.
	ErrToolTimeout = errors.New("tool call timed out")

	// ErrNotReady is returned for calls made outside the ready state.
	ErrNotReady = errors.New("session is not ready")
)
