// Package safeerrors defines the error taxonomy shared by every layer of
// the safe-browsing client: the URL normalizer, the update engine, and the
// lookup engine all return one of these sentinels (or an error that wraps
// one of them) so that callers can distinguish recoverable conditions from
// ones that call for a retry or a reset.
package safeerrors

import "github.com/AdguardTeam/golibs/errors"

// Sentinel errors returned by the package's components.  Callers should use
// [errors.Is] against these values, since the concrete errors are usually
// annotated with additional context.
const (
	// ErrInvalidURL is returned by the URL normalizer when a URL's scheme is
	// unsupported or its host is empty.  [lookup.Engine.Lookup] swallows this
	// error and reports no match, per the lookup contract.
	ErrInvalidURL = errors.Error("safebrowsing: invalid url")

	// ErrTransport is returned when an HTTP request to the Safe Browsing
	// service fails, either at the connection level or with a non-2xx
	// status.
	ErrTransport = errors.Error("safebrowsing: transport error")

	// ErrProtocol is returned when a response cannot be parsed into the
	// shape the protocol requires: malformed JSON or a missing required
	// field.
	ErrProtocol = errors.Error("safebrowsing: protocol error")

	// ErrIntegrity is returned when the checksum computed over a list's
	// sorted prefix table after an update does not match the server-supplied
	// checksum.
	ErrIntegrity = errors.Error("safebrowsing: checksum mismatch")

	// ErrStorage wraps any error surfaced by the storage backend.  It is
	// fatal to the call that triggered it, but not to the process.
	ErrStorage = errors.Error("safebrowsing: storage error")

	// ErrClosed is returned by the client once it has been closed.
	ErrClosed = errors.Error("safebrowsing: client is closed")
)
