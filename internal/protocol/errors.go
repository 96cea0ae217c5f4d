package protocol

import "errors"

// Protocol errors.
//
// Transport failures (transport.ErrTransport, transport.ErrTimeout) are
// returned wrapped and can be matched with errors.Is as well.
var (
	// ErrDecode is returned when a response body is not the JSON shape the
	// operation expects.
	ErrDecode = errors.New("protocol: malformed response")

	// ErrPersist is returned when the merge succeeded but the cache could not
	// be saved.
	ErrPersist = errors.New("protocol: persisting cache failed")

	// ErrInvalidRequest is returned when a request is missing required fields.
	ErrInvalidRequest = errors.New("protocol: invalid request")
)
