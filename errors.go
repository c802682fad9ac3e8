package agentapi

import "fmt"

// TransportError reports a request that could not be completed: either the
// connection failed outright or the server answered with a non-2xx status.
// The client never retries; the error is surfaced to the caller as-is.
type TransportError struct {
	// Op is the logical operation that failed, e.g. "send message".
	Op string
	// StatusCode is the HTTP status when a response was received, zero when
	// the connection itself failed.
	StatusCode int
	// Body holds a snippet of the response body for non-2xx answers.
	Body string
	// Err is the underlying transport failure, nil for status errors.
	Err error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agentapi: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("agentapi: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// FormatError reports a response body the client could not interpret, such
// as a missing required field or an unparsable timestamp.
type FormatError struct {
	// Field names the offending field when known.
	Field string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("agentapi: malformed response field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("agentapi: malformed response: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// NotFoundError reports a local file path that does not exist. It is
// returned by Upload before any network request is made.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("agentapi: file not found: %s", e.Path)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// ClosedClientError reports use of a client after Close.
type ClosedClientError struct {
	// Op is the operation attempted on the closed client.
	Op string
}

func (e *ClosedClientError) Error() string {
	return fmt.Sprintf("agentapi: client is closed: %s", e.Op)
}
