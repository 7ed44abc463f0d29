package moonraker

import (
	"errors"
	"fmt"
)

// TransportError wraps connection-level failures: refused, reset, closed, or a
// frame that could not be read. Callers retry these.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError reports a message that was received intact but is malformed or
// semantically invalid. Only the offending message is discarded.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// RPCError is an explicit error response from the server. Its message is shown
// to the operator verbatim.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// IsAuthError reports whether err is an authentication or authorization reject.
func IsAuthError(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == 401 || rpcErr.Code == 403
}
