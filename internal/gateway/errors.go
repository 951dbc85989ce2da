package gateway

import "fmt"

// Error is the single failure type surfaced by the client. Transport
// failures, timeouts, non-2xx replies and malformed bodies all land here so
// callers never see net/http detail.
type Error struct {
	Op      string // "token", "submit", "status", "ipn"
	Status  int    // HTTP status, 0 when the request never completed
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("pesapal %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("pesapal %s: %s", e.Op, e.Message)
}

func newError(op string, status int, msg string) *Error {
	return &Error{Op: op, Status: status, Message: msg}
}
