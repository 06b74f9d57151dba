package imap

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel kinds, matched with errors.Is
var (
	ErrAuth     = errors.New("authentication failed")
	ErrNetwork  = errors.New("network error")
	ErrTimeout  = errors.New("timeout")
	ErrProtocol = errors.New("protocol error")
)

// Error wraps a mailbox failure with its kind and the operation that raised it
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("imap %s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// classify picks ErrTimeout for deadline failures and fallback otherwise
func classify(op string, err error, fallback error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(ErrTimeout, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrTimeout, op, err)
	}
	return newError(fallback, op, err)
}

// Kind returns a short label for logs and metrics
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrProtocol):
		return "protocol"
	default:
		return "other"
	}
}
